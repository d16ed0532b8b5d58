package assist

import (
	"context"

	"github.com/shpitdev/crm-assist/pkg/assist/schema"
)

// Completer sends one rendered prompt with its declared output shape to a
// text-generation provider and returns the raw response text.
//
// Implementations return *CompletionFailure for transport, status and credential
// failures. They must not retry.
type Completer interface {
	Complete(ctx context.Context, prompt string, s *schema.Schema) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string, s *schema.Schema) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, s *schema.Schema) (string, error) {
	return f(ctx, prompt, s)
}

// Every field of a result may be zero: a response that fails to decode yields the
// zero value rather than an error.

// EnrichedLead is a structured lead profile inferred from a company name or URL.
type EnrichedLead struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"industry"`
	// PainPoint is a one-sentence hypothesis tied to industry trends.
	PainPoint     string  `json:"painPoint"`
	ValueEstimate float64 `json:"valueEstimate"`
}

// SuggestedTask is a provisional action item. Type and Priority are passed through
// exactly as the model returned them.
type SuggestedTask struct {
	Title            string  `json:"title"`
	Type             string  `json:"type"`
	Priority         string  `json:"priority"`
	EstimatedMinutes float64 `json:"estimatedMinutes"`
}

type MessageAnalysis struct {
	DraftResponse  string          `json:"draftResponse"`
	SuggestedTasks []SuggestedTask `json:"suggestedTasks"`
}

type Briefing struct {
	Goal         string   `json:"goal"`
	Agenda       []string `json:"agenda"`
	KeyQuestions []string `json:"keyQuestions"`
}

// CallBriefing is a sales call preparation package.
type CallBriefing struct {
	Snapshot      string   `json:"snapshot"`
	Hypotheses    []string `json:"hypotheses"`
	Risks         []string `json:"risks"`
	Briefing      Briefing `json:"briefing"`
	FollowUpDraft string   `json:"followUpDraft"`
}

type OutreachDraft struct {
	Message string `json:"message"`
}
