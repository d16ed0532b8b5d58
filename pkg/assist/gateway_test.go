package assist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
	"github.com/shpitdev/crm-assist/pkg/assist/schema"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

// stubCompleter records the last request and answers with a fixed response.
type stubCompleter struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	schemas  []*schema.Schema
}

func (s *stubCompleter) Complete(_ context.Context, p string, sc *schema.Schema) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	s.schemas = append(s.schemas, sc)
	return s.response, s.err
}

func (s *stubCompleter) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[len(s.prompts)-1]
}

func newGateway(t *testing.T, c assist.Completer) *assist.Gateway {
	t.Helper()
	g, err := assist.New(assist.Config{Completer: c})
	require.NoError(t, err)
	return g
}

var (
	company = crm.Company{ID: "comp-2", Name: "Zalando SE", Domain: "zalando.io", Industry: "E-Commerce"}
	deal    = crm.Deal{ID: "deal-2", CompanyID: "comp-2", Title: "Custom LLM Support Bot", Stage: crm.StageQualified}
	message = crm.Message{ID: "msg-3", Sender: "Zalando Procurement", Subject: "Terminbestätigung Onboarding", Body: "Der Termin steht.", DealID: "deal-2"}
)

func TestNew_RequiresCompleter(t *testing.T) {
	_, err := assist.New(assist.Config{})
	require.Error(t, err)
}

func TestEnrichLead_Scenario(t *testing.T) {
	stub := &stubCompleter{response: `{"name":"Acme Robotics","domain":"acme-robotics.com","industry":"Robotics","painPoint":"...","valueEstimate":15000}`}
	g := newGateway(t, stub)

	got, err := g.EnrichLead(context.Background(), "acme-robotics.com")
	require.NoError(t, err)
	assert.Equal(t, assist.EnrichedLead{
		Name:          "Acme Robotics",
		Domain:        "acme-robotics.com",
		Industry:      "Robotics",
		PainPoint:     "...",
		ValueEstimate: 15000,
	}, got)

	assert.Contains(t, stub.lastPrompt(), "acme-robotics.com")
	assert.Same(t, schema.LeadEnrichment, stub.schemas[0])
}

func TestAnalyzeMessage(t *testing.T) {
	stub := &stubCompleter{response: `{"draftResponse":"Vielen Dank!","suggestedTasks":[{"title":"Onboarding vorbereiten","type":"Delivery","priority":"P1","estimatedMinutes":30}]}`}
	g := newGateway(t, stub)

	got, err := g.AnalyzeMessage(context.Background(), message, &deal, &company)
	require.NoError(t, err)
	assert.Equal(t, "Vielen Dank!", got.DraftResponse)
	assert.Equal(t, []assist.SuggestedTask{{Title: "Onboarding vorbereiten", Type: "Delivery", Priority: "P1", EstimatedMinutes: 30}}, got.SuggestedTasks)
	assert.Contains(t, stub.lastPrompt(), "Custom LLM Support Bot for Zalando SE")
	assert.Same(t, schema.MessageAnalysis, stub.schemas[0])
}

func TestAnalyzeMessage_EmptyTaskList(t *testing.T) {
	stub := &stubCompleter{response: `{"draftResponse":"Danke.","suggestedTasks":[]}`}
	got, err := newGateway(t, stub).AnalyzeMessage(context.Background(), message, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Danke.", got.DraftResponse)
	assert.Empty(t, got.SuggestedTasks)
	assert.Contains(t, stub.lastPrompt(), prompt.NoDealContext)
}

func TestPrepareCall(t *testing.T) {
	stub := &stubCompleter{response: `{
		"snapshot":"Retail support volumes spike seasonally.",
		"hypotheses":["a","b","c"],
		"risks":["works council"],
		"briefing":{"goal":"Agree pilot scope","agenda":["Intro","Demo"],"keyQuestions":["q1","q2","q3","q4","q5"]},
		"followUpDraft":"Hi Max"
	}`}
	g := newGateway(t, stub)
	interactions := []crm.Interaction{{Content: "first"}, {Content: "second"}}

	got, err := g.PrepareCall(context.Background(), deal, company, interactions, prompt.DepthDeep)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Hypotheses)
	assert.Equal(t, "Agree pilot scope", got.Briefing.Goal)
	assert.Len(t, got.Briefing.KeyQuestions, 5)
	assert.Equal(t, "Hi Max", got.FollowUpDraft)
	assert.Contains(t, stub.lastPrompt(), "first | second")
	assert.Same(t, schema.CallPrep, stub.schemas[0])
}

func TestGenerateOutreach(t *testing.T) {
	stub := &stubCompleter{response: `{"message":"Max, quick idea on support automation."}`}
	got, err := newGateway(t, stub).GenerateOutreach(context.Background(), deal, company, "bold")
	require.NoError(t, err)
	assert.Equal(t, assist.OutreachDraft{Message: "Max, quick idea on support automation."}, got)
	assert.Contains(t, stub.lastPrompt(), "Tone: bold.")
	assert.Same(t, schema.Outreach, stub.schemas[0])
}

// callAll runs every operation against g and returns their errors.
func callAll(g *assist.Gateway) map[string]error {
	ctx := context.Background()
	errs := map[string]error{}
	_, errs[assist.OpEnrichLead] = g.EnrichLead(ctx, "acme")
	_, errs[assist.OpAnalyzeMessage] = g.AnalyzeMessage(ctx, message, nil, nil)
	_, errs[assist.OpPrepareCall] = g.PrepareCall(ctx, deal, company, nil, prompt.DepthQuick)
	_, errs[assist.OpGenerateOutreach] = g.GenerateOutreach(ctx, deal, company, "warm")
	return errs
}

func TestOperations_PropagateCompletionFailure(t *testing.T) {
	transport := errors.New("dial tcp: connection refused")
	g := newGateway(t, &stubCompleter{err: transport})

	for op, err := range callAll(g) {
		t.Run(op, func(t *testing.T) {
			require.Error(t, err)
			var cf *assist.CompletionFailure
			require.True(t, errors.As(err, &cf), "err=%T %v", err, err)
			assert.Equal(t, assist.FailureTransport, cf.Kind)
			assert.ErrorIs(t, err, transport)
		})
	}
}

func TestOperations_KeepProviderFailureKind(t *testing.T) {
	failure := &assist.CompletionFailure{Kind: assist.FailureStatus, StatusCode: 503, Temporary: true, Err: errors.New("unavailable")}
	g := newGateway(t, &stubCompleter{err: failure})

	for op, err := range callAll(g) {
		t.Run(op, func(t *testing.T) {
			var cf *assist.CompletionFailure
			require.True(t, errors.As(err, &cf))
			assert.Same(t, failure, cf)
			assert.True(t, cf.Retryable())
		})
	}
}

func TestOperations_DecodeFallbackIsNotAnError(t *testing.T) {
	for _, raw := range []string{"", "not json", "[]"} {
		g := newGateway(t, &stubCompleter{response: raw})
		for op, err := range callAll(g) {
			assert.NoError(t, err, "op=%s raw=%q", op, raw)
		}
	}

	g := newGateway(t, &stubCompleter{response: "not json"})
	lead, err := g.EnrichLead(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, assist.EnrichedLead{}, lead)
}

func TestOperations_LogAndObserve(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	type observed struct {
		op      string
		outcome assist.Outcome
	}
	var mu sync.Mutex
	var seen []observed

	stub := &stubCompleter{response: "garbage"}
	g, err := assist.New(assist.Config{
		Completer: stub,
		Logger:    zap.New(core),
		Observe: func(op string, outcome assist.Outcome, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, observed{op: op, outcome: outcome})
		},
	})
	require.NoError(t, err)

	_, err = g.EnrichLead(context.Background(), "acme")
	require.NoError(t, err)

	stub.response = `{"message":"ok"}`
	_, err = g.GenerateOutreach(context.Background(), deal, company, "")
	require.NoError(t, err)

	stub.err = errors.New("boom")
	_, err = g.GenerateOutreach(context.Background(), deal, company, "")
	require.Error(t, err)

	assert.Equal(t, []observed{
		{op: assist.OpEnrichLead, outcome: assist.OutcomeFallback},
		{op: assist.OpGenerateOutreach, outcome: assist.OutcomeOK},
		{op: assist.OpGenerateOutreach, outcome: assist.OutcomeFailed},
	}, seen)

	assert.Equal(t, 1, logs.FilterMessage("decode fell back to empty result").Len())
	assert.Equal(t, 1, logs.FilterMessage("completion failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("operation complete").Len())
}

func TestAnalyzeMessage_WrongFieldTypeKeepsDraft(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var outcome assist.Outcome
	stub := &stubCompleter{response: `{"draftResponse":"Danke!","suggestedTasks":[{"title":"Rückruf","estimatedMinutes":"30"}]}`}
	g, err := assist.New(assist.Config{
		Completer: stub,
		Logger:    zap.New(core),
		Observe:   func(_ string, o assist.Outcome, _ time.Duration) { outcome = o },
	})
	require.NoError(t, err)

	got, err := g.AnalyzeMessage(context.Background(), message, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Danke!", got.DraftResponse)
	require.Len(t, got.SuggestedTasks, 1)
	assert.Equal(t, "Rückruf", got.SuggestedTasks[0].Title)
	assert.Zero(t, got.SuggestedTasks[0].EstimatedMinutes)
	assert.Equal(t, assist.OutcomeFallback, outcome)
	assert.Equal(t, 1, logs.FilterMessage("decode kept partial result").Len())
}

func TestOperations_DoNotMutateInputs(t *testing.T) {
	stub := &stubCompleter{response: `{}`}
	g := newGateway(t, stub)

	d := deal
	d.Tags = []string{"build", "high-potential"}
	interactions := []crm.Interaction{{ID: "b", Content: "second"}, {ID: "a", Content: "first"}}

	_, err := g.PrepareCall(context.Background(), d, company, interactions, prompt.DepthStandard)
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "high-potential"}, d.Tags)
	assert.Equal(t, "b", interactions[0].ID)
}
