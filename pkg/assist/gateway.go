package assist

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
	"github.com/shpitdev/crm-assist/pkg/assist/schema"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

// Operation names, used in logs and metrics.
const (
	OpEnrichLead       = "enrich_lead"
	OpAnalyzeMessage   = "analyze_message"
	OpPrepareCall      = "prepare_call"
	OpGenerateOutreach = "generate_outreach"
)

// Outcome is how an operation ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// ObserveFunc receives one call per finished operation.
type ObserveFunc func(op string, outcome Outcome, elapsed time.Duration)

type Config struct {
	Completer Completer
	// Prompts defaults to prompt.Default() when zero.
	Prompts prompt.Builder
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Observe is optional.
	Observe ObserveFunc
}

// Gateway exposes the assistant operations. It holds no per-call state and is safe
// for concurrent use.
type Gateway struct {
	completer Completer
	prompts   prompt.Builder
	logger    *zap.Logger
	observe   ObserveFunc
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Completer == nil {
		return nil, errors.New("assist: completer is required")
	}
	prompts := cfg.Prompts
	if prompts == (prompt.Builder{}) {
		prompts = prompt.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observe := cfg.Observe
	if observe == nil {
		observe = func(string, Outcome, time.Duration) {}
	}
	return &Gateway{
		completer: cfg.Completer,
		prompts:   prompts,
		logger:    logger.Named("assist"),
		observe:   observe,
	}, nil
}

// EnrichLead turns a free-text company hint (name or URL) into a lead profile.
func (g *Gateway) EnrichLead(ctx context.Context, rawInput string) (EnrichedLead, error) {
	return run[EnrichedLead](ctx, g, OpEnrichLead, g.prompts.LeadEnrichment(rawInput), schema.LeadEnrichment)
}

// AnalyzeMessage drafts a reply and extracts suggested tasks. deal and company may be nil.
func (g *Gateway) AnalyzeMessage(ctx context.Context, msg crm.Message, deal *crm.Deal, company *crm.Company) (MessageAnalysis, error) {
	return run[MessageAnalysis](ctx, g, OpAnalyzeMessage, g.prompts.MessageAnalysis(msg, deal, company), schema.MessageAnalysis)
}

// PrepareCall builds a briefing package. interactions should be in chronological order.
func (g *Gateway) PrepareCall(ctx context.Context, deal crm.Deal, company crm.Company, interactions []crm.Interaction, depth prompt.Depth) (CallBriefing, error) {
	return run[CallBriefing](ctx, g, OpPrepareCall, g.prompts.CallPrep(deal, company, interactions, depth), schema.CallPrep)
}

// GenerateOutreach drafts a short personalized outreach message in the given tone.
func (g *Gateway) GenerateOutreach(ctx context.Context, deal crm.Deal, company crm.Company, tone string) (OutreachDraft, error) {
	return run[OutreachDraft](ctx, g, OpGenerateOutreach, g.prompts.Outreach(deal, company, tone), schema.Outreach)
}

func run[T any](ctx context.Context, g *Gateway, op string, text string, s *schema.Schema) (T, error) {
	start := time.Now()
	raw, err := g.completer.Complete(ctx, text, s)
	if err != nil {
		var zero T
		err = asCompletionFailure(err)
		g.logger.Warn("completion failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		g.observe(op, OutcomeFailed, time.Since(start))
		return zero, err
	}

	out, derr := DecodeStrict[T](raw, s)
	if derr != nil {
		msg := "decode fell back to empty result"
		var df *DecodeFailure
		if errors.As(derr, &df) && df.Reason == DecodeFieldType {
			msg = "decode kept partial result"
		}
		g.logger.Warn(msg,
			zap.String("op", op),
			zap.Int("response_bytes", len(raw)),
			zap.Error(derr),
		)
		g.observe(op, OutcomeFallback, time.Since(start))
		return out, nil
	}

	g.logger.Debug("operation complete",
		zap.String("op", op),
		zap.Int("prompt_chars", len(text)),
		zap.Int("response_bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)
	g.observe(op, OutcomeOK, time.Since(start))
	return out, nil
}

// asCompletionFailure makes sure callers can always errors.As a CompletionFailure
// out of an operation error, whatever the Completer returned.
func asCompletionFailure(err error) error {
	var cf *CompletionFailure
	if errors.As(err, &cf) {
		return err
	}
	return &CompletionFailure{Kind: FailureTransport, Err: err}
}
