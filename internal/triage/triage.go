// Package triage analyzes unread messages in bulk and reports drafts and suggested
// tasks for each.
package triage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

// Analyzer is the slice of the assist gateway triage needs.
type Analyzer interface {
	AnalyzeMessage(ctx context.Context, msg crm.Message, deal *crm.Deal, company *crm.Company) (assist.MessageAnalysis, error)
}

// Item is one message with its resolved context.
type Item struct {
	Message crm.Message
	Deal    *crm.Deal
	Company *crm.Company
}

// Items collects the unread messages of mailboxID (all mailboxes when empty),
// oldest first.
func Items(ws *snapshot.Workspace, mailboxID string) []Item {
	unread := ws.Unread(mailboxID)
	out := make([]Item, 0, len(unread))
	for _, m := range unread {
		_, deal, company, err := ws.MessageContext(m.ID)
		if err != nil {
			continue
		}
		out = append(out, Item{Message: m, Deal: deal, Company: company})
	}
	return out
}

type Runner struct {
	analyzer Analyzer
	logger   *zap.Logger
	opts     Options
}

func NewRunner(a Analyzer, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{analyzer: a, logger: logger.Named("triage"), opts: opts}
}

// Run analyzes every item. With FailFast unset a failed item is reported in its
// Result and the run continues.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Result[Item, assist.MessageAnalysis], error) {
	start := time.Now()
	var failed int
	results, err := RunWithCallback(ctx, items, r.analyze, func(res Result[Item, assist.MessageAnalysis]) error {
		fields := []zap.Field{
			zap.String("message_id", res.Input.Message.ID),
			zap.Int("attempts", res.Attempts),
		}
		if res.Err != nil {
			failed++
			r.logger.Warn("message failed", append(fields, zap.Error(res.Err))...)
			return nil
		}
		r.logger.Debug("message analyzed", append(fields, zap.Int("suggested_tasks", len(res.Output.SuggestedTasks)))...)
		return nil
	}, r.opts)
	if err != nil {
		return nil, err
	}
	r.logger.Info("triage complete",
		zap.Int("messages", len(items)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}

func (r *Runner) analyze(ctx context.Context, it Item) (assist.MessageAnalysis, error) {
	return r.analyzer.AnalyzeMessage(ctx, it.Message, it.Deal, it.Company)
}
