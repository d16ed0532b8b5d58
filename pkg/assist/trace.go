package assist

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/pkg/assist/schema"
	"github.com/shpitdev/crm-assist/pkg/redact"
)

const previewChars = 160

type tracedCompleter struct {
	next   Completer
	logger *zap.Logger
	seq    atomic.Int64
}

// Trace wraps next so every request and response is logged at debug level.
// Prompt and response previews are redacted and truncated.
func Trace(next Completer, logger *zap.Logger) Completer {
	if logger == nil {
		return next
	}
	return &tracedCompleter{next: next, logger: logger.Named("completion")}
}

func (t *tracedCompleter) Complete(ctx context.Context, prompt string, s *schema.Schema) (string, error) {
	call := t.seq.Add(1)
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Debug("completion request",
		zap.Int64("call", call),
		zap.Strings("fields", s.PropertyNames()),
		zap.Int("prompt_chars", len(prompt)),
		zap.String("prompt_preview", preview(prompt)),
		zap.String("deadline_in", deadlineIn),
	)

	start := time.Now()
	out, err := t.next.Complete(ctx, prompt, s)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		var cf *CompletionFailure
		retryable := errors.As(err, &cf) && cf.Retryable()
		t.logger.Debug("completion response",
			zap.Int64("call", call),
			zap.Duration("duration", elapsed),
			zap.String("status", "error"),
			zap.Bool("retryable", retryable),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return out, err
	}

	t.logger.Debug("completion response",
		zap.Int64("call", call),
		zap.Duration("duration", elapsed),
		zap.String("status", "ok"),
		zap.Int("response_bytes", len(out)),
		zap.String("response_preview", preview(out)),
	)
	return out, nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewChars {
		s = string(r[:previewChars]) + "..."
	}
	return redact.Secrets(s)
}
