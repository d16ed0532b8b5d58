package assist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/crm-assist/pkg/redact"
)

// ErrMissingCredential is wrapped by CompletionFailure when no provider credential
// is configured. It is reported at call time; startup is not blocked.
var ErrMissingCredential = errors.New("no provider credential configured")

// FailureKind classifies a completion failure.
type FailureKind string

const (
	FailureMissingCredential FailureKind = "missing_credential"
	FailureStatus            FailureKind = "status"
	FailureTransport         FailureKind = "transport"
)

// CompletionFailure is returned when the provider could not be reached, rejected
// the request, or no credential is configured. It is never produced for a response
// that arrived but could not be decoded.
type CompletionFailure struct {
	Kind FailureKind
	// StatusCode is the provider's HTTP status for FailureStatus, otherwise 0.
	StatusCode int
	// Temporary marks 429/5xx statuses and timed-out or temporary network errors.
	Temporary bool
	Err       error
}

func (e *CompletionFailure) Error() string {
	if e == nil {
		return "completion failed"
	}
	parts := []string{"completion failed: kind=" + string(e.Kind)}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Err != nil {
		parts = append(parts, redact.Secrets(e.Err.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *CompletionFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether a later attempt could succeed. Operations never retry;
// batch runners may.
func (e *CompletionFailure) Retryable() bool {
	return e != nil && e.Temporary
}

// IsCompletionFailure reports whether err carries a CompletionFailure.
func IsCompletionFailure(err error) bool {
	var cf *CompletionFailure
	return errors.As(err, &cf)
}

// DecodeReason describes why a response could not be decoded.
type DecodeReason string

const (
	DecodeEmpty     DecodeReason = "empty"
	DecodeMalformed DecodeReason = "malformed"
	DecodeShape     DecodeReason = "shape"
	// DecodeFieldType means some field had the wrong JSON type. The fields that
	// did decode are kept.
	DecodeFieldType DecodeReason = "field_type"
)

// DecodeFailure is the internal, non-fatal failure to parse a response. Operations
// swallow it and return the fallback.
type DecodeFailure struct {
	Reason DecodeReason
	Err    error
}

func (e *DecodeFailure) Error() string {
	if e == nil {
		return "decode failed"
	}
	if e.Err == nil {
		return "decode failed: " + string(e.Reason)
	}
	return "decode failed: " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *DecodeFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
