package assist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shpitdev/crm-assist/pkg/assist/schema"
)

// Decode parses raw as T, returning the zero value when the text is empty,
// malformed, or not the top-level shape s declares. A field of the wrong JSON
// type is left zero and the rest of the object is kept. It never fails.
func Decode[T any](raw string, s *schema.Schema) T {
	out, _ := DecodeStrict[T](raw, s)
	return out
}

// DecodeStrict is Decode but reports why decoding fell back. On failure the
// returned value is the zero value, except for DecodeFieldType where it holds
// every field that decoded.
//
// Values are not validated against s beyond the top-level kind: enum values and
// missing required fields pass through untouched.
func DecodeStrict[T any](raw string, s *schema.Schema) (T, error) {
	var zero T
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, &DecodeFailure{Reason: DecodeEmpty}
	}
	b := []byte(trimmed)
	if !json.Valid(b) {
		return zero, &DecodeFailure{Reason: DecodeMalformed, Err: fmt.Errorf("invalid json (%d bytes)", len(b))}
	}
	if err := checkTopLevel(b, s); err != nil {
		return zero, &DecodeFailure{Reason: DecodeShape, Err: err}
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, &DecodeFailure{Reason: DecodeFieldType, Err: err}
		}
		return zero, &DecodeFailure{Reason: DecodeShape, Err: err}
	}
	return out, nil
}

func checkTopLevel(b []byte, s *schema.Schema) error {
	kind := schema.KindObject
	if s != nil && s.Kind != "" {
		kind = s.Kind
	}
	first := b[0]
	switch kind {
	case schema.KindObject:
		if first != '{' {
			return fmt.Errorf("want object, got %s", describe(b))
		}
	case schema.KindArray:
		if first != '[' {
			return fmt.Errorf("want array, got %s", describe(b))
		}
	}
	return nil
}

func describe(b []byte) string {
	switch {
	case bytes.Equal(b, []byte("null")):
		return "null"
	case b[0] == '{':
		return "object"
	case b[0] == '[':
		return "array"
	case b[0] == '"':
		return "string"
	case b[0] == 't' || b[0] == 'f':
		return "boolean"
	default:
		return "number"
	}
}
