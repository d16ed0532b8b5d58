package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|x-goog-api-key)\b\s*[:=]\s*[^\s"']+`)

	// Gemini REST calls can carry the key as a query parameter.
	keyQueryRe = regexp.MustCompile(`([?&]key=)[^&\s"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
//
// Safe to call on any message, including prompt text and upstream error strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = keyQueryRe.ReplaceAllString(out, "${1}<redacted>")
	return strings.TrimSpace(out)
}

// Snippet redacts and truncates a response body to at most max bytes, flattening newlines.
func Snippet(body []byte, max int) string {
	if len(body) == 0 {
		return ""
	}
	b := body
	if max > 0 && len(b) > max {
		b = b[:max]
	}
	s := Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if max > 0 && len(body) > max {
		return s + "..."
	}
	return s
}
