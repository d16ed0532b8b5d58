// Package mockgemini serves a minimal Gemini-compatible generateContent endpoint
// for tests and local runs without a provider credential.
package mockgemini

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/shpitdev/crm-assist/pkg/redact"
)

// Call records a generateContent request made to the mock.
type Call struct {
	Model  string
	Prompt string
	// Fields are the top-level property names of the declared response schema,
	// in declaration order when the request carried one.
	Fields []string
	// HasAPIKey reports whether the request carried an API key.
	HasAPIKey bool
}

// Responder returns the raw response text for a call.
type Responder func(Call) string

type Server struct {
	mu        sync.Mutex
	calls     []Call
	responder Responder

	failStatus int
	failLeft   int
}

func New() *Server {
	return &Server{responder: Canned}
}

// Respond replaces the responder. A nil responder restores Canned.
func (s *Server) Respond(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		r = Canned
	}
	s.responder = r
}

// FailNext makes the next n requests fail with the given HTTP status.
// n < 0 fails every request until FailNext(0, 0) is called.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLeft = n
	s.failStatus = status
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleGenerate)
	return mux
}

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseSchema *struct {
			Properties       map[string]json.RawMessage `json:"properties"`
			PropertyOrdering []string                   `json:"propertyOrdering"`
		} `json:"responseSchema"`
	} `json:"generationConfig"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	model, ok := parseModel(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown path "+r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "INVALID_ARGUMENT", "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "read body: "+err.Error())
		return
	}
	var req generateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf("decode body: %v (body: %s)", err, redact.Snippet(body, 200)))
		return
	}

	call := Call{
		Model:     model,
		Prompt:    promptText(req),
		Fields:    schemaFields(req),
		HasAPIKey: r.Header.Get("x-goog-api-key") != "" || r.URL.Query().Get("key") != "",
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	failStatus := 0
	if s.failLeft != 0 {
		failStatus = s.failStatus
		if s.failLeft > 0 {
			s.failLeft--
		}
	}
	responder := s.responder
	s.mu.Unlock()

	if failStatus != 0 {
		writeError(w, failStatus, statusName(failStatus), "injected failure")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]any{{"text": responder(call)}},
			},
			"finishReason": "STOP",
			"index":        0,
		}},
		"modelVersion": model,
	})
}

// parseModel extracts the model from ".../models/<model>:generateContent".
func parseModel(path string) (string, bool) {
	const suffix = ":generateContent"
	if !strings.HasSuffix(path, suffix) {
		return "", false
	}
	i := strings.LastIndex(path, "/models/")
	if i < 0 {
		return "", false
	}
	model := strings.TrimSuffix(path[i+len("/models/"):], suffix)
	return model, model != ""
}

func promptText(req generateRequest) string {
	var b strings.Builder
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func schemaFields(req generateRequest) []string {
	rs := req.GenerationConfig.ResponseSchema
	if rs == nil {
		return nil
	}
	if len(rs.PropertyOrdering) > 0 {
		return append([]string(nil), rs.PropertyOrdering...)
	}
	out := make([]string, 0, len(rs.Properties))
	for name := range rs.Properties {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func statusName(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case code == http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case code == http.StatusForbidden:
		return "PERMISSION_DENIED"
	case code/100 == 5:
		return "UNAVAILABLE"
	default:
		return "INVALID_ARGUMENT"
	}
}

func writeError(w http.ResponseWriter, code int, status, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":{"code":500,"message":%q}}`, err.Error())
	}
}
