package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/internal/intake"
	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

const maxBodyBytes = 1 << 20

type EnrichLeadRequest struct {
	Input string `json:"input"`
	// Create also returns the company and deal intake would build.
	Create  bool           `json:"create,omitempty"`
	Contact *ContactFields `json:"contact,omitempty"`
}

type ContactFields struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type EnrichLeadResponse struct {
	Lead    assist.EnrichedLead `json:"lead"`
	Company *crm.Company        `json:"company,omitempty"`
	Deal    *crm.Deal           `json:"deal,omitempty"`
}

type AnalyzeMessageRequest struct {
	Message crm.Message  `json:"message"`
	Deal    *crm.Deal    `json:"deal,omitempty"`
	Company *crm.Company `json:"company,omitempty"`
	// Accept also returns a task built from every suggestion.
	Accept bool `json:"accept,omitempty"`
}

type AnalyzeMessageResponse struct {
	Analysis assist.MessageAnalysis `json:"analysis"`
	Tasks    []crm.Task             `json:"tasks,omitempty"`
}

type PrepareCallRequest struct {
	Deal         crm.Deal          `json:"deal"`
	Company      crm.Company       `json:"company"`
	Interactions []crm.Interaction `json:"interactions"`
	Depth        string            `json:"depth"`
}

type OutreachRequest struct {
	Deal    crm.Deal    `json:"deal"`
	Company crm.Company `json:"company"`
	Tone    string      `json:"tone"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"workspace":        s.workspaces.Current().Counts(),
		"workspace_loaded": s.workspaces.LoadedAt().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEnrichLead(w http.ResponseWriter, r *http.Request) {
	var req EnrichLeadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Create {
		if err := intake.CheckInput(req.Input); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	lead, err := s.assistant.EnrichLead(r.Context(), req.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := EnrichLeadResponse{Lead: lead}
	if req.Create {
		var contact intake.Contact
		if req.Contact != nil {
			contact = intake.Contact{Name: req.Contact.Name, Email: req.Contact.Email, Phone: req.Contact.Phone}
		}
		company, deal, err := s.intake.Lead(req.Input, &lead, contact)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Company, resp.Deal = &company, &deal
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyzeMessage(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.analyze(w, r, req.Message, req.Deal, req.Company, req.Accept)
}

func (s *Server) handleAnalyzeStoredMessage(w http.ResponseWriter, r *http.Request) {
	msg, deal, company, err := s.workspaces.Current().MessageContext(chi.URLParam(r, "messageID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.analyze(w, r, msg, deal, company, r.URL.Query().Get("accept") == "true")
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request, msg crm.Message, deal *crm.Deal, company *crm.Company, accept bool) {
	analysis, err := s.assistant.AnalyzeMessage(r.Context(), msg, deal, company)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := AnalyzeMessageResponse{Analysis: analysis}
	if accept {
		resp.Tasks = s.intake.Tasks(analysis, msg)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrepareCall(w http.ResponseWriter, r *http.Request) {
	var req PrepareCallRequest
	if !s.decode(w, r, &req) {
		return
	}
	depth, err := prompt.ParseDepth(req.Depth)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.prepareCall(w, r, req.Deal, req.Company, req.Interactions, depth)
}

func (s *Server) handlePrepareStoredCall(w http.ResponseWriter, r *http.Request) {
	depth, err := prompt.ParseDepth(r.URL.Query().Get("depth"))
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	deal, company, interactions, err := s.workspaces.Current().DealContext(chi.URLParam(r, "dealID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.prepareCall(w, r, deal, company, interactions, depth)
}

func (s *Server) prepareCall(w http.ResponseWriter, r *http.Request, deal crm.Deal, company crm.Company, interactions []crm.Interaction, depth prompt.Depth) {
	briefing, err := s.assistant.PrepareCall(r.Context(), deal, company, interactions, depth)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, briefing)
}

func (s *Server) handleOutreach(w http.ResponseWriter, r *http.Request) {
	var req OutreachRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.outreach(w, r, req.Deal, req.Company, req.Tone)
}

func (s *Server) handleStoredOutreach(w http.ResponseWriter, r *http.Request) {
	deal, company, _, err := s.workspaces.Current().DealContext(chi.URLParam(r, "dealID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.outreach(w, r, deal, company, r.URL.Query().Get("tone"))
}

func (s *Server) outreach(w http.ResponseWriter, r *http.Request, deal crm.Deal, company crm.Company, tone string) {
	draft, err := s.assistant.GenerateOutreach(r.Context(), deal, company, tone)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		s.badRequest(w, r, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: middleware.GetReqID(r.Context())})
}

// fail maps an operation error to a status: completion failures are upstream
// errors (502), missing records 404, short lead input 400.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())
	var cf *assist.CompletionFailure
	switch {
	case errors.As(err, &cf):
		s.logger.Warn("completion failed", zap.String("request_id", reqID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: cf.Error(), Kind: string(cf.Kind), RequestID: reqID})
	case errors.Is(err, snapshot.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), RequestID: reqID})
	case intake.IsInputTooShort(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RequestID: reqID})
	default:
		s.logger.Error("request failed", zap.String("request_id", reqID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", RequestID: reqID})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
