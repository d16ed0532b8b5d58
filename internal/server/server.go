// Package server exposes the assistant operations over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/internal/intake"
	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
	"github.com/shpitdev/crm-assist/pkg/crm"
)

// Assistant is the operation set served over HTTP; *assist.Gateway implements it.
type Assistant interface {
	EnrichLead(ctx context.Context, rawInput string) (assist.EnrichedLead, error)
	AnalyzeMessage(ctx context.Context, msg crm.Message, deal *crm.Deal, company *crm.Company) (assist.MessageAnalysis, error)
	PrepareCall(ctx context.Context, deal crm.Deal, company crm.Company, interactions []crm.Interaction, depth prompt.Depth) (assist.CallBriefing, error)
	GenerateOutreach(ctx context.Context, deal crm.Deal, company crm.Company, tone string) (assist.OutreachDraft, error)
}

// Workspaces yields the current workspace snapshot; *snapshot.Store implements it.
type Workspaces interface {
	Current() *snapshot.Workspace
	LoadedAt() time.Time
}

type Config struct {
	Assistant  Assistant
	Workspaces Workspaces
	Metrics    *Metrics
	Logger     *zap.Logger
	Intake     intake.Mapper
	// CORSOrigins defaults to "*".
	CORSOrigins []string
	Version     string
}

type Server struct {
	assistant  Assistant
	workspaces Workspaces
	metrics    *Metrics
	logger     *zap.Logger
	intake     intake.Mapper
	origins    []string
	version    string
	started    time.Time
}

func New(cfg Config) *Server {
	s := &Server{
		assistant:  cfg.Assistant,
		workspaces: cfg.Workspaces,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		intake:     cfg.Intake,
		origins:    cfg.CORSOrigins,
		version:    cfg.Version,
		started:    time.Now(),
	}
	if s.workspaces == nil {
		s.workspaces = staticWorkspace{ws: snapshot.Empty(), at: s.started}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.logger = s.logger.Named("http")
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/assist", func(r chi.Router) {
			r.Post("/enrich-lead", s.handleEnrichLead)
			r.Post("/analyze-message", s.handleAnalyzeMessage)
			r.Post("/prepare-call", s.handlePrepareCall)
			r.Post("/outreach", s.handleOutreach)
		})
		r.Post("/messages/{messageID}/analyze", s.handleAnalyzeStoredMessage)
		r.Post("/deals/{dealID}/prepare-call", s.handlePrepareStoredCall)
		r.Post("/deals/{dealID}/outreach", s.handleStoredOutreach)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type staticWorkspace struct {
	ws *snapshot.Workspace
	at time.Time
}

func (s staticWorkspace) Current() *snapshot.Workspace { return s.ws }
func (s staticWorkspace) LoadedAt() time.Time          { return s.at }
