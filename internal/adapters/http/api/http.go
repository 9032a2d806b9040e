// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/talentlens/internal/adapters/repository"
	service "github.com/okian/talentlens/internal/app"
	"github.com/okian/talentlens/internal/domain/model"
	"github.com/okian/talentlens/pkg/logger"
	"github.com/okian/talentlens/pkg/metrics"
)

// Error codes written in error bodies.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeInternal   = "internal_error"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	ListSubjects(ctx context.Context, kind model.Kind) []model.Subject
	GetSubject(ctx context.Context, kind model.Kind, id string) (service.SubjectDetail, error)
	PutSubject(ctx context.Context, s model.Subject) error

	AnalyzeOne(ctx context.Context, kind model.Kind, id string, params model.Parameters) (service.Analysis, error)
	AnalyzeBatch(ctx context.Context, kind model.Kind, ids []string, params model.Parameters) (service.BatchResult, error)
	Compare(ctx context.Context, kind model.Kind, ids []string) (service.CompareResult, error)
	History(ctx context.Context, kind model.Kind, id string, limit int) ([]model.Record, error)
	HistoryLimit(limit int) int

	Stats(ctx context.Context) service.StatsReport
	Health(ctx context.Context) service.HealthReport
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	subjectsHandler *SubjectsHandler
	analysisHandler *AnalysisHandler
}

// Option configures a Server.
type Option func(*options)

type options struct {
	log logger.Logger
}

// WithLogger sets the logger used for unexpected handler errors.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	w := responder{log: o.log}
	return &Server{
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		subjectsHandler: &SubjectsHandler{deps: deps, w: w},
		analysisHandler: &AnalysisHandler{deps: deps, w: w},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /subjects/{kind}", MetricsMiddleware(s.subjectsHandler.HandleList, "subjects_list"))
	mux.HandleFunc("GET /subjects/{kind}/{id}", MetricsMiddleware(s.subjectsHandler.HandleGet, "subjects_get"))
	mux.HandleFunc("PUT /subjects/{kind}/{id}", MetricsMiddleware(s.subjectsHandler.HandlePut, "subjects_put"))

	mux.HandleFunc("POST /subjects/{kind}/{id}/analyze", MetricsMiddleware(s.analysisHandler.HandleAnalyze, "analyze"))
	mux.HandleFunc("GET /subjects/{kind}/{id}/history", MetricsMiddleware(s.analysisHandler.HandleHistory, "history"))
	mux.HandleFunc("POST /subjects/{kind}/batch-analyze", MetricsMiddleware(s.analysisHandler.HandleBatch, "batch_analyze"))
	mux.HandleFunc("POST /subjects/{kind}/compare", MetricsMiddleware(s.analysisHandler.HandleCompare, "compare"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidSubject):
		return http.StatusBadRequest, codeBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

type responder struct {
	log logger.Logger
}

// error writes err as a JSON error body. Unexpected errors are logged and
// reported without their detail.
func (rs responder) error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		rs.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		msg = ErrInternal.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// kindParam parses the {kind} path value.
func kindParam(r *http.Request, op string) (model.Kind, error) {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		return "", WrapKind(op, ErrBadRequest, err)
	}
	return kind, nil
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}
