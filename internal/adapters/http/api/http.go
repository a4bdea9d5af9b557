// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/humancheck/internal/app"
	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/types"
)

// maxBodyBytes caps request bodies. A session of a few minutes is well below it.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	AnalyzeDependencies
	VerdictDependencies
	SuspectDependencies
	ModelDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionsHandler *SessionsHandler
	analyzeHandler  *AnalyzeHandler
	verdictsHandler *VerdictsHandler
	suspectsHandler *SuspectsHandler
	modelHandler    *ModelHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		analyzeHandler:  NewAnalyzeHandler(deps),
		verdictsHandler: NewVerdictsHandler(deps),
		suspectsHandler: NewSuspectsHandler(deps, deps.MaxSuspectsLimit()),
		modelHandler:    NewModelHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandlePostSession, "sessions"))
	mux.HandleFunc("/analyze", MetricsMiddleware(s.analyzeHandler.HandleAnalyze, "analyze"))
	mux.HandleFunc("/verdicts/", MetricsMiddleware(s.verdictsHandler.HandleGetVerdict, "verdicts"))
	mux.HandleFunc("/suspects", MetricsMiddleware(s.suspectsHandler.HandleGetSuspects, "suspects"))
	mux.HandleFunc("/suspects/", MetricsMiddleware(s.suspectsHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/model", MetricsMiddleware(s.modelHandler.HandleGetModel, "model"))
	mux.HandleFunc("/model/train", MetricsMiddleware(s.modelHandler.HandleTrain, "train"))
}

// Response shapes shared by several handlers.
type (
	// Verdict is the JSON shape of a stored or synchronous verdict.
	Verdict = model.Verdict
	// Suspect is one row of the bot-probability ranking.
	Suspect = types.Suspect
	// ModelInfo describes the published model.
	ModelInfo = classifier.Info
	// Stats is the GET /stats body.
	Stats = service.Stats
)

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
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

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return wrapKind(ErrBadRequest, err)
	}
	return nil
}

// pathParam returns the single path segment after prefix, or "" when there is
// none or more than one.
func pathParam(r *http.Request, prefix string) string {
	p := strings.TrimPrefix(r.URL.Path, prefix)
	if p == "" || strings.Contains(p, "/") {
		return ""
	}
	return p
}

// writeServiceError answers the errors every service-backed route can hit.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
