package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/model"
)

// AnalyzeDependencies scores a session synchronously.
type AnalyzeDependencies interface {
	Analyze(ctx context.Context, sub model.Submission) (model.Verdict, error)
}

// AnalyzeHandler handles synchronous analysis requests.
type AnalyzeHandler struct {
	deps AnalyzeDependencies
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps AnalyzeDependencies) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps}
}

// HandleAnalyze handles POST /analyze requests. Unlike POST /sessions the
// failure modes of analysis are reported instead of replaced by a fallback.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "adhoc"
	}
	sub, err := req.submission()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	v, err := h.deps.Analyze(r.Context(), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, v)
	case errors.Is(err, features.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, model.ReasonInsufficientData, err)
	case errors.Is(err, classifier.ErrInvalidFeatures):
		writeError(w, http.StatusUnprocessableEntity, model.ReasonInvalidFeatures, err)
	case errors.Is(err, classifier.ErrModelNotTrained):
		writeError(w, http.StatusServiceUnavailable, model.ReasonModelNotTrained, err)
	default:
		writeServiceError(w, err)
	}
}
