package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/humancheck/internal/adapters/repository"
	"github.com/okian/humancheck/internal/domain/model"
)

// VerdictDependencies reads stored verdicts.
type VerdictDependencies interface {
	Verdict(ctx context.Context, sessionID string) (model.Verdict, error)
}

// VerdictsHandler handles verdict lookups.
type VerdictsHandler struct {
	deps VerdictDependencies
}

// NewVerdictsHandler creates a new verdicts handler.
func NewVerdictsHandler(deps VerdictDependencies) *VerdictsHandler {
	return &VerdictsHandler{deps: deps}
}

// HandleGetVerdict handles GET /verdicts/{session_id} requests.
func (h *VerdictsHandler) HandleGetVerdict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := pathParam(r, "/verdicts/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	v, err := h.deps.Verdict(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
