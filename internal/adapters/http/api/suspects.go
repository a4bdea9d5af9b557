package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/humancheck/internal/adapters/repository"
	"github.com/okian/humancheck/internal/domain/types"
)

// SuspectDependencies defines the ranking read operations.
type SuspectDependencies interface {
	TopSuspects(ctx context.Context, n int) ([]types.Suspect, error)
	Rank(ctx context.Context, sessionID string) (types.Suspect, error)
	MaxSuspectsLimit() int
}

// SuspectsHandler handles ranking requests.
type SuspectsHandler struct {
	deps     SuspectDependencies
	maxLimit int
}

// NewSuspectsHandler creates a new suspects handler.
func NewSuspectsHandler(deps SuspectDependencies, maxLimit int) *SuspectsHandler {
	return &SuspectsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetSuspects handles GET /suspects?limit=N requests.
func (h *SuspectsHandler) HandleGetSuspects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(ErrBadRequest, errors.New("limit must be a positive integer")))
		return
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			wrapKind(ErrBadRequest, errors.New("limit above "+strconv.Itoa(h.maxLimit))))
		return
	}
	suspects, err := h.deps.TopSuspects(r.Context(), n)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suspects)
}

// HandleGetRank handles GET /suspects/{session_id} requests.
func (h *SuspectsHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := pathParam(r, "/suspects/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	s, err := h.deps.Rank(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
