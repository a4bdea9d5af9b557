package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/okian/humancheck/internal/app"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
)

// SessionDependencies queues finished sessions for analysis.
type SessionDependencies interface {
	Submit(ctx context.Context, sub model.Submission) (bool, error)
}

// sessionRequest mirrors the OpenAPI schema for POST /sessions and POST /analyze.
type sessionRequest struct {
	SessionID string          `json:"session_id"`
	Source    string          `json:"source"`
	Samples   []motion.Sample `json:"samples"`
}

func (s sessionRequest) submission() (model.Submission, error) {
	if s.SessionID == "" {
		return model.Submission{}, wrapKind(ErrBadRequest, errors.New("missing session_id"))
	}
	src, err := motion.ParseSource(s.Source)
	if err != nil {
		return model.Submission{}, wrapKind(ErrBadRequest, err)
	}
	if err := motion.ValidateOrder(s.Samples); err != nil {
		return model.Submission{}, wrapKind(ErrBadRequest, err)
	}
	return model.Submission{SessionID: s.SessionID, Source: src, Samples: s.Samples}, nil
}

// SessionsHandler handles session submissions.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandlePostSession handles POST /sessions requests.
func (h *SessionsHandler) HandlePostSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	sub, err := req.submission()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	dup, err := h.deps.Submit(r.Context(), sub)
	switch {
	case err == nil && dup:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, service.ErrInvalidSubmission):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(ErrBadRequest, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", wrapKind(ErrBackpressure, err))
	default:
		writeServiceError(w, err)
	}
}
