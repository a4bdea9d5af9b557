package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	service "github.com/okian/humancheck/internal/app"
	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
)

// ModelDependencies trains and describes the classifier.
type ModelDependencies interface {
	Train(ctx context.Context, req service.TrainRequest) (classifier.Info, error)
	ModelInfo() classifier.Info
}

// trainRequest mirrors the OpenAPI schema for POST /model/train.
type trainRequest struct {
	Examples []trainExample `json:"examples"`
	Persist  bool           `json:"persist"`
}

type trainExample struct {
	Label    string           `json:"label"`
	Features *features.Vector `json:"features,omitempty"`
	Samples  []motion.Sample  `json:"samples,omitempty"`
}

func (t trainRequest) toService() (service.TrainRequest, error) {
	if len(t.Examples) == 0 {
		return service.TrainRequest{}, wrapKind(ErrBadRequest, errors.New("no examples"))
	}
	out := service.TrainRequest{Persist: t.Persist, Examples: make([]service.TrainingExample, 0, len(t.Examples))}
	for i, ex := range t.Examples {
		label, err := classifier.ParseLabel(ex.Label)
		if err != nil {
			return service.TrainRequest{}, wrapKind(ErrBadRequest, fmt.Errorf("example %d: %w", i, err))
		}
		out.Examples = append(out.Examples, service.TrainingExample{Label: label, Features: ex.Features, Samples: ex.Samples})
	}
	return out, nil
}

// ModelHandler handles model requests.
type ModelHandler struct {
	deps ModelDependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

// HandleGetModel handles GET /model requests.
func (h *ModelHandler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ModelInfo())
}

// HandleTrain handles POST /model/train requests.
func (h *ModelHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var body trainRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	info, err := h.deps.Train(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, classifier.ErrDegenerateTraining):
		writeError(w, http.StatusBadRequest, "degenerate_training", err)
	case errors.Is(err, service.ErrInvalidExample), errors.Is(err, classifier.ErrUnknownLabel),
		errors.Is(err, classifier.ErrInvalidFeatures):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(ErrBadRequest, err))
	default:
		writeServiceError(w, err)
	}
}
