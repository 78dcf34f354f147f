package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/app/services"
	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/pkg/validation"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrConnectionNotFound),
		errors.Is(err, checkpoint.ErrCheckpointNotFound),
		errors.Is(err, services.ErrForeignCheckpoint):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrGraphReadOnly),
		errors.Is(err, graph.ErrNodeReadOnly):
		return http.StatusLocked
	case errors.Is(err, graph.ErrOutputLimitReached),
		errors.Is(err, graph.ErrInputLimitReached),
		errors.Is(err, graph.ErrDuplicateConnection):
		return http.StatusConflict
	case errors.Is(err, graph.ErrSourceNodeNotFound),
		errors.Is(err, graph.ErrTargetNodeNotFound),
		errors.Is(err, graph.ErrOutputPortMismatch),
		errors.Is(err, graph.ErrInputPortMismatch),
		errors.Is(err, graph.ErrSelfLoop):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkpoint.ErrInvalidLimit),
		errors.Is(err, checkpoint.ErrInvalidOffset),
		errors.Is(err, checkpoint.ErrInvalidTimeRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes err with the status statusFor picks. Validation
// failures keep their field list.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var ve validation.ValidationErrors
	if errors.As(err, &ve) {
		validation.WriteErrors(w, http.StatusUnprocessableEntity, ve)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	respondError(w, status, err.Error())
}
