package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string                     `json:"code"`
	Message string                     `json:"message"`
	Missing []models.MissingCompetitor `json:"missing,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeError(w, status, &apiError{Code: code, Message: message})
}

func writeError(w http.ResponseWriter, status int, apiErr *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error:   apiErr,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
// Unclassified errors are logged and reported as "failed to <action>".
func respondEngineError(w http.ResponseWriter, err error, action string, attrs ...any) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, &apiError{
			Code:    "validation_error",
			Message: verr.Message,
			Missing: verr.Missing,
		})
	case errors.Is(err, models.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, models.ErrExternalService):
		slog.Error("failed to "+action, append(attrs, "error", err)...)
		respondError(w, http.StatusBadGateway, "external_service_error", "failed to "+action)
	default:
		slog.Error("failed to "+action, append(attrs, "error", err)...)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeBody decodes a JSON request body. An empty body leaves v untouched
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	return false
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Rules())
}
