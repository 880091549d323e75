package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the engine, the stores and the API layer
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("judge not authorized")
	ErrConflict        = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service failure")
)

// Eligibility reasons reported for competitors rejected from a round
const (
	ReasonNotRegistered = "not_registered"
	ReasonNotApproved   = "not_approved"
	ReasonNotPaid       = "not_paid"
)

// MissingCompetitor names a competitor that failed the eligibility check
type MissingCompetitor struct {
	CompetitorID string `json:"competitor_id"`
	Reason       string `json:"reason"`
}

// ValidationError describes malformed input or an eligibility mismatch
type ValidationError struct {
	Message string              `json:"message"`
	Missing []MissingCompetitor `json:"missing,omitempty"`
}

// Validationf builds a ValidationError from a format string
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return e.Message
	}

	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		parts = append(parts, m.CompetitorID+" ("+m.Reason+")")
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
