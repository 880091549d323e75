package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Unit handlers: score submission and result lookup for one performance
// or match

type submitScoreRequest struct {
	JudgeID      string               `json:"judge_id"`
	CompetitorID string               `json:"competitor_id"`
	Value        *float64             `json:"value,omitempty"`
	Card         *models.SparringCard `json:"card,omitempty"`
}

type setStatusRequest struct {
	Status models.UnitStatus `json:"status"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")

	var req submitScoreRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	entry, err := s.engine.SubmitScore(r.Context(), models.Submission{
		UnitID:       unitID,
		JudgeID:      req.JudgeID,
		CompetitorID: req.CompetitorID,
		Value:        req.Value,
		Card:         req.Card,
	})
	if err != nil {
		respondEngineError(w, err, "submit score", "unit_id", unitID, "judge_id", req.JudgeID)
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")

	result, err := s.engine.GetResult(r.Context(), unitID)
	if err != nil {
		respondEngineError(w, err, "get result", "unit_id", unitID)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleResolveWinner(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")

	unit, err := s.engine.ResolveWinner(r.Context(), unitID)
	if err != nil {
		respondEngineError(w, err, "resolve winner", "unit_id", unitID)
		return
	}

	respondJSON(w, http.StatusOK, unit)
}

func (s *Server) handleSetUnitStatus(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")

	var req setStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	unit, err := s.engine.SetUnitStatus(r.Context(), unitID, req.Status)
	if err != nil {
		respondEngineError(w, err, "set unit status", "unit_id", unitID)
		return
	}

	respondJSON(w, http.StatusOK, unit)
}
