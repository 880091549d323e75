package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/bracket-engine/internal/competition"
	"github.com/terra-clan/bracket-engine/internal/models"
)

// Category handlers: mirrored collaborator records, draws and level
// progression

type categoryRequest struct {
	Name       string            `json:"name"`
	Discipline models.Discipline `json:"discipline"`
	Tatami     string            `json:"tatami,omitempty"`
}

type registrationRequest struct {
	Name     string `json:"name"`
	Club     string `json:"club,omitempty"`
	Approved bool   `json:"approved"`
	Paid     bool   `json:"paid"`
}

type judgeRequest struct {
	Tatami    string `json:"tatami,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

type drawRequest struct {
	Replace bool `json:"replace"`
}

type roundRequest struct {
	Level         string   `json:"level"`
	CompetitorIDs []string `json:"competitor_ids"`
	Replace       bool     `json:"replace"`
}

type bronzeRequest struct {
	CompetitorID string `json:"competitor_id"`
	OpponentID   string `json:"opponent_id"`
}

// levelResponse carries the units of a generated level. Generated is false
// when the source level is not yet complete.
type levelResponse struct {
	Generated bool                  `json:"generated"`
	Units     []*models.ContestUnit `json:"units"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	discipline := models.Discipline(r.URL.Query().Get("discipline"))
	if discipline != "" && !discipline.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "unknown discipline")
		return
	}

	categories, err := s.engine.ListCategories(r.Context(), discipline)
	if err != nil {
		respondEngineError(w, err, "list categories")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"total":      len(categories),
	})
}

func (s *Server) handlePutCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	cat := &models.Category{
		ID:         chi.URLParam(r, "categoryID"),
		Name:       req.Name,
		Discipline: req.Discipline,
		Tatami:     req.Tatami,
	}
	if err := s.engine.SaveCategory(r.Context(), cat); err != nil {
		respondEngineError(w, err, "save category", "category_id", cat.ID)
		return
	}

	respondJSON(w, http.StatusOK, cat)
}

func (s *Server) handlePutRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	reg := &models.Registration{
		CategoryID:   chi.URLParam(r, "categoryID"),
		CompetitorID: chi.URLParam(r, "competitorID"),
		Name:         req.Name,
		Club:         req.Club,
		Approved:     req.Approved,
		Paid:         req.Paid,
	}
	if err := s.engine.SaveRegistration(r.Context(), reg); err != nil {
		respondEngineError(w, err, "save registration", "category_id", reg.CategoryID)
		return
	}

	respondJSON(w, http.StatusOK, reg)
}

func (s *Server) handlePutJudge(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	assignment := &models.JudgeAssignment{
		JudgeID:    chi.URLParam(r, "judgeID"),
		CategoryID: chi.URLParam(r, "categoryID"),
		Tatami:     req.Tatami,
		Confirmed:  req.Confirmed,
	}
	if err := s.engine.SaveJudgeAssignment(r.Context(), assignment); err != nil {
		respondEngineError(w, err, "save judge assignment", "category_id", assignment.CategoryID)
		return
	}

	respondJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleGenerateDraws(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	categoryID := chi.URLParam(r, "categoryID")
	bracket, err := s.engine.GenerateDraws(r.Context(), competition.DrawRequest{
		CategoryID: categoryID,
		Replace:    req.Replace,
	})
	if err != nil {
		respondEngineError(w, err, "generate draws", "category_id", categoryID)
		return
	}

	respondJSON(w, http.StatusCreated, bracket)
}

func (s *Server) handleGetBracket(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")

	bracket, err := s.engine.GetBracket(r.Context(), categoryID)
	if err != nil {
		respondEngineError(w, err, "get bracket", "category_id", categoryID)
		return
	}

	respondJSON(w, http.StatusOK, bracket)
}

func (s *Server) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req roundRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	categoryID := chi.URLParam(r, "categoryID")
	units, err := s.engine.CreateRound(r.Context(), competition.RoundRequest{
		CategoryID:    categoryID,
		Level:         req.Level,
		CompetitorIDs: req.CompetitorIDs,
		Replace:       req.Replace,
	})
	if err != nil {
		respondEngineError(w, err, "create round", "category_id", categoryID)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"units": units,
		"total": len(units),
	})
}

func (s *Server) handleCreateBronze(w http.ResponseWriter, r *http.Request) {
	var req bronzeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	categoryID := chi.URLParam(r, "categoryID")
	unit, err := s.engine.CreateBronzeMatch(r.Context(), competition.BronzeRequest{
		CategoryID:   categoryID,
		CompetitorID: req.CompetitorID,
		OpponentID:   req.OpponentID,
	})
	if err != nil {
		respondEngineError(w, err, "create bronze match", "category_id", categoryID)
		return
	}

	respondJSON(w, http.StatusCreated, unit)
}

func (s *Server) handleGenerateNextLevel(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")
	level := chi.URLParam(r, "level")

	units, err := s.engine.GenerateNextLevel(r.Context(), categoryID, level)
	if err != nil {
		respondEngineError(w, err, "generate next level", "category_id", categoryID, "level", level)
		return
	}

	if units == nil {
		units = []*models.ContestUnit{}
	}
	respondJSON(w, http.StatusOK, levelResponse{
		Generated: len(units) > 0,
		Units:     units,
	})
}

func (s *Server) handleAssignPlacements(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")
	level := chi.URLParam(r, "level")

	units, err := s.engine.AssignPlacements(r.Context(), categoryID, level)
	if err != nil {
		respondEngineError(w, err, "assign placements", "category_id", categoryID, "level", level)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"units": units,
		"total": len(units),
	})
}

func (s *Server) handleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "categoryID")
	level := chi.URLParam(r, "level")

	rows, err := s.engine.GetScoreboard(r.Context(), categoryID, level)
	if err != nil {
		respondEngineError(w, err, "get scoreboard", "category_id", categoryID, "level", level)
		return
	}

	if rows == nil {
		rows = []models.ScoreboardRow{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  rows,
		"total": len(rows),
	})
}
