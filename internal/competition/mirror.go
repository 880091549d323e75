package competition

import (
	"context"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// SaveCategory stores a category as known to the tournament service
func (e *Engine) SaveCategory(ctx context.Context, c *models.Category) error {
	if c.ID == "" {
		return models.Validationf("category id is required")
	}
	if !c.Discipline.Valid() {
		return models.Validationf("unknown discipline %q", c.Discipline)
	}
	c.UpdatedAt = e.clock()
	return e.repo.UpsertCategory(ctx, c)
}

// SaveRegistration mirrors the registration collaborator's record
func (e *Engine) SaveRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.CategoryID == "" || reg.CompetitorID == "" {
		return models.Validationf("category and competitor ids are required")
	}
	if _, err := e.repo.GetCategory(ctx, reg.CategoryID); err != nil {
		return err
	}
	reg.UpdatedAt = e.clock()
	return e.repo.UpsertRegistration(ctx, reg)
}

// SaveJudgeAssignment mirrors the judge-panel collaborator's record
func (e *Engine) SaveJudgeAssignment(ctx context.Context, a *models.JudgeAssignment) error {
	if a.JudgeID == "" || a.CategoryID == "" {
		return models.Validationf("judge and category ids are required")
	}
	if _, err := e.repo.GetCategory(ctx, a.CategoryID); err != nil {
		return err
	}
	a.UpdatedAt = e.clock()
	return e.repo.UpsertJudgeAssignment(ctx, a)
}

// ListCategories returns categories, optionally of one discipline
func (e *Engine) ListCategories(ctx context.Context, d models.Discipline) ([]*models.Category, error) {
	return e.repo.ListCategories(ctx, d)
}

// Ping checks the store
func (e *Engine) Ping(ctx context.Context) error {
	return e.repo.Ping(ctx)
}
