package storage

import (
	"context"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Repository defines the persistence contract of the competition engine.
// Lookups of missing rows return an error wrapping models.ErrNotFound;
// creating a level that already exists returns one wrapping models.ErrConflict.
type Repository interface {
	// Categories
	UpsertCategory(ctx context.Context, c *models.Category) error
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	ListCategories(ctx context.Context, discipline models.Discipline) ([]*models.Category, error)

	// Registrations
	UpsertRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, categoryID, competitorID string) (*models.Registration, error)
	ListRegistrations(ctx context.Context, categoryID string) ([]*models.Registration, error)

	// Judges
	UpsertJudgeAssignment(ctx context.Context, a *models.JudgeAssignment) error
	GetJudgeAssignment(ctx context.Context, judgeID, categoryID string) (*models.JudgeAssignment, error)
	ListConfirmedJudges(ctx context.Context, categoryID, tatami string) ([]string, error)
	AttachJudge(ctx context.Context, unitID, judgeID string) error
	ListUnitJudges(ctx context.Context, unitID string) ([]string, error)

	// Levels and contest units
	CreateLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error
	ReplaceLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error
	DeleteCategoryLevels(ctx context.Context, categoryID string) error
	LevelExists(ctx context.Context, categoryID, level string) (bool, error)
	ListLevels(ctx context.Context, categoryID string) ([]string, error)
	GetUnit(ctx context.Context, id string) (*models.ContestUnit, error)
	UpdateUnits(ctx context.Context, units ...*models.ContestUnit) error
	ListUnits(ctx context.Context, categoryID, level string) ([]*models.ContestUnit, error)

	// Scores
	UpsertScore(ctx context.Context, entry *models.ScoreEntry) (*models.ScoreEntry, error)
	ListScores(ctx context.Context, unitID string) ([]*models.ScoreEntry, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)
