package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// SQLiteRepository implements Repository on an embedded SQLite database
// through gorm. It serves single-node deployments and tests.
type SQLiteRepository struct {
	db *gorm.DB
}

// OpenSQLite opens a SQLite database file with the pure-Go driver.
// SQLite allows one writer at a time, so the pool holds one connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dsn,
	}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// NewSQLiteRepository opens path, applies migrations and returns the repository
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	if err := MigrateSQLite(ctx, db); err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertCategory creates or updates a category
func (r *SQLiteRepository) UpsertCategory(ctx context.Context, c *models.Category) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	rec := categoryRecord{
		ID:         c.ID,
		Name:       c.Name,
		Discipline: string(c.Discipline),
		Tatami:     c.Tatami,
		UpdatedAt:  c.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "discipline", "tatami", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID
func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var rec categoryRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return rec.toModel(), nil
}

// ListCategories returns categories, optionally filtered by discipline
func (r *SQLiteRepository) ListCategories(ctx context.Context, discipline models.Discipline) ([]*models.Category, error) {
	q := r.db.WithContext(ctx).Model(&categoryRecord{})
	if discipline != "" {
		q = q.Where("discipline = ?", string(discipline))
	}

	var recs []categoryRecord
	if err := q.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	out := make([]*models.Category, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// UpsertRegistration creates or updates a registration mirror row
func (r *SQLiteRepository) UpsertRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = time.Now().UTC()
	}

	rec := registrationRecord{
		CategoryID:   reg.CategoryID,
		CompetitorID: reg.CompetitorID,
		Name:         reg.Name,
		Club:         reg.Club,
		Approved:     reg.Approved,
		Paid:         reg.Paid,
		UpdatedAt:    reg.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "category_id"}, {Name: "competitor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "club", "approved", "paid", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert registration: %w", err)
	}
	return nil
}

// GetRegistration retrieves one competitor's registration in a category
func (r *SQLiteRepository) GetRegistration(ctx context.Context, categoryID, competitorID string) (*models.Registration, error) {
	var rec registrationRecord
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND competitor_id = ?", categoryID, competitorID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("registration %s/%s: %w", categoryID, competitorID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return rec.toModel(), nil
}

// ListRegistrations returns every registration of a category
func (r *SQLiteRepository) ListRegistrations(ctx context.Context, categoryID string) ([]*models.Registration, error) {
	var recs []registrationRecord
	err := r.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("competitor_id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	out := make([]*models.Registration, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// UpsertJudgeAssignment creates or updates a judge assignment
func (r *SQLiteRepository) UpsertJudgeAssignment(ctx context.Context, a *models.JudgeAssignment) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	rec := judgeAssignmentRecord{
		JudgeID:    a.JudgeID,
		CategoryID: a.CategoryID,
		Tatami:     a.Tatami,
		Confirmed:  a.Confirmed,
		UpdatedAt:  a.UpdatedAt,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "judge_id"}, {Name: "category_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tatami", "confirmed", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert judge assignment: %w", err)
	}
	return nil
}

// GetJudgeAssignment retrieves a judge's assignment to a category
func (r *SQLiteRepository) GetJudgeAssignment(ctx context.Context, judgeID, categoryID string) (*models.JudgeAssignment, error) {
	var rec judgeAssignmentRecord
	err := r.db.WithContext(ctx).
		Where("judge_id = ? AND category_id = ?", judgeID, categoryID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("judge assignment %s/%s: %w", judgeID, categoryID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get judge assignment: %w", err)
	}

	return &models.JudgeAssignment{
		JudgeID:    rec.JudgeID,
		CategoryID: rec.CategoryID,
		Tatami:     rec.Tatami,
		Confirmed:  rec.Confirmed,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

// ListConfirmedJudges returns the confirmed judges of a category sitting
// at the given tatami, or with no tatami recorded
func (r *SQLiteRepository) ListConfirmedJudges(ctx context.Context, categoryID, tatami string) ([]string, error) {
	var judges []string
	err := r.db.WithContext(ctx).
		Model(&judgeAssignmentRecord{}).
		Where("category_id = ? AND confirmed = ? AND (tatami = ? OR tatami = '')", categoryID, true, tatami).
		Order("judge_id").
		Pluck("judge_id", &judges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed judges: %w", err)
	}
	return judges, nil
}

// AttachJudge records a judge on a contest unit. Attaching the same
// judge twice returns an error wrapping models.ErrConflict.
func (r *SQLiteRepository) AttachJudge(ctx context.Context, unitID, judgeID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := unitExists(tx, unitID); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&unitJudgeRecord{UnitID: unitID, JudgeID: judgeID})
		if res.Error != nil {
			return fmt.Errorf("failed to attach judge: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("judge %s on unit %s: %w", judgeID, unitID, models.ErrConflict)
		}
		return nil
	})
}

// ListUnitJudges returns the judges attached to a unit
func (r *SQLiteRepository) ListUnitJudges(ctx context.Context, unitID string) ([]string, error) {
	var judges []string
	err := r.db.WithContext(ctx).
		Model(&unitJudgeRecord{}).
		Where("unit_id = ?", unitID).
		Order("judge_id").
		Pluck("judge_id", &judges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unit judges: %w", err)
	}
	return judges, nil
}

// CreateLevel claims (category, level) and inserts its units in one
// transaction. A level that already exists yields models.ErrConflict.
func (r *SQLiteRepository) CreateLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sqliteClaimLevel(tx, categoryID, level); err != nil {
			return err
		}
		return sqliteInsertUnits(tx, units)
	})
}

// ReplaceLevel deletes a level with its units, judges and scores, then
// creates it again from units
func (r *SQLiteRepository) ReplaceLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := sqliteDeleteLevels(tx, categoryID, level); err != nil {
			return err
		}
		if err := sqliteClaimLevel(tx, categoryID, level); err != nil {
			return err
		}
		return sqliteInsertUnits(tx, units)
	})
}

// DeleteCategoryLevels removes every level of a category
func (r *SQLiteRepository) DeleteCategoryLevels(ctx context.Context, categoryID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return sqliteDeleteLevels(tx, categoryID, "")
	})
}

// LevelExists reports whether a level has been created for a category
func (r *SQLiteRepository) LevelExists(ctx context.Context, categoryID, level string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&levelRecord{}).
		Where("category_id = ? AND level = ?", categoryID, level).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check level: %w", err)
	}
	return n > 0, nil
}

// ListLevels returns the levels of a category in creation order
func (r *SQLiteRepository) ListLevels(ctx context.Context, categoryID string) ([]string, error) {
	var levels []string
	err := r.db.WithContext(ctx).
		Model(&levelRecord{}).
		Where("category_id = ?", categoryID).
		Order("created_at, level").
		Pluck("level", &levels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}
	return levels, nil
}

// GetUnit retrieves a contest unit by ID
func (r *SQLiteRepository) GetUnit(ctx context.Context, id string) (*models.ContestUnit, error) {
	var rec unitRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unit %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return rec.toModel(), nil
}

// UpdateUnits writes the mutable fields of the given units atomically
func (r *SQLiteRepository) UpdateUnits(ctx context.Context, units ...*models.ContestUnit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range units {
			res := tx.Model(&unitRecord{}).Where("id = ?", u.ID).Updates(map[string]any{
				"status":             string(u.Status),
				"winner_id":          u.WinnerID,
				"score":              u.Score,
				"competitor_points":  u.CompetitorPoints,
				"opponent_points":    u.OpponentPoints,
				"competitor_outcome": string(u.CompetitorOutcome),
				"opponent_outcome":   string(u.OpponentOutcome),
				"decision":           string(u.Decision),
				"placement":          u.Placement,
				"completed_at":       u.CompletedAt,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to update unit %s: %w", u.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("unit %s: %w", u.ID, models.ErrNotFound)
			}
		}
		return nil
	})
}

// ListUnits returns the units of one level ordered by position
func (r *SQLiteRepository) ListUnits(ctx context.Context, categoryID, level string) ([]*models.ContestUnit, error) {
	var recs []unitRecord
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND level = ?", categoryID, level).
		Order("position").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	out := make([]*models.ContestUnit, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

// UpsertScore inserts a score entry or replaces the value of the
// existing entry for (judge, unit, competitor). SubmittedAt keeps the
// time of the first submission.
func (r *SQLiteRepository) UpsertScore(ctx context.Context, entry *models.ScoreEntry) (*models.ScoreEntry, error) {
	var stored scoreRecord

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := unitExists(tx, entry.UnitID); err != nil {
			return err
		}

		rec := scoreRecord{
			ID:           entry.ID,
			UnitID:       entry.UnitID,
			JudgeID:      entry.JudgeID,
			CompetitorID: entry.CompetitorID,
			Value:        entry.Value,
			Card:         entry.Card,
			SubmittedAt:  entry.SubmittedAt,
			UpdatedAt:    entry.UpdatedAt,
		}

		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "judge_id"}, {Name: "unit_id"}, {Name: "competitor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "card", "updated_at"}),
		}).Create(&rec).Error
		if err != nil {
			return fmt.Errorf("failed to upsert score: %w", err)
		}

		return tx.
			Where("judge_id = ? AND unit_id = ? AND competitor_id = ?", entry.JudgeID, entry.UnitID, entry.CompetitorID).
			First(&stored).Error
	})
	if err != nil {
		return nil, err
	}

	return stored.toModel(), nil
}

// ListScores returns every score entry of a unit in submission order
func (r *SQLiteRepository) ListScores(ctx context.Context, unitID string) ([]*models.ScoreEntry, error) {
	var recs []scoreRecord
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("submitted_at, id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}

	out := make([]*models.ScoreEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func unitExists(tx *gorm.DB, unitID string) error {
	var n int64
	if err := tx.Model(&unitRecord{}).Where("id = ?", unitID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check unit: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unit %s: %w", unitID, models.ErrNotFound)
	}
	return nil
}

func sqliteClaimLevel(tx *gorm.DB, categoryID, level string) error {
	var n int64
	err := tx.Model(&levelRecord{}).
		Where("category_id = ? AND level = ?", categoryID, level).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to check level: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("level %s of %s: %w", level, categoryID, models.ErrConflict)
	}

	err = tx.Create(&levelRecord{CategoryID: categoryID, Level: level, CreatedAt: time.Now().UTC()}).Error
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("level %s of %s: %w", level, categoryID, models.ErrConflict)
		}
		return fmt.Errorf("failed to claim level: %w", err)
	}
	return nil
}

func sqliteInsertUnits(tx *gorm.DB, units []*models.ContestUnit) error {
	if len(units) == 0 {
		return nil
	}

	recs := make([]unitRecord, 0, len(units))
	for _, u := range units {
		recs = append(recs, newUnitRecord(u))
	}
	if err := tx.Create(&recs).Error; err != nil {
		return fmt.Errorf("failed to insert units: %w", err)
	}
	return nil
}

// sqliteDeleteLevels removes one level, or every level when level is empty
func sqliteDeleteLevels(tx *gorm.DB, categoryID, level string) error {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("category_id = ?", categoryID)
		if level != "" {
			db = db.Where("level = ?", level)
		}
		return db
	}
	unitIDs := func() *gorm.DB {
		return tx.Model(&unitRecord{}).Select("id").Scopes(scope)
	}

	if err := tx.Where("unit_id IN (?)", unitIDs()).Delete(&scoreRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete scores: %w", err)
	}
	if err := tx.Where("unit_id IN (?)", unitIDs()).Delete(&unitJudgeRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete unit judges: %w", err)
	}
	if err := tx.Scopes(scope).Delete(&unitRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete units: %w", err)
	}
	if err := tx.Scopes(scope).Delete(&levelRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete level: %w", err)
	}
	return nil
}
