package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/bracket-engine/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for components sharing the database
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// UpsertCategory creates or updates a category
func (r *PostgresRepository) UpsertCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (id, name, discipline, tatami, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			discipline = EXCLUDED.discipline,
			tatami = EXCLUDED.tatami,
			updated_at = EXCLUDED.updated_at
	`

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, query, c.ID, c.Name, string(c.Discipline), c.Tatami, c.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID
func (r *PostgresRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	query := `SELECT id, name, discipline, tatami, updated_at FROM categories WHERE id = $1`

	var c models.Category
	var discipline string
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &discipline, &c.Tatami, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("category %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	c.Discipline = models.Discipline(discipline)
	return &c, nil
}

// ListCategories returns categories, optionally filtered by discipline
func (r *PostgresRepository) ListCategories(ctx context.Context, discipline models.Discipline) ([]*models.Category, error) {
	query := `
		SELECT id, name, discipline, tatami, updated_at
		FROM categories
		WHERE $1 = '' OR discipline = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, string(discipline))
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*models.Category
	for rows.Next() {
		var c models.Category
		var d string
		if err := rows.Scan(&c.ID, &c.Name, &d, &c.Tatami, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Discipline = models.Discipline(d)
		categories = append(categories, &c)
	}

	return categories, rows.Err()
}

// UpsertRegistration creates or updates a registration mirror row
func (r *PostgresRepository) UpsertRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (category_id, competitor_id, name, club, approved, paid, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (category_id, competitor_id) DO UPDATE SET
			name = EXCLUDED.name,
			club = EXCLUDED.club,
			approved = EXCLUDED.approved,
			paid = EXCLUDED.paid,
			updated_at = EXCLUDED.updated_at
	`

	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		reg.CategoryID,
		reg.CompetitorID,
		reg.Name,
		reg.Club,
		reg.Approved,
		reg.Paid,
		reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert registration: %w", err)
	}
	return nil
}

// GetRegistration retrieves one competitor's registration in a category
func (r *PostgresRepository) GetRegistration(ctx context.Context, categoryID, competitorID string) (*models.Registration, error) {
	query := `
		SELECT category_id, competitor_id, name, club, approved, paid, updated_at
		FROM registrations
		WHERE category_id = $1 AND competitor_id = $2
	`

	reg, err := scanRegistration(r.pool.QueryRow(ctx, query, categoryID, competitorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("registration %s/%s: %w", categoryID, competitorID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

// ListRegistrations returns every registration of a category
func (r *PostgresRepository) ListRegistrations(ctx context.Context, categoryID string) ([]*models.Registration, error) {
	query := `
		SELECT category_id, competitor_id, name, club, approved, paid, updated_at
		FROM registrations
		WHERE category_id = $1
		ORDER BY competitor_id
	`

	rows, err := r.pool.Query(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, reg)
	}

	return regs, rows.Err()
}

// UpsertJudgeAssignment creates or updates a judge assignment
func (r *PostgresRepository) UpsertJudgeAssignment(ctx context.Context, a *models.JudgeAssignment) error {
	query := `
		INSERT INTO judge_assignments (judge_id, category_id, tatami, confirmed, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (judge_id, category_id) DO UPDATE SET
			tatami = EXCLUDED.tatami,
			confirmed = EXCLUDED.confirmed,
			updated_at = EXCLUDED.updated_at
	`

	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, query, a.JudgeID, a.CategoryID, a.Tatami, a.Confirmed, a.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert judge assignment: %w", err)
	}
	return nil
}

// GetJudgeAssignment retrieves a judge's assignment to a category
func (r *PostgresRepository) GetJudgeAssignment(ctx context.Context, judgeID, categoryID string) (*models.JudgeAssignment, error) {
	query := `
		SELECT judge_id, category_id, tatami, confirmed, updated_at
		FROM judge_assignments
		WHERE judge_id = $1 AND category_id = $2
	`

	var a models.JudgeAssignment
	err := r.pool.QueryRow(ctx, query, judgeID, categoryID).Scan(
		&a.JudgeID,
		&a.CategoryID,
		&a.Tatami,
		&a.Confirmed,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("judge assignment %s/%s: %w", judgeID, categoryID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get judge assignment: %w", err)
	}
	return &a, nil
}

// ListConfirmedJudges returns the confirmed judges of a category sitting
// at the given tatami, or with no tatami recorded
func (r *PostgresRepository) ListConfirmedJudges(ctx context.Context, categoryID, tatami string) ([]string, error) {
	query := `
		SELECT judge_id
		FROM judge_assignments
		WHERE category_id = $1 AND confirmed AND (tatami = $2 OR tatami = '')
		ORDER BY judge_id
	`

	rows, err := r.pool.Query(ctx, query, categoryID, tatami)
	if err != nil {
		return nil, fmt.Errorf("failed to list confirmed judges: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// AttachJudge records a judge on a contest unit. Attaching the same
// judge twice returns an error wrapping models.ErrConflict.
func (r *PostgresRepository) AttachJudge(ctx context.Context, unitID, judgeID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO unit_judges (unit_id, judge_id) VALUES ($1, $2)`, unitID, judgeID)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return fmt.Errorf("judge %s on unit %s: %w", judgeID, unitID, models.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("unit %s: %w", unitID, models.ErrNotFound)
		}
		return fmt.Errorf("failed to attach judge: %w", err)
	}
	return nil
}

// ListUnitJudges returns the judges attached to a unit
func (r *PostgresRepository) ListUnitJudges(ctx context.Context, unitID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT judge_id FROM unit_judges WHERE unit_id = $1 ORDER BY judge_id`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit judges: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// CreateLevel claims (category, level) and inserts its units in one
// transaction. A level that already exists yields models.ErrConflict.
func (r *PostgresRepository) CreateLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := claimLevel(ctx, tx, categoryID, level); err != nil {
		return err
	}
	if err := insertUnits(ctx, tx, units); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit level: %w", err)
	}
	return nil
}

// ReplaceLevel deletes a level with its units, judges and scores, then
// creates it again from units
func (r *PostgresRepository) ReplaceLevel(ctx context.Context, categoryID, level string, units []*models.ContestUnit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// units, judges and scores cascade from the claim
	if _, err := tx.Exec(ctx, `DELETE FROM bracket_levels WHERE category_id = $1 AND level = $2`, categoryID, level); err != nil {
		return fmt.Errorf("failed to delete level: %w", err)
	}
	if err := claimLevel(ctx, tx, categoryID, level); err != nil {
		return err
	}
	if err := insertUnits(ctx, tx, units); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit level: %w", err)
	}
	return nil
}

// DeleteCategoryLevels removes every level of a category
func (r *PostgresRepository) DeleteCategoryLevels(ctx context.Context, categoryID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM bracket_levels WHERE category_id = $1`, categoryID); err != nil {
		return fmt.Errorf("failed to delete levels: %w", err)
	}
	return nil
}

// LevelExists reports whether a level has been created for a category
func (r *PostgresRepository) LevelExists(ctx context.Context, categoryID, level string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bracket_levels WHERE category_id = $1 AND level = $2)`,
		categoryID, level,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check level: %w", err)
	}
	return exists, nil
}

// ListLevels returns the levels of a category in creation order
func (r *PostgresRepository) ListLevels(ctx context.Context, categoryID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT level FROM bracket_levels WHERE category_id = $1 ORDER BY created_at, level`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list levels: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

const unitColumns = `
	id, category_id, kind, level, position, status, competitor_id, opponent_id, winner_id,
	score, competitor_points, opponent_points, competitor_outcome, opponent_outcome,
	decision, placement, created_at, completed_at
`

// GetUnit retrieves a contest unit by ID
func (r *PostgresRepository) GetUnit(ctx context.Context, id string) (*models.ContestUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM contest_units WHERE id = $1`

	u, err := scanUnit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unit %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

// UpdateUnits writes the mutable fields of the given units atomically
func (r *PostgresRepository) UpdateUnits(ctx context.Context, units ...*models.ContestUnit) error {
	query := `
		UPDATE contest_units SET
			status = $2,
			winner_id = $3,
			score = $4,
			competitor_points = $5,
			opponent_points = $6,
			competitor_outcome = $7,
			opponent_outcome = $8,
			decision = $9,
			placement = $10,
			completed_at = $11
		WHERE id = $1
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range units {
		tag, err := tx.Exec(ctx, query,
			u.ID,
			string(u.Status),
			u.WinnerID,
			u.Score,
			u.CompetitorPoints,
			u.OpponentPoints,
			string(u.CompetitorOutcome),
			string(u.OpponentOutcome),
			string(u.Decision),
			u.Placement,
			nullTime(u.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to update unit %s: %w", u.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("unit %s: %w", u.ID, models.ErrNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit units: %w", err)
	}
	return nil
}

// ListUnits returns the units of one level ordered by position
func (r *PostgresRepository) ListUnits(ctx context.Context, categoryID, level string) ([]*models.ContestUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM contest_units WHERE category_id = $1 AND level = $2 ORDER BY position`

	rows, err := r.pool.Query(ctx, query, categoryID, level)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []*models.ContestUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}

	return units, rows.Err()
}

// UpsertScore inserts a score entry or replaces the value of the
// existing entry for (judge, unit, competitor). SubmittedAt keeps the
// time of the first submission.
func (r *PostgresRepository) UpsertScore(ctx context.Context, entry *models.ScoreEntry) (*models.ScoreEntry, error) {
	query := `
		INSERT INTO score_entries (id, unit_id, judge_id, competitor_id, value, card, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (judge_id, unit_id, competitor_id) DO UPDATE SET
			value = EXCLUDED.value,
			card = EXCLUDED.card,
			updated_at = EXCLUDED.updated_at
		RETURNING id, submitted_at, updated_at
	`

	cardJSON, err := encodeCard(entry.Card)
	if err != nil {
		return nil, err
	}

	out := *entry
	err = r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.UnitID,
		entry.JudgeID,
		entry.CompetitorID,
		entry.Value,
		cardJSON,
		entry.SubmittedAt,
		entry.UpdatedAt,
	).Scan(&out.ID, &out.SubmittedAt, &out.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return nil, fmt.Errorf("unit %s: %w", entry.UnitID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to upsert score: %w", err)
	}

	return &out, nil
}

// ListScores returns every score entry of a unit in submission order
func (r *PostgresRepository) ListScores(ctx context.Context, unitID string) ([]*models.ScoreEntry, error) {
	query := `
		SELECT id, unit_id, judge_id, competitor_id, value, card, submitted_at, updated_at
		FROM score_entries
		WHERE unit_id = $1
		ORDER BY submitted_at, id
	`

	rows, err := r.pool.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	var entries []*models.ScoreEntry
	for rows.Next() {
		var e models.ScoreEntry
		var cardJSON []byte
		if err := rows.Scan(
			&e.ID,
			&e.UnitID,
			&e.JudgeID,
			&e.CompetitorID,
			&e.Value,
			&cardJSON,
			&e.SubmittedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		if e.Card, err = decodeCard(cardJSON); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func claimLevel(ctx context.Context, tx pgx.Tx, categoryID, level string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO bracket_levels (category_id, level, created_at) VALUES ($1, $2, $3)`,
		categoryID, level, time.Now().UTC(),
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("level %s of %s: %w", level, categoryID, models.ErrConflict)
		}
		return fmt.Errorf("failed to claim level: %w", err)
	}
	return nil
}

func insertUnits(ctx context.Context, tx pgx.Tx, units []*models.ContestUnit) error {
	query := `INSERT INTO contest_units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	for _, u := range units {
		_, err := tx.Exec(ctx, query,
			u.ID,
			u.CategoryID,
			string(u.Kind),
			u.Level,
			u.Position,
			string(u.Status),
			u.CompetitorID,
			u.OpponentID,
			u.WinnerID,
			u.Score,
			u.CompetitorPoints,
			u.OpponentPoints,
			string(u.CompetitorOutcome),
			string(u.OpponentOutcome),
			string(u.Decision),
			u.Placement,
			u.CreatedAt,
			nullTime(u.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert unit %s: %w", u.ID, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (*models.ContestUnit, error) {
	var u models.ContestUnit
	var kind, status, competitorOutcome, opponentOutcome, decision string
	var completedAt sql.NullTime

	err := row.Scan(
		&u.ID,
		&u.CategoryID,
		&kind,
		&u.Level,
		&u.Position,
		&status,
		&u.CompetitorID,
		&u.OpponentID,
		&u.WinnerID,
		&u.Score,
		&u.CompetitorPoints,
		&u.OpponentPoints,
		&competitorOutcome,
		&opponentOutcome,
		&decision,
		&u.Placement,
		&u.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Kind = models.UnitKind(kind)
	u.Status = models.UnitStatus(status)
	u.CompetitorOutcome = models.Outcome(competitorOutcome)
	u.OpponentOutcome = models.Outcome(opponentOutcome)
	u.Decision = models.Decision(decision)
	if completedAt.Valid {
		u.CompletedAt = &completedAt.Time
	}

	return &u, nil
}

func scanRegistration(row scanner) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(
		&reg.CategoryID,
		&reg.CompetitorID,
		&reg.Name,
		&reg.Club,
		&reg.Approved,
		&reg.Paid,
		&reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// encodeCard stores a card as JSONB; forms entries store NULL
func encodeCard(card *models.SparringCard) ([]byte, error) {
	if card == nil {
		return nil, nil
	}
	data, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card: %w", err)
	}
	return data, nil
}

func decodeCard(data []byte) (*models.SparringCard, error) {
	if len(data) == 0 {
		return nil, nil
	}
	card := &models.SparringCard{}
	if err := json.Unmarshal(data, card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card: %w", err)
	}
	return card, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
