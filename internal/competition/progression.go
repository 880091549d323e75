package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
)

// GenerateNextLevel creates the level that follows fromLevel once every
// unit of fromLevel is completed. Forms categories advance their round.
// For sparring the winners are paired in match order and an odd winner
// out receives a bye. Nothing is created while a match is unfinished or
// has no winner. When the next level already exists its units are
// returned and nothing changes.
func (e *Engine) GenerateNextLevel(ctx context.Context, categoryID, fromLevel string) ([]*models.ContestUnit, error) {
	cat, err := e.category(ctx, categoryID, "")
	if err != nil {
		return nil, err
	}
	if cat.Discipline == models.DisciplineForms {
		return e.AdvanceRound(ctx, categoryID, fromLevel)
	}

	from := rules.NormalizeLevel(fromLevel)
	if e.rules.IsParallel(from) {
		return nil, models.Validationf("level %q is not part of the progression chain", fromLevel)
	}
	next, ok := e.rules.NextLevel(models.DisciplineSparring, from)
	if !ok {
		return nil, models.Validationf("sparring level %q has no next level", fromLevel)
	}

	units, err := e.repo.ListUnits(ctx, cat.ID, from)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("level %s of %s: %w", from, cat.ID, models.ErrNotFound)
	}

	winners := make([]string, 0, len(units))
	for _, u := range units {
		if u.Status != models.UnitCompleted || u.WinnerID == "" {
			slog.Debug("level not complete",
				"category_id", cat.ID,
				"level", from,
				"unit_id", u.ID,
				"status", u.Status,
			)
			return nil, nil
		}
		winners = append(winners, u.WinnerID)
	}

	var created []*models.ContestUnit
	err = e.withLock(ctx, levelKey(cat.ID, next), func() error {
		exists, err := e.repo.LevelExists(ctx, cat.ID, next)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		now := e.clock()
		created = make([]*models.ContestUnit, 0, (len(winners)+1)/2)
		for i := 0; i < len(winners); i += 2 {
			second := ""
			if i+1 < len(winners) {
				second = winners[i+1]
			}
			created = append(created, e.newMatch(cat.ID, next, i/2, winners[i], second, now))
		}

		if err := e.repo.CreateLevel(ctx, cat.ID, next, created); err != nil {
			if errors.Is(err, models.ErrConflict) {
				created = nil
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created == nil {
		slog.Debug("level already generated", "category_id", cat.ID, "level", next)
		return e.repo.ListUnits(ctx, cat.ID, next)
	}

	slog.Info("level generated",
		"category_id", cat.ID,
		"from_level", from,
		"level", next,
		"matches", len(created),
	)

	e.attachJudges(ctx, cat, created)
	e.emitLevel(cat.ID, next, created)

	if levelComplete(created) && e.chained(next) {
		if _, err := e.GenerateNextLevel(ctx, cat.ID, next); err != nil {
			return created, fmt.Errorf("failed to advance bye level %s: %w", next, err)
		}
	}
	return created, nil
}

// chained reports whether completing a sparring level should trigger
// generation of the next one
func (e *Engine) chained(level string) bool {
	if e.rules.IsParallel(level) || e.rules.IsTerminal(models.DisciplineSparring, level) {
		return false
	}
	_, ok := e.rules.SparringDepth(level)
	return ok
}

// AdvanceCategory retries advancement from the deepest chained level of a
// sparring category. It is the automated form of a manual retry after a
// failed background generation.
func (e *Engine) AdvanceCategory(ctx context.Context, categoryID string) ([]*models.ContestUnit, error) {
	levels, err := e.repo.ListLevels(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	deepest, found := "", false
	best := 0
	for _, level := range levels {
		depth, ok := e.rules.SparringDepth(level)
		if !ok {
			continue
		}
		if !found || depth > best {
			deepest, best, found = level, depth, true
		}
	}

	if !found || !e.chained(deepest) {
		return nil, nil
	}
	return e.GenerateNextLevel(ctx, categoryID, deepest)
}

// BronzeRequest creates the bronze match of a sparring category
type BronzeRequest struct {
	CategoryID   string `json:"category_id"`
	CompetitorID string `json:"competitor_id"`
	OpponentID   string `json:"opponent_id"`
}

// CreateBronzeMatch creates the bronze match between two competitors.
// Bronze is not derived from the semifinal; its pairing comes from the
// caller.
func (e *Engine) CreateBronzeMatch(ctx context.Context, req BronzeRequest) (*models.ContestUnit, error) {
	cat, err := e.category(ctx, req.CategoryID, models.DisciplineSparring)
	if err != nil {
		return nil, err
	}

	level := e.rules.BronzeLevel()
	if level == "" {
		return nil, models.Validationf("the rulebook has no bronze level")
	}
	if req.CompetitorID == "" || req.OpponentID == "" {
		return nil, models.Validationf("bronze match needs two competitors")
	}
	if req.CompetitorID == req.OpponentID {
		return nil, models.Validationf("competitor %s cannot face themselves", req.CompetitorID)
	}
	if err := e.checkEligible(ctx, cat.ID, []string{req.CompetitorID, req.OpponentID}); err != nil {
		return nil, err
	}

	match := e.newMatch(cat.ID, level, 0, req.CompetitorID, req.OpponentID, e.clock())
	err = e.withLock(ctx, levelKey(cat.ID, level), func() error {
		return e.repo.CreateLevel(ctx, cat.ID, level, []*models.ContestUnit{match})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("bronze match created",
		"category_id", cat.ID,
		"unit_id", match.ID,
		"competitor_id", req.CompetitorID,
		"opponent_id", req.OpponentID,
	)

	units := []*models.ContestUnit{match}
	e.attachJudges(ctx, cat, units)
	e.emitLevel(cat.ID, level, units)
	return match, nil
}
