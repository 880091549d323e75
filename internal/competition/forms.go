package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
	"github.com/terra-clan/bracket-engine/internal/scoring"
)

// RoundRequest creates one forms round
type RoundRequest struct {
	CategoryID    string   `json:"category_id"`
	Level         string   `json:"level"`
	CompetitorIDs []string `json:"competitor_ids"`
	// Replace discards an existing round with all its scores
	Replace bool `json:"replace"`
}

// CreateRound creates one performance per competitor, in input order.
// Every competitor must hold an approved and paid registration. An
// existing round is a conflict unless Replace is set, in which case its
// performances and scores are deleted first.
func (e *Engine) CreateRound(ctx context.Context, req RoundRequest) ([]*models.ContestUnit, error) {
	cat, err := e.category(ctx, req.CategoryID, models.DisciplineForms)
	if err != nil {
		return nil, err
	}

	level := rules.NormalizeLevel(req.Level)
	if !e.rules.KnownLevel(models.DisciplineForms, level) {
		return nil, models.Validationf("unknown forms level %q", req.Level)
	}
	if len(req.CompetitorIDs) == 0 {
		return nil, models.Validationf("at least one competitor is required")
	}

	seen := make(map[string]bool, len(req.CompetitorIDs))
	for _, id := range req.CompetitorIDs {
		if id == "" {
			return nil, models.Validationf("competitor id is empty")
		}
		if seen[id] {
			return nil, models.Validationf("competitor %s is listed twice", id)
		}
		seen[id] = true
	}

	if err := e.checkEligible(ctx, cat.ID, req.CompetitorIDs); err != nil {
		return nil, err
	}

	now := e.clock()
	units := make([]*models.ContestUnit, len(req.CompetitorIDs))
	for i, id := range req.CompetitorIDs {
		units[i] = e.newPerformance(cat.ID, level, i, id, now)
	}

	err = e.withLock(ctx, levelKey(cat.ID, level), func() error {
		if req.Replace {
			return e.repo.ReplaceLevel(ctx, cat.ID, level, units)
		}
		return e.repo.CreateLevel(ctx, cat.ID, level, units)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("forms round created",
		"category_id", cat.ID,
		"level", level,
		"performances", len(units),
		"replace", req.Replace,
	)

	e.attachJudges(ctx, cat, units)
	e.emitLevel(cat.ID, level, units)
	return units, nil
}

// checkEligible fails with a ValidationError naming every competitor that
// is not approved and paid
func (e *Engine) checkEligible(ctx context.Context, categoryID string, competitorIDs []string) error {
	var missing []models.MissingCompetitor
	for _, id := range competitorIDs {
		el, err := e.registrations.IsEligible(ctx, id, categoryID)
		if err != nil {
			return fmt.Errorf("failed to check eligibility of %s: %w", id, err)
		}
		if !el.Eligible() {
			missing = append(missing, models.MissingCompetitor{CompetitorID: id, Reason: el.Reason()})
		}
	}

	if len(missing) > 0 {
		return &models.ValidationError{
			Message: fmt.Sprintf("%d of %d competitors are not eligible", len(missing), len(competitorIDs)),
			Missing: missing,
		}
	}
	return nil
}

// AdvanceRound moves the best performers of a completed forms round into
// the next round of the chain. Performers are ranked by score, ties by
// running order; the rest are eliminated. An existing next round is
// returned unchanged.
func (e *Engine) AdvanceRound(ctx context.Context, categoryID, fromLevel string) ([]*models.ContestUnit, error) {
	cat, err := e.category(ctx, categoryID, models.DisciplineForms)
	if err != nil {
		return nil, err
	}

	from := rules.NormalizeLevel(fromLevel)
	next, ok := e.rules.NextLevel(models.DisciplineForms, from)
	if !ok {
		return nil, models.Validationf("forms level %q has no next round", fromLevel)
	}

	units, err := e.repo.ListUnits(ctx, cat.ID, from)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("round %s of %s: %w", from, cat.ID, models.ErrNotFound)
	}

	ranked, err := rankPerformances(units)
	if err != nil {
		return nil, err
	}

	advance := e.rules.AdvanceCount(from)
	if advance > len(ranked) {
		advance = len(ranked)
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
		created = make([]*models.ContestUnit, advance)
		for i, u := range ranked[:advance] {
			created[i] = e.newPerformance(cat.ID, next, i, u.CompetitorID, now)
		}

		if err := e.repo.CreateLevel(ctx, cat.ID, next, created); err != nil {
			if errors.Is(err, models.ErrConflict) {
				created = nil
				return nil
			}
			return err
		}

		for i, u := range ranked {
			if i < advance {
				u.CompetitorOutcome = models.OutcomeAdvanced
			} else {
				u.CompetitorOutcome = models.OutcomeEliminated
			}
		}
		return e.repo.UpdateUnits(ctx, ranked...)
	})
	if err != nil {
		return nil, err
	}

	if created == nil {
		slog.Debug("forms round already exists", "category_id", cat.ID, "level", next)
		return e.repo.ListUnits(ctx, cat.ID, next)
	}

	slog.Info("forms round advanced",
		"category_id", cat.ID,
		"from_level", from,
		"level", next,
		"advanced", advance,
	)

	e.attachJudges(ctx, cat, created)
	e.emitLevel(cat.ID, next, created)
	return created, nil
}

// AssignPlacements hands out places in the terminal forms round by score
func (e *Engine) AssignPlacements(ctx context.Context, categoryID, level string) ([]*models.ContestUnit, error) {
	cat, err := e.category(ctx, categoryID, models.DisciplineForms)
	if err != nil {
		return nil, err
	}

	level = rules.NormalizeLevel(level)
	if !e.rules.IsTerminal(models.DisciplineForms, level) {
		return nil, models.Validationf("placements are assigned in the final round only, not %q", level)
	}

	var ranked []*models.ContestUnit
	err = e.withLock(ctx, levelKey(cat.ID, level), func() error {
		units, err := e.repo.ListUnits(ctx, cat.ID, level)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return fmt.Errorf("round %s of %s: %w", level, cat.ID, models.ErrNotFound)
		}

		ranked, err = rankPerformances(units)
		if err != nil {
			return err
		}

		places := scoring.Placements(len(ranked))
		for i, u := range ranked {
			u.Placement = places[i]
		}
		return e.repo.UpdateUnits(ctx, ranked...)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("placements assigned", "category_id", cat.ID, "level", level, "performers", len(ranked))
	return ranked, nil
}

// rankPerformances orders the scored performances of a round, best first.
// Cancelled performances drop out; anything else unfinished is an error.
func rankPerformances(units []*models.ContestUnit) ([]*models.ContestUnit, error) {
	ranked := make([]*models.ContestUnit, 0, len(units))
	for _, u := range units {
		switch {
		case u.Status == models.UnitCancelled:
			continue
		case u.Status != models.UnitCompleted || u.Score == nil:
			return nil, models.Validationf("performance %s of %s is not completed", u.ID, u.CompetitorID)
		}
		ranked = append(ranked, u)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if *ranked[i].Score != *ranked[j].Score {
			return *ranked[i].Score > *ranked[j].Score
		}
		return ranked[i].Position < ranked[j].Position
	})
	return ranked, nil
}

func (e *Engine) emitLevel(categoryID, level string, units []*models.ContestUnit) {
	e.emit(models.Event{
		Type:       models.EventLevelGenerated,
		CategoryID: categoryID,
		Level:      level,
		Payload:    units,
	})
}
