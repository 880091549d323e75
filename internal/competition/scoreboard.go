package competition

import (
	"context"
	"fmt"
	"sort"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
)

// GetScoreboard lists the competitors of one level with their results.
// Forms rows are ordered by score with competition ranks (equal scores
// share a rank); unscored performers follow in running order without a
// rank. Sparring rows follow match order, two per match.
func (e *Engine) GetScoreboard(ctx context.Context, categoryID, level string) ([]models.ScoreboardRow, error) {
	cat, err := e.category(ctx, categoryID, "")
	if err != nil {
		return nil, err
	}

	level = rules.NormalizeLevel(level)
	units, err := e.repo.ListUnits(ctx, cat.ID, level)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("level %s of %s: %w", level, cat.ID, models.ErrNotFound)
	}

	if cat.Discipline == models.DisciplineForms {
		return formsScoreboard(units), nil
	}
	return sparringScoreboard(units), nil
}

func formsScoreboard(units []*models.ContestUnit) []models.ScoreboardRow {
	scored := make([]*models.ContestUnit, 0, len(units))
	var pending []*models.ContestUnit
	for _, u := range units {
		if u.Score != nil {
			scored = append(scored, u)
		} else {
			pending = append(pending, u)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].Score != *scored[j].Score {
			return *scored[i].Score > *scored[j].Score
		}
		return scored[i].Position < scored[j].Position
	})

	rows := make([]models.ScoreboardRow, 0, len(units))
	for i, u := range scored {
		rank := i + 1
		if i > 0 && *u.Score == *scored[i-1].Score {
			rank = *rows[i-1].Rank
		}
		row := performanceRow(u)
		row.Rank = &rank
		rows = append(rows, row)
	}
	for _, u := range pending {
		rows = append(rows, performanceRow(u))
	}
	return rows
}

func performanceRow(u *models.ContestUnit) models.ScoreboardRow {
	return models.ScoreboardRow{
		UnitID:       u.ID,
		CompetitorID: u.CompetitorID,
		Position:     u.Position,
		Status:       u.Status,
		Result:       u.Score,
		Outcome:      u.CompetitorOutcome,
	}
}

func sparringScoreboard(units []*models.ContestUnit) []models.ScoreboardRow {
	rows := make([]models.ScoreboardRow, 0, 2*len(units))
	for _, u := range units {
		rows = append(rows, models.ScoreboardRow{
			UnitID:       u.ID,
			CompetitorID: u.CompetitorID,
			Position:     u.Position,
			Status:       u.Status,
			Result:       u.CompetitorPoints,
			Outcome:      u.CompetitorOutcome,
		})
		if u.OpponentID != "" {
			rows = append(rows, models.ScoreboardRow{
				UnitID:       u.ID,
				CompetitorID: u.OpponentID,
				Position:     u.Position,
				Status:       u.Status,
				Result:       u.OpponentPoints,
				Outcome:      u.OpponentOutcome,
			})
		}
	}
	return rows
}

// GetBracket returns every level of a category in progression order with
// parallel levels last
func (e *Engine) GetBracket(ctx context.Context, categoryID string) (*models.Bracket, error) {
	cat, err := e.category(ctx, categoryID, "")
	if err != nil {
		return nil, err
	}

	levels, err := e.repo.ListLevels(ctx, cat.ID)
	if err != nil {
		return nil, err
	}

	order := func(level string) int {
		if cat.Discipline == models.DisciplineForms {
			for i, name := range e.rules.Chain(models.DisciplineForms) {
				if name == level {
					return i
				}
			}
			return 1 << 20
		}
		if depth, ok := e.rules.SparringDepth(level); ok {
			return depth
		}
		return 1 << 20
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return order(levels[i]) < order(levels[j])
	})

	bracket := &models.Bracket{
		CategoryID: cat.ID,
		Discipline: cat.Discipline,
		Levels:     levels,
		Units:      []*models.ContestUnit{},
	}
	for _, level := range levels {
		units, err := e.repo.ListUnits(ctx, cat.ID, level)
		if err != nil {
			return nil, err
		}
		bracket.Units = append(bracket.Units, units...)
	}
	return bracket, nil
}
