package competition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/seeding"
)

// Draw sources
const (
	SourceAssistant = "assistant"
	SourceFallback  = "fallback"
)

// DrawRequest generates the first level of a category
type DrawRequest struct {
	CategoryID string `json:"category_id"`
	// Replace discards every existing level of the category first
	Replace bool `json:"replace"`
}

// GenerateDraws builds the first level of a category from its eligible
// competitors. Sparring draws ask the seeding assistant for a proposal,
// repair it so every competitor holds exactly one slot, and fall back to
// a shuffled single-elimination bracket when the assistant fails or the
// proposal is unusable. Forms draws create the opening round in shuffled
// order.
func (e *Engine) GenerateDraws(ctx context.Context, req DrawRequest) (*models.Bracket, error) {
	cat, err := e.category(ctx, req.CategoryID, "")
	if err != nil {
		return nil, err
	}

	competitors, err := e.registrations.EligibleCompetitors(ctx, cat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible competitors: %w", err)
	}
	if len(competitors) < 2 {
		return nil, models.Validationf("category %s has %d eligible competitors, at least 2 are required", cat.ID, len(competitors))
	}

	ids := make([]string, len(competitors))
	for i, c := range competitors {
		ids[i] = c.ID
	}

	var (
		level  string
		units  []*models.ContestUnit
		source string
		notes  []string
	)

	now := e.clock()
	if cat.Discipline == models.DisciplineForms {
		level = e.rules.FirstFormsLevel()
		source = SourceFallback
		for i, id := range e.shuffle(ids) {
			units = append(units, e.newPerformance(cat.ID, level, i, id, now))
		}
	} else {
		var proposal seeding.Proposal
		proposal, source, notes = e.propose(ctx, cat.ID, competitors, ids)

		level = e.rules.SparringLevels(seeding.Rounds(len(ids)))[0]
		for i, m := range proposal.Matches {
			units = append(units, e.newMatch(cat.ID, level, i, m.First, m.Second, now))
		}
	}

	err = e.withLock(ctx, "draw:"+cat.ID, func() error {
		if req.Replace {
			if err := e.repo.DeleteCategoryLevels(ctx, cat.ID); err != nil {
				return err
			}
		} else {
			levels, err := e.repo.ListLevels(ctx, cat.ID)
			if err != nil {
				return err
			}
			if len(levels) > 0 {
				return fmt.Errorf("draw of %s: %w", cat.ID, models.ErrConflict)
			}
		}
		return e.repo.CreateLevel(ctx, cat.ID, level, units)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("draw generated",
		"category_id", cat.ID,
		"level", level,
		"competitors", len(ids),
		"units", len(units),
		"source", source,
	)

	e.attachJudges(ctx, cat, units)
	e.emitLevel(cat.ID, level, units)

	if cat.Discipline == models.DisciplineSparring && levelComplete(units) && e.chained(level) {
		e.advanceAsync(cat.ID, level)
	}

	bracket, err := e.GetBracket(ctx, cat.ID)
	if err != nil {
		return nil, err
	}
	bracket.Source = source
	bracket.Notes = notes
	return bracket, nil
}

// propose returns a repaired assistant proposal, or the fallback bracket
// when the assistant is absent, fails or proposes nothing usable
func (e *Engine) propose(ctx context.Context, categoryID string, competitors []models.Competitor, ids []string) (seeding.Proposal, string, []string) {
	if e.assistant != nil {
		p, err := e.assistant.ProposeBracket(ctx, categoryID, competitors)
		switch {
		case err != nil:
			slog.Warn("seeding assistant failed, using fallback draw", "category_id", categoryID, "error", err)
		case p == nil:
			slog.Warn("seeding assistant returned no proposal, using fallback draw", "category_id", categoryID)
		default:
			repaired, report := seeding.Repair(ids, *p)
			if report.Usable() {
				if notes := report.Notes(); len(notes) > 0 {
					slog.Info("seeding proposal repaired", "category_id", categoryID, "changes", len(notes))
				}
				return repaired, SourceAssistant, report.Notes()
			}
			slog.Warn("seeding proposal unusable, using fallback draw", "category_id", categoryID)
		}
	}

	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return seeding.Fallback(ids, e.rng), SourceFallback, nil
}
