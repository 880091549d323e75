package competition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/scoring"
)

// SubmitScore records one judge's evaluation of one competitor in a unit
// and refinalizes the unit. A repeated submission for the same (judge,
// unit, competitor) replaces the earlier value.
func (e *Engine) SubmitScore(ctx context.Context, sub models.Submission) (*models.ScoreEntry, error) {
	unit, err := e.repo.GetUnit(ctx, sub.UnitID)
	if err != nil {
		return nil, err
	}

	if sub.JudgeID == "" {
		return nil, models.Validationf("judge_id is required")
	}
	ok, err := e.judges.IsConfirmedJudge(ctx, sub.JudgeID, unit.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("judge %s for category %s: %w", sub.JudgeID, unit.CategoryID, models.ErrUnauthorized)
	}

	if err := acceptsScores(unit); err != nil {
		return nil, err
	}
	if !unit.HasCompetitor(sub.CompetitorID) {
		return nil, models.Validationf("competitor %s is not part of unit %s", sub.CompetitorID, unit.ID)
	}
	if err := e.validateValue(unit, sub); err != nil {
		return nil, err
	}

	now := e.clock()
	entry, err := e.repo.UpsertScore(ctx, &models.ScoreEntry{
		ID:           e.newID(),
		UnitID:       unit.ID,
		JudgeID:      sub.JudgeID,
		CompetitorID: sub.CompetitorID,
		Value:        sub.Value,
		Card:         sub.Card,
		SubmittedAt:  now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("score submitted",
		"unit_id", unit.ID,
		"judge_id", sub.JudgeID,
		"competitor_id", sub.CompetitorID,
	)

	e.emit(models.Event{
		Type:       models.EventScoreChanged,
		CategoryID: unit.CategoryID,
		Level:      unit.Level,
		UnitID:     unit.ID,
		Payload:    entry,
	})

	if _, err := e.finalize(ctx, unit.ID, false); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetResult returns the unit's result; Pending is set below quorum
func (e *Engine) GetResult(ctx context.Context, unitID string) (*models.Result, error) {
	unit, err := e.repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return models.ResultOf(unit), nil
}

// ResolveWinner closes a match on demand, applying the winner precedence
// to the scores entered so far regardless of quorum. A completed match is
// returned unchanged.
func (e *Engine) ResolveWinner(ctx context.Context, matchID string) (*models.ContestUnit, error) {
	unit, err := e.repo.GetUnit(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if unit.Kind != models.KindMatch {
		return nil, models.Validationf("unit %s is not a match", matchID)
	}
	if unit.Status == models.UnitCompleted {
		return unit, nil
	}
	if err := acceptsScores(unit); err != nil {
		return nil, err
	}

	scores, err := e.repo.ListScores(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, models.Validationf("match %s has no scores", matchID)
	}

	return e.finalize(ctx, matchID, true)
}

// SetUnitStatus applies an explicit lifecycle update from outside the
// engine. Completion is derived from scores and cannot be set here.
// Terminal units keep their status and a started unit cannot go back to
// scheduled.
func (e *Engine) SetUnitStatus(ctx context.Context, unitID string, status models.UnitStatus) (*models.ContestUnit, error) {
	if !status.Valid() || status == models.UnitCompleted {
		return nil, models.Validationf("status %q cannot be set explicitly", status)
	}

	var unit *models.ContestUnit
	err := e.withLock(ctx, unitKey(unitID), func() error {
		var err error
		unit, err = e.repo.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		switch {
		case unit.Status.IsTerminal():
			return fmt.Errorf("unit %s is %s: %w", unitID, unit.Status, models.ErrConflict)
		case unit.Status == models.UnitInProgress && status == models.UnitScheduled:
			return fmt.Errorf("unit %s is already in progress: %w", unitID, models.ErrConflict)
		}
		unit.Status = status
		return e.repo.UpdateUnits(ctx, unit)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("unit status changed", "unit_id", unitID, "status", status)
	return unit, nil
}

func acceptsScores(unit *models.ContestUnit) error {
	switch {
	case unit.Status == models.UnitCancelled || unit.Status == models.UnitPostponed:
		return fmt.Errorf("unit %s is %s: %w", unit.ID, unit.Status, models.ErrConflict)
	case unit.Kind == models.KindMatch && unit.Status == models.UnitCompleted:
		return fmt.Errorf("match %s is completed: %w", unit.ID, models.ErrConflict)
	}
	return nil
}

func (e *Engine) validateValue(unit *models.ContestUnit, sub models.Submission) error {
	if unit.Kind == models.KindPerformance {
		if sub.Value == nil || sub.Card != nil {
			return models.Validationf("a performance score is a single value")
		}
		if !scoring.ValidFormsValue(*sub.Value, e.rules.Forms) {
			return models.Validationf("score %v is outside [%v, %v]", *sub.Value, e.rules.Forms.MinValue, e.rules.Forms.MaxValue)
		}
		return nil
	}

	if sub.Card == nil || sub.Value != nil {
		return models.Validationf("a match score is a point and penalty card")
	}
	if !sub.Card.Valid() {
		return models.Validationf("card counts must be non-negative")
	}
	return nil
}

// finalize recomputes a unit from its score entries. force closes a
// match below quorum.
func (e *Engine) finalize(ctx context.Context, unitID string, force bool) (*models.ContestUnit, error) {
	var (
		unit      *models.ContestUnit
		completed bool
	)

	err := e.withLock(ctx, unitKey(unitID), func() error {
		var err error
		unit, err = e.repo.GetUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if unit.Kind == models.KindMatch && unit.Status == models.UnitCompleted {
			return nil
		}

		scores, err := e.repo.ListScores(ctx, unitID)
		if err != nil {
			return err
		}

		wasCompleted := unit.Status == models.UnitCompleted
		if unit.Kind == models.KindPerformance {
			e.finalizePerformance(unit, scores)
		} else {
			judges, err := e.repo.ListUnitJudges(ctx, unitID)
			if err != nil {
				return err
			}
			e.finalizeMatch(unit, scores, len(judges), force)
		}
		completed = !wasCompleted && unit.Status == models.UnitCompleted

		return e.repo.UpdateUnits(ctx, unit)
	})
	if err != nil {
		return nil, err
	}

	if completed {
		slog.Info("unit completed",
			"unit_id", unit.ID,
			"category_id", unit.CategoryID,
			"level", unit.Level,
			"decision", unit.Decision,
		)

		e.emit(models.Event{
			Type:       models.EventUnitCompleted,
			CategoryID: unit.CategoryID,
			Level:      unit.Level,
			UnitID:     unit.ID,
			Payload:    models.ResultOf(unit),
		})

		if unit.Kind == models.KindMatch && e.chained(unit.Level) {
			e.advanceAsync(unit.CategoryID, unit.Level)
		}
	}
	return unit, nil
}

func (e *Engine) finalizePerformance(unit *models.ContestUnit, scores []*models.ScoreEntry) {
	values := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s.CompetitorID == unit.CompetitorID && s.Value != nil {
			values = append(values, *s.Value)
		}
	}

	total, ok := scoring.FormsScore(values, e.rules.Forms)
	if !ok {
		unit.Score = nil
		if len(values) > 0 && unit.Status == models.UnitScheduled {
			unit.Status = models.UnitInProgress
		}
		return
	}

	unit.Score = &total
	unit.Decision = models.DecisionFormsWindow
	if unit.Status != models.UnitCompleted {
		now := e.clock()
		unit.Status = models.UnitCompleted
		unit.CompletedAt = &now
	}
}

func (e *Engine) finalizeMatch(unit *models.ContestUnit, scores []*models.ScoreEntry, attached int, force bool) {
	a := scoring.Side{ID: unit.CompetitorID}
	b := scoring.Side{ID: unit.OpponentID}
	judged := make(map[string]int)

	for _, s := range scores {
		if s.Card == nil {
			continue
		}

		var side *scoring.Side
		switch s.CompetitorID {
		case a.ID:
			side = &a
			judged[s.JudgeID] |= 1
		case b.ID:
			side = &b
			judged[s.JudgeID] |= 2
		default:
			continue
		}

		side.Card = side.Card.Add(*s.Card)
		if side.FirstScoredAt.IsZero() || s.SubmittedAt.Before(side.FirstScoredAt) {
			side.FirstScoredAt = s.SubmittedAt
		}
	}

	quorum := attached
	if quorum == 0 {
		quorum = e.rules.Sparring.Quorum
	}
	both := 0
	for _, mask := range judged {
		if mask == 3 {
			both++
		}
	}

	verdict := scoring.Resolve(a, b, e.rules.Sparring)
	unit.CompetitorPoints = &verdict.Points[0]
	unit.OpponentPoints = &verdict.Points[1]

	if !force && !verdict.Decisive() && both < quorum {
		if len(judged) > 0 && unit.Status == models.UnitScheduled {
			unit.Status = models.UnitInProgress
		}
		return
	}

	now := e.clock()
	unit.Status = models.UnitCompleted
	unit.CompletedAt = &now
	unit.Decision = verdict.Decision
	if verdict.Winner == 0 {
		unit.WinnerID = a.ID
		unit.CompetitorOutcome, unit.OpponentOutcome = models.OutcomeWin, models.OutcomeLoss
	} else {
		unit.WinnerID = b.ID
		unit.CompetitorOutcome, unit.OpponentOutcome = models.OutcomeLoss, models.OutcomeWin
	}
}
