package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/bracket-engine/internal/models"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "bracket_test.db"))
	require.NoError(t, err, "open repository")
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func matchUnits(categoryID, level string, n int) []*models.ContestUnit {
	now := time.Now().UTC()
	units := make([]*models.ContestUnit, n)
	for i := range units {
		units[i] = &models.ContestUnit{
			ID:           fmt.Sprintf("%s-%s-%d", categoryID, level, i),
			CategoryID:   categoryID,
			Kind:         models.KindMatch,
			Level:        level,
			Position:     i,
			Status:       models.UnitScheduled,
			CompetitorID: fmt.Sprintf("a%d", i),
			OpponentID:   fmt.Sprintf("b%d", i),
			CreatedAt:    now,
		}
	}
	return units
}

func floatPtr(v float64) *float64 { return &v }

func TestCategoriesAndRegistrations(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertCategory(ctx, &models.Category{ID: "kumite-m", Name: "Kumite Men", Discipline: models.DisciplineSparring, Tatami: "T1"}))
	require.NoError(t, repo.UpsertCategory(ctx, &models.Category{ID: "kata-w", Name: "Kata Women", Discipline: models.DisciplineForms}))
	require.NoError(t, repo.UpsertCategory(ctx, &models.Category{ID: "kumite-m", Name: "Kumite Men -75", Discipline: models.DisciplineSparring, Tatami: "T2"}))

	c, err := repo.GetCategory(ctx, "kumite-m")
	require.NoError(t, err)
	assert.Equal(t, "Kumite Men -75", c.Name)
	assert.Equal(t, "T2", c.Tatami)

	_, err = repo.GetCategory(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	sparring, err := repo.ListCategories(ctx, models.DisciplineSparring)
	require.NoError(t, err)
	require.Len(t, sparring, 1)
	all, err := repo.ListCategories(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.UpsertRegistration(ctx, &models.Registration{CategoryID: "kata-w", CompetitorID: "c1", Name: "Aiko", Club: "Dojo A", Approved: true}))
	require.NoError(t, repo.UpsertRegistration(ctx, &models.Registration{CategoryID: "kata-w", CompetitorID: "c1", Name: "Aiko", Club: "Dojo A", Approved: true, Paid: true}))

	reg, err := repo.GetRegistration(ctx, "kata-w", "c1")
	require.NoError(t, err)
	assert.True(t, reg.Eligible())

	_, err = repo.GetRegistration(ctx, "kata-w", "c2")
	assert.ErrorIs(t, err, models.ErrNotFound)

	regs, err := repo.ListRegistrations(ctx, "kata-w")
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestJudges(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertJudgeAssignment(ctx, &models.JudgeAssignment{JudgeID: "j1", CategoryID: "cat", Tatami: "T1", Confirmed: true}))
	require.NoError(t, repo.UpsertJudgeAssignment(ctx, &models.JudgeAssignment{JudgeID: "j2", CategoryID: "cat", Tatami: "T1"}))
	require.NoError(t, repo.UpsertJudgeAssignment(ctx, &models.JudgeAssignment{JudgeID: "j3", CategoryID: "cat", Tatami: "T2", Confirmed: true}))
	require.NoError(t, repo.UpsertJudgeAssignment(ctx, &models.JudgeAssignment{JudgeID: "j4", CategoryID: "cat", Confirmed: true}))

	judges, err := repo.ListConfirmedJudges(ctx, "cat", "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j4"}, judges)

	a, err := repo.GetJudgeAssignment(ctx, "j2", "cat")
	require.NoError(t, err)
	assert.False(t, a.Confirmed)

	_, err = repo.GetJudgeAssignment(ctx, "j9", "cat")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, repo.CreateLevel(ctx, "cat", "final", matchUnits("cat", "final", 1)))

	require.NoError(t, repo.AttachJudge(ctx, "cat-final-0", "j1"))
	err = repo.AttachJudge(ctx, "cat-final-0", "j1")
	assert.ErrorIs(t, err, models.ErrConflict)
	err = repo.AttachJudge(ctx, "nope", "j1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	attached, err := repo.ListUnitJudges(ctx, "cat-final-0")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, attached)
}

func TestCreateLevelIsClaimedOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateLevel(ctx, "cat", "semifinal", matchUnits("cat", "semifinal", 2)))

	err := repo.CreateLevel(ctx, "cat", "semifinal", matchUnits("cat", "semifinal-dup", 2))
	assert.ErrorIs(t, err, models.ErrConflict)

	units, err := repo.ListUnits(ctx, "cat", "semifinal")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, 0, units[0].Position)
	assert.Equal(t, "a1", units[1].CompetitorID)

	exists, err := repo.LevelExists(ctx, "cat", "semifinal")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.LevelExists(ctx, "cat", "final")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpsertScoreKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateLevel(ctx, "cat", "first", matchUnits("cat", "first", 1)))

	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e1, err := repo.UpsertScore(ctx, &models.ScoreEntry{
		ID: "s1", UnitID: "cat-first-0", JudgeID: "j1", CompetitorID: "a0",
		Value: floatPtr(7.5), SubmittedAt: first, UpdatedAt: first,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", e1.ID)

	later := first.Add(time.Minute)
	e2, err := repo.UpsertScore(ctx, &models.ScoreEntry{
		ID: "s2", UnitID: "cat-first-0", JudgeID: "j1", CompetitorID: "a0",
		Value: floatPtr(8.5), SubmittedAt: later, UpdatedAt: later,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", e2.ID, "second submission updates the existing row")
	assert.Equal(t, 8.5, *e2.Value)
	assert.True(t, e2.SubmittedAt.Equal(first))
	assert.True(t, e2.UpdatedAt.Equal(later))

	card := &models.SparringCard{Ippon: 1, Chukoku: 2}
	_, err = repo.UpsertScore(ctx, &models.ScoreEntry{
		ID: "s3", UnitID: "cat-first-0", JudgeID: "j1", CompetitorID: "b0",
		Card: card, SubmittedAt: later, UpdatedAt: later,
	})
	require.NoError(t, err)

	scores, err := repo.ListScores(ctx, "cat-first-0")
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "a0", scores[0].CompetitorID)
	assert.Equal(t, card, scores[1].Card)

	_, err = repo.UpsertScore(ctx, &models.ScoreEntry{ID: "s4", UnitID: "missing", JudgeID: "j1", CompetitorID: "a0", SubmittedAt: later, UpdatedAt: later})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReplaceLevelDiscardsScores(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateLevel(ctx, "cat", "first", matchUnits("cat", "first", 2)))
	require.NoError(t, repo.CreateLevel(ctx, "other", "first", matchUnits("other", "first", 1)))
	now := time.Now().UTC()
	_, err := repo.UpsertScore(ctx, &models.ScoreEntry{ID: "s1", UnitID: "cat-first-0", JudgeID: "j1", CompetitorID: "a0", Value: floatPtr(8), SubmittedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	_, err = repo.UpsertScore(ctx, &models.ScoreEntry{ID: "s2", UnitID: "other-first-0", JudgeID: "j1", CompetitorID: "a0", Value: floatPtr(8), SubmittedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	replacement := matchUnits("cat", "first", 1)
	replacement[0].ID = "fresh"
	require.NoError(t, repo.ReplaceLevel(ctx, "cat", "first", replacement))

	units, err := repo.ListUnits(ctx, "cat", "first")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "fresh", units[0].ID)

	scores, err := repo.ListScores(ctx, "cat-first-0")
	require.NoError(t, err)
	assert.Empty(t, scores)

	scores, err = repo.ListScores(ctx, "other-first-0")
	require.NoError(t, err)
	assert.Len(t, scores, 1, "other categories are untouched")

	require.NoError(t, repo.DeleteCategoryLevels(ctx, "cat"))
	levels, err := repo.ListLevels(ctx, "cat")
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestUpdateUnits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateLevel(ctx, "cat", "final", matchUnits("cat", "final", 1)))

	u, err := repo.GetUnit(ctx, "cat-final-0")
	require.NoError(t, err)

	done := time.Now().UTC()
	u.Status = models.UnitCompleted
	u.WinnerID = "a0"
	u.CompetitorPoints = floatPtr(7)
	u.OpponentPoints = floatPtr(2)
	u.CompetitorOutcome = models.OutcomeWin
	u.OpponentOutcome = models.OutcomeLoss
	u.Decision = models.DecisionPoints
	u.CompletedAt = &done
	require.NoError(t, repo.UpdateUnits(ctx, u))

	got, err := repo.GetUnit(ctx, "cat-final-0")
	require.NoError(t, err)
	assert.Equal(t, models.UnitCompleted, got.Status)
	assert.Equal(t, "a0", got.WinnerID)
	assert.Equal(t, 7.0, *got.CompetitorPoints)
	assert.Equal(t, models.DecisionPoints, got.Decision)
	require.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Score)

	err = repo.UpdateUnits(ctx, &models.ContestUnit{ID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetUnit(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
