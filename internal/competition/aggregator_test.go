package competition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/bracket-engine/internal/models"
)

func formsRound(t *testing.T, f *fixture, ids ...string) []*models.ContestUnit {
	t.Helper()
	f.category("kata", models.DisciplineForms)
	f.register("kata", ids...)
	f.judge("kata", fiveJudges...)
	f.judge("kata", "j6")

	units, err := f.engine.CreateRound(f.ctx, RoundRequest{CategoryID: "kata", Level: "first", CompetitorIDs: ids})
	require.NoError(t, err)
	return units
}

func sparringFinal(t *testing.T, f *fixture) *models.ContestUnit {
	t.Helper()
	f.category("kumite", models.DisciplineSparring)
	f.register("kumite", "red", "blue")
	f.judge("kumite", "j1")

	_, err := f.engine.GenerateDraws(f.ctx, DrawRequest{CategoryID: "kumite"})
	require.NoError(t, err)

	units := f.units("kumite", "final")
	require.Len(t, units, 1)
	return units[0]
}

func TestSubmitScoreAuthorization(t *testing.T) {
	f := newFixture(t)
	units := formsRound(t, f, "a")
	v := 8.0

	require.NoError(t, f.engine.SaveJudgeAssignment(f.ctx, &models.JudgeAssignment{JudgeID: "pending", CategoryID: "kata"}))

	_, err := f.engine.SubmitScore(f.ctx, models.Submission{UnitID: units[0].ID, JudgeID: "pending", CompetitorID: "a", Value: &v})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: units[0].ID, JudgeID: "stranger", CompetitorID: "a", Value: &v})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: "missing", JudgeID: "j1", CompetitorID: "a", Value: &v})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSubmitScoreValidation(t *testing.T) {
	f := newFixture(t)
	units := formsRound(t, f, "a", "b")
	id := units[0].ID

	low, high := 4.9, 10.1
	_, err := f.engine.SubmitScore(f.ctx, models.Submission{UnitID: id, JudgeID: "j1", CompetitorID: "a", Value: &low})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: id, JudgeID: "j1", CompetitorID: "a", Value: &high})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: id, JudgeID: "j1", CompetitorID: "a", Card: &models.SparringCard{Yuko: 1}})
	assert.ErrorIs(t, err, models.ErrValidation, "performances take a single value")

	ok := 7.0
	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: id, JudgeID: "j1", CompetitorID: "b", Value: &ok})
	assert.ErrorIs(t, err, models.ErrValidation, "b performs in another unit")

	edge := 5.0
	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: id, JudgeID: "j1", CompetitorID: "a", Value: &edge})
	assert.NoError(t, err)
}

func TestFormsWindowFiveJudges(t *testing.T) {
	f := newFixture(t)
	u := formsRound(t, f, "a")[0]

	values := []float64{9.0, 7.0, 8.2, 7.5, 8.0}
	for i, v := range values {
		f.submitValue(u.ID, fiveJudges[i], "a", v)

		res, err := f.engine.GetResult(f.ctx, u.ID)
		require.NoError(t, err)
		if i < 4 {
			assert.True(t, res.Pending, "pending after %d scores", i+1)
			assert.Nil(t, res.Score)
		}
	}

	res, err := f.engine.GetResult(f.ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, res.Pending)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 23.7, *res.Score, 1e-9)
	assert.Equal(t, models.UnitCompleted, res.Status)
	assert.Equal(t, models.DecisionFormsWindow, res.Decision)

	f.engine.Wait()
	assert.Equal(t, 5, f.events.count(models.EventScoreChanged))
	assert.Equal(t, 1, f.events.count(models.EventUnitCompleted))
}

func TestFormsWindowSixJudges(t *testing.T) {
	f := newFixture(t)
	u := formsRound(t, f, "a")[0]

	for i, v := range []float64{5, 6, 7, 8, 9, 9.5} {
		f.submitValue(u.ID, append(fiveJudges, "j6")[i], "a", v)
	}

	res, err := f.engine.GetResult(f.ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 24.0, *res.Score, 1e-9)
}

func TestScoreResubmissionReplaces(t *testing.T) {
	f := newFixture(t)
	u := formsRound(t, f, "a")[0]

	f.perform(u, 8.0, fiveJudges...)
	res, err := f.engine.GetResult(f.ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, *res.Score, 1e-9)

	first, err := f.repo.ListScores(f.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, first, 5)

	f.submitValue(u.ID, "j3", "a", 9.0)

	scores, err := f.repo.ListScores(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 5, "resubmission never adds a row")

	res, err = f.engine.GetResult(f.ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 24.0, *res.Score, 1e-9, "9.0 is dropped as the maximum")

	f.submitValue(u.ID, "j4", "a", 9.0)
	res, err = f.engine.GetResult(f.ctx, u.ID)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, *res.Score, 1e-9)
}

func TestMatchWinByPoints(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)
	a, b := m.CompetitorID, m.OpponentID

	f.submitCard(m.ID, "j1", a, models.SparringCard{Ippon: 2, Yuko: 1})
	res, err := f.engine.GetResult(f.ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, res.Pending, "the judge has not scored both participants")

	f.submitCard(m.ID, "j1", b, models.SparringCard{WazaAri: 1})

	got := f.unit(m.ID)
	assert.Equal(t, models.UnitCompleted, got.Status)
	assert.Equal(t, a, got.WinnerID)
	assert.Equal(t, models.DecisionPoints, got.Decision)
	assert.Equal(t, 7.0, *got.CompetitorPoints)
	assert.Equal(t, 2.0, *got.OpponentPoints)
	assert.Equal(t, models.OutcomeWin, got.CompetitorOutcome)
	assert.Equal(t, models.OutcomeLoss, got.OpponentOutcome)
	assert.NotNil(t, got.CompletedAt)
}

func TestMatchDisqualificationEndsImmediately(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)

	f.submitCard(m.ID, "j1", m.CompetitorID, models.SparringCard{Ippon: 2})
	f.submitCard(m.ID, "j1", m.OpponentID, models.SparringCard{Ippon: 3, Hansoku: 1})

	got := f.unit(m.ID)
	assert.Equal(t, models.UnitCompleted, got.Status)
	assert.Equal(t, m.CompetitorID, got.WinnerID)
	assert.Equal(t, models.DecisionDisqualification, got.Decision)
}

func TestMatchPointGapBelowQuorum(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)
	f.judge("kumite", "j2")
	require.NoError(t, f.repo.AttachJudge(f.ctx, m.ID, "j2"))

	f.submitCard(m.ID, "j1", m.OpponentID, models.SparringCard{Ippon: 3, Yuko: 1})

	got := f.unit(m.ID)
	assert.Equal(t, models.UnitCompleted, got.Status, "a gap of 10 ends the match at once")
	assert.Equal(t, m.OpponentID, got.WinnerID)
	assert.Equal(t, models.DecisionPointGap, got.Decision)

	_, err := f.engine.SubmitScore(f.ctx, models.Submission{UnitID: m.ID, JudgeID: "j2", CompetitorID: m.CompetitorID, Card: &models.SparringCard{}})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMatchTieGoesToEarliestScore(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)

	f.submitCard(m.ID, "j1", m.OpponentID, models.SparringCard{WazaAri: 1})
	f.submitCard(m.ID, "j1", m.CompetitorID, models.SparringCard{Yuko: 2})

	got := f.unit(m.ID)
	assert.Equal(t, m.OpponentID, got.WinnerID)
	assert.Equal(t, models.DecisionEarliestScore, got.Decision)
}

func TestMatchQuorumFollowsAttachedJudges(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)
	f.judge("kumite", "j2")
	require.NoError(t, f.repo.AttachJudge(f.ctx, m.ID, "j2"))

	f.win(m, m.CompetitorID)
	assert.Equal(t, models.UnitInProgress, f.unit(m.ID).Status, "one of two judges scored")

	f.submitCard(m.ID, "j2", m.CompetitorID, models.SparringCard{})
	f.submitCard(m.ID, "j2", m.OpponentID, models.SparringCard{WazaAri: 1})

	got := f.unit(m.ID)
	assert.Equal(t, models.UnitCompleted, got.Status)
	assert.Equal(t, m.CompetitorID, got.WinnerID)
	assert.Equal(t, 3.0, *got.CompetitorPoints)
	assert.Equal(t, 2.0, *got.OpponentPoints)
}

func TestResolveWinnerOnDemand(t *testing.T) {
	f := newFixture(t)
	m := sparringFinal(t, f)
	f.judge("kumite", "j2")
	require.NoError(t, f.repo.AttachJudge(f.ctx, m.ID, "j2"))

	_, err := f.engine.ResolveWinner(f.ctx, m.ID)
	assert.ErrorIs(t, err, models.ErrValidation, "no scores yet")

	f.submitCard(m.ID, "j1", m.OpponentID, models.SparringCard{Yuko: 1})

	got, err := f.engine.ResolveWinner(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UnitCompleted, got.Status)
	assert.Equal(t, m.OpponentID, got.WinnerID)

	again, err := f.engine.ResolveWinner(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, got.CompletedAt.Unix(), again.CompletedAt.Unix())
}

func TestCancelledUnitRejectsScores(t *testing.T) {
	f := newFixture(t)
	u := formsRound(t, f, "a")[0]

	got, err := f.engine.SetUnitStatus(f.ctx, u.ID, models.UnitCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.UnitCancelled, got.Status)

	v := 8.0
	_, err = f.engine.SubmitScore(f.ctx, models.Submission{UnitID: u.ID, JudgeID: "j1", CompetitorID: "a", Value: &v})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.engine.SetUnitStatus(f.ctx, u.ID, models.UnitCompleted)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSetUnitStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		before  []models.UnitStatus
		target  models.UnitStatus
		wantErr error
	}{
		{name: "start", target: models.UnitInProgress},
		{name: "postpone scheduled", target: models.UnitPostponed},
		{name: "cancel running", before: []models.UnitStatus{models.UnitInProgress}, target: models.UnitCancelled},
		{name: "running back to scheduled", before: []models.UnitStatus{models.UnitInProgress}, target: models.UnitScheduled, wantErr: models.ErrConflict},
		{name: "cancelled back to scheduled", before: []models.UnitStatus{models.UnitCancelled}, target: models.UnitScheduled, wantErr: models.ErrConflict},
		{name: "cancelled to postponed", before: []models.UnitStatus{models.UnitCancelled}, target: models.UnitPostponed, wantErr: models.ErrConflict},
		{name: "postponed to running", before: []models.UnitStatus{models.UnitPostponed}, target: models.UnitInProgress, wantErr: models.ErrConflict},
		{name: "postponed back to scheduled", before: []models.UnitStatus{models.UnitPostponed}, target: models.UnitScheduled, wantErr: models.ErrConflict},
		{name: "unknown status", target: models.UnitStatus("paused"), wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			u := formsRound(t, f, "a")[0]
			for _, s := range tt.before {
				_, err := f.engine.SetUnitStatus(f.ctx, u.ID, s)
				require.NoError(t, err)
			}
			last := models.UnitScheduled
			if n := len(tt.before); n > 0 {
				last = tt.before[n-1]
			}

			got, err := f.engine.SetUnitStatus(f.ctx, u.ID, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				stored := f.unit(u.ID)
				assert.Equal(t, last, stored.Status, "status is unchanged")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, got.Status)
		})
	}
}

func TestCompletedUnitKeepsStatus(t *testing.T) {
	f := newFixture(t)
	sparringDraw(t, f, 2)
	final := f.units("kumite", "final")
	require.Len(t, final, 1)
	m := final[0]
	f.win(m, m.CompetitorID)
	f.engine.Wait()

	_, err := f.engine.SetUnitStatus(f.ctx, m.ID, models.UnitCancelled)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, models.UnitCompleted, f.unit(m.ID).Status)
}
