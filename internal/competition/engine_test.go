package competition

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
	"github.com/terra-clan/bracket-engine/internal/storage"
)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	repo   storage.Repository
	engine *Engine
	events *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(ctx, filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	rec := &recorder{}
	clock := &tickClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	base := []Option{
		WithPublisher(rec),
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewPCG(7, 11))),
	}

	engine := New(repo, rules.Default(), append(base, opts...)...)
	t.Cleanup(engine.Wait)

	return &fixture{t: t, ctx: ctx, repo: repo, engine: engine, events: rec}
}

func (f *fixture) category(id string, d models.Discipline) {
	f.t.Helper()
	require.NoError(f.t, f.engine.SaveCategory(f.ctx, &models.Category{ID: id, Name: id, Discipline: d, Tatami: "T1"}))
}

func (f *fixture) register(categoryID string, ids ...string) {
	f.t.Helper()
	for _, id := range ids {
		require.NoError(f.t, f.engine.SaveRegistration(f.ctx, &models.Registration{
			CategoryID: categoryID, CompetitorID: id, Name: "Competitor " + id, Approved: true, Paid: true,
		}))
	}
}

func (f *fixture) judge(categoryID string, ids ...string) {
	f.t.Helper()
	for _, id := range ids {
		require.NoError(f.t, f.engine.SaveJudgeAssignment(f.ctx, &models.JudgeAssignment{
			JudgeID: id, CategoryID: categoryID, Tatami: "T1", Confirmed: true,
		}))
	}
}

func (f *fixture) units(categoryID, level string) []*models.ContestUnit {
	f.t.Helper()
	units, err := f.repo.ListUnits(f.ctx, categoryID, level)
	require.NoError(f.t, err)
	return units
}

func (f *fixture) unit(id string) *models.ContestUnit {
	f.t.Helper()
	u, err := f.repo.GetUnit(f.ctx, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) submitValue(unitID, judgeID, competitorID string, v float64) {
	f.t.Helper()
	_, err := f.engine.SubmitScore(f.ctx, models.Submission{UnitID: unitID, JudgeID: judgeID, CompetitorID: competitorID, Value: &v})
	require.NoError(f.t, err)
}

func (f *fixture) submitCard(unitID, judgeID, competitorID string, card models.SparringCard) {
	f.t.Helper()
	_, err := f.engine.SubmitScore(f.ctx, models.Submission{UnitID: unitID, JudgeID: judgeID, CompetitorID: competitorID, Card: &card})
	require.NoError(f.t, err)
}

// win completes a match for the named slot with judge j1
func (f *fixture) win(u *models.ContestUnit, winner string) {
	f.t.Helper()
	loser := u.OpponentID
	if winner == u.OpponentID {
		loser = u.CompetitorID
	}
	f.submitCard(u.ID, "j1", winner, models.SparringCard{Ippon: 1})
	f.submitCard(u.ID, "j1", loser, models.SparringCard{})
}

// perform gives every judge the same value so the performance totals 3v
func (f *fixture) perform(u *models.ContestUnit, v float64, judges ...string) {
	f.t.Helper()
	for _, j := range judges {
		f.submitValue(u.ID, j, u.CompetitorID, v)
	}
}

func competitorIDs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("c%02d", i+1)
	}
	return out
}

var fiveJudges = []string{"j1", "j2", "j3", "j4", "j5"}
