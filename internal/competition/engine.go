package competition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/bracket-engine/internal/events"
	"github.com/terra-clan/bracket-engine/internal/lock"
	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
	"github.com/terra-clan/bracket-engine/internal/storage"
)

const publishTimeout = 5 * time.Second

// Engine is the competition progression engine. It aggregates judge
// scores, finalizes contest units and advances brackets level by level.
type Engine struct {
	repo          storage.Repository
	rules         *rules.Rulebook
	locker        lock.Locker
	publisher     events.Publisher
	registrations Registrations
	judges        JudgePanel
	assistant     SeedingAssistant

	now   func() time.Time
	newID func() string

	rngMu sync.Mutex
	rng   *rand.Rand

	wg sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithLocker sets the single-writer lock. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithPublisher sets the event publisher. Defaults to discarding events.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithRegistrations replaces the store-backed registration collaborator
func WithRegistrations(r Registrations) Option {
	return func(e *Engine) {
		e.registrations = r
	}
}

// WithJudgePanel replaces the store-backed judge-panel collaborator
func WithJudgePanel(j JudgePanel) Option {
	return func(e *Engine) {
		e.judges = j
	}
}

// WithAssistant sets the seeding assistant. Without one every draw uses
// the fallback builder.
func WithAssistant(a SeedingAssistant) Option {
	return func(e *Engine) {
		e.assistant = a
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRand sets the random source used to shuffle draws
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// New creates an engine over repo with the given rulebook
func New(repo storage.Repository, rb *rules.Rulebook, opts ...Option) *Engine {
	e := &Engine{
		repo:          repo,
		rules:         rb,
		locker:        lock.NewLocal(),
		publisher:     events.Nop{},
		registrations: NewStoreRegistrations(repo),
		judges:        NewStoreJudgePanel(repo),
		now:           time.Now,
		newID:         uuid.NewString,
		rng:           rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rulebook in force
func (e *Engine) Rules() *rules.Rulebook {
	return e.rules
}

// Wait blocks until background advancement and event delivery finish
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

func (e *Engine) shuffle(ids []string) []string {
	out := append([]string(nil), ids...)

	e.rngMu.Lock()
	defer e.rngMu.Unlock()

	e.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func (e *Engine) withLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	defer unlock()

	return fn()
}

func levelKey(categoryID, level string) string {
	return "level:" + categoryID + "/" + level
}

func unitKey(unitID string) string {
	return "unit:" + unitID
}

func (e *Engine) category(ctx context.Context, id string, want models.Discipline) (*models.Category, error) {
	cat, err := e.repo.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if want != "" && cat.Discipline != want {
		return nil, models.Validationf("category %s is %s, not %s", id, cat.Discipline, want)
	}
	return cat, nil
}

// emit publishes ev in the background; failures are only logged
func (e *Engine) emit(ev models.Event) {
	if ev.At.IsZero() {
		ev.At = e.clock()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := e.publisher.Publish(ctx, ev); err != nil {
			slog.Warn("failed to publish event",
				"type", ev.Type,
				"category_id", ev.CategoryID,
				"error", err,
			)
		}
	}()
}

// advanceAsync runs level generation decoupled from the triggering
// request. Failures are logged and never reach the caller.
func (e *Engine) advanceAsync(categoryID, level string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		units, err := e.GenerateNextLevel(context.Background(), categoryID, level)
		if err != nil {
			slog.Error("background level generation failed",
				"category_id", categoryID,
				"level", level,
				"error", err,
			)
			return
		}
		if len(units) > 0 {
			slog.Debug("background level generation finished",
				"category_id", categoryID,
				"from_level", level,
				"units", len(units),
			)
		}
	}()
}

// attachJudges carries the category's confirmed judges over to units.
// Judges already attached are skipped.
func (e *Engine) attachJudges(ctx context.Context, cat *models.Category, units []*models.ContestUnit) {
	judges, err := e.judges.ConfirmedJudges(ctx, cat.ID, cat.Tatami)
	if err != nil {
		slog.Error("failed to list confirmed judges", "category_id", cat.ID, "error", err)
		return
	}

	for _, u := range units {
		if u.IsBye() {
			continue
		}
		for _, judgeID := range judges {
			if err := e.repo.AttachJudge(ctx, u.ID, judgeID); err != nil && !errors.Is(err, models.ErrConflict) {
				slog.Error("failed to attach judge",
					"unit_id", u.ID,
					"judge_id", judgeID,
					"error", err,
				)
			}
		}
	}
}

func (e *Engine) newPerformance(categoryID, level string, position int, competitorID string, now time.Time) *models.ContestUnit {
	return &models.ContestUnit{
		ID:           e.newID(),
		CategoryID:   categoryID,
		Kind:         models.KindPerformance,
		Level:        level,
		Position:     position,
		Status:       models.UnitScheduled,
		CompetitorID: competitorID,
		CreatedAt:    now,
	}
}

// newMatch creates a match; an empty second slot yields a bye that is
// completed on creation
func (e *Engine) newMatch(categoryID, level string, position int, first, second string, now time.Time) *models.ContestUnit {
	u := &models.ContestUnit{
		ID:           e.newID(),
		CategoryID:   categoryID,
		Kind:         models.KindMatch,
		Level:        level,
		Position:     position,
		Status:       models.UnitScheduled,
		CompetitorID: first,
		OpponentID:   second,
		CreatedAt:    now,
	}

	if second == "" {
		completed := now
		u.Status = models.UnitCompleted
		u.WinnerID = first
		u.CompetitorOutcome = models.OutcomeBye
		u.Decision = models.DecisionBye
		u.CompletedAt = &completed
	}
	return u
}

func levelComplete(units []*models.ContestUnit) bool {
	if len(units) == 0 {
		return false
	}
	for _, u := range units {
		if u.Status != models.UnitCompleted {
			return false
		}
	}
	return true
}
