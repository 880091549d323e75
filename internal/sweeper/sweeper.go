package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Advancer is the part of the engine the sweeper drives
type Advancer interface {
	ListCategories(ctx context.Context, d models.Discipline) ([]*models.Category, error)
	AdvanceCategory(ctx context.Context, categoryID string) ([]*models.ContestUnit, error)
}

// Sweeper periodically retries sparring level generation so a failed
// background advancement does not leave a bracket stuck
type Sweeper struct {
	engine   Advancer
	interval time.Duration
}

// New creates a sweeper
func New(engine Advancer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		engine:   engine,
		interval: interval,
	}
}

// Run schedules the sweep and blocks until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	sched.Start()
	slog.Info("sweeper started", "interval", s.interval)

	<-ctx.Done()

	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	slog.Info("sweeper stopped")
	return nil
}

// Sweep runs one pass over the sparring categories and returns the number
// of levels it generated
func (s *Sweeper) Sweep(ctx context.Context) int {
	slog.Debug("running sweep cycle")

	categories, err := s.engine.ListCategories(ctx, models.DisciplineSparring)
	if err != nil {
		slog.Error("failed to list categories", "error", err)
		return 0
	}

	generated := 0
	for _, cat := range categories {
		units, err := s.engine.AdvanceCategory(ctx, cat.ID)
		if err != nil {
			slog.Error("failed to advance category",
				"category_id", cat.ID,
				"error", err,
			)
			continue
		}
		if len(units) > 0 {
			generated++
			slog.Info("sweeper generated level",
				"category_id", cat.ID,
				"level", units[0].Level,
				"units", len(units),
			)
		}
	}
	return generated
}
