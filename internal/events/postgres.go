package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// maxNotifyPayload stays under the 8000 byte limit of pg_notify
const maxNotifyPayload = 7900

// LevelSummary replaces the unit list of a level event that is too large
// for a notification. Subscribers fetch the units by id.
type LevelSummary struct {
	UnitIDs []string `json:"unit_ids"`
}

// PostgresBus publishes events with NOTIFY on the engine's own database
// and relays them to the hub from a LISTEN connection
type PostgresBus struct {
	pool    *pgxpool.Pool
	dsn     string
	channel string
	hub     *Hub
}

// NewPostgresBus creates a bus. Publishing goes through pool; the
// listener opens its own connection from dsn.
func NewPostgresBus(pool *pgxpool.Pool, dsn, channel string, hub *Hub) *PostgresBus {
	return &PostgresBus{pool: pool, dsn: dsn, channel: channel, hub: hub}
}

// Publish implements Publisher
func (b *PostgresBus) Publish(ctx context.Context, ev models.Event) error {
	data, err := notifyPayload(ev)
	if err != nil {
		return err
	}
	if _, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, string(data)); err != nil {
		return fmt.Errorf("failed to notify event: %w", err)
	}
	return nil
}

// notifyPayload encodes ev for pg_notify. An oversized unit list is
// reduced to unit ids; any other oversized payload is dropped.
func notifyPayload(ev models.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	if len(data) <= maxNotifyPayload {
		return data, nil
	}

	if units, ok := ev.Payload.([]*models.ContestUnit); ok {
		summary := LevelSummary{UnitIDs: make([]string, 0, len(units))}
		for _, u := range units {
			summary.UnitIDs = append(summary.UnitIDs, u.ID)
		}
		ev.Payload = summary
	} else {
		ev.Payload = nil
	}

	if data, err = json.Marshal(ev); err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	if len(data) > maxNotifyPayload {
		return nil, fmt.Errorf("event %s of %s is %d bytes, over the notify limit", ev.Type, ev.CategoryID, len(data))
	}
	return data, nil
}

// Run listens on the channel until ctx is done
func (b *PostgresBus) Run(ctx context.Context) error {
	listener := pq.NewListener(b.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("postgres listener event", "event", int(ev), "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(b.channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.channel, err)
	}

	slog.Info("postgres event bus listening", "channel", b.channel)

	for {
		select {
		case <-ctx.Done():
			slog.Info("postgres event bus stopped")
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			if err := b.hub.Relay([]byte(n.Extra)); err != nil {
				slog.Warn("failed to relay event", "error", err)
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					slog.Warn("postgres listener ping failed", "error", err)
				}
			}()
		}
	}
}
