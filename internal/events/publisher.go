package events

import (
	"context"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// Publisher delivers engine events to the real-time transport.
// Delivery is best effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, models.Event) error { return nil }
