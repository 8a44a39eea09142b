package nitip

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Query filters a listing. Empty fields match everything.
type Query struct {
	AppID   string
	Status  string
	OwnerID uuid.UUID
	Limit   int
}

// StatusCounts is the number of deposits per status for one counter.
type StatusCounts struct {
	Active   int64
	PickedUp int64
}

// Store persists deposits. Implementations must refuse a second active deposit
// for the same (app, slot) with ErrSlotOccupied and for the same (app, code)
// with ErrCodeTaken, even when writes race.
type Store interface {
	Create(ctx context.Context, d *Deposit) error
	Get(ctx context.Context, appID string, id uuid.UUID) (*Deposit, error)
	// FindByCode prefers the active holder of code, then the most recently
	// collected one.
	FindByCode(ctx context.Context, appID, code string) (*Deposit, error)
	// MarkPickedUp moves an active deposit to picked_up exactly once.
	MarkPickedUp(ctx context.Context, appID string, id uuid.UUID, at time.Time) (*Deposit, error)
	// List orders picked_up listings by picked_up_at desc and all others by
	// deposited_at desc.
	List(ctx context.Context, q Query) ([]Deposit, error)
	Counts(ctx context.Context, appID string) (StatusCounts, error)
}
