// Package events carries deposit change notifications between server instances
// so every instance can refresh the live feeds it serves.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	KindDeposited = "deposited"
	KindPickedUp  = "picked_up"
)

// Event announces that the deposit set of one counter changed.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	AppID     string    `json:"app_id"`
	DepositID uuid.UUID `json:"deposit_id"`
	Slot      int       `json:"slot"`
	Origin    string    `json:"origin"`
	At        time.Time `json:"at"`
}

// Handler is called for every event received from another instance.
type Handler func(Event)

func Encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.AppID == "" {
		return Event{}, fmt.Errorf("decode event: missing app_id")
	}
	return e, nil
}
