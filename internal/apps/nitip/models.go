package nitip

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusPickedUp = "picked_up"

	// TotalSlots is the number of numbered shelves at every counter.
	TotalSlots = 50
)

// Deposit is one item left at a counter. At most one active deposit may hold a
// given slot or pickup code per counter; the partial unique indexes enforce it.
type Deposit struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	AppID             string     `gorm:"size:50;not null;index;uniqueIndex:idx_deposits_active_slot,where:status = 'active';uniqueIndex:idx_deposits_active_code,where:status = 'active'" json:"app_id"`
	OwnerName         string     `gorm:"size:100;not null" json:"owner_name"`
	OwnerPhone        string     `gorm:"size:20;not null" json:"owner_phone"`
	Slot              int        `gorm:"not null;uniqueIndex:idx_deposits_active_slot,where:status = 'active'" json:"slot"`
	PhotoURL          string     `gorm:"size:1024" json:"photo_url,omitempty"`
	PickupCode        string     `gorm:"size:6;not null;index;uniqueIndex:idx_deposits_active_code,where:status = 'active'" json:"pickup_code"`
	Status            string     `gorm:"size:20;not null;default:active;index" json:"status"`
	DepositedAt       time.Time  `gorm:"not null;index" json:"deposited_at"`
	PickedUpAt        *time.Time `gorm:"index" json:"picked_up_at,omitempty"`
	DepositedByUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"deposited_by_user_id"`
	CreatedAt         time.Time  `json:"-"`
	UpdatedAt         time.Time  `json:"-"`
}

func (d *Deposit) IsActive() bool { return d.Status == StatusActive }

// DepositInput is what an attendant submits when checking an item in.
type DepositInput struct {
	OwnerName  string `json:"owner_name"`
	OwnerPhone string `json:"owner_phone"`
	Slot       int    `json:"slot"`
	PhotoURL   string `json:"photo_url"`
}

// Lookup result states.
const (
	LookupActive    = "active"
	LookupCollected = "collected"
	LookupNotFound  = "not_found"
)

type LookupResult struct {
	State   string   `json:"state"`
	Deposit *Deposit `json:"deposit,omitempty"`
}

// Eligible reports whether the looked-up deposit can be picked up.
func (r LookupResult) Eligible() bool { return r.State == LookupActive }

// Stats summarises a counter for the admin dashboard.
type Stats struct {
	Active    int64     `json:"active"`
	PickedUp  int64     `json:"picked_up"`
	Total     int64     `json:"total"`
	Occupancy Occupancy `json:"occupancy"`
}
