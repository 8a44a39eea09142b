package nitip

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps deposits in process. It backs DEPOSIT_STORE=memory and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	deposits map[uuid.UUID]*Deposit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{deposits: make(map[uuid.UUID]*Deposit)}
}

func (s *MemoryStore) Create(_ context.Context, d *Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Slot conflicts win over code conflicts, matching GormStore.
	codeTaken := false
	for _, existing := range s.deposits {
		if existing.AppID != d.AppID || existing.Status != StatusActive {
			continue
		}
		if existing.Slot == d.Slot {
			return ErrSlotOccupied
		}
		if existing.PickupCode == d.PickupCode {
			codeTaken = true
		}
	}
	if codeTaken {
		return ErrCodeTaken
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	s.deposits[d.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, appID string, id uuid.UUID) (*Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deposits[id]
	if !ok || d.AppID != appID {
		return nil, ErrDepositNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) FindByCode(_ context.Context, appID, code string) (*Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Deposit
	for _, d := range s.deposits {
		if d.AppID != appID || d.PickupCode != code {
			continue
		}
		if d.Status == StatusActive {
			best = d
			break
		}
		if best == nil || pickedUpAfter(d, best) {
			best = d
		}
	}
	if best == nil {
		return nil, ErrDepositNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) MarkPickedUp(_ context.Context, appID string, id uuid.UUID, at time.Time) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[id]
	if !ok || d.AppID != appID {
		return nil, ErrDepositNotFound
	}
	if d.Status != StatusActive {
		return nil, ErrAlreadyPickedUp
	}
	d.Status = StatusPickedUp
	d.PickedUpAt = &at
	d.UpdatedAt = at
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]Deposit, error) {
	s.mu.RLock()
	out := make([]Deposit, 0, len(s.deposits))
	for _, d := range s.deposits {
		if q.AppID != "" && d.AppID != q.AppID {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if q.OwnerID != uuid.Nil && d.DepositedByUserID != q.OwnerID {
			continue
		}
		out = append(out, *d)
	}
	s.mu.RUnlock()

	if q.Status == StatusPickedUp {
		sort.Slice(out, func(i, j int) bool { return pickedUpAfter(&out[i], &out[j]) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].DepositedAt.After(out[j].DepositedAt) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Counts(_ context.Context, appID string) (StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c StatusCounts
	for _, d := range s.deposits {
		if d.AppID != appID {
			continue
		}
		switch d.Status {
		case StatusActive:
			c.Active++
		case StatusPickedUp:
			c.PickedUp++
		}
	}
	return c, nil
}

func pickedUpAfter(a, b *Deposit) bool {
	switch {
	case a.PickedUpAt == nil:
		return false
	case b.PickedUpAt == nil:
		return true
	default:
		return a.PickedUpAt.After(*b.PickedUpAt)
	}
}
