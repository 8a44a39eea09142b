package nitip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/events"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/google/uuid"
)

const (
	DefaultCodeAttempts = 8
	defaultListLimit    = 200
	publishTimeout      = 3 * time.Second
)

// Options wires a Service. Only Store is required.
type Options struct {
	Store           Store
	Publisher       events.Publisher
	Metrics         metrics.Recorder
	Codes           CodeGenerator
	Clock           func() time.Time
	MaxCodeAttempts int
}

// Service is the deposit registry of every counter. All operations take the
// caller's identity and act on the identity's counter only.
type Service struct {
	store       Store
	publisher   events.Publisher
	metrics     metrics.Recorder
	newCode     CodeGenerator
	now         func() time.Time
	maxAttempts int
	hub         *Hub
}

func NewService(opts Options) *Service {
	s := &Service{
		store:       opts.Store,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		newCode:     opts.Codes,
		now:         opts.Clock,
		maxAttempts: opts.MaxCodeAttempts,
	}
	if s.publisher == nil {
		s.publisher = events.NewLocalBroker()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.newCode == nil {
		s.newCode = GenerateCode
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultCodeAttempts
	}
	s.hub = NewHub(s.loadFeed, s.metrics)
	return s
}

// Deposit checks an item into a free slot and issues its pickup code. A code
// already held by an active deposit is discarded and a new one drawn.
func (s *Service) Deposit(ctx context.Context, id *session.Identity, in DepositInput) (*Deposit, error) {
	if err := session.Authorize(id); err != nil {
		return nil, err
	}
	clean, err := Validate(in)
	if err != nil {
		s.metrics.DepositRejected(id.AppID, "validation")
		return nil, err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}

		d := &Deposit{
			ID:                uuid.New(),
			AppID:             id.AppID,
			OwnerName:         clean.OwnerName,
			OwnerPhone:        clean.OwnerPhone,
			Slot:              clean.Slot,
			PhotoURL:          clean.PhotoURL,
			PickupCode:        code,
			Status:            StatusActive,
			DepositedAt:       s.now().UTC(),
			DepositedByUserID: id.UserID,
		}

		err = s.store.Create(ctx, d)
		switch {
		case err == nil:
			s.metrics.DepositCreated(id.AppID)
			s.changed(ctx, events.KindDeposited, d)
			return d, nil
		case errors.Is(err, ErrCodeTaken):
			s.metrics.CodeCollision(id.AppID)
		case errors.Is(err, ErrSlotOccupied):
			s.metrics.DepositRejected(id.AppID, "slot_occupied")
			return nil, err
		default:
			s.metrics.DepositRejected(id.AppID, "store")
			return nil, err
		}
	}

	s.metrics.DepositRejected(id.AppID, "code_exhausted")
	return nil, ErrCodeExhausted
}

// LookupByCode finds the deposit a code refers to. Any signed-in attendant may
// look up any code; unknown codes are a result state, not an error.
func (s *Service) LookupByCode(ctx context.Context, id *session.Identity, code string) (LookupResult, error) {
	if err := session.Authorize(id); err != nil {
		return LookupResult{}, err
	}

	code = NormalizeCode(code)
	if !IsCode(code) {
		s.metrics.Lookup(id.AppID, LookupNotFound)
		return LookupResult{State: LookupNotFound}, nil
	}

	d, err := s.store.FindByCode(ctx, id.AppID, code)
	if errors.Is(err, ErrDepositNotFound) {
		s.metrics.Lookup(id.AppID, LookupNotFound)
		return LookupResult{State: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}

	res := LookupResult{State: LookupActive, Deposit: d}
	if !d.IsActive() {
		res.State = LookupCollected
	}
	s.metrics.Lookup(id.AppID, res.State)
	return res, nil
}

// Pickup closes out an active deposit. A second pickup fails with
// ErrAlreadyPickedUp and leaves the first pickup time untouched.
func (s *Service) Pickup(ctx context.Context, id *session.Identity, depositID uuid.UUID) (*Deposit, error) {
	if err := session.Authorize(id); err != nil {
		return nil, err
	}

	d, err := s.store.MarkPickedUp(ctx, id.AppID, depositID, s.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyPickedUp):
		s.metrics.PickupRejected(id.AppID, "already_picked_up")
		return nil, err
	case errors.Is(err, ErrDepositNotFound):
		s.metrics.PickupRejected(id.AppID, "not_found")
		return nil, err
	default:
		s.metrics.PickupRejected(id.AppID, "store")
		return nil, err
	}

	s.metrics.PickupCompleted(id.AppID)
	s.changed(ctx, events.KindPickedUp, d)
	return d, nil
}

// Get returns one deposit the caller is allowed to see.
func (s *Service) Get(ctx context.Context, id *session.Identity, depositID uuid.UUID) (*Deposit, error) {
	if err := session.Authorize(id); err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, id.AppID, depositID)
	if err != nil {
		return nil, err
	}
	if !id.CanSeeOwner(d.DepositedByUserID) {
		return nil, session.ErrForbidden
	}
	return d, nil
}

// ListActive returns active deposits newest first with the counter's
// occupancy. Users only see their own deposits; occupancy is always global.
func (s *Service) ListActive(ctx context.Context, id *session.Identity) ([]Deposit, Occupancy, error) {
	if err := session.Authorize(id); err != nil {
		return nil, Occupancy{}, err
	}
	active, occ, err := s.loadFeed(ctx, id.AppID, FeedActive)
	if err != nil {
		return nil, Occupancy{}, err
	}
	return visibleTo(id, active), occ, nil
}

// ListHistory returns collected deposits, most recently collected first.
func (s *Service) ListHistory(ctx context.Context, id *session.Identity, limit int) ([]Deposit, error) {
	if err := session.Authorize(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.List(ctx, Query{AppID: id.AppID, Status: StatusPickedUp, Limit: clampLimit(limit)})
}

// ListMine returns the caller's own deposits, optionally filtered by status.
func (s *Service) ListMine(ctx context.Context, id *session.Identity, status string) ([]Deposit, error) {
	if err := session.Authorize(id); err != nil {
		return nil, err
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	return s.store.List(ctx, Query{AppID: id.AppID, Status: status, OwnerID: id.UserID, Limit: defaultListLimit})
}

// ListAll returns every deposit of the counter for admins.
func (s *Service) ListAll(ctx context.Context, id *session.Identity, status string, limit int) ([]Deposit, error) {
	if err := session.Authorize(id, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := checkStatus(status); err != nil {
		return nil, err
	}
	return s.store.List(ctx, Query{AppID: id.AppID, Status: status, Limit: clampLimit(limit)})
}

func (s *Service) Occupancy(ctx context.Context, id *session.Identity) (Occupancy, error) {
	if err := session.Authorize(id); err != nil {
		return Occupancy{}, err
	}
	_, occ, err := s.loadFeed(ctx, id.AppID, FeedActive)
	return occ, err
}

func (s *Service) Stats(ctx context.Context, id *session.Identity) (Stats, error) {
	if err := session.Authorize(id, models.RoleAdmin); err != nil {
		return Stats{}, err
	}
	counts, err := s.store.Counts(ctx, id.AppID)
	if err != nil {
		return Stats{}, err
	}
	_, occ, err := s.loadFeed(ctx, id.AppID, FeedActive)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Active:    counts.Active,
		PickedUp:  counts.PickedUp,
		Total:     counts.Active + counts.PickedUp,
		Occupancy: occ,
	}, nil
}

// Subscribe opens a live feed. The history feed is admin only; on the active
// feed a user sees only their own deposits.
func (s *Service) Subscribe(ctx context.Context, id *session.Identity, feed Feed) (*Subscription, error) {
	var view View
	switch feed {
	case FeedActive:
		if err := session.Authorize(id); err != nil {
			return nil, err
		}
		if !id.IsAdmin() {
			view = func(snap Snapshot) Snapshot {
				snap.Deposits = visibleTo(id, snap.Deposits)
				return snap
			}
		}
	case FeedHistory:
		if err := session.Authorize(id, models.RoleAdmin); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown feed %q", feed)
	}
	return s.hub.Subscribe(ctx, id.AppID, feed, view), nil
}

// HandleEvent refreshes local feeds after another instance changed a counter.
func (s *Service) HandleEvent(e events.Event) {
	s.hub.Invalidate(e.AppID)
}

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) Close() { s.hub.Close() }

func (s *Service) loadFeed(ctx context.Context, appID string, feed Feed) ([]Deposit, Occupancy, error) {
	active, err := s.store.List(ctx, Query{AppID: appID, Status: StatusActive})
	if err != nil {
		return nil, Occupancy{}, err
	}
	occ := Summarize(active)
	if feed == FeedActive {
		return active, occ, nil
	}

	history, err := s.store.List(ctx, Query{AppID: appID, Status: StatusPickedUp, Limit: defaultListLimit})
	if err != nil {
		return nil, Occupancy{}, err
	}
	return history, occ, nil
}

// changed refreshes local feeds and tells other instances. Failing to publish
// does not undo the write.
func (s *Service) changed(ctx context.Context, kind string, d *Deposit) {
	s.hub.Invalidate(d.AppID)

	if c, err := s.store.Counts(ctx, d.AppID); err == nil {
		s.metrics.OccupiedSlots(d.AppID, int(c.Active))
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := s.publisher.Publish(pctx, events.Event{
		ID:        uuid.New(),
		Kind:      kind,
		AppID:     d.AppID,
		DepositID: d.ID,
		Slot:      d.Slot,
		At:        s.now().UTC(),
	})
	if err != nil {
		slog.Warn("deposit event not published", "app_id", d.AppID, "kind", kind, "error", err)
	}
}

func visibleTo(id *session.Identity, deposits []Deposit) []Deposit {
	if id.IsAdmin() {
		return deposits
	}
	out := make([]Deposit, 0, len(deposits))
	for _, d := range deposits {
		if d.DepositedByUserID == id.UserID {
			out = append(out, d)
		}
	}
	return out
}

func checkStatus(status string) error {
	switch status {
	case "", StatusActive, StatusPickedUp:
		return nil
	}
	return fmt.Errorf("%w: status must be %s or %s", ErrValidation, StatusActive, StatusPickedUp)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
