package nitip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/metrics"
)

// Feed names a live listing.
type Feed string

const (
	FeedActive  Feed = "active"
	FeedHistory Feed = "history"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Snapshot is the full state of a feed at one version.
type Snapshot struct {
	Version   uint64    `json:"version"`
	Feed      Feed      `json:"feed"`
	Deposits  []Deposit `json:"deposits"`
	Occupancy Occupancy `json:"occupancy"`
}

// LoadFunc reads the current contents of a feed.
type LoadFunc func(ctx context.Context, appID string, feed Feed) ([]Deposit, Occupancy, error)

// View narrows a snapshot for one subscriber.
type View func(Snapshot) Snapshot

type topicKey struct {
	appID string
	feed  Feed
}

// topic exists while it has subscribers. Versions are assigned before the
// load starts, so a slow load finishing after a newer one is dropped.
type topic struct {
	key    topicKey
	mu     sync.Mutex
	next   uint64
	latest *Snapshot
	subs   map[*Subscription]struct{}
}

// Hub fans feed snapshots out to subscribers.
type Hub struct {
	load        LoadFunc
	metrics     metrics.Recorder
	loadTimeout time.Duration

	mu     sync.Mutex
	topics map[topicKey]*topic

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(load LoadFunc, rec metrics.Recorder) *Hub {
	if rec == nil {
		rec = metrics.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		load:        load,
		metrics:     rec,
		loadTimeout: 10 * time.Second,
		topics:      make(map[topicKey]*topic),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a subscriber and schedules a fresh snapshot for it. The
// subscription ends when ctx is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, appID string, feed Feed, view View) *Subscription {
	key := topicKey{appID: appID, feed: feed}
	sub := &Subscription{
		feed:   feed,
		view:   view,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	t, ok := h.topics[key]
	if !ok {
		t = &topic{key: key, subs: make(map[*Subscription]struct{})}
		h.topics[key] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	latest := t.latest
	t.mu.Unlock()
	h.mu.Unlock()

	h.metrics.SubscribersChanged(string(feed), 1)
	if latest != nil {
		sub.offer(*latest)
	}
	h.refresh(t)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		case <-h.ctx.Done():
			sub.Close()
		}
		h.remove(t, sub)
	}()
	return sub
}

// Invalidate reloads every feed of appID that has subscribers.
func (h *Hub) Invalidate(appID string) {
	h.mu.Lock()
	var stale []*topic
	for key, t := range h.topics {
		if key.appID == appID {
			stale = append(stale, t)
		}
	}
	h.mu.Unlock()

	for _, t := range stale {
		h.refresh(t)
	}
}

// Subscribers returns the number of open subscriptions on a feed.
func (h *Hub) Subscribers(appID string, feed Feed) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[topicKey{appID: appID, feed: feed}]
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close ends all subscriptions and waits for in-flight loads.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) refresh(t *topic) {
	if h.ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	t.next++
	version := t.next
	t.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.loadTimeout)
		defer cancel()

		deposits, occ, err := h.load(ctx, t.key.appID, t.key.feed)
		if err != nil {
			if h.ctx.Err() == nil {
				slog.Error("feed reload failed", "app_id", t.key.appID, "feed", string(t.key.feed), "error", err)
			}
			return
		}
		t.publish(Snapshot{Version: version, Feed: t.key.feed, Deposits: deposits, Occupancy: occ})
	}()
}

func (h *Hub) remove(t *topic, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.mu.Lock()
	if _, ok := t.subs[sub]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.subs, sub)
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty && h.topics[t.key] == t {
		delete(h.topics, t.key)
	}
	h.metrics.SubscribersChanged(string(t.key.feed), -1)
}

func (t *topic) publish(s Snapshot) {
	t.mu.Lock()
	if t.latest != nil && s.Version <= t.latest.Version {
		t.mu.Unlock()
		return
	}
	t.latest = &s
	subs := make([]*Subscription, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.offer(s)
	}
}

// Subscription receives snapshots of one feed. Only the newest undelivered
// snapshot is kept; a slow reader skips intermediate versions.
type Subscription struct {
	feed Feed
	view View

	mu        sync.Mutex
	latest    *Snapshot
	delivered uint64

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) Feed() Feed { return s.feed }

func (s *Subscription) offer(snap Snapshot) {
	if s.view != nil {
		snap = s.view(snap)
	}

	s.mu.Lock()
	if snap.Version <= s.delivered || (s.latest != nil && snap.Version <= s.latest.Version) {
		s.mu.Unlock()
		return
	}
	s.latest = &snap
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a snapshot newer than the last one returned is available.
func (s *Subscription) Next(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		if s.latest != nil && s.latest.Version > s.delivered {
			snap := *s.latest
			s.delivered = snap.Version
			s.latest = nil
			s.mu.Unlock()
			return snap, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-s.done:
			return Snapshot{}, ErrSubscriptionClosed
		}
	}
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }
