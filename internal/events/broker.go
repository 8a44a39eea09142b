package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Publisher announces local changes.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Broker publishes local changes and delivers changes made elsewhere.
type Broker interface {
	Publisher
	// Run blocks, invoking h for foreign events until ctx ends.
	Run(ctx context.Context, h Handler) error
	Close() error
}

// NewOrigin returns an identifier for this process; events carrying it are
// not handed back to it.
func NewOrigin() string {
	return uuid.NewString()
}

// LocalBroker is used when no Kafka cluster is configured. A single instance
// already refreshes its own feeds, so published events are only counted.
type LocalBroker struct {
	mu        sync.Mutex
	published []Event
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	b.published = append(b.published, e)
	if len(b.published) > 100 {
		b.published = b.published[len(b.published)-100:]
	}
	b.mu.Unlock()
	return nil
}

// Published returns the most recent events, oldest first.
func (b *LocalBroker) Published() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.published))
	copy(out, b.published)
	return out
}

func (b *LocalBroker) Run(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBroker) Close() error { return nil }
