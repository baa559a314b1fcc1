// Package confirmation parks confirmation requests until a human answers
// them, typically through the HTTP API.
package confirmation

import (
	"context"
	"crypto/rand"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/clock"
)

// Pending is a confirmation waiting for an answer.
type Pending struct {
	ID        string                     `json:"id"`
	Request   engine.ConfirmationRequest `json:"request"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// Notifier tells someone that a confirmation is waiting.
type Notifier interface {
	NotifyPending(ctx context.Context, p Pending) error
}

type Broker struct {
	clock    clock.Clock
	notifier Notifier

	mu      sync.Mutex
	waiters map[string]chan bool
	pending map[string]Pending
	entropy *ulid.MonotonicEntropy
}

type Option func(*Broker)

func WithNotifier(n Notifier) Option {
	return func(b *Broker) { b.notifier = n }
}

func WithClock(c clock.Clock) Option {
	return func(b *Broker) { b.clock = c }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		clock:   clock.Real(),
		waiters: make(map[string]chan bool),
		pending: make(map[string]Pending),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Confirm registers req and blocks until Respond is called for it or ctx is
// done. It satisfies engine.ConfirmationHandler.
func (b *Broker) Confirm(ctx context.Context, req engine.ConfirmationRequest) (bool, error) {
	ch := make(chan bool, 1)

	b.mu.Lock()
	now := b.clock.Now()
	p := Pending{
		ID:        ulid.MustNew(ulid.Timestamp(now), b.entropy).String(),
		Request:   req,
		CreatedAt: now,
	}
	b.waiters[p.ID] = ch
	b.pending[p.ID] = p
	b.mu.Unlock()

	defer b.remove(p.ID)

	if b.notifier != nil {
		if err := b.notifier.NotifyPending(ctx, p); err != nil {
			slog.WarnContext(ctx, "failed to notify pending confirmation", "confirmation_id", p.ID, "error", err)
		}
	}

	select {
	case allow := <-ch:
		return allow, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Respond answers the pending confirmation id. It returns a NotFound error
// when id is unknown or already answered.
func (b *Broker) Respond(id string, allow bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.waiters[id]
	if !ok {
		return cerr.NewError(cerr.NotFound, "confirmation not found", nil)
	}
	ch <- allow
	delete(b.waiters, id)
	delete(b.pending, id)
	return nil
}

// Pending lists outstanding confirmations, oldest first.
func (b *Broker) Pending() []Pending {
	b.mu.Lock()
	out := make([]Pending, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p)
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(a, b Pending) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (b *Broker) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, id)
	delete(b.pending, id)
}
