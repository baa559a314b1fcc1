package audit

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/permguard/pkg/clog"
)

// Log is the in-memory, append-only record of decisions. Entries are kept in
// the order their checks completed.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	sink    Repository
	entropy *ulid.MonotonicEntropy
}

type LogOption func(*Log)

// WithSink mirrors every appended entry into repo. Persistence is best
// effort: a failing sink is logged and the in-memory entry is kept.
func WithSink(repo Repository) LogOption {
	return func(l *Log) {
		l.sink = repo
	}
}

func NewLog(opts ...LogOption) *Log {
	l := &Log{entropy: ulid.Monotonic(rand.Reader, 0)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a decision and returns the stored entry.
func (l *Log) Append(ctx context.Context, d Decision) Entry {
	l.mu.Lock()
	e := Entry{
		ID:         ulid.MustNew(ulid.Now(), l.entropy).String(),
		Timestamp:  d.Timestamp,
		Permission: d.Permission,
		Context:    d.Context.Clone(),
		Result:     d,
	}
	e.Result.Context = e.Context
	// d may share pointers with the caller's result; the stored entry must not.
	l.entries = append(l.entries, e.clone())
	e = e.clone()
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Create(ctx, &e); err != nil {
			clog.AddError(ctx, err)
			slog.ErrorContext(ctx, "failed to persist audit entry", "audit_id", e.ID, "permission", e.Permission)
		}
	}
	return e
}

// Entries returns a copy of the entries that pass f.
func (l *Log) Entries(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.entries))
	for i := range l.entries {
		if f.Match(&l.entries[i]) {
			out = append(out, l.entries[i].clone())
		}
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Trim drops the oldest entries so that at most keep remain.
func (l *Log) Trim(keep int) {
	if keep < 0 {
		keep = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) <= keep {
		return
	}
	l.entries = append([]Entry(nil), l.entries[len(l.entries)-keep:]...)
}
