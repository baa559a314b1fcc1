// Package grant tracks explicit approvals of permissions. A grant is
// permanent, temporary (valid until an expiry), or limited (valid for a fixed
// number of uses).
package grant

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kazz187/permguard/pkg/clock"
)

type Kind string

const (
	KindPermanent Kind = "permanent"
	KindTemporary Kind = "temporary"
	KindLimited   Kind = "limited"
)

// Match describes the grant that approved a lookup.
type Match struct {
	Kind Kind
	// Grant is the stored grant that covered the name. For permanent
	// matches it may be a wildcard or an ancestor of the requested name.
	Grant         string
	ExpiresAt     time.Time
	RemainingUses int
}

// Store is safe for concurrent use. Lookup consumes limited grants inside the
// same critical section that reads them, so a use is never spent twice.
type Store struct {
	clock clock.Clock

	mu        sync.Mutex
	permanent map[string]struct{}
	temporary map[string]time.Time
	limited   map[string]int
}

func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:     c,
		permanent: make(map[string]struct{}),
		temporary: make(map[string]time.Time),
		limited:   make(map[string]int),
	}
}

func (s *Store) Grant(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permanent[name] = struct{}{}
}

// Revoke removes every kind of grant held under name.
func (s *Store) Revoke(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permanent, name)
	delete(s.temporary, name)
	delete(s.limited, name)
}

func (s *Store) GrantTemporary(name string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temporary[name] = expiresAt
}

func (s *Store) GrantWithLimit(name string, maxUses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited[name] = maxUses
}

// ListGranted returns the permanent grants, sorted.
func (s *Store) ListGranted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.permanent))
	for name := range s.permanent {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Lookup finds a grant for name. Temporary grants take precedence over
// limited ones, which take precedence over permanent ones. A limited match
// consumes one use.
func (s *Store) Lookup(name string) (Match, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked(now)

	if exp, ok := s.temporary[name]; ok {
		return Match{Kind: KindTemporary, Grant: name, ExpiresAt: exp}, true
	}

	if remaining, ok := s.limited[name]; ok {
		if remaining > 0 {
			remaining--
			if remaining == 0 {
				delete(s.limited, name)
			} else {
				s.limited[name] = remaining
			}
			return Match{Kind: KindLimited, Grant: name, RemainingUses: remaining}, true
		}
		delete(s.limited, name)
	}

	if g, ok := s.permanentMatchLocked(name); ok {
		return Match{Kind: KindPermanent, Grant: g}, true
	}
	return Match{}, false
}

func (s *Store) purgeExpiredLocked(now time.Time) {
	for name, exp := range s.temporary {
		if !now.Before(exp) {
			delete(s.temporary, name)
		}
	}
}

func (s *Store) permanentMatchLocked(name string) (string, bool) {
	if _, ok := s.permanent[name]; ok {
		return name, true
	}
	// Iterate in sorted order so the reported grant is deterministic.
	granted := make([]string, 0, len(s.permanent))
	for g := range s.permanent {
		granted = append(granted, g)
	}
	slices.Sort(granted)
	for _, g := range granted {
		if prefix, ok := strings.CutSuffix(g, "*"); ok && strings.HasPrefix(name, prefix) {
			return g, true
		}
		if !strings.Contains(g, ".") && strings.HasPrefix(name, g+".") {
			return g, true
		}
	}
	return "", false
}

// Snapshot is a point-in-time view of every grant.
type Snapshot struct {
	Permanent []string             `json:"permanent" yaml:"permanent"`
	Temporary map[string]time.Time `json:"temporary" yaml:"temporary"`
	Limited   map[string]int       `json:"limited" yaml:"limited"`
}

// Snapshot omits temporary grants that have already expired.
func (s *Store) Snapshot() Snapshot {
	now := s.clock.Now()
	permanent := s.ListGranted()

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Permanent: permanent,
		Temporary: make(map[string]time.Time, len(s.temporary)),
		Limited:   make(map[string]int, len(s.limited)),
	}
	for name, exp := range s.temporary {
		if now.Before(exp) {
			snap.Temporary[name] = exp
		}
	}
	for name, n := range s.limited {
		snap.Limited[name] = n
	}
	return snap
}
