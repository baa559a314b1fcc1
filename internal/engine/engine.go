// Package engine decides whether a requested permission is granted. It ties
// together the permission catalog, the grant store, the rule policy, the
// confirmation gate and the audit log.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/grant"
	"github.com/kazz187/permguard/internal/permission"
	"github.com/kazz187/permguard/internal/policy"
	"github.com/kazz187/permguard/pkg/clock"
)

const DefaultConfirmationTimeout = 2 * time.Minute

// Engine is safe for concurrent use. Construct one per process (or per test)
// with New; there is no shared global instance.
type Engine struct {
	clock   clock.Clock
	logger  *slog.Logger
	catalog *permission.Catalog
	grants  *grant.Store
	audit   *audit.Log

	policyMu sync.RWMutex
	policy   policy.Policy

	confirmMu      sync.RWMutex
	confirm        ConfirmationHandler
	confirmMode    ConfirmationMode
	confirmTimeout time.Duration
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithAuditLog(l *audit.Log) Option {
	return func(e *Engine) { e.audit = l }
}

func WithPolicy(p policy.Policy) Option {
	return func(e *Engine) { e.policy = p.Clone() }
}

func WithConfirmationHandler(h ConfirmationHandler) Option {
	return func(e *Engine) { e.confirm = h }
}

func WithConfirmationMode(m ConfirmationMode) Option {
	return func(e *Engine) { e.confirmMode = m }
}

// WithConfirmationTimeout bounds how long a confirmation handler may take.
// Zero or negative disables the bound.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.confirmTimeout = d }
}

// New returns an engine seeded with the built-in permissions and a policy
// that denies by default.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:          clock.Real(),
		logger:         slog.Default(),
		catalog:        permission.NewCatalog(permission.Defaults()...),
		confirmMode:    ConfirmFailOpen,
		confirmTimeout: DefaultConfirmationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.audit == nil {
		e.audit = audit.NewLog()
	}
	e.grants = grant.NewStore(e.clock)
	return e
}

func (e *Engine) Register(p permission.Permission) { e.catalog.Register(p) }

func (e *Engine) Unregister(name string) bool { return e.catalog.Unregister(name) }

func (e *Engine) Permission(name string) (permission.Permission, bool) { return e.catalog.Get(name) }

func (e *Engine) Permissions() []permission.Permission { return e.catalog.List() }

func (e *Engine) PermissionsByRisk(r permission.Risk) []permission.Permission {
	return e.catalog.ListByRisk(r)
}

func (e *Engine) PermissionsByScope(s permission.Scope) []permission.Permission {
	return e.catalog.ListByScope(s)
}

func (e *Engine) SetPolicy(p policy.Policy) {
	p = p.Clone()
	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	e.policy = p
}

// Policy returns a copy of the active policy.
func (e *Engine) Policy() policy.Policy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	return e.policy.Clone()
}

// Grant permanently grants name. Wildcards ("file.*") and bare roots ("file")
// cover every permission beneath them.
func (e *Engine) Grant(name string) { e.grants.Grant(name) }

func (e *Engine) Revoke(name string) { e.grants.Revoke(name) }

func (e *Engine) GrantTemporary(name string, expiresAt time.Time) {
	e.grants.GrantTemporary(name, expiresAt)
}

// GrantFor is GrantTemporary with an expiry relative to the engine clock.
func (e *Engine) GrantFor(name string, ttl time.Duration) time.Time {
	exp := e.clock.Now().Add(ttl)
	e.grants.GrantTemporary(name, exp)
	return exp
}

func (e *Engine) GrantWithLimit(name string, maxUses int) { e.grants.GrantWithLimit(name, maxUses) }

// GrantScope permanently grants every permission currently registered in
// scope and returns their names. Permissions registered later are not
// covered.
func (e *Engine) GrantScope(s permission.Scope) []string {
	perms := e.catalog.ListByScope(s)
	names := make([]string, len(perms))
	for i, p := range perms {
		e.grants.Grant(p.Name)
		names[i] = p.Name
	}
	return names
}

// ListGranted returns the permanent grants only.
func (e *Engine) ListGranted() []string { return e.grants.ListGranted() }

func (e *Engine) Grants() grant.Snapshot { return e.grants.Snapshot() }

func (e *Engine) SetConfirmationHandler(h ConfirmationHandler) {
	e.confirmMu.Lock()
	defer e.confirmMu.Unlock()
	e.confirm = h
}

// AuditLog returns a copy of the recorded decisions that pass f.
func (e *Engine) AuditLog(f audit.Filter) []audit.Entry { return e.audit.Entries(f) }

func (e *Engine) TrimAuditLog(keep int) { e.audit.Trim(keep) }
