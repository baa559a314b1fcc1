package permission

import (
	"slices"
	"strings"
	"sync"
)

// Catalog is the registry of known permissions, keyed by name.
type Catalog struct {
	mu    sync.RWMutex
	perms map[string]Permission
}

func NewCatalog(initial ...Permission) *Catalog {
	c := &Catalog{perms: make(map[string]Permission, len(initial))}
	for _, p := range initial {
		c.perms[p.Name] = p
	}
	return c
}

// Register adds p, replacing any permission with the same name.
func (c *Catalog) Register(p Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perms[p.Name] = p
}

// Unregister reports whether name was present.
func (c *Catalog) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.perms[name]; !ok {
		return false
	}
	delete(c.perms, name)
	return true
}

func (c *Catalog) Get(name string) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.perms[name]
	return p, ok
}

// List returns every permission sorted by name.
func (c *Catalog) List() []Permission {
	return c.filter(func(Permission) bool { return true })
}

func (c *Catalog) ListByRisk(risk Risk) []Permission {
	return c.filter(func(p Permission) bool { return p.Risk == risk })
}

func (c *Catalog) ListByScope(scope Scope) []Permission {
	return c.filter(func(p Permission) bool { return p.Scope == scope })
}

func (c *Catalog) filter(keep func(Permission) bool) []Permission {
	c.mu.RLock()
	out := make([]Permission, 0, len(c.perms))
	for _, p := range c.perms {
		if keep(p) {
			out = append(out, p)
		}
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b Permission) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.perms)
}

// Replace swaps the whole catalog for perms in one step.
func (c *Catalog) Replace(perms []Permission) {
	next := make(map[string]Permission, len(perms))
	for _, p := range perms {
		next[p.Name] = p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perms = next
}
