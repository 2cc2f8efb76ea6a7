// Package catalog holds the in-memory exploit_id -> Exploit mapping,
// mirrored to the scoring backend on every mutation. The caller's main
// lock, not one of its own, guards concurrent access (see the orchestrator
// package).
package catalog

import (
	"context"
	"log/slog"

	"github.com/starbugs-ctf/fireball/internal/exploit"
)

// ExploitRegistry is the subset of the Siren client the catalog mirrors
// mutations to.
type ExploitRegistry interface {
	UpsertExploit(ctx context.Context, problemID int, name, imageID string, enabled bool) error
	DeleteExploit(ctx context.Context, problemID int, name string) error
}

// Catalog maps exploit_id to its current Exploit entry.
type Catalog struct {
	entries  map[string]*exploit.Exploit
	registry ExploitRegistry
}

// New returns an empty Catalog that mirrors mutations to registry.
func New(registry ExploitRegistry) *Catalog {
	return &Catalog{
		entries:  make(map[string]*exploit.Exploit),
		registry: registry,
	}
}

// Get returns the exploit for id, if present.
func (c *Catalog) Get(id string) (*exploit.Exploit, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// All returns every entry in the catalog. The returned slice is a snapshot;
// mutating it does not affect the catalog.
func (c *Catalog) All() []*exploit.Exploit {
	out := make([]*exploit.Exploit, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Put inserts or wholesale-replaces an entry, then mirrors the change to
// the scoring backend. problemID identifies the exploit's challenge there.
// Backend failures are logged and do not roll back the in-memory entry;
// the next scan reconverges.
func (c *Catalog) Put(ctx context.Context, problemID int, e *exploit.Exploit) {
	c.entries[e.ExploitID] = e
	if err := c.registry.UpsertExploit(ctx, problemID, e.Name, e.ImageID, e.Enabled); err != nil {
		slog.Warn("catalog: failed to mirror exploit upsert to scoring backend", "exploit_id", e.ExploitID, "err", err)
	}
}

// Remove deletes an entry and mirrors the removal to the scoring backend.
// No-op if id is not present.
func (c *Catalog) Remove(ctx context.Context, problemID int, id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	if err := c.registry.DeleteExploit(ctx, problemID, e.Name); err != nil {
		slog.Warn("catalog: failed to mirror exploit removal to scoring backend", "exploit_id", id, "err", err)
	}
}

// Len returns the number of entries in the catalog.
func (c *Catalog) Len() int {
	return len(c.entries)
}
