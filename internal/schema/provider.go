/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"nlsql-agent/internal/logging"
)

// Provider holds the current schema descriptor for a database connection and
// refreshes it on demand. Readers always see a complete, immutable snapshot;
// a refresh swaps in a new descriptor atomically rather than mutating the
// old one in place.
type Provider struct {
	db          *sql.DB
	driver      string
	fingerprint string
	cache       *Cache

	mu      sync.RWMutex
	current *Descriptor
}

// NewProvider creates a provider over the given connection. The cache may be
// nil to disable persistent caching.
func NewProvider(db *sql.DB, driver, fingerprint string, cache *Cache) *Provider {
	return &Provider{
		db:          db,
		driver:      driver,
		fingerprint: fingerprint,
		cache:       cache,
	}
}

// Current returns the most recently loaded descriptor, or nil if Load has
// never succeeded.
func (p *Provider) Current() *Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Load populates the descriptor, preferring a valid cache entry. Use
// Refresh to bypass the cache.
func (p *Provider) Load(ctx context.Context) (*Descriptor, error) {
	if p.cache != nil {
		if d, ok := p.cache.Load(p.fingerprint); ok {
			p.mu.Lock()
			p.current = d
			p.mu.Unlock()
			return d, nil
		}
	}
	return p.Refresh(ctx)
}

// Refresh introspects the database and swaps in the new descriptor. The
// previous descriptor stays in place when introspection fails.
func (p *Provider) Refresh(ctx context.Context) (*Descriptor, error) {
	d, err := Introspect(ctx, p.db, p.driver)
	if err != nil {
		return nil, fmt.Errorf("schema refresh failed: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Save(p.fingerprint, d); err != nil {
			// The in-memory descriptor is still usable without the cache.
			logging.Warn("schema cache write failed", "fingerprint", p.fingerprint, "error", err.Error())
		}
	}

	p.mu.Lock()
	p.current = d
	p.mu.Unlock()
	return d, nil
}
