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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fingerprint derives a stable cache key from the connection settings.
// Identical settings always map to the same key, so a cache entry is only
// ever reused for the database it was built from.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// Cache persists schema descriptors as JSON files, one per database
// fingerprint, with an age-based validity window.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache rooted at dir. Entries older than maxAge are
// treated as missing. A maxAge of zero disables expiry.
func NewCache(dir string, maxAge time.Duration) *Cache {
	return &Cache{dir: dir, maxAge: maxAge}
}

type cacheEntry struct {
	Timestamp  time.Time   `json:"timestamp"`
	Descriptor *Descriptor `json:"descriptor"`
}

func (c *Cache) path(fingerprint string) string {
	return filepath.Join(c.dir, "schema_cache_"+fingerprint+".json")
}

// Load returns the cached descriptor for the fingerprint, or false when the
// entry is missing, unreadable, or expired. A corrupt entry is simply
// ignored so the caller falls back to live introspection.
func (c *Cache) Load(fingerprint string) (*Descriptor, bool) {
	data, err := os.ReadFile(c.path(fingerprint))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Descriptor == nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(entry.Timestamp) > c.maxAge {
		return nil, false
	}
	return entry.Descriptor, true
}

// Save writes the descriptor to the cache, creating the cache directory if
// needed.
func (c *Cache) Save(fingerprint string, d *Descriptor) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(cacheEntry{Timestamp: time.Now(), Descriptor: d}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(fingerprint), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// Clear removes the cache entry for the fingerprint, if present.
func (c *Cache) Clear(fingerprint string) error {
	err := os.Remove(c.path(fingerprint))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
