// Package cache persists the set of input fingerprints seen on previously
// successful task executions.
//
// The cache is a pure content-key set: fingerprints are not associated with
// task IDs, and entries accumulate until externally pruned. It is read once
// at startup and written at most once at run end; read and write failures
// are never fatal.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileName is the cache file created inside the cache directory.
const FileName = "taskforge_cache.json"

// Cache is an in-memory fingerprint set backed by a single JSON file.
//
// It is not safe for concurrent use; the scheduler is its only writer and
// mutates it strictly from the result-collection side.
type Cache struct {
	entries map[string]struct{}
	dirty   bool
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]struct{})}
}

// Load reads the cache file at path. A missing or unparsable file yields an
// empty cache, never an error.
func Load(path string, logger *zap.Logger) *Cache {
	c := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		logger.Debug("ignoring unparsable cache file", zap.String("path", path), zap.Error(err))
		c.entries = make(map[string]struct{})
	}
	return c
}

// Contains reports whether the fingerprint has been seen before.
func (c *Cache) Contains(fingerprint string) bool {
	_, ok := c.entries[fingerprint]
	return ok
}

// Insert adds a fingerprint, marking the cache dirty if it was new.
func (c *Cache) Insert(fingerprint string) {
	if _, ok := c.entries[fingerprint]; ok {
		return
	}
	c.entries[fingerprint] = struct{}{}
	c.dirty = true
}

// Dirty reports whether any fingerprint was inserted since Load.
func (c *Cache) Dirty() bool { return c.dirty }

// Len returns the number of stored fingerprints.
func (c *Cache) Len() int { return len(c.entries) }

// Save writes the cache to path, creating directories on demand. Failures
// are warnings: a lost cache only costs re-execution on the next run.
func (c *Cache) Save(path string, logger *zap.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("failed to create cache directory", zap.String("path", path), zap.Error(err))
		return
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		logger.Warn("failed to encode cache", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("failed to write cache file", zap.String("path", path), zap.Error(err))
	}
}

// Path resolves the on-disk cache location. cacheDir is taken relative to
// the configuration file's directory unless it is absolute; empty means the
// configuration file's directory itself.
func Path(cacheDir, configPath string) string {
	dir := cacheDir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(configPath), dir)
	}
	return filepath.Join(dir, FileName)
}
