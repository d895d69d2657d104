package timeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache holds the active log. Concurrent loads of the same path share one
// read, and a failed load leaves the previous log in place.
type Cache struct {
	maxBytes int64
	group    singleflight.Group

	mu     sync.RWMutex
	active *Log
	path   string
}

// NewCache creates an empty cache enforcing the given artifact size limit.
func NewCache(maxBytes int64) *Cache {
	return &Cache{maxBytes: maxBytes}
}

// Load reads the artifact at path and, on success, makes it the active log.
func (c *Cache) Load(ctx context.Context, path string) (*Log, error) {
	v, err, shared := c.group.Do(path, func() (any, error) {
		return LoadFile(ctx, path, c.maxBytes)
	})
	if err != nil {
		slog.Warn("timeline load rejected", "path", path, "error", err)
		return nil, err
	}
	log := v.(*Log)
	c.Set(path, log)
	slog.Debug("timeline loaded", "path", path, "events", log.Len(), "shared", shared)
	return log, nil
}

// Set replaces the active log.
func (c *Cache) Set(path string, log *Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active, c.path = log, path
}

// Current returns the active log and the path it was loaded from.
func (c *Cache) Current() (*Log, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.path
}
