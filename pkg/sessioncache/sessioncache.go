// Package sessioncache persists authenticated session state between runs.
package sessioncache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
)

// Cache wraps sfcache for session cookie persistence.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a Cache with disk persistence at ~/.cache/linkmcp.
func New(ttl time.Duration) (*Cache, error) {
	return NewWithPath(ttl, DefaultPath())
}

// NewNull creates a Cache with no persistence (all gets miss, all sets discard).
func NewNull() *Cache {
	tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte]())
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return &Cache{TieredCache: tc, ttl: 0}
}

// NewWithPath creates a Cache with disk persistence at the specified path.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("linkmcp", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// DefaultPath returns the on-disk location for session state.
func DefaultPath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return filepath.Join(cacheDir, "linkmcp")
}

// Key builds a stable cache key from an identity string using SHA256.
func Key(identity string) string {
	hash := sha256.Sum256([]byte(identity))
	return "session:" + hex.EncodeToString(hash[:])
}

// Purge deletes all persisted session state under the given path. Used when
// a cached session has gone stale and must be re-established from scratch.
func Purge(cachePath string) error {
	if cachePath == "" {
		return nil
	}
	if err := os.RemoveAll(cachePath); err != nil {
		return fmt.Errorf("purge session cache: %w", err)
	}
	return nil
}
