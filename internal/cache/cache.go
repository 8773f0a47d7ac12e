// Package cache provides caching for tiles and stats results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB int
	TileTTL         time.Duration
	StatsCacheSize  int
}

// Manager manages tile and stats caches. Keys carry the dataset version, so
// entries from an older snapshot are never served after a reload.
type Manager struct {
	tileCache  *bigcache.BigCache
	statsCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TileTTL <= 0 {
		cfg.TileTTL = 10 * time.Minute
	}
	if cfg.TileCacheSizeMB <= 0 {
		cfg.TileCacheSizeMB = 64
	}
	if cfg.StatsCacheSize <= 0 {
		cfg.StatsCacheSize = 256
	}

	tileCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       100 * 1024, // 100KB per tile
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	statsCache, err := lru.New[string, []byte](cfg.StatsCacheSize)
	if err != nil {
		tileCache.Close()
		return nil, fmt.Errorf("failed to create stats cache: %w", err)
	}

	return &Manager{
		tileCache:  tileCache,
		statsCache: statsCache,
	}, nil
}

// GetTile retrieves a tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetStats retrieves an encoded stats result from cache.
func (m *Manager) GetStats(key string) ([]byte, bool) {
	return m.statsCache.Get(key)
}

// SetStats stores an encoded stats result in cache.
func (m *Manager) SetStats(key string, data []byte) {
	m.statsCache.Add(key, data)
}

// Reset drops every entry.
func (m *Manager) Reset() error {
	m.statsCache.Purge()
	return m.tileCache.Reset()
}

// TileKey generates a cache key for a tile of one dataset version.
func TileKey(version, kind string, z, x, y int, colormap string) string {
	return fmt.Sprintf("%s:%s:%d/%d/%d:%s", version, kind, z, x, y, colormap)
}

// StatsKey fingerprints a stats request: dataset version, polygon WKB and
// the output options.
func StatsKey(version string, polygonWKB []byte, returnValues, returnHistogram bool, nbins int) string {
	h := sha256.New()
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(polygonWKB)

	var opts [10]byte
	if returnValues {
		opts[0] = 1
	}
	if returnHistogram {
		opts[1] = 1
	}
	binary.LittleEndian.PutUint64(opts[2:], uint64(int64(nbins)))
	h.Write(opts[:])
	return "stats:" + hex.EncodeToString(h.Sum(nil))
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	s := m.tileCache.Stats()
	return map[string]interface{}{
		"tile_cache_len":    m.tileCache.Len(),
		"tile_cache_cap":    m.tileCache.Capacity(),
		"tile_cache_hits":   s.Hits,
		"tile_cache_misses": s.Misses,
		"stats_cache_len":   m.statsCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
