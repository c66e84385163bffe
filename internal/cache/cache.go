// Package cache provides caching for encoded tiles and tileset metadata.
package cache

import (
	"context"
	"crypto/sha256"
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
	InfoCacheSize   int
}

// Manager manages tile and tileset-info caches.
type Manager struct {
	tileCache *bigcache.BigCache
	infoCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TileTTL <= 0 {
		cfg.TileTTL = 10 * time.Minute
	}
	if cfg.InfoCacheSize <= 0 {
		cfg.InfoCacheSize = 128
	}

	// Configure tile cache
	tileCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       64 * 1024,
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	infoCache, err := lru.New[string, []byte](cfg.InfoCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create info cache: %w", err)
	}

	return &Manager{
		tileCache: tileCache,
		infoCache: infoCache,
	}, nil
}

// GetTile retrieves an encoded tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores an encoded tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetInfo retrieves an encoded tileset info document from cache.
func (m *Manager) GetInfo(key string) ([]byte, bool) {
	return m.infoCache.Get(key)
}

// SetInfo stores an encoded tileset info document.
func (m *Manager) SetInfo(key string, data []byte) {
	m.infoCache.Add(key, data)
}

// TileKey generates a cache key for a JSON tile.
func TileKey(dataset, tileID string) string {
	return fmt.Sprintf("tile:%s.%s", dataset, tileID)
}

// PreviewKey generates a cache key for a rendered preview. The colormap
// name is client supplied and hashed into the key.
func PreviewKey(dataset string, z, x int, colormap string) string {
	base := fmt.Sprintf("png:%s/%d/%d", dataset, z, x)
	if colormap == "" {
		return base
	}
	h := sha256.New()
	h.Write([]byte(base))
	h.Write([]byte(colormap))
	return base + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// InfoKey generates a cache key for a tileset info document.
func InfoKey(dataset string) string {
	return "info:" + dataset
}

// DeleteInfo removes one tileset info document.
func (m *Manager) DeleteInfo(key string) {
	m.infoCache.Remove(key)
}

// Reset drops every cached entry.
func (m *Manager) Reset() error {
	m.infoCache.Purge()
	return m.tileCache.Reset()
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len":  m.tileCache.Len(),
		"tile_cache_cap":  m.tileCache.Capacity(),
		"info_cache_len":  m.infoCache.Len(),
		"tile_cache_hits": m.tileCache.Stats().Hits,
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
