package detect

import (
	"context"
	"image"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/corona10/goimagehash"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey includes the frame bounds: a perceptual hash ignores size, and
// items are in frame pixel coordinates.
type cacheKey struct {
	hash   uint64
	bounds image.Rectangle
}

// Cache wraps a Detector with an LRU of results keyed by perceptual hash,
// so frames that look the same as a recent one skip detection.
type Cache struct {
	Detector
	lru    *lru.Cache[cacheKey, []Item]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Cached wraps d with an LRU holding up to size results.
func Cached(d Detector, size int) (*Cache, error) {
	c, err := lru.New[cacheKey, []Item](size)
	if err != nil {
		return nil, err
	}
	return &Cache{Detector: d, lru: c}, nil
}

// Detect returns cached items for a perceptually identical image, or runs the
// wrapped detector and caches its result. Failures are never cached.
func (c *Cache) Detect(ctx context.Context, img image.Image) ([]Item, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		slog.Debug("perception hash failed, bypassing cache", "error", err)
		return c.Detector.Detect(ctx, img)
	}
	key := cacheKey{hash: hash.GetHash(), bounds: img.Bounds()}

	if items, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return slices.Clone(items), nil
	}
	c.misses.Add(1)

	items, err := c.Detector.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, slices.Clone(items))
	return items, nil
}

// Hits returns the number of cache hits.
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Misses returns the number of cache misses.
func (c *Cache) Misses() uint64 { return c.misses.Load() }

// Close purges the cache and closes the wrapped detector.
func (c *Cache) Close() error {
	c.lru.Purge()
	return c.Detector.Close()
}
