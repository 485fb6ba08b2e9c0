package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/awqp/ubidots-export/internal/directory"
)

// ErrNilFactory is returned when a Cache is created without a source factory.
var ErrNilFactory = errors.New("pipeline: source factory is required")

// SourceFactory builds an upstream source authenticated with token.
type SourceFactory func(token string) (directory.Source, error)

// Cache memoises pipeline results by (device type, token).
type Cache struct {
	pipeline *Pipeline
	factory  SourceFactory

	mu      sync.RWMutex
	entries map[string]*Result

	group singleflight.Group
}

// NewCache creates an empty Cache.
func NewCache(p *Pipeline, factory SourceFactory) (*Cache, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	return &Cache{
		pipeline: p,
		factory:  factory,
		entries:  make(map[string]*Result),
	}, nil
}

// Get returns the cached result for the pair, running the pipeline on a miss.
func (c *Cache) Get(ctx context.Context, deviceType, token string) (*Result, error) {
	key := cacheKey(deviceType, token)
	if res, ok := c.lookup(key); ok {
		return res, nil
	}

	// The shared run outlives any one caller; each caller stops waiting when
	// its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A concurrent caller may have filled the entry since the lookup.
		if res, ok := c.lookup(key); ok {
			return res, nil
		}

		src, err := c.factory(token)
		if err != nil {
			return nil, err
		}
		res, err := c.pipeline.Run(shared, src, deviceType)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = res
		c.mu.Unlock()
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

// Invalidate drops the entry for the pair, if any.
func (c *Cache) Invalidate(deviceType, token string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(deviceType, token))
	c.mu.Unlock()
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[key]
	return res, ok
}

// cacheKey digests the pair so tokens are not held as map keys.
func cacheKey(deviceType, token string) string {
	h := sha256.New()
	h.Write([]byte(deviceType))
	h.Write([]byte{0})
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
