package core

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// GenerationCache stores the last observed metadata.generation per
// entity uid. A missing key is the normal "never seen" signal; there
// is no TTL. Implementations must be safe under concurrent calls —
// per-uid serialization is a property of the caller (the sequential
// watch loop), not of the cache.
type GenerationCache interface {
	// TryGet returns the cached generation for uid, and whether an
	// entry exists.
	TryGet(ctx context.Context, uid string) (int64, bool, error)
	// Set records generation for uid, replacing any prior value.
	Set(ctx context.Context, uid string, generation int64) error
	// Remove evicts the entry for uid. Removing a missing key is a
	// no-op.
	Remove(ctx context.Context, uid string) error
}

// MemoryGenerationCache is the process-local L1 implementation backed
// by a plain map.
type MemoryGenerationCache struct {
	mu      sync.RWMutex
	entries map[string]int64
}

// NewMemoryGenerationCache returns an empty in-memory cache.
func NewMemoryGenerationCache() *MemoryGenerationCache {
	return &MemoryGenerationCache{
		entries: make(map[string]int64),
	}
}

var _ GenerationCache = (*MemoryGenerationCache)(nil)

func (c *MemoryGenerationCache) TryGet(_ context.Context, uid string) (int64, bool, error) {
	c.mu.RLock()
	gen, ok := c.entries[uid]
	c.mu.RUnlock()
	return gen, ok, nil
}

func (c *MemoryGenerationCache) Set(_ context.Context, uid string, generation int64) error {
	c.mu.Lock()
	c.entries[uid] = generation
	c.mu.Unlock()
	return nil
}

func (c *MemoryGenerationCache) Remove(_ context.Context, uid string) error {
	c.mu.Lock()
	delete(c.entries, uid)
	c.mu.Unlock()
	return nil
}

// KeyValueStore abstracts the external store backing the distributed
// cache layer. Values are opaque strings; keys already carry the
// configured prefix applied by LayeredGenerationCache.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// LayeredGenerationCache chains the in-memory L1 in front of an
// external KeyValueStore L2 with read-through/write-through
// semantics. Concurrent L2 reads for the same uid are deduplicated
// via singleflight so a burst of cold reads issues one store call.
type LayeredGenerationCache struct {
	local   *MemoryGenerationCache
	store   KeyValueStore
	prefix  string
	flights singleflight.Group
}

// NewLayeredGenerationCache returns a layered cache over store. All
// store keys are prefixed with prefix.
func NewLayeredGenerationCache(store KeyValueStore, prefix string) *LayeredGenerationCache {
	return &LayeredGenerationCache{
		local:  NewMemoryGenerationCache(),
		store:  store,
		prefix: prefix,
	}
}

var _ GenerationCache = (*LayeredGenerationCache)(nil)

func (c *LayeredGenerationCache) TryGet(ctx context.Context, uid string) (int64, bool, error) {
	if gen, ok, _ := c.local.TryGet(ctx, uid); ok {
		return gen, ok, nil
	}

	type hit struct {
		gen   int64
		found bool
	}

	v, err, _ := c.flights.Do(uid, func() (any, error) {
		raw, found, err := c.store.Get(ctx, c.key(uid))
		if err != nil {
			return nil, err
		}
		if !found {
			return hit{}, nil
		}

		gen, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt generation entry for %s: %w", uid, err)
		}

		_ = c.local.Set(ctx, uid, gen)
		return hit{gen: gen, found: true}, nil
	})
	if err != nil {
		return 0, false, err
	}

	h := v.(hit)
	return h.gen, h.found, nil
}

func (c *LayeredGenerationCache) Set(ctx context.Context, uid string, generation int64) error {
	if err := c.store.Set(ctx, c.key(uid), strconv.FormatInt(generation, 10)); err != nil {
		return err
	}
	return c.local.Set(ctx, uid, generation)
}

func (c *LayeredGenerationCache) Remove(ctx context.Context, uid string) error {
	if err := c.store.Delete(ctx, c.key(uid)); err != nil {
		return err
	}
	return c.local.Remove(ctx, uid)
}

func (c *LayeredGenerationCache) key(uid string) string {
	return c.prefix + uid
}
