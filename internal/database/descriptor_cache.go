package database

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/smart-library/internal/faceauth"
)

// ErrUnknownUser is returned by CachedDescriptorReader for user IDs with no row.
var ErrUnknownUser = errors.New("unknown user")

// CachedDescriptorReader serves decoded stored descriptors from an expiring LRU. Concurrent
// misses for the same user share a single database read.
//
// Entries expire after the TTL so enrollments changed by another process (the CLI, a
// second server) are picked up. A nil *faceauth.StoredDescriptor (not enrolled) is cached
// like any other value.
type CachedDescriptorReader struct {
	lru   *expirable.LRU[int64, *faceauth.StoredDescriptor]
	group singleflight.Group

	// generations counts invalidations per user. A load only caches its result when no
	// invalidation happened while it was reading.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewCachedDescriptorReader creates a cache holding up to size decoded records for ttl.
// Non-positive values fall back to the defaults.
func NewCachedDescriptorReader(size int, ttl time.Duration) (*CachedDescriptorReader, error) {
	if size <= 0 {
		size = DefaultDescriptorCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDescriptorCacheTTL
	}
	return &CachedDescriptorReader{
		lru:         expirable.NewLRU[int64, *faceauth.StoredDescriptor](size, nil, ttl),
		generations: make(map[int64]uint64),
	}, nil
}

func (c *CachedDescriptorReader) generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// StoredDescriptor returns the decoded enrollment of userID, loading it through reader on miss.
func (c *CachedDescriptorReader) StoredDescriptor(ctx context.Context, reader UserReader, userID int64) (*faceauth.StoredDescriptor, error) {
	if v, ok := c.lru.Get(userID); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		gen := c.generation(userID)
		raw, found, err := reader.GetFacialData(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrUnknownUser
		}
		stored := faceauth.ParseStoredRecord(raw)

		c.mu.Lock()
		if c.generations[userID] == gen {
			c.lru.Add(userID, stored)
		}
		c.mu.Unlock()
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*faceauth.StoredDescriptor), nil
}

// Invalidate drops the cached record of userID. Call after re-enrollment. A load already
// in flight still answers its own callers but does not repopulate the cache.
func (c *CachedDescriptorReader) Invalidate(userID int64) {
	c.mu.Lock()
	c.generations[userID]++
	c.lru.Remove(userID)
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(userID, 10))
}

// Len returns the number of cached records.
func (c *CachedDescriptorReader) Len() int {
	return c.lru.Len()
}
