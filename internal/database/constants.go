package database

import "time"

// Descriptor index tuning. 128-dimensional face descriptors are few enough per library
// that a small graph keeps recall close to an exact scan.
const (
	HNSWMaxNeighbors = 16
	HNSWEfSearch     = 64

	// DuplicateSearchK is how many approximate neighbours are rescored exactly when
	// checking an enrollment for duplicates.
	DuplicateSearchK = 5
)

// DefaultDescriptorCacheSize applies when the configured cache size is not positive.
const DefaultDescriptorCacheSize = 1024

// DefaultDescriptorCacheTTL bounds how long an enrollment changed outside this process
// can keep being served from the cache.
const DefaultDescriptorCacheTTL = 30 * time.Second
