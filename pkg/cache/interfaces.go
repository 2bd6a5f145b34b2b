package cache

import "time"

// Store defines versioned, expiring key-value operations.
// Both DiskCache and Bucket satisfy it.
type Store interface {
	Lookup(key, version string, dst any) HitType
	Put(key, version string, value any, ttl time.Duration) error
	Remove(key string)
}

var (
	_ Store = (*DiskCache)(nil)
	_ Store = (*Bucket)(nil)
)
