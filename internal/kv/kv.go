// Package kv is the shared key-value state used for dual-write records and
// migration leases. Entries carry an optional expiry.
package kv

import (
	"context"
	"time"
)

// Store is a key-value store with per-entry expiry. A ttl <= 0 means the
// entry never expires. Expired entries are invisible to every operation.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// PutIfAbsent writes only when key is missing or expired and reports
	// whether it wrote.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// DeleteIf removes key only while it still holds value.
	DeleteIf(ctx context.Context, key, value string) (bool, error)
	// Extend moves the expiry of key to now+ttl while it is live and still
	// holds value, and reports whether it did.
	Extend(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Sweep drops expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Clock returns the current time. Stores take one so tests can move time.
type Clock func() time.Time

func expiry(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixMilli()
}
