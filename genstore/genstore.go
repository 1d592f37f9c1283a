// Package genstore keeps the per-key generation counters that guard cache
// population. Forgetting a cache key bumps its generation; a value computed
// under an older generation is never written back.
package genstore

import (
	"context"
)

// GenStore abstracts where generations live. Use Local for a single process
// and Redis when several service instances share one cache.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
