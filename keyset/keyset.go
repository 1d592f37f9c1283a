// Package keyset tracks which cache fingerprints have been issued so they can
// be forgotten later. Providers offer no pattern delete, so every populated
// list or point-lookup key is registered here and the write path drains the
// set to invalidate them.
package keyset

import "context"

// KeySet is a registry of issued cache keys.
type KeySet interface {
	// Add registers key. Adding a key twice is a no-op.
	Add(ctx context.Context, key string) error
	// Drain atomically returns every registered key and empties the set.
	Drain(ctx context.Context) ([]string, error)
}
