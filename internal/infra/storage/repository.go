package storage

import "context"

// KVStore persists opaque string values across invocations.
// Writes are last-writer-wins; no transaction spans two keys.
type KVStore interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key
	Set(ctx context.Context, key, value string) error
}

// MultiGetter is implemented by stores that can fetch many keys in one round trip.
type MultiGetter interface {
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
}
