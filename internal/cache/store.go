package cache

import "context"

// Store abstracts a cache storage backend. Implementations must be safe for
// concurrent use and safe to call with an unknown key: a miss is (nil, false)
// or false, never a panic or a surfaced error. Backend failures are logged
// inside the store and observed by the caller only as a miss.
type Store interface {
	// Get returns the stored entry for key, or (nil, false) on a miss.
	Get(ctx context.Context, key string) (*Entry, bool)
	// Set stores an entry under key, overwriting any previous record.
	Set(ctx context.Context, key string, e *Entry)
	// Delete removes key and reports whether a record was present.
	Delete(ctx context.Context, key string) bool
	// Clear removes every record in the store.
	Clear(ctx context.Context)
	// Keys enumerates all stored keys.
	Keys(ctx context.Context) []string
	// Len returns the number of stored records.
	Len(ctx context.Context) int
}
