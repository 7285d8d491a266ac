package reportsync

import (
	"context"
	"time"
)

// Reader is the read side of a Store, used by selectors
type Reader interface {
	// Get returns a copy of the entry for key, or ErrNotFound
	Get(ctx context.Context, key Key) (*Entry, error)
}

// Store holds one Entry per Key. Entries are replaced whole; implementations
// copy on Get and Put so callers never share a mutable entry.
type Store interface {
	Reader

	// Put replaces the entry for key
	Put(ctx context.Context, key Key, entry *Entry) error

	// Reset drops every entry, e.g. on logout
	Reset(ctx context.Context) error
}

// Claimer is implemented by stores shared between processes. A claim keeps
// other processes from fetching the same key until it is released or its TTL
// expires.
type Claimer interface {
	// Claim returns ErrRequestInProgress when another holder owns the key.
	// The returned release function must be called once the fetch settles.
	Claim(ctx context.Context, key Key, ttl time.Duration) (release func(), err error)
}
