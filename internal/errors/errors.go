package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a cache-internal failure. Every kind is recovered inside the
// manager or a store; callers only ever observe a miss.
type Kind int

const (
	// KindStorageUnavailable means the backend cannot be reached or created in
	// this runtime. The manager falls back to a volatile store.
	KindStorageUnavailable Kind = iota
	// KindQuotaExceeded means a durable write ran out of capacity. The store
	// evicts its oldest-by-access record and retries the write once.
	KindQuotaExceeded
	// KindCorruptedEntry means a stored record failed to decode. The record is
	// deleted so the corruption is not re-encountered.
	KindCorruptedEntry
	// KindStaleEntry means an entry outlived its TTL and was lazily removed.
	KindStaleEntry
	// KindInvalidConfig means a namespace registration was rejected.
	KindInvalidConfig
)

func (k Kind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindCorruptedEntry:
		return "corrupted_entry"
	case KindStaleEntry:
		return "stale_entry"
	case KindInvalidConfig:
		return "invalid_config"
	default:
		return "unknown"
	}
}

// CacheError is the domain error for cache-internal failures.
type CacheError struct {
	Kind       Kind
	Message    string
	underlying error
}

func (e *CacheError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *CacheError) Unwrap() error {
	return e.underlying
}

// New creates a CacheError with the given kind.
func New(kind Kind, message string) *CacheError {
	return &CacheError{Kind: kind, Message: message}
}

// Wrap wraps an error with a kind and context message.
func Wrap(err error, kind Kind, message string) *CacheError {
	return &CacheError{Kind: kind, Message: message, underlying: err}
}

// KindOf extracts the kind from an error chain. The second return is false
// when no CacheError is present.
func KindOf(err error) (Kind, bool) {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// Is reports whether the error chain contains a CacheError of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
