package cache

import (
	"context"
	"encoding/json"
)

// Put JSON-marshals a typed value into the cache. Marshal failures are
// returned to the caller; storage failures are not.
func Put[T any](ctx context.Context, m *Manager, namespace, key string, v T, opts ...SetOption) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Set(ctx, namespace, key, data, opts...)
	return nil
}

// Fetch retrieves and JSON-unmarshals a typed value. A stored value that
// does not unmarshal into T is a miss.
func Fetch[T any](ctx context.Context, m *Manager, namespace, key string) (T, bool) {
	var out T
	data, ok := m.Get(ctx, namespace, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}
