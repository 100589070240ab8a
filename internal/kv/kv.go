// Package kv defines the durable key-value store the picked selection is
// persisted in, plus the in-memory and namespacing implementations.
package kv

import (
	"context"
	"sync"
)

type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

type namespaced struct {
	prefix string
	inner  Store
}

// Namespace scopes every key of inner under ns, so that several sessions
// can share one backing store with the same fixed selection key.
func Namespace(inner Store, ns string) Store {
	return namespaced{prefix: ns + ":", inner: inner}
}

func (n namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n namespaced) Set(ctx context.Context, key string, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}
