// Package kv is the per-client key-value store that stands in for the
// browser's localStorage. Every value is JSON-encoded inside an envelope
// carrying the key's schema version; a value written under a different
// version reads as absent, so a schema change never decodes stale data.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Backend stores raw values per client namespace.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Clear(ctx context.Context, namespace string) error
}

// Key is a typed, versioned key.
type Key[T any] struct {
	Name    string
	Version int
}

// NewKey declares a typed key.
func NewKey[T any](name string, version int) Key[T] {
	return Key[T]{Name: name, Version: version}
}

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// ErrEmptyNamespace is returned when a namespace has no client id.
var ErrEmptyNamespace = errors.New("kv: empty namespace")

// Namespace binds a Backend to one client id.
type Namespace struct {
	backend Backend
	id      string
}

// NewNamespace returns the namespace of one client.
func NewNamespace(backend Backend, clientID string) *Namespace {
	return &Namespace{backend: backend, id: clientID}
}

// ID returns the client id of the namespace.
func (n *Namespace) ID() string { return n.id }

// Get reads k. ok is false when the key is missing or stored under
// another version.
func Get[T any](ctx context.Context, n *Namespace, k Key[T]) (value T, ok bool, err error) {
	if n.id == "" {
		return value, false, ErrEmptyNamespace
	}
	raw, found, err := n.backend.Get(ctx, n.id, k.Name)
	if err != nil || !found {
		return value, false, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return value, false, fmt.Errorf("kv: decode envelope %q: %w", k.Name, err)
	}
	if env.Version != k.Version {
		return value, false, nil
	}
	if err := json.Unmarshal(env.Data, &value); err != nil {
		return value, false, fmt.Errorf("kv: decode %q: %w", k.Name, err)
	}
	return value, true, nil
}

// Set writes value under k.
func Set[T any](ctx context.Context, n *Namespace, k Key[T], value T) error {
	if n.id == "" {
		return ErrEmptyNamespace
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", k.Name, err)
	}
	raw, err := json.Marshal(envelope{Version: k.Version, Data: data})
	if err != nil {
		return fmt.Errorf("kv: encode envelope %q: %w", k.Name, err)
	}
	return n.backend.Set(ctx, n.id, k.Name, raw)
}

// Remove deletes k.
func Remove[T any](ctx context.Context, n *Namespace, k Key[T]) error {
	if n.id == "" {
		return ErrEmptyNamespace
	}
	return n.backend.Delete(ctx, n.id, k.Name)
}

// Keys lists the key names currently stored in the namespace.
func (n *Namespace) Keys(ctx context.Context) ([]string, error) {
	return n.backend.Keys(ctx, n.id)
}

// Clear removes every key of the namespace.
func (n *Namespace) Clear(ctx context.Context) error {
	if n.id == "" {
		return ErrEmptyNamespace
	}
	return n.backend.Clear(ctx, n.id)
}
