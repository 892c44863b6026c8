// Package memstore implements an in-memory remote.Store. It's the store of
// choice for tests and for single-process deployments.
package memstore

import (
	"context"
	"sync"

	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// Store is an in-memory remote.Store. Updates are applied with structural
// sharing, so listeners of unchanged subtrees are compared cheaply.
type Store struct {
	hub *remote.Hub

	mu      sync.Mutex
	patches []map[string]interface{} // Log of applied patches, when Recording.
	record  bool
}

var _ remote.Store = (*Store)(nil)

// New returns a Store initialized with |doc|, which is normalized.
func New(doc interface{}) *Store {
	return &Store{hub: remote.NewHub(tree.Normalize(doc))}
}

// Read returns a Snapshot of the current subtree at |path|.
func (s *Store) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return remote.Snapshot{}, err
	} else if err = treepath.Validate(path); err != nil {
		return remote.Snapshot{}, err
	}
	return s.hub.Snapshot(path), nil
}

// Write replaces the subtree at |path|.
func (s *Store) Write(ctx context.Context, path string, value interface{}) error {
	return s.Patch(ctx, map[string]interface{}{path: value})
}

// Patch applies a sparse multi-path update.
func (s *Store) Patch(ctx context.Context, patch map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err = s.hub.Update(func(doc interface{}) (interface{}, error) {
		return remote.ApplyPatch(doc, patch)
	})
	if err == nil {
		s.mu.Lock()
		if s.record {
			s.patches = append(s.patches, patch)
		}
		s.mu.Unlock()
	}
	return err
}

// OnValue implements remote.Store.
func (s *Store) OnValue(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.Value, path, fn)
}

// OnChildAdded implements remote.Store.
func (s *Store) OnChildAdded(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.ChildAdded, path, fn)
}

// OnChildRemoved implements remote.Store.
func (s *Store) OnChildRemoved(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.ChildRemoved, path, fn)
}

// Doc returns the complete current document, which must not be modified.
func (s *Store) Doc() interface{} { return s.hub.Doc() }

// Listeners returns the number of attached subscriptions.
func (s *Store) Listeners() int { return s.hub.Len() }

// Record begins recording applied patches, discarding those previously
// recorded.
func (s *Store) Record() {
	s.mu.Lock()
	s.record, s.patches = true, nil
	s.mu.Unlock()
}

// Patches returns patches applied since Record was called.
func (s *Store) Patches() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.patches...)
}
