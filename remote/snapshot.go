package remote

import (
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// Snapshot is an immutable view of the subtree at a path of a Store.
type Snapshot struct {
	path  string
	value interface{}
}

// NewSnapshot returns a Snapshot of canonical |value| at |path|. |value|
// must not be modified after the Snapshot is built.
func NewSnapshot(path string, value interface{}) Snapshot {
	return Snapshot{path: treepath.Normalize(path), value: value}
}

// Exists is true if the Snapshot holds a value.
func (s Snapshot) Exists() bool { return s.value != nil }

// HasChildren is true if the Snapshot is of a container node.
func (s Snapshot) HasChildren() bool { return tree.IsContainer(s.value) }

// Val returns a deep copy of the Snapshot's canonical value, which is nil if
// the Snapshot doesn't exist.
func (s Snapshot) Val() interface{} { return tree.Clone(s.value) }

// Path is the canonical, absolute path of the Snapshot.
func (s Snapshot) Path() string { return s.path }

// Key is the last segment of the Snapshot's path, or "" at the root.
func (s Snapshot) Key() string { return treepath.Base(s.path) }

// Segments of the Snapshot's absolute path.
func (s Snapshot) Segments() []string { return treepath.Split(s.path) }

// Child returns the Snapshot of |key| beneath this one. It doesn't
// Exist if there is no such child.
func (s Snapshot) Child(key string) Snapshot {
	var v, _ = tree.Get(s.value, []string{key})
	return Snapshot{path: treepath.Child(s.path, key), value: v}
}

// Children returns the Snapshots of each child, ordered on key.
func (s Snapshot) Children() []Snapshot {
	var keys = tree.Keys(s.value)
	var out = make([]Snapshot, len(keys))

	for i, k := range keys {
		out[i] = s.Child(k)
	}
	return out
}
