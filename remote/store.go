// Package remote defines the capability set of a hierarchical, real-time
// document store, and shared machinery for implementing it.
//
// A Store exposes point reads and writes of subtrees, sparse multi-path
// patches, and three kinds of fine-grained subscription:
//   - OnValue fires with the current value at attach, and again on each
//     change of the value at a path (including its removal).
//   - OnChildAdded fires for each existing child at attach, and again for each
//     child which is subsequently added beneath a path.
//   - OnChildRemoved fires for each child removed from beneath a path,
//     carrying the removed child's last value.
//
// Each subscription returns a CancelFunc. Once a CancelFunc returns, its
// callback is not invoked again. Callbacks of a Store are invoked in the order
// that the Store applied the changes that produced them, and may be invoked
// synchronously from within the subscribing call.
package remote

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// CancelFunc cancels a subscription. It's safe to call more than once.
type CancelFunc func()

// Store is a hierarchical, real-time document store.
type Store interface {
	// Read returns a Snapshot of the subtree at |path|, which doesn't Exist
	// if there is no such subtree.
	Read(ctx context.Context, path string) (Snapshot, error)
	// Write replaces the subtree at |path| with |value|. A nil |value|
	// deletes the subtree.
	Write(ctx context.Context, path string, value interface{}) error
	// Patch applies a sparse multi-path update, where each key is a path and
	// a nil value deletes. Paths of a Patch may not overlap.
	Patch(ctx context.Context, patch map[string]interface{}) error

	OnValue(path string, fn func(Snapshot)) CancelFunc
	OnChildAdded(path string, fn func(Snapshot)) CancelFunc
	OnChildRemoved(path string, fn func(Snapshot)) CancelFunc
}

// ErrOverlappingPatch is returned if a Patch path is an ancestor of
// (or is equal to) another path of the same Patch.
var ErrOverlappingPatch = errors.New("patch paths overlap")

// CheckPatch validates the paths and values of |patch|, returning its canonical form
// and the canonical paths in sorted order.
func CheckPatch(patch map[string]interface{}) (map[string]interface{}, []string, error) {
	var out = make(map[string]interface{}, len(patch))
	var paths = make([]string, 0, len(patch))

	for p, v := range patch {
		if err := treepath.Validate(p); err != nil {
			return nil, nil, err
		}
		var c = treepath.Normalize(p)
		if _, ok := out[c]; ok {
			return nil, nil, errors.WithMessagef(ErrOverlappingPatch, "duplicate path %q", c)
		}
		var cv, err = tree.Canonical(v)
		if err == nil {
			err = tree.ValidateKeys(cv)
		}
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "patch of %q", c)
		}
		out[c] = cv
		paths = append(paths, c)
	}
	sort.Strings(paths)

	for _, p := range paths {
		for a := p; a != treepath.Root; {
			a = treepath.Parent(a)
			if _, ok := out[a]; ok {
				return nil, nil, errors.WithMessagef(ErrOverlappingPatch, "%q and %q", a, p)
			}
		}
	}
	return out, paths, nil
}

// ApplyPatch returns the document which results from applying |patch| to
// |doc|. |doc| is not modified, and unmodified subtrees of the result are
// shared with |doc|.
func ApplyPatch(doc interface{}, patch map[string]interface{}) (interface{}, error) {
	var canonical, paths, err = CheckPatch(patch)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		doc = tree.With(doc, treepath.Split(p), canonical[p])
	}
	return doc, nil
}
