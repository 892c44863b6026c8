package tree

import (
	"fmt"
	"strings"

	"go.livesweep.dev/core/treepath"
)

// Op is a single structural change: set the node at Path to Value, or
// Delete it. Path is relative to the root of the compared values.
type Op struct {
	Path   []string
	Value  interface{}
	Delete bool
}

func (op Op) String() string {
	var p = treepath.Sep + strings.Join(op.Path, treepath.Sep)
	if op.Delete {
		return fmt.Sprintf("delete(%s)", p)
	}
	return fmt.Sprintf("set(%s, %v)", p, op.Value)
}

// Diff returns the minimal Ops which transform canonical value |prev| into
// |next|. Equal subtrees produce no Ops. A key present only in |prev| is
// deleted, a key present only in |next| is set with its complete subtree,
// and scalar changes (or changes between scalar and container) are set.
// Ops are ordered on path. Set Values do not alias |next|.
func Diff(prev, next interface{}) []Op {
	return diff(nil, prev, next, nil)
}

func diff(path []string, prev, next interface{}, out []Op) []Op {
	if Equal(prev, next) {
		return out
	}
	var pm, pok = prev.(Map)
	var nm, nok = next.(Map)

	if !pok || !nok {
		if next == nil {
			return append(out, Op{Path: copyPath(path), Delete: true})
		}
		return append(out, Op{Path: copyPath(path), Value: Clone(next)})
	}

	// Walk the outer join of sorted |prev| and |next| keys.
	var pk, nk = Keys(pm), Keys(nm)
	for len(pk) != 0 || len(nk) != 0 {
		switch {
		case len(nk) == 0 || (len(pk) != 0 && pk[0] < nk[0]):
			out = append(out, Op{Path: appendPath(path, pk[0]), Delete: true})
			pk = pk[1:]
		case len(pk) == 0 || nk[0] < pk[0]:
			out = append(out, Op{Path: appendPath(path, nk[0]), Value: Clone(nm[nk[0]])})
			nk = nk[1:]
		default:
			out = diff(appendPath(path, pk[0]), pm[pk[0]], nm[nk[0]], out)
			pk, nk = pk[1:], nk[1:]
		}
	}
	return out
}

// Apply applies |ops| to |root| in order, returning the updated root.
// |root| is modified in place.
func Apply(root interface{}, ops []Op) interface{} {
	for _, op := range ops {
		if op.Delete {
			root, _ = Delete(root, op.Path)
		} else {
			root = Set(root, op.Path, Clone(op.Value))
		}
	}
	return Prune(root)
}

// Overlay returns a copy of |root| having |ops| applied in order. Unlike
// Apply, |root| is not modified, and subtrees untouched by |ops| are shared
// with it.
func Overlay(root interface{}, ops []Op) interface{} {
	for _, op := range ops {
		if op.Delete {
			root = With(root, op.Path, nil)
		} else {
			root = With(root, op.Path, op.Value)
		}
	}
	return root
}

// ToPatch maps |ops| onto a sparse patch of absolute paths beneath |root|,
// where nil values denote deletion.
func ToPatch(root string, ops []Op) map[string]interface{} {
	var out = make(map[string]interface{}, len(ops))
	for _, op := range ops {
		var p = treepath.Join(append([]string{root}, op.Path...)...)
		if op.Delete {
			out[p] = nil
		} else {
			out[p] = op.Value
		}
	}
	return out
}

func appendPath(path []string, key string) []string {
	var out = make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}

func copyPath(path []string) []string {
	var out = make([]string, len(path))
	copy(out, path)
	return out
}
