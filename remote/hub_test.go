package remote

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.livesweep.dev/core/tree"
)

// recorder collects notifications as "kind path value" strings.
type recorder []string

func (r *recorder) fn(kind Kind) func(Snapshot) {
	return func(s Snapshot) {
		*r = append(*r, fmt.Sprintf("%s %s %v", kind, s.Path(), s.Val()))
	}
}

func TestHubInitialNotifications(t *testing.T) {
	var h = NewHub(tree.Map{"a": tree.Map{"b": 1.0, "c": "x"}})
	var rec recorder

	h.Subscribe(Value, "/a/b", rec.fn(Value))
	h.Subscribe(Value, "/missing", rec.fn(Value))
	h.Subscribe(ChildAdded, "/a", rec.fn(ChildAdded))
	h.Subscribe(ChildRemoved, "/a", rec.fn(ChildRemoved))

	assert.Equal(t, recorder{
		"value /a/b 1",
		"value /missing <nil>",
		"child_added /a/b 1",
		"child_added /a/c x",
	}, rec)
	assert.Equal(t, 4, h.Len())
}

func TestHubChangeNotifications(t *testing.T) {
	var h = NewHub(tree.Map{"a": tree.Map{"b": 1.0, "c": tree.Map{"x": 1.0}}})
	var rec recorder

	h.Subscribe(Value, "/a/b", rec.fn(Value))
	h.Subscribe(Value, "/a/c/x", rec.fn(Value))
	h.Subscribe(ChildAdded, "/a", rec.fn(ChildAdded))
	h.Subscribe(ChildRemoved, "/a", rec.fn(ChildRemoved))
	rec = nil

	// Unrelated change: no notifications.
	h.Swap(tree.With(h.Doc(), []string{"z"}, 1.0))
	assert.Empty(t, rec)

	// Leaf change, and child addition.
	var doc = tree.With(h.Doc(), []string{"a", "b"}, 2.0)
	doc = tree.With(doc, []string{"a", "d"}, 4.0)
	h.Swap(doc)
	assert.Equal(t, recorder{"value /a/b 2", "child_added /a/d 4"}, rec)
	rec = nil

	// Subtree removal notifies the removal (with the prior value), and
	// value listeners of removed descendants.
	h.Swap(tree.With(h.Doc(), []string{"a", "c"}, nil))
	assert.Equal(t, recorder{
		"value /a/c/x <nil>",
		"child_removed /a/c map[x:1]",
	}, rec)
}

func TestHubCancel(t *testing.T) {
	var h = NewHub(tree.Map{"a": 1.0})
	var rec recorder

	var cancel = h.Subscribe(Value, "/a", rec.fn(Value))
	cancel()
	cancel() // Idempotent.

	h.Swap(tree.Map{"a": 2.0})
	assert.Equal(t, recorder{"value /a 1"}, rec)
	assert.Equal(t, 0, h.Len())
}

func TestHubReentrantCallbacks(t *testing.T) {
	var h = NewHub(tree.Map{"a": tree.Map{"b": 1.0}})
	var rec recorder

	// A child-added callback which subscribes to the value of each child,
	// much as a mirroring client does.
	h.Subscribe(ChildAdded, "/a", func(s Snapshot) {
		rec = append(rec, "added "+s.Path())
		h.Subscribe(Value, s.Path(), rec.fn(Value))
	})
	assert.Equal(t, recorder{"added /a/b", "value /a/b 1"}, rec)
	rec = nil

	require.NoError(t, h.Update(func(doc interface{}) (interface{}, error) {
		return tree.With(doc, []string{"a", "c"}, 3.0), nil
	}))
	assert.Equal(t, recorder{"added /a/c", "value /a/c 3"}, rec)
}

func TestHubUpdateError(t *testing.T) {
	var h = NewHub(tree.Map{"a": 1.0})
	var err = h.Update(func(interface{}) (interface{}, error) { return nil, fmt.Errorf("whoops") })

	assert.EqualError(t, err, "whoops")
	assert.Equal(t, tree.Map{"a": 1.0}, h.Doc())
}

func TestSnapshotAccessors(t *testing.T) {
	var s = NewSnapshot("games//ABC/", tree.Map{"b": 1.0, "a": tree.Map{"x": true}})

	assert.True(t, s.Exists())
	assert.True(t, s.HasChildren())
	assert.Equal(t, "/games/ABC", s.Path())
	assert.Equal(t, "ABC", s.Key())
	assert.Equal(t, []string{"games", "ABC"}, s.Segments())

	var children = s.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "/games/ABC/a", children[0].Path())
	assert.Equal(t, tree.Map{"x": true}, children[0].Val())
	assert.False(t, children[1].HasChildren())
	assert.False(t, s.Child("nope").Exists())

	// Val is a deep copy.
	s.Val().(tree.Map)["b"] = 2.0
	assert.Equal(t, 1.0, s.Child("b").Val())

	var absent = NewSnapshot("/", nil)
	assert.False(t, absent.Exists())
	assert.False(t, absent.HasChildren())
	assert.Equal(t, "", absent.Key())
	assert.Empty(t, absent.Children())
}

func TestCheckAndApplyPatch(t *testing.T) {
	var doc = tree.Map{"a": tree.Map{"b": 1.0, "c": 2.0}, "z": true}

	var next, err = ApplyPatch(doc, map[string]interface{}{
		"a/c":  3,
		"/a/d": map[string]interface{}{"e": "x"},
		"z":    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, tree.Map{"a": tree.Map{"b": 1.0, "c": 3.0, "d": tree.Map{"e": "x"}}}, next)
	assert.Equal(t, tree.Map{"a": tree.Map{"b": 1.0, "c": 2.0}, "z": true}, doc, "doc not modified")

	_, err = ApplyPatch(doc, map[string]interface{}{"/a": 1, "/a/b": 2})
	assert.ErrorIs(t, err, ErrOverlappingPatch)
	_, err = ApplyPatch(doc, map[string]interface{}{"/": 1, "/x/y": 2})
	assert.ErrorIs(t, err, ErrOverlappingPatch)
	_, err = ApplyPatch(doc, map[string]interface{}{"/a": 1, "a/": 2})
	assert.ErrorIs(t, err, ErrOverlappingPatch)
	_, err = ApplyPatch(doc, map[string]interface{}{"/a.b": 1})
	assert.EqualError(t, err, `invalid path "/a.b": key "a.b" contains forbidden character '.'`)

	// Values must be canonical, and their nested keys valid.
	_, err = ApplyPatch(doc, map[string]interface{}{"/a": tree.Map{"b.c": 1}})
	assert.EqualError(t, err,
		`patch of "/a": invalid key at "/b.c": key "b.c" contains forbidden character '.'`)
	_, err = ApplyPatch(doc, map[string]interface{}{"/a": map[int]int{1: 1}})
	assert.EqualError(t, err, `patch of "/a": tree: unsupported map key type int`)

	// Siblings sharing a name prefix don't overlap.
	_, err = ApplyPatch(doc, map[string]interface{}{"/a": 1, "/a-b/c": 2, "/ab": 3})
	assert.NoError(t, err)
}
