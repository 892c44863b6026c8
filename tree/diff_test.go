package tree

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffOfEqualTreesIsEmpty(t *testing.T) {
	var fixture = Map{
		"board":   Map{"0": Map{"0": Map{"revealed": false, "value": 1.0}}},
		"players": Map{"p1": Map{"x": 0.5}},
	}
	assert.Empty(t, Diff(fixture, Clone(fixture)))
	assert.Empty(t, Diff(nil, nil))
	assert.Empty(t, Diff("x", "x"))
}

func TestDiffOfSingleLeafChange(t *testing.T) {
	var prev = Map{"a": Map{"b": 1.0, "c": 2.0}, "z": "q"}
	var next = Clone(prev).(Map)
	next["a"].(Map)["c"] = 5.0

	assert.Equal(t, []Op{{Path: []string{"a", "c"}, Value: 5.0}}, Diff(prev, next))
}

func TestDiffScenario(t *testing.T) {
	var prev = Map{"a": Map{"b": 1.0, "c": 2.0}}
	var next = Map{"a": Map{"b": 1.0, "c": 3.0, "d": 4.0}}

	var ops = Diff(prev, next)
	assert.Equal(t, []Op{
		{Path: []string{"a", "c"}, Value: 3.0},
		{Path: []string{"a", "d"}, Value: 4.0},
	}, ops)
	assert.Equal(t, "[set(/a/c, 3) set(/a/d, 4)]", fmt.Sprint(ops))
}

func TestDiffAdditionsRemovalsAndShapeChanges(t *testing.T) {
	var prev = Map{
		"gone":   Map{"x": 1.0, "y": 2.0},
		"shape":  Map{"x": 1.0},
		"scalar": "s",
		"keep":   true,
	}
	var next = Map{
		"added":  Map{"n": Map{"m": 1.0}},
		"shape":  7.0,
		"scalar": Map{"now": "container"},
		"keep":   true,
	}
	assert.Equal(t, []Op{
		{Path: []string{"added"}, Value: Map{"n": Map{"m": 1.0}}},
		{Path: []string{"gone"}, Delete: true},
		{Path: []string{"scalar"}, Value: Map{"now": "container"}},
		{Path: []string{"shape"}, Value: 7.0},
	}, Diff(prev, next))

	// Root-level transitions.
	assert.Equal(t, []Op{{Path: []string{}, Value: Map{"a": 1.0}}}, Diff(nil, Map{"a": 1.0}))
	assert.Equal(t, []Op{{Path: []string{}, Delete: true}}, Diff(Map{"a": 1.0}, nil))
	assert.Equal(t, []Op{{Path: []string{"a"}, Value: 1.0}}, Diff(Map{}, Map{"a": 1.0}))
}

func TestDiffValuesDoNotAliasNext(t *testing.T) {
	var next = Map{"a": Map{"b": 1.0}}
	var ops = Diff(Map{}, next)

	next["a"].(Map)["b"] = 2.0
	assert.Equal(t, Map{"b": 1.0}, ops[0].Value)
}

func TestApplyInvertsDiff(t *testing.T) {
	var cases = []struct{ prev, next interface{} }{
		{Map{"a": Map{"b": 1.0, "c": 2.0}}, Map{"a": Map{"b": 1.0, "c": 3.0, "d": 4.0}}},
		{Map{"a": Map{"b": Map{"c": 1.0}}, "x": 1.0}, Map{"a": 2.0}},
		{nil, Map{"a": Map{"b": true}}},
		{Map{"a": "x"}, nil},
		{Map{"a": Map{"b": 1.0, "c": 2.0}}, Map{"a": Map{"b": 1.0}}},
	}
	for _, tc := range cases {
		var ops = Diff(tc.prev, tc.next)
		assert.Equal(t, tc.next, Apply(Clone(tc.prev), ops), "ops %v", ops)
	}
}

func TestOverlayLeavesRootUnmodified(t *testing.T) {
	var root = Map{"a": Map{"b": 1.0, "c": 2.0}, "keep": Map{"x": true}}
	var next = Map{"a": Map{"c": 3.0}, "keep": Map{"x": true}, "d": Map{"e": "new"}}
	var ops = Diff(root, next)

	var out = Overlay(root, ops)
	assert.Equal(t, next, out)
	assert.Equal(t, Map{"a": Map{"b": 1.0, "c": 2.0}, "keep": Map{"x": true}}, root)

	// Untouched subtrees are shared.
	assert.True(t, reflect.ValueOf(root["keep"]).Pointer() ==
		reflect.ValueOf(out.(Map)["keep"]).Pointer())

	// Deletions prune emptied ancestors, and a nil root is built upon.
	assert.Nil(t, Overlay(Map{"a": Map{"b": 1.0}}, []Op{{Path: []string{"a", "b"}, Delete: true}}))
	assert.Equal(t, Map{"a": Map{"b": 1.0}}, Overlay(nil, []Op{{Path: []string{"a", "b"}, Value: 1.0}}))
}

func TestToPatch(t *testing.T) {
	var ops = []Op{
		{Path: []string{"a", "c"}, Value: 3.0},
		{Path: []string{"a", "x"}, Delete: true},
		{Path: []string{}, Value: "root"},
	}
	assert.Equal(t, map[string]interface{}{
		"/games/ABCDE/a/c": 3.0,
		"/games/ABCDE/a/x": nil,
		"/games/ABCDE":     "root",
	}, ToPatch("/games//ABCDE/", ops))

	assert.Equal(t, map[string]interface{}{"/a": 1.0},
		ToPatch("/", []Op{{Path: []string{"a"}, Value: 1.0}}))
}
