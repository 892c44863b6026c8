package tree

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCases(t *testing.T) {
	type cell struct {
		Revealed bool        `json:"revealed"`
		Value    interface{} `json:"value"`
	}
	var in = map[string]interface{}{
		"int":    3,
		"uint":   uint8(7),
		"float":  float32(1.5),
		"number": json.Number("42"),
		"empty":  map[string]interface{}{},
		"nil":    nil,
		"nested": map[string]interface{}{"gone": map[string]interface{}{"x": nil}},
		"list":   []string{"a", "b"},
		"typed":  map[string]int{"one": 1},
		"board":  [][]cell{{{Revealed: true, Value: "bomb"}, {Value: 2}}},
		"ptr":    &cell{Value: 0},
	}
	var expect = Map{
		"int":    3.0,
		"uint":   7.0,
		"float":  1.5,
		"number": 42.0,
		"list":   Map{"0": "a", "1": "b"},
		"typed":  Map{"one": 1.0},
		"board": Map{"0": Map{
			"0": Map{"revealed": true, "value": "bomb"},
			"1": Map{"revealed": false, "value": 2.0},
		}},
		"ptr": Map{"revealed": false, "value": 0.0},
	}
	if d := cmp.Diff(expect, Normalize(in)); d != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", d)
	}

	assert.Nil(t, Normalize(Map{}))
	assert.Nil(t, Normalize([]int(nil)))
	assert.Equal(t, "x", Normalize("x"))
	assert.Panics(t, func() { Normalize(map[int]string{1: "x"}) })
}

func TestCanonicalErrors(t *testing.T) {
	type unencodable struct {
		Fn func() `json:"fn"`
	}
	var _, err = Canonical(Map{"a": map[int]string{1: "x"}})
	assert.EqualError(t, err, "tree: unsupported map key type int")

	_, err = Canonical([]interface{}{1, make(chan int)})
	assert.EqualError(t, err, "tree: unsupported value type chan int")

	_, err = Canonical(unencodable{Fn: func() {}})
	assert.Regexp(t, `^tree: encoding tree.unencodable: json: unsupported type`, err)

	v, err := Canonical(map[string]int{"one": 1})
	assert.NoError(t, err)
	assert.Equal(t, Map{"one": 1.0}, v)
}

func TestValidateKeys(t *testing.T) {
	assert.NoError(t, ValidateKeys(Map{"a": Map{"b-c_d": 1.0}, "e": "f.g"}))
	assert.NoError(t, ValidateKeys("scalar"))
	assert.NoError(t, ValidateKeys(nil))

	assert.EqualError(t, ValidateKeys(Map{"a": Map{"": 1.0}}),
		`invalid key at "/a/": empty key`)
	assert.EqualError(t, ValidateKeys(Map{"a": Map{"b/c": 1.0}}),
		`invalid key at "/a/b/c": key "b/c" contains forbidden character '/'`)
	assert.EqualError(t, ValidateKeys(Map{"a.b": 1.0}),
		`invalid key at "/a.b": key "a.b" contains forbidden character '.'`)
}

func TestDecodeRoundTrip(t *testing.T) {
	type cell struct {
		Flagged bool        `json:"flagged"`
		Value   interface{} `json:"value"`
	}
	type game struct {
		Board [][]cell `json:"board"`
		State string   `json:"state"`
	}
	var g = game{
		Board: [][]cell{{{Value: 1.0}, {Flagged: true, Value: "bomb"}}},
		State: "play",
	}
	var out game
	require.NoError(t, Decode(Normalize(g), &out))
	assert.Equal(t, g, out)

	// Sparse index keys remain a map.
	var m map[string]string
	require.NoError(t, Decode(Map{"0": "a", "2": "c"}, &m))
	assert.Equal(t, map[string]string{"0": "a", "2": "c"}, m)
}

func TestCloneAndEqual(t *testing.T) {
	var a = Map{"a": Map{"b": 1.0, "c": Map{"d": "x"}}}
	var b = Clone(a).(Map)

	assert.True(t, Equal(a, b))
	b["a"].(Map)["c"].(Map)["d"] = "y"
	assert.False(t, Equal(a, b))
	assert.Equal(t, "x", a["a"].(Map)["c"].(Map)["d"], "clone must not alias")

	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(1.0, 1.0))
	assert.False(t, Equal(1.0, "1"))
	assert.False(t, Equal(Map{"a": 1.0}, 1.0))
	assert.False(t, Equal(Map{"a": 1.0}, Map{"b": 1.0}))
	assert.False(t, Equal(Map{"a": 1.0}, Map{"a": 1.0, "b": 2.0}))
}

func TestGetSetDelete(t *testing.T) {
	var root interface{} = Map{"a": Map{"b": 1.0}}

	var v, ok = Get(root, []string{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	_, ok = Get(root, []string{"a", "b", "c"})
	assert.False(t, ok)
	_, ok = Get(root, []string{"z"})
	assert.False(t, ok)
	v, ok = Get(root, nil)
	assert.True(t, ok)
	assert.Equal(t, root, v)

	root = Set(root, []string{"a", "c", "d"}, "x")
	root = Set(root, []string{"a", "b", "e"}, true) // Replaces scalar "b".
	assert.Equal(t, Map{"a": Map{
		"b": Map{"e": true},
		"c": Map{"d": "x"},
	}}, root)

	root, ok = Delete(root, []string{"a", "c", "d"})
	assert.True(t, ok)
	assert.Equal(t, Map{"a": Map{"b": Map{"e": true}, "c": Map{}}}, root)
	_, ok = Delete(root, []string{"a", "missing"})
	assert.False(t, ok)
	_, ok = Delete(root, []string{"a", "b", "e", "f"})
	assert.False(t, ok)

	assert.Equal(t, Map{"a": Map{"b": Map{"e": true}}}, Prune(root))
	assert.Equal(t, "new", Set(root, nil, "new"))

	root, ok = Delete(root, nil)
	assert.True(t, ok)
	assert.Nil(t, root)
}

func TestKeysAndCount(t *testing.T) {
	var v = Map{"b": 1.0, "a": Map{"x": 1.0, "y": 2.0}, "c": "z"}

	assert.Equal(t, []string{"a", "b", "c"}, Keys(v))
	assert.Nil(t, Keys(1.0))
	assert.Equal(t, 6, Count(v))
	assert.Equal(t, 1, Count("leaf"))
	assert.Equal(t, 0, Count(nil))
	assert.True(t, IsContainer(v))
	assert.False(t, IsContainer("x"))
}

func TestWithSharesUnmodifiedStructure(t *testing.T) {
	var left = Map{"x": 1.0}
	var root = Map{"left": left, "right": Map{"y": 2.0}}

	var next = With(root, []string{"right", "z"}, 3.0).(Map)
	assert.Equal(t, Map{"left": Map{"x": 1.0}, "right": Map{"y": 2.0, "z": 3.0}}, next)
	assert.Equal(t, Map{"y": 2.0}, root["right"], "root is not modified")

	// Untouched subtrees are shared, and compare equal by identity.
	left["x"] = 99.0
	assert.Equal(t, 99.0, next["left"].(Map)["x"])
	assert.True(t, Equal(root["left"], next["left"]))

	// Removal prunes emptied ancestors.
	assert.Equal(t, Map{"left": left}, With(root, []string{"right", "y"}, nil))
	assert.Nil(t, With(Map{"a": Map{"b": 1.0}}, []string{"a", "b"}, nil))
	assert.Equal(t, "v", With(root, nil, "v"))
}

func TestLeaves(t *testing.T) {
	assert.Equal(t, map[string]interface{}{
		"/a/b": 1.0,
		"/a/c": "x",
		"/d":   true,
	}, Leaves(Map{"a": Map{"b": 1.0, "c": "x"}, "d": true}))

	assert.Equal(t, map[string]interface{}{"": 5.0}, Leaves(5.0))
	assert.Empty(t, Leaves(nil))
}
