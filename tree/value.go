// Package tree operates over hierarchical document values: nested
// map[string]interface{} containers with scalar leaves.
//
// A canonical value is one of nil, bool, float64, string, or a non-empty
// map[string]interface{} of canonical values. Normalize produces canonical
// values from arbitrary Go values, and all other functions of the package
// expect and preserve them.
package tree

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"go.livesweep.dev/core/treepath"
)

// Map is a canonical container node.
type Map = map[string]interface{}

// Normalize returns a canonical deep copy of |v|. Integer and float kinds
// become float64, slices and arrays become maps keyed on decimal index,
// structs are encoded through their JSON representation, and nil values and
// empty containers are pruned (they cannot exist in a store). Normalize
// panics if |v| has no canonical form: use Canonical for values of unknown
// provenance.
func Normalize(v interface{}) interface{} {
	var out, err = Canonical(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Canonical is Normalize, but returns an error if |v| (or a value nested
// within it) has no canonical form.
func Canonical(v interface{}) (interface{}, error) {
	switch vv := v.(type) {
	case nil:
		return nil, nil
	case bool, string, float64:
		return vv, nil
	case json.Number:
		if f, err := vv.Float64(); err == nil {
			return f, nil
		}
		return string(vv), nil
	case Map:
		var out = make(Map, len(vv))
		for k, c := range vv {
			if c, err := Canonical(c); err != nil {
				return nil, err
			} else if c != nil {
				out[k] = c
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case []interface{}:
		var out = make(Map, len(vv))
		for i, c := range vv {
			if c, err := Canonical(c); err != nil {
				return nil, err
			} else if c != nil {
				out[strconv.Itoa(i)] = c
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	}
	return canonicalReflect(reflect.ValueOf(v))
}

func canonicalReflect(rv reflect.Value) (interface{}, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return canonicalReflect(rv.Elem())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		var out = make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return Canonical(out)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("tree: unsupported map key type %s", rv.Type().Key())
		}
		var out = make(Map, rv.Len())
		for it := rv.MapRange(); it.Next(); {
			out[it.Key().String()] = it.Value().Interface()
		}
		return Canonical(out)
	case reflect.Struct:
		var b, err = json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("tree: encoding %s: %w", rv.Type(), err)
		}
		var dec interface{}
		if err = json.Unmarshal(b, &dec); err != nil {
			return nil, fmt.Errorf("tree: decoding %s: %w", rv.Type(), err)
		}
		return Canonical(dec)
	default:
		return nil, fmt.Errorf("tree: unsupported value type %s", rv.Type())
	}
}

// ValidateKeys returns an error if any key of canonical value |v| isn't a
// valid path segment.
func ValidateKeys(v interface{}) error { return validateKeys("", v) }

func validateKeys(prefix string, v interface{}) error {
	var m, ok = v.(Map)
	if !ok {
		return nil
	}
	for _, k := range Keys(m) {
		var p = prefix + treepath.Sep + k
		if err := treepath.ValidateKey(k); err != nil {
			return fmt.Errorf("invalid key at %q: %w", p, err)
		} else if err = validateKeys(p, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// Decode populates |out| (which must be a pointer) from the canonical value
// |v|, using |out|'s JSON representation. Maps having dense decimal keys
// decode into slices.
func Decode(v interface{}, out interface{}) error {
	var b, err = json.Marshal(denseSlices(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// denseSlices returns a copy of |v| where maps with keys "0" ... "n-1" are
// represented as slices, which is how the JSON representation of a Go slice
// expects to find them.
func denseSlices(v interface{}) interface{} {
	var m, ok = v.(Map)
	if !ok {
		return v
	}
	var dense = len(m) != 0
	for i := 0; dense && i != len(m); i++ {
		_, dense = m[strconv.Itoa(i)]
	}
	if dense {
		var out = make([]interface{}, len(m))
		for i := range out {
			out[i] = denseSlices(m[strconv.Itoa(i)])
		}
		return out
	}
	var out = make(Map, len(m))
	for k, c := range m {
		out[k] = denseSlices(c)
	}
	return out
}

// Clone returns a deep copy of canonical value |v|.
func Clone(v interface{}) interface{} {
	var m, ok = v.(Map)
	if !ok {
		return v // Scalars are immutable.
	}
	var out = make(Map, len(m))
	for k, c := range m {
		out[k] = Clone(c)
	}
	return out
}

// Equal returns true if canonical values |a| and |b| are structurally equal.
func Equal(a, b interface{}) bool {
	var am, aok = a.(Map)
	var bm, bok = b.(Map)

	if aok != bok {
		return false
	} else if !aok {
		return a == b
	} else if len(am) != len(bm) {
		return false
	} else if reflect.ValueOf(am).Pointer() == reflect.ValueOf(bm).Pointer() {
		return true // Shared structure.
	}
	for k, av := range am {
		if bv, ok := bm[k]; !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// IsContainer returns true if |v| is a container node.
func IsContainer(v interface{}) bool {
	var _, ok = v.(Map)
	return ok
}

// Keys returns the sorted child keys of |v|, or nil if |v| is not a container.
func Keys(v interface{}) []string {
	var m, ok = v.(Map)
	if !ok {
		return nil
	}
	var out = make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get follows |path| from |root|, returning the value found there and
// whether it exists.
func Get(root interface{}, path []string) (interface{}, bool) {
	var cur = root
	for _, key := range path {
		if m, ok := cur.(Map); !ok {
			return nil, false
		} else if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Set stores |value| at |path| beneath |root|, creating intermediate
// containers (and replacing scalars found in their place), and returns the
// updated root. |root| is modified in place; callers wanting copy-on-write
// semantics must Clone first. An empty |path| replaces the root.
func Set(root interface{}, path []string, value interface{}) interface{} {
	if len(path) == 0 {
		return value
	}
	var m, ok = root.(Map)
	if !ok {
		m = make(Map)
	}
	var child = m[path[0]]
	if next := Set(child, path[1:], value); next == nil {
		delete(m, path[0])
	} else {
		m[path[0]] = next
	}
	return m
}

// Delete removes the node at |path| beneath |root| and returns the updated
// root, and whether a node was removed. Ancestors left empty are retained;
// use Prune to drop them. An empty |path| deletes the root.
func Delete(root interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, root != nil
	}
	var parent, ok = Get(root, path[:len(path)-1])
	if !ok {
		return root, false
	}
	var m, isMap = parent.(Map)
	if !isMap {
		return root, false
	}
	if _, ok = m[path[len(path)-1]]; !ok {
		return root, false
	}
	delete(m, path[len(path)-1])
	return root, true
}

// Prune removes empty containers from |v| in place, returning nil if |v|
// itself is an empty container.
func Prune(v interface{}) interface{} {
	var m, ok = v.(Map)
	if !ok {
		return v
	}
	for k, c := range m {
		if c = Prune(c); c == nil {
			delete(m, k)
		} else {
			m[k] = c
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Count returns the number of nodes of |v|, including |v| itself.
// A nil |v| has zero nodes.
func Count(v interface{}) int {
	if v == nil {
		return 0
	}
	var n = 1
	if m, ok := v.(Map); ok {
		for _, c := range m {
			n += Count(c)
		}
	}
	return n
}

// With returns a copy of |root| having |value| at |path|. Unlike Set, |root|
// is not modified: only containers along |path| are copied, and all other
// subtrees are shared with |root|. A nil |value| removes the node at |path|,
// pruning ancestors which become empty.
func With(root interface{}, path []string, value interface{}) interface{} {
	if len(path) == 0 {
		return value
	}
	var m, _ = root.(Map)
	var out = make(Map, len(m)+1)
	for k, c := range m {
		out[k] = c
	}
	if next := With(m[path[0]], path[1:], value); next == nil {
		delete(out, path[0])
	} else {
		out[path[0]] = next
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Leaves flattens |v| into a map of leaf paths relative to |v| (eg "/a/b")
// and their scalar values. A scalar |v| is keyed on "".
func Leaves(v interface{}) map[string]interface{} {
	var out = make(map[string]interface{})
	leaves("", v, out)
	return out
}

func leaves(prefix string, v interface{}, out map[string]interface{}) {
	if m, ok := v.(Map); ok {
		for k, c := range m {
			leaves(prefix+"/"+k, c, out)
		}
	} else if v != nil {
		out[prefix] = v
	}
}
