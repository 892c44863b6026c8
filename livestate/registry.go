package livestate

import (
	"sort"

	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/treepath"
)

// Registration is the set of store subscriptions held for one mirrored node.
// A leaf node holds a value subscription. A container node holds a pair of
// child-added and child-removed subscriptions.
type Registration struct {
	// Path of the node, relative to the subscription root.
	Path string
	// Leaf is true if the Registration is of a value subscription.
	Leaf bool

	cancels []remote.CancelFunc
}

func (r *Registration) cancel() {
	for _, fn := range r.cancels {
		fn()
	}
	r.cancels = nil
}

// Registry indexes Registrations on their canonical relative Path. Entries
// are kept in sorted order, so that the registrations of a node and all of
// its descendants may be found by range scan. Registry is not safe for
// concurrent use.
type Registry struct {
	regs []*Registration
}

// Search returns the index at which |path| is or would be registered,
// and whether it's registered.
func (r *Registry) Search(path string) (int, bool) {
	var ind = sort.Search(len(r.regs), func(i int) bool { return r.regs[i].Path >= path })
	return ind, ind != len(r.regs) && r.regs[ind].Path == path
}

// Has returns true if |path| is registered.
func (r *Registry) Has(path string) bool {
	var _, ok = r.Search(treepath.Normalize(path))
	return ok
}

// Lookup returns the Registration of |path|, or nil if there is none.
func (r *Registry) Lookup(path string) *Registration {
	if ind, ok := r.Search(treepath.Normalize(path)); ok {
		return r.regs[ind]
	}
	return nil
}

// Register |reg| at its Path. If the Path is already registered, Register
// returns false and |reg| is not retained: the caller is responsible for
// cancelling it.
func (r *Registry) Register(reg *Registration) bool {
	reg.Path = treepath.Normalize(reg.Path)

	var ind, ok = r.Search(reg.Path)
	if ok {
		return false
	}
	r.regs = append(r.regs, nil)
	copy(r.regs[ind+1:], r.regs[ind:])
	r.regs[ind] = reg

	metrics.LiveStateRegistrations.Inc()
	return true
}

// CancelAndRemove cancels and removes the Registration of exactly |path|,
// returning the number removed.
func (r *Registry) CancelAndRemove(path string) int {
	var ind, ok = r.Search(treepath.Normalize(path))
	if !ok {
		return 0
	}
	return r.removeRange(ind, ind+1)
}

// CancelPrefix cancels and removes the Registrations of |path| and every
// node beneath it, returning the number removed.
func (r *Registry) CancelPrefix(path string) int {
	if path = treepath.Normalize(path); path == treepath.Root {
		return r.CancelAll()
	}
	// Descendants are keyed in [path + "/", path + "0"), as '0' follows '/'.
	// Siblings sharing |path| as a name prefix (eg "path-b") order between
	// |path| and its descendants, so the exact entry is removed separately.
	var begin, _ = r.Search(path + treepath.Sep)
	var end, _ = r.Search(path + string(treepath.Sep[0]+1))
	var n = r.removeRange(begin, end)

	return n + r.CancelAndRemove(path)
}

// CancelAll cancels and removes every Registration.
func (r *Registry) CancelAll() int {
	return r.removeRange(0, len(r.regs))
}

// Len returns the number of Registrations.
func (r *Registry) Len() int { return len(r.regs) }

// Paths returns the sorted Paths of all Registrations.
func (r *Registry) Paths() []string {
	var out = make([]string, len(r.regs))
	for i, reg := range r.regs {
		out[i] = reg.Path
	}
	return out
}

func (r *Registry) removeRange(begin, end int) int {
	for _, reg := range r.regs[begin:end] {
		reg.cancel()
	}
	var n = end - begin
	r.regs = append(r.regs[:begin], r.regs[end:]...)

	metrics.LiveStateRegistrations.Sub(float64(n))
	return n
}
