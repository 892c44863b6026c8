package livestate

import (
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// build mirrors the node of |snap| at relative path |rel|, registering
// subscriptions of it and (if it's a container) of its descendants. Nodes
// which are already registered are skipped. The caller must hold |mu|.
//
// Store subscriptions may deliver initial events synchronously, but those
// events are queued and dispatched only after |mu| is released: by then,
// every existing child has been registered and its child-added is skipped.
func (ls *LiveState) build(rel []string, snap remote.Snapshot) {
	var reg = &Registration{
		Path: treepath.Join(rel...),
		Leaf: !snap.HasChildren(),
	}
	if ls.reg.Has(reg.Path) {
		return
	}
	var abs = snap.Path()

	if reg.Leaf {
		reg.cancels = []remote.CancelFunc{
			ls.store.OnValue(abs, ls.handler(remote.Value, reg, ls.onValue)),
		}
	} else {
		reg.cancels = []remote.CancelFunc{
			ls.store.OnChildAdded(abs, ls.handler(remote.ChildAdded, reg, ls.onChildAdded)),
			ls.store.OnChildRemoved(abs, ls.handler(remote.ChildRemoved, reg, ls.onChildRemoved)),
		}
	}
	ls.reg.Register(reg)

	for _, child := range snap.Children() {
		ls.build(appendRel(rel, child.Key()), child)
	}
}

// handler returns a store callback which queues dispatch of its Snapshot
// to |fn|. Events of a Registration which has since been cancelled, or
// replaced, are dropped.
func (ls *LiveState) handler(kind remote.Kind, reg *Registration,
	fn func(*Registration, remote.Snapshot) bool) func(remote.Snapshot) {

	return func(snap remote.Snapshot) {
		ls.events.push(func() {
			ls.mu.Lock()
			defer ls.mu.Unlock()

			var outcome = metrics.Stale
			if !ls.closed && ls.reg.Lookup(reg.Path) == reg {
				if fn(reg, snap) {
					outcome = metrics.Applied
				} else {
					outcome = metrics.Skipped
				}
			}
			metrics.LiveStateEventsTotal.WithLabelValues(kind.String(), outcome).Inc()
		})
	}
}

// onValue applies the value of leaf |reg|. It returns true if applied.
func (ls *LiveState) onValue(reg *Registration, snap remote.Snapshot) bool {
	var rel = ls.relative(snap)

	if !snap.Exists() {
		if len(rel) == 0 {
			if ls.base == nil {
				return false
			}
			ls.confirm(nil)
			return true
		}
		// The node was removed. Its parent's child-removed usually reports
		// this as well, but not if the removal preceded attachment of the
		// parent's listeners.
		var _, ok = tree.Get(ls.base, rel)
		ls.remove(rel, snap.Path())
		return ok
	} else if len(rel) != 0 && !ls.reg.Has(treepath.Join(rel[:len(rel)-1]...)) {
		log.WithField("path", snap.Path()).Debug("value of node having no parent (skipping)")
		return false
	}

	if snap.HasChildren() {
		// The leaf became a container. Re-mirror it as such.
		ls.reg.CancelPrefix(reg.Path)
		ls.confirm(tree.With(ls.base, rel, snap.Val()))
		ls.build(rel, snap)
		return true
	}

	if cur, _ := tree.Get(ls.base, rel); tree.Equal(cur, snap.Val()) {
		return false // Already applied.
	}
	ls.confirm(tree.With(ls.base, rel, snap.Val()))
	return true
}

// onChildAdded mirrors a child added to container |reg|.
func (ls *LiveState) onChildAdded(reg *Registration, snap remote.Snapshot) bool {
	if reg.Leaf {
		log.WithField("path", snap.Path()).Debug("child-added of a leaf (skipping)")
		return false
	}
	var rel = ls.relative(snap)

	if ls.reg.Has(treepath.Join(rel...)) {
		return false // Mirrored already.
	}
	ls.confirm(tree.With(ls.base, rel, snap.Val()))
	ls.build(rel, snap)
	return true
}

// onChildRemoved removes a child of container |reg| from the mirror.
func (ls *LiveState) onChildRemoved(reg *Registration, snap remote.Snapshot) bool {
	if reg.Leaf {
		log.WithField("path", snap.Path()).Debug("child-removed of a leaf (skipping)")
		return false
	}
	var rel = ls.relative(snap)
	var _, ok = tree.Get(ls.base, rel)
	return ls.remove(rel, snap.Path()) != 0 || ok
}

// remove the non-root node at relative path |rel| (and absolute path |abs|)
// from the mirror, and tear down registrations of it and its descendants.
// If its parent is a container registration which is left without children
// (it's now empty, or was replaced by a scalar), the parent is re-mirrored as
// a leaf. Its initial value event reconciles whatever the node now holds.
// remove returns the number of cancelled registrations.
func (ls *LiveState) remove(rel []string, abs string) int {
	var n = ls.reg.CancelPrefix(treepath.Join(rel...))

	if _, ok := tree.Get(ls.base, rel); ok {
		ls.confirm(tree.With(ls.base, rel, nil))
	}

	var parentRel = rel[:len(rel)-1]
	var parent = ls.reg.Lookup(treepath.Join(parentRel...))

	if parent != nil && !parent.Leaf {
		if cur, _ := tree.Get(ls.base, parentRel); !tree.IsContainer(cur) {
			n += ls.reg.CancelAndRemove(parent.Path)
			ls.build(parentRel, remote.NewSnapshot(treepath.Parent(abs), nil))
		}
	}
	if n != 0 {
		log.WithFields(log.Fields{"path": abs, "registrations": n}).Debug("removed node")
	}
	return n
}

// relative returns the path of |snap| relative to the subscribed root.
func (ls *LiveState) relative(snap remote.Snapshot) []string {
	return treepath.Relative(snap.Segments(), ls.depth)
}

func appendRel(rel []string, key string) []string {
	var out = make([]string, len(rel)+1)
	copy(out, rel)
	out[len(rel)] = key
	return out
}
