package remote

import (
	"sync"
	"sync/atomic"

	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// Kind enumerates the kinds of subscription of a Store.
type Kind int

const (
	Value Kind = iota
	ChildAdded
	ChildRemoved
)

func (k Kind) String() string {
	switch k {
	case Value:
		return "value"
	case ChildAdded:
		return "child_added"
	case ChildRemoved:
		return "child_removed"
	}
	return "unknown"
}

// Hub holds a current document and its listeners. Each Swap of the document
// notifies listeners whose view of the document changed. Store
// implementations compose a Hub to provide subscriptions, while remaining
// free to source document updates however they like.
//
// Notifications are delivered outside of Hub locks, in the order in which
// Swaps and Subscribes were applied, by whichever goroutine found delivery
// to be idle. Callbacks may therefore subscribe, cancel, or Swap without
// deadlock.
type Hub struct {
	mu         sync.Mutex
	doc        interface{}
	listeners  []*listener
	pending    []notification
	delivering bool
}

type listener struct {
	kind      Kind
	path      string
	segments  []string
	fn        func(Snapshot)
	cancelled atomic.Bool
}

type notification struct {
	l    *listener
	snap Snapshot
}

// NewHub returns a Hub over canonical document |doc|.
func NewHub(doc interface{}) *Hub {
	return &Hub{doc: doc}
}

// Doc returns the current document, which must not be modified.
func (h *Hub) Doc() interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc
}

// Snapshot returns a Snapshot of the current document at |path|.
func (h *Hub) Snapshot(path string) Snapshot {
	path = treepath.Normalize(path)
	var v, _ = tree.Get(h.Doc(), treepath.Split(path))
	return NewSnapshot(path, v)
}

// Swap replaces the current document with |next|, which must not be
// modified thereafter, and notifies affected listeners.
func (h *Hub) Swap(next interface{}) {
	_ = h.Update(func(interface{}) (interface{}, error) { return next, nil })
}

// Update atomically applies |fn| to the current document, and swaps in its
// result if |fn| doesn't return an error. |fn| must not modify its argument.
func (h *Hub) Update(fn func(doc interface{}) (interface{}, error)) error {
	h.mu.Lock()
	var next, err = fn(h.doc)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	var prev = h.doc
	h.doc = next

	var out []notification
	for _, l := range h.listeners {
		out = l.changes(prev, next, out)
	}
	h.deliver(out)
	return nil
}

// Subscribe attaches |fn| to |kind| events at |path|.
func (h *Hub) Subscribe(kind Kind, path string, fn func(Snapshot)) CancelFunc {
	path = treepath.Normalize(path)
	var l = &listener{
		kind:     kind,
		path:     path,
		segments: treepath.Split(path),
		fn:       fn,
	}

	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.deliver(l.initial(h.doc))

	return func() { h.cancel(l) }
}

// Len returns the number of attached listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *Hub) cancel(l *listener) {
	if l.cancelled.Swap(true) {
		return // Already cancelled.
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.listeners {
		if h.listeners[i] == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			break
		}
	}
}

// deliver queues |out| and, if no other goroutine is delivering, drains the
// queue. It must be called with |mu| held, and releases it.
func (h *Hub) deliver(out []notification) {
	h.pending = append(h.pending, out...)

	if h.delivering {
		h.mu.Unlock()
		return
	}
	h.delivering = true

	for len(h.pending) != 0 {
		var batch = h.pending
		h.pending = nil
		h.mu.Unlock()

		for _, n := range batch {
			if !n.l.cancelled.Load() {
				n.l.fn(n.snap)
			}
		}
		h.mu.Lock()
	}
	h.delivering = false
	h.mu.Unlock()
}

// initial returns notifications due to a listener upon its attachment.
func (l *listener) initial(doc interface{}) []notification {
	var cur, _ = tree.Get(doc, l.segments)

	switch l.kind {
	case Value:
		return []notification{{l: l, snap: NewSnapshot(l.path, cur)}}
	case ChildAdded:
		var out []notification
		for _, k := range tree.Keys(cur) {
			out = append(out, notification{l: l, snap: NewSnapshot(treepath.Child(l.path, k), cur.(tree.Map)[k])})
		}
		return out
	}
	return nil
}

// changes appends notifications due to a listener upon a document
// transition from |prev| to |next|.
func (l *listener) changes(prev, next interface{}, out []notification) []notification {
	var pv, _ = tree.Get(prev, l.segments)
	var nv, _ = tree.Get(next, l.segments)

	if tree.Equal(pv, nv) {
		return out
	}
	switch l.kind {
	case Value:
		out = append(out, notification{l: l, snap: NewSnapshot(l.path, nv)})
	case ChildAdded:
		var pm, _ = pv.(tree.Map)
		for _, k := range tree.Keys(nv) {
			if _, ok := pm[k]; !ok {
				out = append(out, notification{l: l, snap: NewSnapshot(treepath.Child(l.path, k), nv.(tree.Map)[k])})
			}
		}
	case ChildRemoved:
		var nm, _ = nv.(tree.Map)
		for _, k := range tree.Keys(pv) {
			if _, ok := nm[k]; !ok {
				out = append(out, notification{l: l, snap: NewSnapshot(treepath.Child(l.path, k), pv.(tree.Map)[k])})
			}
		}
	}
	return out
}
