// Package livestate maintains a local, continuously synchronized mirror of a
// subtree of a remote.Store, and writes local mutations of the mirror back
// to the store as minimal patches.
//
// A LiveState subscribes to the store at the granularity of individual
// nodes: each leaf holds a value subscription, and each container holds
// child-added and child-removed subscriptions. As nodes are added and removed
// remotely, subscriptions are attached and torn down to match, such that
// every node of the mirror has exactly one Registration.
//
// Store events update a confirmed value. Local mutations which the store
// hasn't yet acknowledged are pending, and the published value is the
// confirmed value overlaid with pending mutations in order. A write which
// fails is dropped from the overlay, and the published value reverts to
// what the store holds.
//
// Store callbacks never run engine logic directly. They enqueue onto an
// unbounded FIFO which is drained by a single dispatch goroutine, and all
// engine state is guarded by one mutex. Writes are issued by a separate
// writer goroutine, in mutation order.
package livestate

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/async"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// State of a LiveState.
type State int

const (
	// Unsubscribed LiveStates have no root, and no value.
	Unsubscribed State = iota
	// Loading LiveStates await the initial read of their root.
	Loading
	// Live LiveStates mirror their root.
	Live
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Loading:
		return "loading"
	case Live:
		return "live"
	}
	return "unknown"
}

var (
	// ErrNotSubscribed is returned by Mutate of an Unsubscribed LiveState.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrClosed is returned by operations of a closed LiveState.
	ErrClosed = errors.New("livestate closed")
)

// LiveState mirrors the subtree of a remote.Store rooted at a subscribed path.
type LiveState struct {
	// Observers called upon each change of the mirrored value, in order, with
	// the new value. Observer calls occur while the LiveState lock is held:
	// Observers must not call LiveState methods, and must not modify |value|.
	// Observers should be set before Subscribe is first called.
	Observers []func(value interface{})

	store  remote.Store
	ctx    context.Context
	cancel context.CancelFunc
	events *queue        // Dispatched store events and initial reads.
	writes *queue        // Ordered patches to write to |store|.
	doneCh chan struct{} // Closed when the LiveState is fully stopped.

	mu       sync.Mutex
	root     string          // Subscribed root, or "" if Unsubscribed.
	depth    int             // treepath.Depth of |root|.
	state    State           // Current State.
	value    interface{}     // Published value. Not modified once published.
	base     interface{}     // Value last observed from the store.
	pending  []*pendingWrite // Unsettled local mutations, in order.
	reg      Registry        // Registrations of mirrored nodes.
	gen      int64           // Incremented with each teardown.
	loadCh   chan struct{}   // Closed when the current initial read is queued.
	updateCh chan struct{}   // Signals waiting goroutines of an update.
	closed   bool
}

// pendingWrite is a local mutation not yet settled by the store.
type pendingWrite struct {
	ops   []tree.Op
	acked bool // Acknowledged while Loading, and retained until the initial read.
}

// New returns a LiveState of |store|, which is initially Unsubscribed. The
// LiveState runs until |ctx| is done or Close is called.
func New(ctx context.Context, store remote.Store) *LiveState {
	ctx, cancel := context.WithCancel(ctx)

	var ls = &LiveState{
		store:    store,
		ctx:      ctx,
		cancel:   cancel,
		events:   newQueue(),
		writes:   newQueue(),
		doneCh:   make(chan struct{}),
		loadCh:   make(chan struct{}),
		updateCh: make(chan struct{}),
	}
	close(ls.loadCh) // No read is in flight.

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); ls.events.serve() }()
	go func() { defer wg.Done(); ls.writes.serve() }()

	go func() {
		<-ctx.Done()

		ls.mu.Lock()
		ls.closed = true
		ls.teardown()
		ls.mu.Unlock()

		ls.events.close()
		ls.writes.close()
		wg.Wait()
		close(ls.doneCh)
	}()
	return ls
}

// Subscribe the LiveState to the subtree at |root|. If |root| is the
// current root, Subscribe is a no-op. Otherwise the current mirror is torn
// down, and the LiveState is Loading until an initial read of |root|
// completes. Subscribe returns an error only if |root| is malformed.
func (ls *LiveState) Subscribe(root string) error {
	if err := treepath.Validate(root); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	root = treepath.Normalize(root)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return ErrClosed
	} else if ls.state != Unsubscribed && ls.root == root {
		return nil
	}
	ls.teardown()

	ls.root, ls.depth, ls.state = root, treepath.Depth(root), Loading
	ls.loadCh = make(chan struct{})
	go ls.load(ls.gen, root, ls.loadCh)

	log.WithField("root", root).Debug("subscribed")
	return nil
}

// Unsubscribe tears down the mirror, and the LiveState becomes Unsubscribed.
func (ls *LiveState) Unsubscribe() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.state != Unsubscribed {
		log.WithField("root", ls.root).Debug("unsubscribed")
	}
	ls.teardown()
}

// Root returns the subscribed root, or "" if Unsubscribed.
func (ls *LiveState) Root() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.root
}

// State returns the current State.
func (ls *LiveState) State() State {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.state
}

// Value returns the current mirrored value, and whether the LiveState is
// Live. The returned value must not be modified.
func (ls *LiveState) Value() (interface{}, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.value, ls.state == Live
}

// Update returns a channel which will signal on the next change of the
// mirrored value or State.
func (ls *LiveState) Update() <-chan struct{} {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.updateCh
}

// Registrations returns the sorted relative paths of registered nodes.
func (ls *LiveState) Registrations() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.reg.Paths()
}

// Mutate applies |updater| to a deep copy of the current value. The result
// becomes the mirrored value immediately, and its difference with the prior
// value is queued for writing to the store as a single patch. |updater| may
// modify and return its argument. Writes are applied in mutation order, and
// the returned AsyncOperation resolves with the outcome of this write. It may
// be ignored.
//
// A LiveState which is still Loading mutates from an empty container, and its
// write sets each resulting top-level child. Mutate of an Unsubscribed
// LiveState is dropped and fails with ErrNotSubscribed. A result which has no
// canonical form, or which has a key that isn't a valid path segment, is
// neither published nor written, and fails the returned operation.
func (ls *LiveState) Mutate(updater func(prev interface{}) interface{}) *async.AsyncOperation {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.closed {
		return async.FinishedOperation(ErrClosed)
	} else if ls.state == Unsubscribed {
		log.Warn("dropping mutation of unsubscribed LiveState")
		return async.FinishedOperation(ErrNotSubscribed)
	}

	var prev = ls.value
	var next, err = tree.Canonical(updater(tree.Clone(prev)))
	if err == nil {
		err = tree.ValidateKeys(next)
	}
	if err != nil {
		log.WithFields(log.Fields{"root": ls.root, "err": err}).Warn("rejecting invalid mutation")
		return async.FinishedOperation(errors.WithMessage(err, "mutate"))
	}

	if prev == nil && tree.IsContainer(next) {
		prev = tree.Map{} // Set individual children, rather than the root.
	}
	var ops = tree.Diff(prev, next)
	if len(ops) == 0 {
		return async.FinishedOperation(nil)
	}
	var w = &pendingWrite{ops: ops}
	ls.pending = append(ls.pending, w)
	ls.publish(next)

	var patch = tree.ToPatch(ls.root, ops)
	var op = async.NewAsyncOperation()
	ls.writes.push(func() { ls.write(w, patch, op) })

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{"root": ls.root, "ops": ops}).Debug("mutated")
	}
	return op
}

// Flush blocks until every previously queued write has been issued, and
// every store event received prior to their completion has been dispatched.
// If an initial read is in flight, Flush first awaits it.
func (ls *LiveState) Flush(ctx context.Context) error {
	ls.mu.Lock()
	var loadCh = ls.loadCh
	ls.mu.Unlock()

	select {
	case <-loadCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := ls.writes.drain(ctx); err != nil {
		return err
	}
	return ls.events.drain(ctx)
}

// Close tears down the mirror and stops the LiveState. Queued writes which
// haven't yet been issued fail with a cancellation error. Close must not be
// called from an Observer.
func (ls *LiveState) Close() {
	ls.cancel()
	<-ls.doneCh
}

// Done selects when the LiveState is fully stopped.
func (ls *LiveState) Done() <-chan struct{} { return ls.doneCh }

// load performs the initial read of |root| and queues its dispatch.
func (ls *LiveState) load(gen int64, root string, loadCh chan struct{}) {
	var snap, err = ls.store.Read(ls.ctx, root)

	ls.events.push(func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		ls.onLoad(gen, snap, err)
	})
	close(loadCh)
}

func (ls *LiveState) onLoad(gen int64, snap remote.Snapshot, err error) {
	if ls.closed || gen != ls.gen {
		return // Root changed while the read was in flight.
	} else if err != nil {
		log.WithFields(log.Fields{"root": ls.root, "err": err}).
			Warn("initial read failed (remaining in loading state)")
		return
	}
	ls.build([]string{}, snap)

	// Acknowledged mutations may already be reflected by |snap|. If not,
	// their nodes are delivered by the initial events of |build|.
	var pending = ls.pending[:0]
	for _, w := range ls.pending {
		if !w.acked {
			pending = append(pending, w)
		}
	}
	ls.pending = pending

	ls.state, ls.base = Live, snap.Val()
	ls.value = ls.overlay()
	ls.onUpdate()

	log.WithFields(log.Fields{
		"root":          ls.root,
		"registrations": ls.reg.Len(),
	}).Debug("initial read complete")
}

// write |patch| of pending |w| to the store, and resolve |op| with the
// outcome once |w| is settled.
func (ls *LiveState) write(w *pendingWrite, patch map[string]interface{}, op *async.AsyncOperation) {
	var err = ls.store.Patch(ls.ctx, patch)

	metrics.LiveStatePatchesTotal.WithLabelValues(metrics.Status(err)).Inc()
	metrics.LiveStatePatchOps.Observe(float64(len(patch)))

	if err != nil {
		log.WithFields(log.Fields{"paths": len(patch), "err": err}).Warn("failed to write patch")
		err = errors.Wrap(err, "writing patch")
	}

	// Stores deliver the events of a write before acknowledging it, and
	// settling is queued behind them.
	var settle = func() {
		ls.mu.Lock()
		ls.settle(w, err)
		ls.mu.Unlock()
		op.Resolve(err)
	}
	if !ls.events.push(settle) {
		op.Resolve(err)
	}
}

// settle removes |w| from the pending overlay, and publishes the result.
// The caller must hold |mu|.
func (ls *LiveState) settle(w *pendingWrite, err error) {
	for i, p := range ls.pending {
		if p != w {
			continue
		} else if err == nil && ls.state == Loading {
			w.acked = true
			return
		}
		ls.pending = append(ls.pending[:i:i], ls.pending[i+1:]...)
		ls.publish(ls.overlay())
		return
	}
	// |w| was discarded by a teardown.
}

// teardown cancels all registrations and clears the mirror. The caller
// must hold |mu|.
func (ls *LiveState) teardown() {
	if n := ls.reg.CancelAll(); n != 0 {
		log.WithFields(log.Fields{"root": ls.root, "registrations": n}).Debug("tore down mirror")
	}
	ls.gen++
	ls.root, ls.depth = "", 0
	ls.base, ls.pending = nil, nil

	var changed = ls.state != Unsubscribed
	ls.state = Unsubscribed

	if ls.value != nil || changed {
		ls.value = nil
		ls.onUpdate()
	}
}

// confirm |next| as the value observed from the store, and publish it
// beneath pending mutations. The caller must hold |mu|.
func (ls *LiveState) confirm(next interface{}) {
	ls.base = next
	ls.publish(ls.overlay())
}

// overlay returns the confirmed value with pending mutations applied.
func (ls *LiveState) overlay() interface{} {
	var v = ls.base
	for _, w := range ls.pending {
		v = tree.Overlay(v, w.ops)
	}
	return v
}

// publish |next| as the mirrored value, if it differs from the current one.
func (ls *LiveState) publish(next interface{}) {
	if tree.Equal(ls.value, next) {
		ls.value = next
		return
	}
	ls.value = next
	ls.onUpdate()
}

func (ls *LiveState) onUpdate() {
	for _, obv := range ls.Observers {
		obv(ls.value)
	}
	close(ls.updateCh)
	ls.updateCh = make(chan struct{})
}
