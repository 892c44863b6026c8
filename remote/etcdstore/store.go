// Package etcdstore implements a remote.Store over a prefix of the Etcd
// key/value space.
//
// Each leaf of the document is held by a key of the prefix, having the
// document path of the leaf as its suffix and the JSON encoding of the leaf's
// scalar as its value. A scalar document root is held by key "<prefix>/".
// Containers are implied by the keys of their leaves, and exist only while
// they have at least one.
//
// A Store maintains a local mirror of the document, which is loaded and then
// kept in sync via a long-lived Etcd Watch. Reads and subscriptions are
// served from the mirror. Patches are applied as a single Etcd transaction,
// guarded by the revision of the mirror from which the patch was computed.
// All writers of a prefix must use a Store.
package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/mirror"
	"go.livesweep.dev/core/async"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// Store is a remote.Store of documents held in Etcd.
type Store struct {
	// Prefix of Etcd keys which hold the document. The key of Prefix itself
	// guards transactions of the document: it's modified by each one.
	Prefix string
	// WatchApplyDelay is the duration for which Store should allow Etcd
	// WatchResponses to queue before applying all responses to the mirror.
	// Default is 30ms.
	WatchApplyDelay time.Duration

	client *clientv3.Client
	hub    *remote.Hub
	loaded async.Promise

	mu       sync.RWMutex
	header   etcdserverpb.ResponseHeader // Last Etcd header which updated |doc|.
	doc      interface{}                 // Mirrored document.
	updateCh chan struct{}               // Signals waiting goroutines of an update.
}

var _ remote.Store = (*Store)(nil)

// NewStore returns a Store of the document at key |prefix|, which must be
// a "Clean" path as defined by path.Clean, or NewStore panics. The Store
// must be loaded (via Load) and watched (via Watch) by the caller.
func NewStore(client *clientv3.Client, prefix string) *Store {
	if c := path.Clean(prefix); c != prefix || prefix == "/" {
		panic(fmt.Sprintf("expected prefix to be a cleaned, non-root path (%s != %s)", c, prefix))
	}
	return &Store{
		Prefix:          prefix,
		WatchApplyDelay: 30 * time.Millisecond,
		client:          client,
		hub:             remote.NewHub(nil),
		loaded:          make(async.Promise),
		updateCh:        make(chan struct{}),
	}
}

// Load loads the document at revision |rev|, or if |rev| is zero,
// at the current revision.
func (s *Store) Load(ctx context.Context, rev int64) error {
	if rev == 0 {
		// Resolve a current Revision. SyncBase also interprets zero as a recent
		// revision, but doesn't tell us which.
		if resp, err := s.client.Get(ctx, "a-key-we-don't-expect-to-exist"); err != nil {
			return err
		} else {
			rev = resp.Header.Revision
		}
	}
	var hdr etcdserverpb.ResponseHeader
	var doc interface{}
	var respCh, errCh = mirror.NewSyncer(s.client, s.Prefix+treepath.Sep, rev).SyncBase(ctx)

	// Read messages across |respCh| and |errCh| until both are closed.
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil // Finished draining |respCh|.
			} else if err := patchHeader(&hdr, *resp.Header, true); err != nil {
				return err
			} else {
				for _, kv := range resp.Kvs {
					doc = s.applyKeyValue(doc, mvccpb.PUT, kv)
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil // Finished draining |errCh|.
			} else {
				return err
			}
		}
	}
	// As with KeySpaces, the Header Revision is that of the load request,
	// and not of the store when the request was applied.
	hdr.Revision = rev

	s.mu.Lock()
	s.header, s.doc = hdr, doc
	s.onUpdate()
	s.mu.Unlock()

	s.hub.Swap(doc)

	if !s.loaded.Resolved() {
		s.loaded.Resolve()
	}
	log.WithFields(log.Fields{
		"prefix":   s.Prefix,
		"revision": rev,
		"leaves":   len(tree.Leaves(doc)),
	}).Info("loaded document")
	return nil
}

// Watch a loaded Store and apply updates as they are received.
func (s *Store) Watch(ctx context.Context) error {
	var watchCh clientv3.WatchChan

	// WatchResponses often arrive in quick succession. We amortize the cost of
	// updating the document (and notifying listeners) by briefly delaying the
	// application of a first WatchResponse to await further events, and then
	// applying all events as a single update.
	var responses []clientv3.WatchResponse
	var applyTimer = time.NewTimer(0)
	<-applyTimer.C // Now idle.

	s.mu.RLock()
	var nextRevision = s.header.Revision + 1
	s.mu.RUnlock()

	for attempt := 0; true; attempt++ {
		// WithProgressNotify keeps the watched revision reasonably recent even
		// if the prefix is idle, so that a retried Watch isn't compacted away.
		// WithRequireLeader aborts the watch if our Etcd member is partitioned
		// from the majority, and we then retry against another member.
		if watchCh == nil {
			watchCh = s.client.Watch(clientv3.WithRequireLeader(ctx), s.Prefix+treepath.Sep,
				clientv3.WithPrefix(),
				clientv3.WithProgressNotify(),
				clientv3.WithRev(nextRevision),
			)
		}

		select {
		case resp, ok := <-watchCh:
			if !ok {
				return ctx.Err() // Watch contract implies the context is cancelled.
			} else if err := resp.Err(); err == rpctypes.ErrNoLeader {
				watchCh = nil

				log.WithFields(log.Fields{"err": err, "attempt": attempt}).
					Warn("watch failed (will retry)")

				select {
				case <-time.After(backoff(attempt)): // Pass.
				case <-ctx.Done():
					return ctx.Err()
				}
			} else if err != nil {
				return err // All other errors are fatal.
			} else if resp.Header.Revision < nextRevision {
				log.WithFields(log.Fields{
					"header":           resp.Header,
					"isProgressNotify": resp.IsProgressNotify(),
					"numEvents":        len(resp.Events),
				}).Warn("received duplicate Etcd watch revision (ignoring)")
			} else {
				if len(responses) == 0 {
					applyTimer.Reset(s.WatchApplyDelay)
				}
				responses = append(responses, resp)
				nextRevision = resp.Header.Revision + 1
				attempt = 0 // Restart sequence.
			}
		case <-applyTimer.C:
			if err := s.Apply(responses...); err != nil {
				return err
			}
			responses = responses[:0]
		}
	}
	panic("not reached")
}

// Apply one or more Etcd WatchResponses to the Store. Apply is exported
// in support of testing fixtures: most clients should instead use Watch.
// Clients must ensure concurrent calls to Apply are not made.
func (s *Store) Apply(responses ...clientv3.WatchResponse) error {
	s.mu.RLock()
	var hdr, doc = s.header, s.doc
	s.mu.RUnlock()

	for _, wr := range responses {
		// Progress notifications may increase the revision without a
		// modification of the document, and we track only modifying revisions.
		if !wr.IsProgressNotify() {
			if err := patchHeader(&hdr, wr.Header, false); err != nil {
				return err
			}
		}
		// Events are applied in order. A transaction deletes before it puts.
		for _, ev := range wr.Events {
			doc = s.applyKeyValue(doc, ev.Type, ev.Kv)
		}
	}

	s.mu.Lock()
	s.header, s.doc = hdr, doc
	s.onUpdate()
	s.mu.Unlock()

	s.hub.Swap(doc)
	return nil
}

// Read returns a Snapshot of the mirrored document at |path|. It blocks
// until the Store is loaded.
func (s *Store) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	var snap, err = s.read(ctx, path)
	metrics.StoreOpsTotal.WithLabelValues("etcd", "read", metrics.Status(err)).Inc()
	return snap, err
}

func (s *Store) read(ctx context.Context, path string) (remote.Snapshot, error) {
	if err := treepath.Validate(path); err != nil {
		return remote.Snapshot{}, err
	}
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return remote.Snapshot{}, ctx.Err()
	}
	path = treepath.Normalize(path)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var v, _ = tree.Get(s.doc, treepath.Split(path))
	return remote.NewSnapshot(path, v), nil
}

// Write replaces the subtree at |path|.
func (s *Store) Write(ctx context.Context, path string, value interface{}) error {
	return s.Patch(ctx, map[string]interface{}{path: value})
}

// Patch applies a sparse multi-path update as a single Etcd transaction. If
// the document was concurrently modified, Patch waits for the modification
// to be mirrored and tries again. Patch returns after its own update has
// been mirrored.
func (s *Store) Patch(ctx context.Context, patch map[string]interface{}) error {
	var err = s.patch(ctx, patch)
	metrics.StoreOpsTotal.WithLabelValues("etcd", "patch", metrics.Status(err)).Inc()
	return err
}

func (s *Store) patch(ctx context.Context, patch map[string]interface{}) error {
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}

	for attempt := 0; true; attempt++ {
		s.mu.RLock()
		var doc, rev = s.doc, s.header.Revision
		s.mu.RUnlock()

		var next, err = remote.ApplyPatch(doc, patch)
		if err != nil {
			return err
		}
		var ops = txnOps(s.Prefix, doc, next)
		if len(ops) == 0 {
			return nil
		}
		ops = append(ops, clientv3.OpPut(s.Prefix, ""))

		resp, err := s.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(s.Prefix), "<", rev+1)).
			Then(ops...).
			Else(clientv3.OpGet(s.Prefix)).
			Commit()
		if err != nil {
			return errors.Wrap(err, "etcd txn")
		}

		// Wait for the mirror to reflect the transaction (if it succeeded)
		// or the conflicting transaction (if it failed).
		var await = resp.Header.Revision
		if !resp.Succeeded {
			var kvs = resp.Responses[0].GetResponseRange().Kvs
			if len(kvs) == 0 {
				return errors.New("etcd txn failed but guard key is missing")
			}
			await = kvs[0].ModRevision

			log.WithFields(log.Fields{
				"prefix":   s.Prefix,
				"revision": rev,
				"await":    await,
				"attempt":  attempt,
			}).Debug("document changed concurrently (will retry)")
		}
		s.mu.RLock()
		err = s.WaitForRevision(ctx, await)
		s.mu.RUnlock()

		if err != nil || resp.Succeeded {
			return err
		}
	}
	panic("not reached")
}

// OnValue implements remote.Store.
func (s *Store) OnValue(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.Value, path, fn)
}

// OnChildAdded implements remote.Store.
func (s *Store) OnChildAdded(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.ChildAdded, path, fn)
}

// OnChildRemoved implements remote.Store.
func (s *Store) OnChildRemoved(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return s.hub.Subscribe(remote.ChildRemoved, path, fn)
}

// Revision returns the Etcd revision of the mirrored document.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header.Revision
}

// Doc returns the mirrored document, which must not be modified.
func (s *Store) Doc() interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Update returns a channel which will signal on the next update of the
// mirrored document.
func (s *Store) Update() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateCh
}

// WaitForRevision blocks until the Store Revision is at least |revision|,
// or until the context is done. A read lock of the Store must be held at
// invocation, and will be re-acquired before WaitForRevision returns.
func (s *Store) WaitForRevision(ctx context.Context, revision int64) error {
	for {
		if err := ctx.Err(); err != nil || s.header.Revision >= revision {
			return err
		}
		var ch = s.updateCh

		s.mu.RUnlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		s.mu.RLock()
	}
}

// RLock read-locks the Store, for use with WaitForRevision.
func (s *Store) RLock() { s.mu.RLock() }

// RUnlock releases a read lock of the Store.
func (s *Store) RUnlock() { s.mu.RUnlock() }

func (s *Store) onUpdate() {
	close(s.updateCh)
	s.updateCh = make(chan struct{})
}

// applyKeyValue applies a PUT or DELETE of |kv| to |doc|, returning the
// updated document. |doc| itself is not modified.
func (s *Store) applyKeyValue(doc interface{}, typ mvccpb.Event_EventType, kv *mvccpb.KeyValue) interface{} {
	var key = string(kv.Key)
	var segments = treepath.Split(strings.TrimPrefix(key, s.Prefix))

	if typ == mvccpb.DELETE {
		return tree.With(doc, segments, nil)
	}
	var v interface{}
	if err := json.Unmarshal(kv.Value, &v); err != nil {
		log.WithFields(log.Fields{"key": key, "err": err}).Error("leaf decode failed")
		return doc
	} else if tree.IsContainer(v) {
		log.WithField("key", key).Error("leaf holds a container (ignoring)")
		return doc
	}
	return tree.With(doc, segments, tree.Normalize(v))
}

// txnOps returns the Etcd operations which transform leaves of document
// |prev| into those of |next|. Deletions precede puts, and no two
// operations overlap.
func txnOps(prefix string, prev, next interface{}) []clientv3.Op {
	var deletes, puts []clientv3.Op

	for _, op := range tree.Diff(prev, next) {
		var base = treepath.Join(op.Path...)
		var pv, _ = tree.Get(prev, op.Path)

		// Remove prior leaves at or beneath |base|.
		if tree.IsContainer(pv) {
			var begin, end = containerRange(prefix, base)
			deletes = append(deletes, clientv3.OpDelete(begin, clientv3.WithRange(end)))
		} else if pv != nil {
			deletes = append(deletes, clientv3.OpDelete(leafKey(prefix, base)))
		}
		if op.Delete {
			continue
		}
		var leaves = tree.Leaves(op.Value)
		var keys = make([]string, 0, len(leaves))
		for rel := range leaves {
			keys = append(keys, rel)
		}
		sort.Strings(keys)

		for _, rel := range keys {
			var b, err = json.Marshal(leaves[rel])
			if err != nil {
				panic(err) // Canonical scalars always encode.
			}
			puts = append(puts, clientv3.OpPut(leafKey(prefix, treepath.Join(base, rel)), string(b)))
		}
	}
	return append(deletes, puts...)
}

// leafKey returns the Etcd key of the leaf at document |path|.
func leafKey(prefix, path string) string {
	return prefix + treepath.Normalize(path)
}

// containerRange returns the Etcd key range holding leaves beneath document
// |path|. The range of the document root excludes the root's own leaf key.
func containerRange(prefix, path string) (begin, end string) {
	var p = leafKey(prefix, path)
	if path == treepath.Root {
		return p + "\x00", clientv3.GetPrefixRangeEnd(p)
	}
	return p + treepath.Sep, clientv3.GetPrefixRangeEnd(p + treepath.Sep)
}

// patchHeader updates |h| with an Etcd ResponseHeader. It returns an error if
// the headers are inconsistent. If |allowSameRevision|, |update| Revision is
// expected to be greater than or equal to the current one; otherwise, it
// should be strictly greater.
func patchHeader(h *etcdserverpb.ResponseHeader, update etcdserverpb.ResponseHeader, allowSameRevision bool) error {
	if h.ClusterId != 0 && h.ClusterId != update.ClusterId {
		return fmt.Errorf("etcd ClusterID mismatch (expected %d, got %d)", h.ClusterId, update.ClusterId)
	} else if allowSameRevision && update.Revision < h.Revision {
		return fmt.Errorf("etcd Revision mismatch (expected >= %d, got %d)", h.Revision, update.Revision)
	} else if !allowSameRevision && update.Revision <= h.Revision {
		return fmt.Errorf("etcd Revision mismatch (expected > %d, got %d)", h.Revision, update.Revision)
	}
	*h = update
	return nil
}

func backoff(attempt int) time.Duration {
	switch attempt {
	case 0, 1:
		return 0
	case 2:
		return time.Millisecond * 5
	case 3, 4, 5:
		return time.Second * time.Duration(attempt-1)
	default:
		return 5 * time.Second
	}
}
