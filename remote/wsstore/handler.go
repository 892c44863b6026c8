package wsstore

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
)

// Handler serves a remote.Store to websocket Clients.
type Handler struct {
	store    remote.Store
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler of |store|.
func NewHandler(store remote.Store) *Handler {
	return &Handler{
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var conn, err = h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithFields(log.Fields{"remote": r.RemoteAddr, "err": err}).Warn("failed to upgrade websocket")
		return // Upgrade has already replied with an HTTP error.
	}
	metrics.StoreWebsocketConnections.Inc()
	defer metrics.StoreWebsocketConnections.Dec()

	var sc = &serverConn{
		store: h.store,
		conn:  conn,
		out:   newOutbox(),
		subs:  make(map[uint64]remote.CancelFunc),
	}
	sc.serve(r.Context())

	log.WithField("remote", r.RemoteAddr).Debug("websocket closed")
}

type serverConn struct {
	store remote.Store
	conn  *websocket.Conn
	out   *outbox
	subs  map[uint64]remote.CancelFunc
	reads sync.WaitGroup
}

func (sc *serverConn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var writeDoneCh = make(chan struct{})
	go func() {
		if err := sc.out.serve(sc.conn, ctx.Done(), true); err != nil {
			log.WithField("err", err).Debug("websocket write failed")
		}
		_ = sc.conn.Close() // Unblocks a pending read.
		close(writeDoneCh)
	}()

	var extend = func(string) error {
		return sc.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	}
	sc.conn.SetPongHandler(extend)

	for {
		_ = extend("")

		var msg Message
		if err := sc.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithField("err", err).Debug("websocket read failed")
			}
			break
		}
		sc.dispatch(ctx, msg)
	}

	for _, fn := range sc.subs {
		fn()
	}
	cancel()
	sc.reads.Wait()
	<-writeDoneCh
}

func (sc *serverConn) dispatch(ctx context.Context, msg Message) {
	switch msg.Op {
	case OpRead:
		// Reads may block (eg, on a store which is loading) and are answered
		// out of order.
		sc.reads.Add(1)
		go func() {
			defer sc.reads.Done()

			var snap, err = sc.store.Read(ctx, msg.Path)
			sc.out.push(Message{ID: msg.ID, Path: snap.Path(), Value: snap.Val(), Error: errString(err)})
		}()

	case OpPatch:
		// Patches are applied in the order received.
		var err = sc.store.Patch(ctx, msg.Patch)
		sc.out.push(Message{ID: msg.ID, Error: errString(err)})

	case OpSubscribe:
		if _, ok := sc.subs[msg.Sub]; ok || msg.Sub == 0 {
			log.WithField("sub", msg.Sub).Warn("invalid or duplicate subscription (ignoring)")
			return
		}
		var sub = msg.Sub
		var fn = func(snap remote.Snapshot) {
			sc.out.push(Message{Sub: sub, Path: snap.Path(), Value: snap.Val()})
		}

		switch msg.Kind {
		case remote.Value.String():
			sc.subs[sub] = sc.store.OnValue(msg.Path, fn)
		case remote.ChildAdded.String():
			sc.subs[sub] = sc.store.OnChildAdded(msg.Path, fn)
		case remote.ChildRemoved.String():
			sc.subs[sub] = sc.store.OnChildRemoved(msg.Path, fn)
		default:
			log.WithField("kind", msg.Kind).Warn("unknown subscription kind (ignoring)")
		}

	case OpUnsubscribe:
		if fn, ok := sc.subs[msg.Sub]; ok {
			fn()
			delete(sc.subs, msg.Sub)
		}

	default:
		sc.out.push(Message{ID: msg.ID, Error: "unknown op: " + msg.Op})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
