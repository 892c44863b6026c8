// Package wsstore serves a remote.Store over a websocket, and implements a
// remote.Store which is a client of one.
//
// Clients send JSON Messages of operations "read", "patch", "subscribe" and
// "unsubscribe". Reads and patches are answered by a Message having the
// request's ID. Subscriptions are identified by a client-chosen Sub, and
// their events are delivered as Messages having that Sub, in the order
// produced by the served store.
package wsstore

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Operations of a Message.
const (
	OpRead        = "read"
	OpPatch       = "patch"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Message is the JSON frame exchanged by Client and Handler.
type Message struct {
	// ID of a request, echoed by its response. Zero for events.
	ID uint64 `json:"id,omitempty"`
	// Op of a request.
	Op string `json:"op,omitempty"`
	// Path of a read or subscribe request, or of an event Snapshot.
	Path string `json:"path,omitempty"`
	// Kind of a subscribe request, as a remote.Kind String.
	Kind string `json:"kind,omitempty"`
	// Sub identifies a subscription in subscribe and unsubscribe requests,
	// and in events.
	Sub uint64 `json:"sub,omitempty"`
	// Patch of a patch request.
	Patch map[string]interface{} `json:"patch,omitempty"`
	// Value of a read response, or of an event Snapshot.
	Value interface{} `json:"value,omitempty"`
	// Error of a failed request.
	Error string `json:"error,omitempty"`
}

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

// outbox is an unbounded queue of Messages to write to a websocket.
// Callbacks of a served store must never block, so they push here and a
// single writer goroutine (the only permitted writer of the websocket)
// drains to the connection.
type outbox struct {
	mu     sync.Mutex
	msgs   []Message
	wakeCh chan struct{}
}

func newOutbox() *outbox { return &outbox{wakeCh: make(chan struct{}, 1)} }

func (o *outbox) push(msg Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()

	select {
	case o.wakeCh <- struct{}{}:
	default: // Already signaled.
	}
}

// serve writes queued Messages to |conn| until |doneCh| is closed or a write
// fails. If |ping|, the connection is also pinged periodically.
func (o *outbox) serve(conn *websocket.Conn, doneCh <-chan struct{}, ping bool) error {
	var ticker = time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		o.mu.Lock()
		var msgs = o.msgs
		o.msgs = nil
		o.mu.Unlock()

		for _, msg := range msgs {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
		}

		select {
		case <-o.wakeCh:
		case <-ticker.C:
			if !ping {
				continue
			}
			var deadline = time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}
		case <-doneCh:
			return nil
		}
	}
}
