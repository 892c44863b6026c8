package wsstore

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/keepalive"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

// ErrClosed is returned by operations of a Client whose connection has closed.
var ErrClosed = errors.New("websocket store closed")

// Client is a remote.Store served by a Handler. Subscription callbacks are
// invoked from the Client's read goroutine, in the order events were served.
type Client struct {
	conn   *websocket.Conn
	out    *outbox
	doneCh chan struct{}

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Message
	subs    map[uint64]func(remote.Snapshot)
	err     error // Terminal error of the connection.
}

var _ remote.Store = (*Client)(nil)

// Dial a Handler served at websocket |url|.
func Dial(ctx context.Context, url string) (*Client, error) {
	var dialer = websocket.Dialer{
		NetDialContext:   keepalive.DialContext,
		HandshakeTimeout: 45 * time.Second,
	}
	var conn, _, err = dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	var c = &Client{
		conn:    conn,
		out:     newOutbox(),
		doneCh:  make(chan struct{}),
		pending: make(map[uint64]chan Message),
		subs:    make(map[uint64]func(remote.Snapshot)),
	}
	go c.readLoop()
	go func() {
		if err := c.out.serve(conn, c.doneCh, false); err != nil {
			c.fail(err)
		}
	}()
	return c, nil
}

// Read implements remote.Store.
func (c *Client) Read(ctx context.Context, path string) (remote.Snapshot, error) {
	if err := treepath.Validate(path); err != nil {
		return remote.Snapshot{}, err
	}
	var resp, err = c.request(ctx, Message{Op: OpRead, Path: treepath.Normalize(path)})
	metrics.StoreOpsTotal.WithLabelValues("websocket", OpRead, metrics.Status(err)).Inc()

	if err != nil {
		return remote.Snapshot{}, err
	}
	return remote.NewSnapshot(path, tree.Normalize(resp.Value)), nil
}

// Write implements remote.Store.
func (c *Client) Write(ctx context.Context, path string, value interface{}) error {
	return c.Patch(ctx, map[string]interface{}{path: value})
}

// Patch implements remote.Store. Patches are validated before being sent.
func (c *Client) Patch(ctx context.Context, patch map[string]interface{}) error {
	var canonical, _, err = remote.CheckPatch(patch)
	if err == nil {
		_, err = c.request(ctx, Message{Op: OpPatch, Patch: canonical})
	}
	metrics.StoreOpsTotal.WithLabelValues("websocket", OpPatch, metrics.Status(err)).Inc()
	return err
}

// OnValue implements remote.Store.
func (c *Client) OnValue(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return c.subscribe(remote.Value, path, fn)
}

// OnChildAdded implements remote.Store.
func (c *Client) OnChildAdded(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return c.subscribe(remote.ChildAdded, path, fn)
}

// OnChildRemoved implements remote.Store.
func (c *Client) OnChildRemoved(path string, fn func(remote.Snapshot)) remote.CancelFunc {
	return c.subscribe(remote.ChildRemoved, path, fn)
}

// Close the Client connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var deadline = time.Now().Add(writeTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	c.fail(ErrClosed)
	return c.conn.Close()
}

// Done selects when the Client connection has closed.
func (c *Client) Done() <-chan struct{} { return c.doneCh }

// Err returns the terminal error of a closed Client, or nil.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	var respCh = make(chan Message, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return Message{}, c.err
	}
	c.nextID++
	msg.ID = c.nextID
	c.pending[msg.ID] = respCh
	c.mu.Unlock()

	c.out.push(msg)

	select {
	case resp, ok := <-respCh:
		if !ok {
			return Message{}, c.Err()
		} else if resp.Error != "" {
			return resp, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return Message{}, ctx.Err()
	}
}

func (c *Client) subscribe(kind remote.Kind, path string, fn func(remote.Snapshot)) remote.CancelFunc {
	c.mu.Lock()
	c.nextID++
	var sub = c.nextID
	c.subs[sub] = fn
	c.mu.Unlock()

	c.out.push(Message{Op: OpSubscribe, Sub: sub, Kind: kind.String(), Path: treepath.Normalize(path)})

	return func() {
		c.mu.Lock()
		var _, ok = c.subs[sub]
		delete(c.subs, sub)
		c.mu.Unlock()

		if ok {
			c.out.push(Message{Op: OpUnsubscribe, Sub: sub})
		}
	}
}

func (c *Client) readLoop() {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.fail(err)
			return
		}

		if msg.ID != 0 {
			c.mu.Lock()
			var respCh = c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()

			if respCh != nil {
				respCh <- msg
			}
		} else if msg.Sub != 0 {
			c.mu.Lock()
			var fn = c.subs[msg.Sub]
			c.mu.Unlock()

			if fn != nil {
				fn(remote.NewSnapshot(msg.Path, tree.Normalize(msg.Value)))
			}
		} else {
			log.WithField("msg", msg).Warn("unexpected websocket message (ignoring)")
		}
	}
}

// fail the Client with terminal error |err|, if it hasn't already failed.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}
	c.err = err
	for id, respCh := range c.pending {
		close(respCh)
		delete(c.pending, id)
	}
	close(c.doneCh)

	if err != ErrClosed {
		log.WithField("err", err).Warn("websocket store connection failed")
	}
}
