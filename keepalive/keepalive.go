// Package keepalive dials and accepts TCP connections having keep-alives
// enabled, so that connections to vanished peers eventually close.
package keepalive

import (
	"context"
	"net"
	"time"
)

// Dialer matches the net.Dialer of http.DefaultTransport.
var Dialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// DialContext dials |addr| of |network| with |ctx|. It's designed to be used
// as the NetDialContext of a websocket.Dialer.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return Dialer.DialContext(ctx, network, addr)
}

// TCPListener sets TCP keep-alive timeouts on accepted connections.
type TCPListener struct {
	*net.TCPListener
	Period time.Duration
}

// Listen on TCP address |addr|, with accepted connections having a
// keep-alive period of |period|.
func Listen(addr string, period time.Duration) (*TCPListener, error) {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{TCPListener: ln.(*net.TCPListener), Period: period}, nil
}

// Accept a connection, and enable its keep-alives.
func (ln *TCPListener) Accept() (net.Conn, error) {
	var tc, err = ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err = tc.SetKeepAlive(true); err == nil {
		err = tc.SetKeepAlivePeriod(ln.Period)
	}
	if err != nil {
		_ = tc.Close()
		return nil, err
	}
	return tc, nil
}
