// Package sockconn implements Connection over a stream socket.
//
// Each message is framed as a little-endian uint64 length followed by the
// payload. Accepting peers is done by a Listener, separately from any
// individual Conn.
package sockconn

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

// MaxMessageSize bounds the length accepted from a frame header.
const MaxMessageSize = 1 << 30

const headerSize = 8

// Conn is a Connection over a net.Conn.
type Conn struct {
	nc   net.Conn
	addr string
	// next is the length of a frame whose header has been read, or -1.
	next int64
}

var _ transport.Connection = (*Conn)(nil)

// New wraps an established net.Conn.
func New(nc net.Conn) *Conn {
	return &Conn{nc: nc, addr: nc.RemoteAddr().String(), next: -1}
}

// Dial connects to a listening master at addr ("host:port").
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, mwerr.Transport("dial", addr, err)
	}
	c := New(nc)
	c.addr = addr
	return c, nil
}

// watch interrupts blocking I/O when ctx is done, so that the error seen by
// the caller is ctx.Err(). The returned func must be called when I/O is done.
func (c *Conn) watch(ctx context.Context) func() {
	_ = c.nc.SetDeadline(time.Time{})
	if ctx.Done() == nil {
		return func() {}
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Now())
		close(fired)
	})
	return func() {
		if !stop() {
			// the deadline must be in place before the next call resets it
			<-fired
		}
	}
}

func (c *Conn) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if errors.Is(err, net.ErrClosed) {
		err = transport.ErrClosed
	}
	return mwerr.Transport(op, c.addr, err)
}

func (c *Conn) readHeader(ctx context.Context, op string) (int64, error) {
	if c.next >= 0 {
		return c.next, nil
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return 0, c.fail(ctx, op, err)
	}
	n := binary.LittleEndian.Uint64(hdr[:])
	if n > MaxMessageSize {
		return 0, mwerr.Protocol(op, "malformed record length: frame of %d bytes from %s exceeds %d", n, c.addr, MaxMessageSize)
	}
	c.next = int64(n)
	return c.next, nil
}

// MessageLength blocks until the next frame header arrives and returns the
// payload size. The frame itself is left for Read.
func (c *Conn) MessageLength(ctx context.Context) (int, error) {
	defer c.watch(ctx)()
	n, err := c.readHeader(ctx, "message length")
	return int(n), err
}

// Read blocks until one full frame arrives and returns its payload.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	defer c.watch(ctx)()
	n, err := c.readHeader(ctx, "read")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, c.fail(ctx, "read", err)
	}
	c.next = -1
	return buf, nil
}

// Write sends buf as one frame.
func (c *Conn) Write(ctx context.Context, buf []byte) error {
	defer c.watch(ctx)()
	frame := make([]byte, headerSize, headerSize+len(buf))
	binary.LittleEndian.PutUint64(frame, uint64(len(buf)))
	frame = append(frame, buf...)
	if _, err := c.nc.Write(frame); err != nil {
		return c.fail(ctx, "write", err)
	}
	return nil
}

// Addr returns the peer's host:port.
func (c *Conn) Addr() string { return c.addr }

// Close closes the socket, unblocking a pending Read.
func (c *Conn) Close() error {
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return mwerr.Transport("close", c.addr, err)
	}
	return nil
}

// Listener accepts worker connections on a TCP port.
type Listener struct {
	ln   net.Listener
	addr string
}

// Listen binds addr (":port" or "host:port").
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, mwerr.Transport("listen", addr, err)
	}
	return &Listener{ln: ln, addr: ln.Addr().String()}, nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Accept blocks until one peer connects.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	if dl, ok := l.ln.(deadliner); ok {
		_ = dl.SetDeadline(time.Time{})
		if ctx.Done() != nil {
			stop := context.AfterFunc(ctx, func() { _ = dl.SetDeadline(time.Now()) })
			defer stop()
		}
	}
	nc, err := l.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, mwerr.Transport("accept", l.addr, err)
	}
	return New(nc), nil
}

// Addr returns the bound address.
func (l *Listener) Addr() string { return l.addr }

// Close stops listening. Established connections stay open.
func (l *Listener) Close() error {
	if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return mwerr.Transport("close", l.addr, err)
	}
	return nil
}
