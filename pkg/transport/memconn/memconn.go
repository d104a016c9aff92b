// Package memconn implements an in-process Connection.
//
// Writing hands the message to the paired handler synchronously and keeps
// its reply; reading returns that reply and clears it. There are no raw
// send or receive primitives: the peer is a direct function call.
//
// Reading with no reply pending and writing while a reply is still unread
// are usage errors. Both "nothing written yet" and "already consumed" are
// reported the same way; there is no separate not-ready status.
package memconn

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

// Handler processes one message and returns the reply.
// A nil reply means the message expects no answer.
type Handler func(ctx context.Context, in []byte) ([]byte, error)

// Conn is an in-process Connection.
type Conn struct {
	addr    string
	handler Handler

	mu      sync.Mutex
	reply   []byte
	pending bool
	closed  bool
}

var _ transport.Connection = (*Conn)(nil)

// Option configures a Conn.
type Option func(*Conn)

// WithName sets the name reported by Addr. Defaults to a random identity.
func WithName(name string) Option {
	return func(c *Conn) { c.addr = "mem://" + name }
}

// New creates a connection that delivers writes to h.
func New(h Handler, opts ...Option) *Conn {
	c := &Conn{
		addr:    "mem://" + uuid.NewString(),
		handler: h,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver stores buf as a reply without a preceding write. It is used to
// place the worker's announcement before the master's first read.
func (c *Conn) Deliver(buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return mwerr.Transport("deliver", c.addr, transport.ErrClosed)
	}
	if c.pending {
		return mwerr.Usage("deliver", c.addr, "previous reply not read")
	}
	c.reply = buf
	c.pending = true
	return nil
}

// Write runs the handler on buf and stores its reply.
func (c *Conn) Write(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return mwerr.Transport("write", c.addr, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return mwerr.Transport("write", c.addr, transport.ErrClosed)
	}
	if c.pending {
		return mwerr.Usage("write", c.addr, "previous reply not read")
	}

	out, err := c.handler(ctx, buf)
	if err != nil {
		// the peer's loop has ended; nothing more can be exchanged
		c.closed = true
		return mwerr.Transport("write", c.addr, err)
	}
	if out != nil {
		c.reply = out
		c.pending = true
	}
	return nil
}

// Read returns the stored reply and clears it.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, mwerr.Transport("read", c.addr, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, mwerr.Transport("read", c.addr, transport.ErrClosed)
	}
	if !c.pending {
		return nil, mwerr.Usage("read", c.addr, "no reply pending")
	}
	out := c.reply
	c.reply = nil
	c.pending = false
	return out, nil
}

// MessageLength returns the size of the stored reply.
func (c *Conn) MessageLength(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, mwerr.Transport("message length", c.addr, transport.ErrClosed)
	}
	if !c.pending {
		return 0, mwerr.Usage("message length", c.addr, "no reply pending")
	}
	return len(c.reply), nil
}

// Addr returns the connection identity.
func (c *Conn) Addr() string { return c.addr }

// Close discards any pending reply. Later calls fail with a transport error.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reply = nil
	c.pending = false
	return nil
}
