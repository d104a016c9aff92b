// Package mpiconn implements Connection over tagged point-to-point messages
// between ranks.
//
// The ranks are reached through a Comm. LocalWorld provides one in memory,
// with every rank in the same process.
package mpiconn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

// Conn is the channel from the local rank to one peer rank on one tag.
type Conn struct {
	comm Comm
	peer int
	tag  int

	done chan struct{}
	once sync.Once
}

var _ transport.Connection = (*Conn)(nil)

// New creates a connection to peer on tag.
func New(comm Comm, peer, tag int) *Conn {
	return &Conn{comm: comm, peer: peer, tag: tag, done: make(chan struct{})}
}

// Peer returns the peer rank.
func (c *Conn) Peer() int { return c.peer }

// Addr returns "rank N tag T".
func (c *Conn) Addr() string {
	return fmt.Sprintf("rank %d tag %d", c.peer, c.tag)
}

func (c *Conn) fail(op string, err error) error {
	if c.closed() {
		err = transport.ErrClosed
	}
	return mwerr.Transport(op, c.Addr(), err)
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// bind returns a context that is also cancelled when the connection closes.
func (c *Conn) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Read blocks until a message from the peer arrives or the connection is closed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if c.closed() {
		return nil, c.fail("read", transport.ErrClosed)
	}
	ctx, cancel := c.bind(ctx)
	defer cancel()
	buf, err := c.comm.Recv(ctx, c.peer, c.tag)
	if err != nil {
		return nil, c.fail("read", err)
	}
	return buf, nil
}

// Write sends buf to the peer.
func (c *Conn) Write(ctx context.Context, buf []byte) error {
	if c.closed() {
		return c.fail("write", transport.ErrClosed)
	}
	if err := c.comm.Send(ctx, c.peer, c.tag, buf); err != nil {
		return c.fail("write", err)
	}
	return nil
}

// MessageLength probes for the next message without receiving it.
func (c *Conn) MessageLength(ctx context.Context) (int, error) {
	if c.closed() {
		return 0, c.fail("message length", transport.ErrClosed)
	}
	ctx, cancel := c.bind(ctx)
	defer cancel()
	n, err := c.comm.Probe(ctx, c.peer, c.tag)
	if err != nil {
		return 0, c.fail("message length", err)
	}
	return n, nil
}

// Close marks the connection unusable and fails a pending Read or
// MessageLength. The Comm stays open for other connections.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Broadcaster sends one message to all connections of a set with a single
// Multicast, provided they share a Comm and tag. Otherwise it writes to
// each connection in order.
type Broadcaster struct{}

var _ transport.Broadcaster = Broadcaster{}

// Broadcast implements transport.Broadcaster.
func (Broadcaster) Broadcast(ctx context.Context, conns []transport.Connection, buf []byte) error {
	if len(conns) == 0 {
		return nil
	}
	ranks, comm, tag, ok := group(conns)
	if !ok {
		for i, c := range conns {
			if err := c.Write(ctx, buf); err != nil {
				return fmt.Errorf("write to connection %d: %w", i, err)
			}
		}
		return nil
	}
	if err := comm.Multicast(ctx, ranks, tag, buf); err != nil {
		return mwerr.Transport("broadcast", fmt.Sprintf("ranks %v tag %d", ranks, tag), err)
	}
	return nil
}

// group returns the peer ranks when all conns are open mpiconn connections
// on the same Comm and tag.
func group(conns []transport.Connection) ([]int, Comm, int, bool) {
	first, ok := conns[0].(*Conn)
	if !ok {
		return nil, nil, 0, false
	}
	ranks := make([]int, 0, len(conns))
	for _, c := range conns {
		mc, ok := c.(*Conn)
		if !ok || mc.comm != first.comm || mc.tag != first.tag || mc.closed() {
			return nil, nil, 0, false
		}
		ranks = append(ranks, mc.peer)
	}
	return ranks, first.comm, first.tag, true
}

// NewSet builds the master's connection set: one connection per rank other
// than the local one, in rank order, all on tag. WriteAll on the set is a
// single Multicast.
func NewSet(comm Comm, tag int) (*transport.ConnectionSet, error) {
	if comm.Size() < 2 {
		return nil, mwerr.Usage("new set", fmt.Sprintf("rank %d", comm.Rank()), "world of size %d has no workers", comm.Size())
	}
	set := transport.NewConnectionSet()
	for r := 0; r < comm.Size(); r++ {
		if r != comm.Rank() {
			set.Add(New(comm, r, tag))
		}
	}
	set.SetBroadcaster(Broadcaster{})
	return set, nil
}

// IsWorldClosed reports whether err was caused by the world shutting down.
func IsWorldClosed(err error) bool {
	return errors.Is(err, ErrWorldClosed)
}
