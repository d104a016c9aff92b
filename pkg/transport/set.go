package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// ConnectionSet is an ordered collection of connections addressed by
// sequence number. Sequence numbers are assigned 0, 1, 2... in insertion
// order and never change.
//
// Indexed operations on different sequence numbers may run concurrently;
// Add and Clone must not race with them.
type ConnectionSet struct {
	conns []Connection
	bcast Broadcaster
}

// NewConnectionSet creates an empty set.
func NewConnectionSet() *ConnectionSet {
	return &ConnectionSet{}
}

// SetBroadcaster makes WriteAll use b instead of per-connection writes.
func (s *ConnectionSet) SetBroadcaster(b Broadcaster) {
	s.bcast = b
}

// Add appends conn and returns its sequence number.
func (s *ConnectionSet) Add(conn Connection) int {
	s.conns = append(s.conns, conn)
	return len(s.conns) - 1
}

// Size returns the number of connections.
func (s *ConnectionSet) Size() int { return len(s.conns) }

// Get returns the connection with sequence number i.
func (s *ConnectionSet) Get(i int) Connection {
	s.check("get", i)
	return s.conns[i]
}

// Read reads one message from connection i.
func (s *ConnectionSet) Read(ctx context.Context, i int) ([]byte, error) {
	s.check("read", i)
	return s.conns[i].Read(ctx)
}

// Write writes buf to connection i.
func (s *ConnectionSet) Write(ctx context.Context, i int, buf []byte) error {
	s.check("write", i)
	return s.conns[i].Write(ctx, buf)
}

// WriteAll writes buf to every connection in insertion order, stopping at
// the first failure. With a Broadcaster set, the broadcaster does the write.
func (s *ConnectionSet) WriteAll(ctx context.Context, buf []byte) error {
	if s.bcast != nil {
		return s.bcast.Broadcast(ctx, s.conns, buf)
	}
	for i, c := range s.conns {
		if err := c.Write(ctx, buf); err != nil {
			return fmt.Errorf("write to connection %d: %w", i, err)
		}
	}
	return nil
}

// ReadyConnection returns the sequence number of a connection with input
// waiting, or -1 if there is none or the transport cannot tell.
func (s *ConnectionSet) ReadyConnection() int {
	for i, c := range s.conns {
		if p, ok := c.(Poller); ok && p.Pending() {
			return i
		}
	}
	return -1
}

// Clone returns a new set holding the connections at indices, in the given
// order. The connections are shared, the receiver is not modified.
func (s *ConnectionSet) Clone(indices ...int) *ConnectionSet {
	c := &ConnectionSet{
		conns: make([]Connection, 0, len(indices)),
		bcast: s.bcast,
	}
	for _, i := range indices {
		s.check("clone", i)
		c.conns = append(c.conns, s.conns[i])
	}
	return c
}

// Close closes every connection and returns the joined errors.
func (s *ConnectionSet) Close() error {
	var errs []error
	for _, c := range s.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// check panics with a usage error when i is not a valid sequence number.
func (s *ConnectionSet) check(op string, i int) {
	if i < 0 || i >= len(s.conns) {
		panic(mwerr.Usage("connection set "+op, "", "sequence number %d out of range [0,%d)", i, len(s.conns)))
	}
}
