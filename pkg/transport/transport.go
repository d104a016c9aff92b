// Package transport defines the channel between a master and one worker and
// the ordered set of such channels a master addresses.
//
// Three implementations live in subpackages: memconn (in-process), sockconn
// (stream sockets) and mpiconn (rank/tag message passing).
package transport

import (
	"context"
	"errors"
)

// Connection is one logical channel to a single peer.
//
// A Connection is single consumer: callers alternate Write and Read and
// never use one Connection from two goroutines at once. Messages are
// delivered in write order.
type Connection interface {
	// Read blocks until one full message is available and returns it.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one message and returns once the transport accepted it.
	Write(ctx context.Context, buf []byte) error
	// MessageLength returns the size of the next message, blocking until
	// one is available.
	MessageLength(ctx context.Context) (int, error)
	// Addr identifies the peer for diagnostics.
	Addr() string
	// Close releases the transport resource; a pending Read returns an error.
	Close() error
}

// Broadcaster writes one message to a group of connections as a single
// transport operation.
type Broadcaster interface {
	Broadcast(ctx context.Context, conns []Connection, buf []byte) error
}

// Poller is implemented by connections that can tell whether input is
// waiting without blocking.
type Poller interface {
	Pending() bool
}

// ErrClosed is wrapped by errors from a connection that has been closed.
var ErrClosed = errors.New("connection closed")
