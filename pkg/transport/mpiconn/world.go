package mpiconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrRankUnreachable is returned when a message is addressed to a rank
	// outside the world.
	ErrRankUnreachable = errors.New("rank unreachable")
	// ErrWorldClosed is returned by every operation after the world is shut down.
	ErrWorldClosed = errors.New("world closed")
)

// Comm is the message-passing subset the transport needs: tagged
// point-to-point messages between ranks, plus a one-to-many send.
type Comm interface {
	Rank() int
	Size() int
	// Send queues buf for (dest, tag) and returns without waiting for the receiver.
	Send(ctx context.Context, dest, tag int, buf []byte) error
	// Recv blocks until a message from (src, tag) arrives.
	Recv(ctx context.Context, src, tag int) ([]byte, error)
	// Probe blocks until a message from (src, tag) arrives and returns its
	// length without receiving it.
	Probe(ctx context.Context, src, tag int) (int, error)
	// Multicast sends the same buf to every rank in dests with one call.
	Multicast(ctx context.Context, dests []int, tag int, buf []byte) error
}

// LocalWorld is an in-memory message-passing world of a fixed number of
// ranks, each rank usually driven by its own goroutine.
type LocalWorld struct {
	size int
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	boxes map[route]*mailbox
}

type route struct{ src, dst, tag int }

// NewLocalWorld creates a world with size ranks.
func NewLocalWorld(size int) *LocalWorld {
	return &LocalWorld{
		size:  size,
		done:  make(chan struct{}),
		boxes: make(map[route]*mailbox),
	}
}

// Comm returns the endpoint of rank.
func (w *LocalWorld) Comm(rank int) Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("mpiconn: rank %d outside world of size %d", rank, w.size))
	}
	return &localComm{world: w, rank: rank}
}

// Size returns the number of ranks.
func (w *LocalWorld) Size() int { return w.size }

// Close shuts the world down, failing blocked and future operations.
func (w *LocalWorld) Close() {
	w.once.Do(func() { close(w.done) })
}

func (w *LocalWorld) box(r route) *mailbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.boxes[r]
	if !ok {
		b = &mailbox{signal: make(chan struct{}, 1)}
		w.boxes[r] = b
	}
	return b
}

func (w *LocalWorld) closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// mailbox is an unbounded FIFO with a single consumer.
type mailbox struct {
	mu     sync.Mutex
	msgs   [][]byte
	signal chan struct{}
}

func (m *mailbox) put(buf []byte) {
	m.mu.Lock()
	m.msgs = append(m.msgs, buf)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) wait(ctx context.Context, done <-chan struct{}, pop bool) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.msgs) > 0 {
			buf := m.msgs[0]
			if pop {
				m.msgs[0] = nil
				m.msgs = m.msgs[1:]
			}
			m.mu.Unlock()
			return buf, nil
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
			return nil, ErrWorldClosed
		}
	}
}

type localComm struct {
	world *LocalWorld
	rank  int
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.world.size }

func (c *localComm) check(peer int) error {
	if c.world.closed() {
		return ErrWorldClosed
	}
	if peer < 0 || peer >= c.world.size {
		return fmt.Errorf("%w: rank %d in world of size %d", ErrRankUnreachable, peer, c.world.size)
	}
	return nil
}

func (c *localComm) Send(ctx context.Context, dest, tag int, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.check(dest); err != nil {
		return err
	}
	c.world.box(route{src: c.rank, dst: dest, tag: tag}).put(append([]byte(nil), buf...))
	return nil
}

func (c *localComm) Recv(ctx context.Context, src, tag int) ([]byte, error) {
	if err := c.check(src); err != nil {
		return nil, err
	}
	return c.world.box(route{src: src, dst: c.rank, tag: tag}).wait(ctx, c.world.done, true)
}

func (c *localComm) Probe(ctx context.Context, src, tag int) (int, error) {
	if err := c.check(src); err != nil {
		return 0, err
	}
	buf, err := c.world.box(route{src: src, dst: c.rank, tag: tag}).wait(ctx, c.world.done, false)
	return len(buf), err
}

func (c *localComm) Multicast(ctx context.Context, dests []int, tag int, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range dests {
		if err := c.check(d); err != nil {
			return err
		}
	}
	for _, d := range dests {
		c.world.box(route{src: c.rank, dst: d, tag: tag}).put(append([]byte(nil), buf...))
	}
	return nil
}
