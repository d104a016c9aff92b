package worker

import (
	"context"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

// State is the state of a worker control loop.
type State int

const (
	// StateAnnounce is the initial state: the worker has not told the
	// master what it can do yet.
	StateAnnounce State = iota
	// StateServe reads commands and writes replies.
	StateServe
	// StateStopped is reached after a quit command.
	StateStopped
	// StateFailed is reached when a read, write or command fails.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateAnnounce:
		return "Announce"
	case StateServe:
		return "Serve"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// EventEmitter is called when the loop changes state.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Loop drives one Proxy over one Connection.
//
// Run announces the worker once, then serves commands until the proxy
// reports a quit. A failed read, write or command ends the loop; it is
// never retried.
type Loop struct {
	conn    transport.Connection
	proxy   Proxy
	host    string
	logger  log.Logger
	emitter EventEmitter

	mu      sync.RWMutex
	state   State
	handled int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) LoopOption {
	return func(lp *Loop) { lp.logger = log.OrNoop(l) }
}

// WithEventEmitter sets a receiver for state changes.
func WithEventEmitter(e EventEmitter) LoopOption {
	return func(lp *Loop) { lp.emitter = e }
}

// NewLoop creates a loop for proxy on conn, announcing host.
func NewLoop(conn transport.Connection, proxy Proxy, host string, opts ...LoopOption) *Loop {
	l := &Loop{
		conn:   conn,
		proxy:  proxy,
		host:   host,
		logger: log.NoopLogger{},
		state:  StateAnnounce,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Handled returns the number of commands answered so far.
func (l *Loop) Handled() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handled
}

func (l *Loop) transition(to State, reason string) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()

	// Emit event outside of lock
	if l.emitter != nil {
		l.emitter.OnStateChange(from, to, reason)
	}
	l.logger.Debug("state transition",
		log.String("from", from.String()),
		log.String("to", to.String()),
		log.String("reason", reason),
	)
}

func (l *Loop) fail(msg string, err error) error {
	l.logger.Error(msg, log.Err(err), log.String("peer", l.conn.Addr()))
	l.transition(StateFailed, err.Error())
	return err
}

// Run executes the loop. It returns nil after a quit command and the
// causing error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.announce(ctx); err != nil {
		return l.fail("announce failed", err)
	}
	l.transition(StateServe, "announced")

	for {
		in, err := l.conn.Read(ctx)
		if err != nil {
			return l.fail("read failed", err)
		}
		out, cont, err := l.proxy.HandleData(ctx, in)
		if err != nil {
			return l.fail("command failed", err)
		}
		if !cont {
			l.logger.Info("quit received", log.Int("handled", l.Handled()))
			l.transition(StateStopped, "quit")
			return nil
		}
		if len(out) > 0 {
			if err := l.conn.Write(ctx, out); err != nil {
				return l.fail("write failed", err)
			}
		}
		l.mu.Lock()
		l.handled++
		l.mu.Unlock()
	}
}

func (l *Loop) announce(ctx context.Context) error {
	info := cluster.WorkerInfo{HostName: l.host, WorkTypes: l.proxy.WorkTypes()}
	buf, err := cluster.MarshalWorkerInfo(info)
	if err != nil {
		return err
	}
	if err := l.conn.Write(ctx, buf); err != nil {
		return err
	}
	l.logger.Info("announced",
		log.String("host", l.host),
		log.Int32s("work_types", info.WorkTypes),
		log.String("peer", l.conn.Addr()),
	)
	return nil
}
