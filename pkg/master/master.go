// Package master drives a pool of workers through a ConnectionSet: it
// collects their announcements, sets their work domain, dispatches the
// leaves of a step tree and finally tells them to quit.
package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/protocol"
	"github.com/bft-labs/mwdispatch/pkg/step"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

// EventHandler receives per-worker results.
type EventHandler interface {
	OnReply(seq int, reply protocol.Reply, took time.Duration)
	OnWorkerError(seq int, addr string, err error)
}

// Master coordinates one run.
type Master struct {
	id          string
	set         *transport.ConnectionSet
	desc        *cluster.ClusterDesc
	fileSystem  string
	logger      log.Logger
	events      EventHandler
	concurrency int

	mu      sync.RWMutex
	workers []cluster.WorkerInfo
}

// Option configures a Master.
type Option func(*Master)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(m *Master) { m.logger = log.OrNoop(l) }
}

// WithEventHandler sets a receiver for replies and worker failures.
func WithEventHandler(h EventHandler) Option {
	return func(m *Master) { m.events = h }
}

// WithClusterDesc sets the cluster description used by Subset to match
// workers to file systems.
func WithClusterDesc(desc cluster.ClusterDesc) Option {
	return func(m *Master) { m.desc = &desc }
}

// WithFileSystem makes Process address only workers whose node reaches fs.
// It has no effect without a cluster description.
func WithFileSystem(fs string) Option {
	return func(m *Master) { m.fileSystem = fs }
}

// WithConcurrency bounds the number of workers addressed at once.
// Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(m *Master) { m.concurrency = n }
}

// New creates a master over set. The set must not be modified afterwards.
func New(set *transport.ConnectionSet, opts ...Option) *Master {
	m := &Master{
		id:     uuid.NewString(),
		set:    set,
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the run identifier.
func (m *Master) ID() string { return m.id }

// Workers returns the announced workers, indexed by sequence number.
func (m *Master) Workers() []cluster.WorkerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]cluster.WorkerInfo(nil), m.workers...)
}

func (m *Master) group() *errgroup.Group {
	g := new(errgroup.Group)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	return g
}

func (m *Master) workerFailed(seq int, err error) error {
	addr := m.set.Get(seq).Addr()
	m.logger.Error("worker failed", log.Int("seq", seq), log.String("peer", addr), log.Err(err))
	if m.events != nil {
		m.events.OnWorkerError(seq, addr, err)
	}
	return fmt.Errorf("worker %d (%s): %w", seq, addr, err)
}

// Announce reads one WorkerInfo from every connection.
func (m *Master) Announce(ctx context.Context) ([]cluster.WorkerInfo, error) {
	infos := make([]cluster.WorkerInfo, m.set.Size())
	g := m.group()
	for i := 0; i < m.set.Size(); i++ {
		seq := i
		g.Go(func() error {
			buf, err := m.set.Read(ctx, seq)
			if err != nil {
				return m.workerFailed(seq, err)
			}
			info, err := cluster.UnmarshalWorkerInfo(buf)
			if err != nil {
				return m.workerFailed(seq, err)
			}
			infos[seq] = info
			m.logger.Info("worker announced",
				log.Int("seq", seq),
				log.String("host", info.HostName),
				log.String("work_type", cluster.WorkTypeName(info.PrimaryType())),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.workers = infos
	m.mu.Unlock()
	return append([]cluster.WorkerInfo(nil), infos...), nil
}

// SetWorkDomain sends wds to every worker and waits for all replies.
func (m *Master) SetWorkDomain(ctx context.Context, wds cluster.WorkDomainSpec) error {
	if err := wds.Validate(); err != nil {
		return err
	}
	buf, err := protocol.MarshalCommand(protocol.InitCommand(wds))
	if err != nil {
		return err
	}
	if err := m.set.WriteAll(ctx, buf); err != nil {
		return err
	}
	all := make([]int, m.set.Size())
	for i := range all {
		all[i] = i
	}
	return m.collect(ctx, m.set, all, protocol.OpInit, time.Now())
}

// Process dispatches every leaf of s, in tree order. Solve steps go to
// solver workers, all other kinds to prediffers; each leaf is sent to all
// workers of its type concurrently and must be answered by all of them
// before the next leaf is sent. With WithFileSystem, workers on nodes that
// do not reach the file system are skipped.
func (m *Master) Process(ctx context.Context, s *step.Step) error {
	if err := s.Validate(); err != nil {
		return mwerr.Usage("process", "", "%v", err)
	}
	dispatch := func(leaf *step.Step) error { return m.dispatch(ctx, leaf) }
	return s.Accept(&step.Visitor{Default: dispatch})
}

// WorkTypeFor returns the work type that performs steps of kind k.
func WorkTypeFor(k step.Kind) int32 {
	if k == step.KindSolve {
		return cluster.WorkTypeSolver
	}
	return cluster.WorkTypePrediffer
}

func (m *Master) dispatch(ctx context.Context, leaf *step.Step) error {
	workType := WorkTypeFor(leaf.Kind)
	indices := m.Subset(workType, m.fileSystem)
	if len(indices) == 0 {
		if m.fileSystem != "" && m.desc != nil {
			return mwerr.Usage("process", "", "no %s worker on %s for %s", cluster.WorkTypeName(workType), m.fileSystem, leaf)
		}
		return mwerr.Usage("process", "", "no %s worker for %s", cluster.WorkTypeName(workType), leaf)
	}
	buf, err := protocol.MarshalCommand(protocol.StepCommand(leaf))
	if err != nil {
		return err
	}

	m.logger.Debug("dispatching step",
		log.String("run_id", m.id),
		log.String("step", leaf.String()),
		log.Int("workers", len(indices)),
	)

	sub := m.set.Clone(indices...)
	start := time.Now()
	if err := sub.WriteAll(ctx, buf); err != nil {
		return err
	}
	return m.collect(ctx, sub, indices, protocol.OpStep, start)
}

// collect reads one reply from each connection of sub. seqs maps the
// positions in sub back to sequence numbers of the master's set.
func (m *Master) collect(ctx context.Context, sub *transport.ConnectionSet, seqs []int, op protocol.Op, start time.Time) error {
	g := m.group()
	for i := range seqs {
		pos, seq := i, seqs[i]
		g.Go(func() error {
			buf, err := sub.Read(ctx, pos)
			if err != nil {
				return m.workerFailed(seq, err)
			}
			rep, err := protocol.UnmarshalReply(buf)
			if err != nil {
				return m.workerFailed(seq, err)
			}
			if rep.Op != op {
				return m.workerFailed(seq, mwerr.Protocol("read reply", "reply to %s, expected %s", rep.Op, op))
			}
			if m.events != nil {
				m.events.OnReply(seq, rep, time.Since(start))
			}
			if err := rep.Err(); err != nil {
				return m.workerFailed(seq, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Quit tells every worker to stop. Workers do not reply.
func (m *Master) Quit(ctx context.Context) error {
	buf, err := protocol.MarshalCommand(protocol.QuitCommand())
	if err != nil {
		return err
	}
	if err := m.set.WriteAll(ctx, buf); err != nil {
		return err
	}
	m.logger.Info("workers told to quit", log.String("run_id", m.id), log.Int("workers", m.set.Size()))
	return nil
}

// Subset returns the sequence numbers of the announced workers whose
// primary type is workType (any type when 0) and, when fileSystem is set
// and a cluster description is known, whose host reaches fileSystem.
func (m *Master) Subset(workType int32, fileSystem string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int
	for seq, info := range m.workers {
		if workType != 0 && info.PrimaryType() != workType {
			continue
		}
		if fileSystem != "" && m.desc != nil {
			node, ok := m.desc.Node(info.HostName)
			if !ok || !node.HasFileSystem(fileSystem) {
				continue
			}
		}
		out = append(out, seq)
	}
	return out
}

// Close closes every connection.
func (m *Master) Close() error {
	return m.set.Close()
}
