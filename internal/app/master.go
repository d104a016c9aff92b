package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/master"
	"github.com/bft-labs/mwdispatch/pkg/transport"
	"github.com/bft-labs/mwdispatch/pkg/transport/sockconn"
)

// RunMaster listens for the configured number of socket workers and
// drives them through the strategy.
func (r *Runner) RunMaster(ctx context.Context) (*Report, error) {
	p, err := r.loadPlan()
	if err != nil {
		return nil, err
	}
	ln, err := sockconn.Listen(r.cfg.Listen)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	r.logger.Info("waiting for workers", log.String("listen", ln.Addr()), log.Int("workers", r.cfg.Workers))

	set, err := r.acceptWorkers(ctx, ln, r.cfg.Workers)
	if err != nil {
		return nil, err
	}
	return r.drive(ctx, set, p)
}

// acceptWorkers accepts n connections within the accept timeout.
func (r *Runner) acceptWorkers(ctx context.Context, ln *sockconn.Listener, n int) (*transport.ConnectionSet, error) {
	if r.cfg.AcceptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.AcceptTimeout)
		defer cancel()
	}
	set := transport.NewConnectionSet()
	for set.Size() < n {
		conn, err := ln.Accept(ctx)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("accepted %d of %d workers: %w", set.Size(), n, err)
		}
		seq := set.Add(conn)
		r.logger.Debug("worker connected", log.Int("seq", seq), log.String("peer", conn.Addr()))
	}
	return set, nil
}

// drive runs one complete master session over set and closes it.
func (r *Runner) drive(ctx context.Context, set *transport.ConnectionSet, p *plan) (*Report, error) {
	st := &stats{logger: r.logger}
	opts := []master.Option{
		master.WithLogger(r.logger),
		master.WithEventHandler(st),
		master.WithConcurrency(r.cfg.Concurrency),
	}
	if p.desc != nil {
		opts = append(opts, master.WithClusterDesc(*p.desc))
	}
	if fs := p.strategy.FileSystem; fs != "" {
		opts = append(opts, master.WithFileSystem(fs))
	}
	m := master.New(set, opts...)
	defer m.Close()

	start := time.Now()
	infos, err := m.Announce(ctx)
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}
	if p.desc != nil {
		for seq, info := range infos {
			if _, ok := p.desc.Node(info.HostName); !ok {
				r.logger.Warn("worker host not in cluster description",
					log.Int("seq", seq),
					log.String("host", info.HostName),
					log.String("cluster", p.desc.Name),
				)
			}
		}
	}

	if err := m.SetWorkDomain(ctx, p.strategy.WorkDomain); err != nil {
		return nil, fmt.Errorf("set work domain: %w", err)
	}
	if err := m.Process(ctx, p.tree); err != nil {
		return nil, fmt.Errorf("process %q: %w", p.strategy.Name, err)
	}
	if err := m.Quit(ctx); err != nil {
		return nil, fmt.Errorf("quit: %w", err)
	}

	return &Report{
		RunID:    m.ID(),
		Strategy: p.strategy.Name,
		Workers:  infos,
		Leaves:   len(p.tree.Leaves()),
		Replies:  st.replies.Load(),
		Failures: st.failures.Load(),
		Elapsed:  time.Since(start),
	}, nil
}
