package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/transport"
	"github.com/bft-labs/mwdispatch/pkg/transport/sockconn"
	"github.com/bft-labs/mwdispatch/pkg/worker"
)

// RunWorker dials the master and serves it until told to quit.
func (r *Runner) RunWorker(ctx context.Context) error {
	proxy, err := r.newProxy(r.cfg.Proxy, r.cfg.Host)
	if err != nil {
		return err
	}
	conn, err := r.dialMaster(ctx, r.cfg.MasterAddr)
	if err != nil {
		return err
	}
	return r.serve(ctx, conn, proxy, r.cfg.Host)
}

// dialMaster retries with backoff until the master accepts or the dial
// timeout expires.
func (r *Runner) dialMaster(ctx context.Context, addr string) (*sockconn.Conn, error) {
	if r.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DialTimeout)
		defer cancel()
	}
	b := newBackoff(r.cfg.RetryInitial, r.cfg.RetryMax)
	for attempt := 1; ; attempt++ {
		conn, err := sockconn.Dial(ctx, addr)
		if err == nil {
			r.logger.Info("connected to master", log.String("master", addr), log.Int("attempts", attempt))
			return conn, nil
		}
		r.logger.Debug("dial failed, retrying",
			log.String("master", addr),
			log.Int("attempt", attempt),
			log.Duration("backoff", b.Current()),
			log.Err(err),
		)
		if werr := b.Wait(ctx); werr != nil {
			return nil, fmt.Errorf("dial master %s: gave up after %d attempts: %w", addr, attempt, err)
		}
	}
}

// newProxy creates the named proxy for host.
func (r *Runner) newProxy(name, host string) (worker.Proxy, error) {
	f := worker.NewFactory()
	worker.RegisterDefaults(f, host, r.registry, r.logger)
	return f.Create(name)
}

// serve runs a worker loop on conn and closes conn afterwards.
func (r *Runner) serve(ctx context.Context, conn transport.Connection, proxy worker.Proxy, host string) error {
	defer conn.Close()
	loop := worker.NewLoop(conn, proxy, host,
		worker.WithLogger(r.logger),
		worker.WithEventEmitter(stateLogger{logger: r.logger, host: host}),
	)
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("worker %s: %w", host, err)
	}
	return nil
}
