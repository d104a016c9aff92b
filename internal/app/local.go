package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/mwdispatch/internal/cliconfig"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/transport"
	"github.com/bft-labs/mwdispatch/pkg/transport/mpiconn"
	"github.com/bft-labs/mwdispatch/pkg/transport/sockconn"
	"github.com/bft-labs/mwdispatch/pkg/worker"
)

type localWorker struct {
	proxy string
	host  string
}

func (r *Runner) localWorkers() []localWorker {
	var out []localWorker
	for i := 0; i < r.cfg.Prediffers; i++ {
		out = append(out, localWorker{worker.PredifferProxy, fmt.Sprintf("%s-p%d", r.cfg.Host, i)})
	}
	for i := 0; i < r.cfg.Solvers; i++ {
		out = append(out, localWorker{worker.SolverProxy, fmt.Sprintf("%s-s%d", r.cfg.Host, i)})
	}
	return out
}

// proxies creates the proxy of every local worker.
func (r *Runner) proxies(workers []localWorker) ([]worker.Proxy, error) {
	out := make([]worker.Proxy, len(workers))
	for i, w := range workers {
		proxy, err := r.newProxy(w.proxy, w.host)
		if err != nil {
			return nil, err
		}
		out[i] = proxy
	}
	return out, nil
}

// RunLocal runs the master and all workers in this process over the
// configured transport.
func (r *Runner) RunLocal(ctx context.Context) (*Report, error) {
	p, err := r.loadPlan()
	if err != nil {
		return nil, err
	}
	workers := r.localWorkers()
	r.logger.Info("starting local run",
		log.String("transport", r.cfg.Transport),
		log.Int("prediffers", r.cfg.Prediffers),
		log.Int("solvers", r.cfg.Solvers),
	)

	switch r.cfg.Transport {
	case cliconfig.TransportMem:
		return r.runInProcess(ctx, p, workers)
	case cliconfig.TransportMPI:
		return r.runRanks(ctx, p, workers)
	case cliconfig.TransportSocket:
		return r.runLoopback(ctx, p, workers)
	default:
		return nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
	}
}

// runInProcess needs no goroutines: each in-process connection runs its
// proxy inside Write.
func (r *Runner) runInProcess(ctx context.Context, p *plan, workers []localWorker) (*Report, error) {
	proxies, err := r.proxies(workers)
	if err != nil {
		return nil, err
	}
	set := transport.NewConnectionSet()
	for i, w := range workers {
		conn, err := worker.NewInProcess(proxies[i], w.host)
		if err != nil {
			return nil, err
		}
		set.Add(conn)
	}
	return r.drive(ctx, set, p)
}

// runRanks puts the master on rank 0 of a local world and one worker on
// every other rank.
func (r *Runner) runRanks(ctx context.Context, p *plan, workers []localWorker) (*Report, error) {
	proxies, err := r.proxies(workers)
	if err != nil {
		return nil, err
	}
	world := mpiconn.NewLocalWorld(len(workers) + 1)
	defer world.Close()

	set, err := mpiconn.NewSet(world.Comm(0), r.cfg.Tag)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w := i, w
		conn := mpiconn.New(world.Comm(i+1), 0, r.cfg.Tag)
		g.Go(func() error { return r.serve(gctx, conn, proxies[i], w.host) })
	}

	var rep *Report
	g.Go(func() error {
		var err error
		rep, err = r.drive(gctx, set, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// runLoopback connects the workers to the master over real sockets.
func (r *Runner) runLoopback(ctx context.Context, p *plan, workers []localWorker) (*Report, error) {
	proxies, err := r.proxies(workers)
	if err != nil {
		return nil, err
	}
	ln, err := sockconn.Listen(r.cfg.Listen)
	if err != nil {
		return nil, err
	}
	defer ln.Close()

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			conn, err := r.dialMaster(gctx, ln.Addr())
			if err != nil {
				return err
			}
			return r.serve(gctx, conn, proxies[i], w.host)
		})
	}

	var rep *Report
	g.Go(func() error {
		set, err := r.acceptWorkers(gctx, ln, len(workers))
		if err != nil {
			return err
		}
		rep, err = r.drive(gctx, set, p)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}
