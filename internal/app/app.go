// Package app wires configuration, transports, the master and the worker
// loops into the processes started by mwcontrol.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/mwdispatch/internal/cliconfig"
	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/protocol"
	"github.com/bft-labs/mwdispatch/pkg/step"
	"github.com/bft-labs/mwdispatch/pkg/strategy"
	"github.com/bft-labs/mwdispatch/pkg/worker"
)

// Report summarizes a finished run.
type Report struct {
	RunID    string               `json:"run_id"`
	Strategy string               `json:"strategy"`
	Workers  []cluster.WorkerInfo `json:"workers"`
	Leaves   int                  `json:"leaves"`
	Replies  int64                `json:"replies"`
	Failures int64                `json:"failures"`
	Elapsed  time.Duration        `json:"elapsed_ns"`
}

// Runner starts the process selected by the configured role.
type Runner struct {
	cfg      cliconfig.Config
	logger   log.Logger
	registry *step.Registry
}

// NewRunner creates a runner. cfg must have been validated.
func NewRunner(cfg cliconfig.Config, logger log.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		logger:   log.OrNoop(logger),
		registry: step.NewDefaultRegistry(),
	}
}

// Run executes the configured role until it finishes or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var rep *Report
	var err error
	switch r.cfg.Role {
	case cliconfig.RoleMaster:
		rep, err = r.RunMaster(ctx)
	case cliconfig.RoleWorker:
		return r.RunWorker(ctx)
	case cliconfig.RoleLocal:
		rep, err = r.RunLocal(ctx)
	default:
		return fmt.Errorf("unknown role %q", r.cfg.Role)
	}
	if err != nil {
		return err
	}
	if r.cfg.ReportDir != "" {
		path, err := SaveReport(r.cfg.ReportDir, rep)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		r.logger.Debug("report written", log.String("path", path))
	}
	r.logger.Info("run finished",
		log.String("run_id", rep.RunID),
		log.String("strategy", rep.Strategy),
		log.Int("workers", len(rep.Workers)),
		log.Int("leaves", rep.Leaves),
		log.Int64("replies", rep.Replies),
		log.Duration("elapsed", rep.Elapsed),
	)
	return nil
}

// plan is everything a master needs before it talks to workers.
type plan struct {
	strategy *strategy.Strategy
	tree     *step.Step
	desc     *cluster.ClusterDesc
}

func (r *Runner) loadPlan() (*plan, error) {
	s, err := strategy.Load(r.cfg.StrategyFile)
	if err != nil {
		return nil, err
	}
	tree, err := s.Build()
	if err != nil {
		return nil, err
	}
	if err := s.WorkDomain.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %q: %w", s.Name, err)
	}
	p := &plan{strategy: s, tree: tree}
	if r.cfg.ClusterFile != "" {
		desc, err := cluster.LoadClusterDesc(r.cfg.ClusterFile)
		if err != nil {
			return nil, err
		}
		p.desc = &desc
	} else if s.FileSystem != "" {
		r.logger.Warn("file_system ignored without a cluster description",
			log.String("strategy", s.Name),
			log.String("file_system", s.FileSystem),
		)
	}
	r.logger.Info("strategy loaded",
		log.String("strategy", s.Name),
		log.String("in_column", s.WorkDomain.InColumn),
		log.Int("leaves", len(tree.Leaves())),
	)
	return p, nil
}

// stats counts master events.
type stats struct {
	logger   log.Logger
	replies  atomic.Int64
	failures atomic.Int64
}

func (s *stats) OnReply(seq int, rep protocol.Reply, took time.Duration) {
	s.replies.Add(1)
	s.logger.Debug("reply",
		log.Int("seq", seq),
		log.String("op", rep.Op.String()),
		log.String("host", rep.Host),
		log.String("step_type", rep.StepType),
		log.Bool("ok", rep.OK),
		log.Duration("took", took),
	)
}

func (s *stats) OnWorkerError(int, string, error) {
	s.failures.Add(1)
}

// stateLogger reports worker loop transitions.
type stateLogger struct {
	logger log.Logger
	host   string
}

func (s stateLogger) OnStateChange(previous, current worker.State, reason string) {
	fields := []log.Field{
		log.String("host", s.host),
		log.String("from", previous.String()),
		log.String("to", current.String()),
		log.String("reason", reason),
	}
	if current == worker.StateFailed {
		s.logger.Warn("worker state changed", fields...)
		return
	}
	s.logger.Debug("worker state changed", fields...)
}
