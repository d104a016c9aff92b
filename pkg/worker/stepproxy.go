package worker

import (
	"context"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/protocol"
	"github.com/bft-labs/mwdispatch/pkg/step"
)

// Built-in proxy type names.
const (
	PredifferProxy = "Prediffer"
	SolverProxy    = "Solver"
)

// StepProxy is a Proxy that decodes protocol commands, runs their steps
// through an Executor and answers with a protocol reply.
//
// A command that cannot be decoded is an error and ends the loop. An
// executor failure is reported to the master in the reply.
type StepProxy struct {
	host      string
	workTypes []int32
	registry  *step.Registry
	exec      Executor
	logger    log.Logger

	mu  sync.Mutex
	wds *cluster.WorkDomainSpec
}

var _ Proxy = (*StepProxy)(nil)

// NewStepProxy creates a proxy for host performing workTypes with exec.
func NewStepProxy(host string, workTypes []int32, registry *step.Registry, exec Executor, logger log.Logger) *StepProxy {
	return &StepProxy{
		host:      host,
		workTypes: workTypes,
		registry:  registry,
		exec:      exec,
		logger:    log.OrNoop(logger),
	}
}

// WorkTypes implements Proxy.
func (p *StepProxy) WorkTypes() []int32 { return p.workTypes }

// WorkDomain returns the work domain set by the last init command.
func (p *StepProxy) WorkDomain() (cluster.WorkDomainSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wds == nil {
		return cluster.WorkDomainSpec{}, false
	}
	return *p.wds, true
}

// HandleData implements Proxy.
func (p *StepProxy) HandleData(ctx context.Context, in []byte) ([]byte, bool, error) {
	cmd, err := protocol.UnmarshalCommand(in, p.registry)
	if err != nil {
		return nil, false, err
	}

	reply := protocol.Reply{Op: cmd.Op, Host: p.host, OK: true}
	if len(p.workTypes) > 0 {
		reply.WorkType = p.workTypes[0]
	}

	switch cmd.Op {
	case protocol.OpQuit:
		return nil, false, nil
	case protocol.OpInit:
		err = p.exec.Init(ctx, cmd.WorkDomain)
		if err == nil {
			wds := cmd.WorkDomain
			p.mu.Lock()
			p.wds = &wds
			p.mu.Unlock()
		}
	case protocol.OpStep:
		reply.StepType = cmd.Step.TypeName()
		err = cmd.Step.Accept(p.visitor(ctx))
	}

	if err != nil {
		p.logger.Warn("command failed",
			log.String("op", cmd.Op.String()),
			log.String("step", reply.StepType),
			log.Err(err),
		)
		reply.OK = false
		reply.Message = err.Error()
	}

	out, err := protocol.MarshalReply(reply)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (p *StepProxy) visitor(ctx context.Context) *step.Visitor {
	return &step.Visitor{
		Solve:    func(s *step.Step) error { return p.exec.Solve(ctx, s) },
		Predict:  func(s *step.Step) error { return p.exec.Predict(ctx, s) },
		Correct:  func(s *step.Step) error { return p.exec.Correct(ctx, s) },
		Subtract: func(s *step.Step) error { return p.exec.Subtract(ctx, s) },
	}
}

// RegisterDefaults registers the Prediffer and Solver proxies for host,
// each backed by a Tracer.
func RegisterDefaults(f *Factory, host string, registry *step.Registry, logger log.Logger) {
	f.Register(PredifferProxy, func() Proxy {
		return NewStepProxy(host, []int32{cluster.WorkTypePrediffer}, registry, NewPrediffer(logger), logger)
	})
	f.Register(SolverProxy, func() Proxy {
		return NewStepProxy(host, []int32{cluster.WorkTypeSolver}, registry, NewSolver(logger), logger)
	})
}
