package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/log"
	"github.com/bft-labs/mwdispatch/pkg/step"
)

// ErrUnsupported is returned by an Executor for a step kind it does not perform.
var ErrUnsupported = errors.New("step kind not supported by this worker")

// Executor performs the work behind each step kind.
// Steps passed in must not be modified.
type Executor interface {
	Init(ctx context.Context, wds cluster.WorkDomainSpec) error
	Solve(ctx context.Context, s *step.Step) error
	Predict(ctx context.Context, s *step.Step) error
	Correct(ctx context.Context, s *step.Step) error
	Subtract(ctx context.Context, s *step.Step) error
}

// Tracer is an Executor that records what it is asked to do instead of
// doing it. It performs only the step kinds it was created with.
type Tracer struct {
	kinds  map[step.Kind]bool
	logger log.Logger

	mu    sync.Mutex
	trace []string
}

var _ Executor = (*Tracer)(nil)

// NewTracer creates a tracer performing kinds.
func NewTracer(logger log.Logger, kinds ...step.Kind) *Tracer {
	t := &Tracer{kinds: make(map[step.Kind]bool, len(kinds)), logger: log.OrNoop(logger)}
	for _, k := range kinds {
		t.kinds[k] = true
	}
	return t
}

// NewPrediffer creates a tracer for the prediffer work type.
func NewPrediffer(logger log.Logger) *Tracer {
	return NewTracer(logger, step.KindPredict, step.KindCorrect, step.KindSubtract)
}

// NewSolver creates a tracer for the solver work type.
func NewSolver(logger log.Logger) *Tracer {
	return NewTracer(logger, step.KindSolve)
}

// Trace returns the recorded operations in order.
func (t *Tracer) Trace() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.trace...)
}

func (t *Tracer) record(entry string) {
	t.mu.Lock()
	t.trace = append(t.trace, entry)
	t.mu.Unlock()
}

// Init records the work domain.
func (t *Tracer) Init(_ context.Context, wds cluster.WorkDomainSpec) error {
	t.record("init " + wds.InColumn)
	t.logger.Debug("work domain set",
		log.String("in_column", wds.InColumn),
		log.String("shape", wds.Shape.String()),
		log.Int("antennas", len(wds.AntNrs)),
	)
	return nil
}

func (t *Tracer) run(ctx context.Context, s *step.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.kinds[s.Kind] {
		return fmt.Errorf("%w: %s", ErrUnsupported, s.Kind)
	}
	t.record(s.String())
	t.logger.Debug("step executed", log.String("step", s.String()), log.Strings("sources", s.Sources))
	return nil
}

// Solve records a solve step.
func (t *Tracer) Solve(ctx context.Context, s *step.Step) error { return t.run(ctx, s) }

// Predict records a predict step.
func (t *Tracer) Predict(ctx context.Context, s *step.Step) error { return t.run(ctx, s) }

// Correct records a correct step.
func (t *Tracer) Correct(ctx context.Context, s *step.Step) error { return t.run(ctx, s) }

// Subtract records a subtract step.
func (t *Tracer) Subtract(ctx context.Context, s *step.Step) error { return t.run(ctx, s) }
