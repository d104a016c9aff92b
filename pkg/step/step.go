// Package step defines the work steps a master dispatches to its workers.
//
// A Step is a closed tagged variant: its Kind selects which fields are
// meaningful. Leaf kinds (Solve, Predict, Correct, Subtract) carry
// parameters and no children; a Multi step owns an ordered list of
// children. Steps are encoded as self-describing blob records and rebuilt
// through a Registry, so a receiver only needs the names it registered.
package step

import (
	"fmt"
	"strings"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
)

// Kind is the discriminant of a Step.
type Kind int

const (
	KindInvalid Kind = iota
	KindSolve
	KindPredict
	KindCorrect
	KindSubtract
	KindMulti
)

// Registered type names of the built-in kinds.
const (
	SolveTypeName    = "MWSolveStep"
	PredictTypeName  = "MWPredictStep"
	CorrectTypeName  = "MWCorrectStep"
	SubtractTypeName = "MWSubtractStep"
	MultiTypeName    = "MWMultiStep"
)

// String returns the lower-case operation name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSolve:
		return "solve"
	case KindPredict:
		return "predict"
	case KindCorrect:
		return "correct"
	case KindSubtract:
		return "subtract"
	case KindMulti:
		return "multi"
	default:
		return "invalid"
	}
}

// TypeName returns the name the kind is encoded under.
func (k Kind) TypeName() string {
	switch k {
	case KindSolve:
		return SolveTypeName
	case KindPredict:
		return PredictTypeName
	case KindCorrect:
		return CorrectTypeName
	case KindSubtract:
		return SubtractTypeName
	case KindMulti:
		return MultiTypeName
	default:
		return ""
	}
}

// IsLeaf reports whether steps of this kind carry parameters instead of children.
func (k Kind) IsLeaf() bool {
	return k >= KindSolve && k <= KindSubtract
}

// ParseKind converts an operation name such as "predict" to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solve":
		return KindSolve, nil
	case "predict":
		return KindPredict, nil
	case "correct":
		return KindCorrect, nil
	case "subtract":
		return KindSubtract, nil
	case "multi":
		return KindMulti, nil
	default:
		return KindInvalid, fmt.Errorf("unknown step operation %q", s)
	}
}

// SolveParams are the parameters of a Solve step.
type SolveParams struct {
	Parms     []string
	ExclParms []string
	MaxIter   int32
	Epsilon   float64
	Shape     cluster.DomainShape
}

// Step is one unit of dispatchable work.
type Step struct {
	Kind Kind

	// Predict, Correct and Subtract.
	OutputData string
	Sources    []string

	// Solve.
	Solve SolveParams

	// Multi.
	Children []*Step
}

// NewPredict creates a Predict step writing to outputData.
func NewPredict(outputData string, sources ...string) *Step {
	return &Step{Kind: KindPredict, OutputData: outputData, Sources: sources}
}

// NewCorrect creates a Correct step writing to outputData.
func NewCorrect(outputData string, sources ...string) *Step {
	return &Step{Kind: KindCorrect, OutputData: outputData, Sources: sources}
}

// NewSubtract creates a Subtract step writing to outputData.
func NewSubtract(outputData string, sources ...string) *Step {
	return &Step{Kind: KindSubtract, OutputData: outputData, Sources: sources}
}

// NewSolve creates a Solve step.
func NewSolve(p SolveParams) *Step {
	return &Step{Kind: KindSolve, Solve: p}
}

// NewMulti creates a Multi step owning children.
func NewMulti(children ...*Step) *Step {
	return &Step{Kind: KindMulti, Children: children}
}

// Push appends child to a Multi step. The child must not belong to another step.
func (s *Step) Push(child *Step) {
	s.Children = append(s.Children, child)
}

// TypeName returns the name the step is encoded under.
func (s *Step) TypeName() string { return s.Kind.TypeName() }

// Clone returns a deep copy of s. Children are cloned recursively.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	c := &Step{
		Kind:       s.Kind,
		OutputData: s.OutputData,
		Sources:    cloneStrings(s.Sources),
		Solve: SolveParams{
			Parms:     cloneStrings(s.Solve.Parms),
			ExclParms: cloneStrings(s.Solve.ExclParms),
			MaxIter:   s.Solve.MaxIter,
			Epsilon:   s.Solve.Epsilon,
			Shape:     s.Solve.Shape,
		},
	}
	if s.Children != nil {
		c.Children = make([]*Step, len(s.Children))
		for i, child := range s.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Validate checks that the step and all its descendants are well formed.
func (s *Step) Validate() error {
	if s == nil {
		return fmt.Errorf("nil step")
	}
	switch {
	case s.Kind == KindMulti:
		for i, child := range s.Children {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
	case s.Kind.IsLeaf():
		if len(s.Children) != 0 {
			return fmt.Errorf("%s step cannot have children", s.Kind)
		}
		if s.Kind != KindSolve && s.OutputData == "" {
			return fmt.Errorf("%s step requires output data", s.Kind)
		}
		if s.Kind == KindSolve && s.Solve.MaxIter < 0 {
			return fmt.Errorf("solve step has negative max iterations %d", s.Solve.MaxIter)
		}
	default:
		return fmt.Errorf("invalid step kind %d", int(s.Kind))
	}
	return nil
}

// Equal reports whether a and b have the same kind and fields, comparing
// children recursively. Nil and empty slices are equal.
func Equal(a, b *Step) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind ||
		a.OutputData != b.OutputData ||
		!equalStrings(a.Sources, b.Sources) ||
		!equalStrings(a.Solve.Parms, b.Solve.Parms) ||
		!equalStrings(a.Solve.ExclParms, b.Solve.ExclParms) ||
		a.Solve.MaxIter != b.Solve.MaxIter ||
		a.Solve.Epsilon != b.Solve.Epsilon ||
		a.Solve.Shape != b.Solve.Shape ||
		len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Leaves returns the leaf steps under s in depth-first order.
func (s *Step) Leaves() []*Step {
	var out []*Step
	var walk func(*Step)
	walk = func(st *Step) {
		if st.Kind == KindMulti {
			for _, c := range st.Children {
				walk(c)
			}
			return
		}
		out = append(out, st)
	}
	walk(s)
	return out
}

func (s *Step) String() string {
	if s.Kind == KindMulti {
		return fmt.Sprintf("multi(%d)", len(s.Children))
	}
	if s.Kind == KindSolve {
		return fmt.Sprintf("solve(%d parms)", len(s.Solve.Parms))
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.OutputData)
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append([]string(nil), ss...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
