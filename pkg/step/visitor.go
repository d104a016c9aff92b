package step

import "github.com/bft-labs/mwdispatch/pkg/mwerr"

// Handler acts on a single step.
type Handler func(s *Step) error

// Visitor is a set of handlers selected by step kind.
//
// A nil Multi handler visits the children in order. A nil leaf handler
// falls back to Default; if that is nil too, visiting the step fails.
type Visitor struct {
	Solve    Handler
	Predict  Handler
	Correct  Handler
	Subtract Handler
	Multi    Handler
	Default  Handler
}

func (v *Visitor) handler(k Kind) Handler {
	switch k {
	case KindSolve:
		return v.Solve
	case KindPredict:
		return v.Predict
	case KindCorrect:
		return v.Correct
	case KindSubtract:
		return v.Subtract
	case KindMulti:
		return v.Multi
	default:
		return nil
	}
}

// Accept calls the handler of v matching the kind of s, exactly once.
func (s *Step) Accept(v *Visitor) error {
	if h := v.handler(s.Kind); h != nil {
		return h(s)
	}
	if s.Kind == KindMulti {
		return s.VisitChildren(v)
	}
	if s.Kind.IsLeaf() && v.Default != nil {
		return v.Default(s)
	}
	return mwerr.Usage("visit step", "", "no handler for %s step", s.Kind)
}

// VisitChildren lets each child accept v, in order, stopping at the first error.
// Custom Multi handlers call it to keep descending.
func (s *Step) VisitChildren(v *Visitor) error {
	for _, child := range s.Children {
		if err := child.Accept(v); err != nil {
			return err
		}
	}
	return nil
}
