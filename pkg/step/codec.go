package step

import (
	"github.com/bft-labs/mwdispatch/pkg/blob"
	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Version is the record version of every built-in step kind.
const Version int32 = 1

// MaxDepth bounds the nesting of Multi steps, counting the root as depth 1.
const MaxDepth = 1024

// Encode writes s and, for a Multi step, all its descendants.
func (s *Step) Encode(w *blob.Writer) error {
	name := s.TypeName()
	if name == "" {
		return mwerr.Usage("encode step", "", "invalid step kind %d", int(s.Kind))
	}
	if w.Depth() >= MaxDepth {
		return mwerr.Usage("encode step", "", "nesting deeper than %d", MaxDepth)
	}
	w.PutStart(name, Version)
	switch s.Kind {
	case KindPredict, KindCorrect, KindSubtract:
		w.PutString(s.OutputData)
		w.PutStrings(s.Sources)
	case KindSolve:
		w.PutStrings(s.Solve.Parms)
		w.PutStrings(s.Solve.ExclParms)
		w.PutInt32(s.Solve.MaxIter)
		w.PutFloat64(s.Solve.Epsilon)
		s.Solve.Shape.Encode(w)
	case KindMulti:
		w.PutUint32(uint32(len(s.Children)))
		for _, child := range s.Children {
			if err := child.Encode(w); err != nil {
				return err
			}
		}
	}
	w.PutEnd()
	return w.Err()
}

// Decode reads the next step record, creating it through reg.
// Children of a Multi step are resolved through reg one by one; the first
// one that fails aborts the whole decode.
func Decode(r *blob.Reader, reg *Registry) (*Step, error) {
	if r.Depth() >= MaxDepth {
		return nil, mwerr.Protocol("decode step", "nesting deeper than %d", MaxDepth)
	}
	name, err := r.PeekName()
	if err != nil {
		return nil, err
	}
	s, err := reg.Create(name)
	if err != nil {
		return nil, err
	}
	if err := r.GetStartVersion(name, Version); err != nil {
		return nil, err
	}

	switch s.Kind {
	case KindPredict, KindCorrect, KindSubtract:
		s.OutputData = r.String()
		s.Sources = r.Strings()
	case KindSolve:
		s.Solve.Parms = r.Strings()
		s.Solve.ExclParms = r.Strings()
		s.Solve.MaxIter = r.Int32()
		s.Solve.Epsilon = r.Float64()
		if r.Err() != nil {
			return nil, r.Err()
		}
		shape, err := cluster.DecodeDomainShape(r)
		if err != nil {
			return nil, err
		}
		s.Solve.Shape = shape
	case KindMulti:
		n := r.Uint32()
		if r.Err() != nil {
			return nil, r.Err()
		}
		s.Children = nil
		for i := uint32(0); i < n; i++ {
			child, err := Decode(r, reg)
			if err != nil {
				return nil, err
			}
			s.Children = append(s.Children, child)
		}
	}

	if err := r.GetEnd(); err != nil {
		return nil, err
	}
	return s, nil
}

// Marshal encodes s as a standalone message.
func Marshal(s *Step) ([]byte, error) {
	w := blob.NewWriter()
	if err := s.Encode(w); err != nil {
		return nil, err
	}
	return w.Finish()
}

// Unmarshal decodes a message produced by Marshal.
func Unmarshal(buf []byte, reg *Registry) (*Step, error) {
	r := blob.NewReader(buf)
	s, err := Decode(r, reg)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, mwerr.Protocol("decode step", "%d trailing byte(s) after %s", r.Remaining(), s.TypeName())
	}
	return s, nil
}
