package step

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mwdispatch/pkg/blob"
	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

func sampleSolve() *Step {
	return NewSolve(SolveParams{
		Parms:     []string{"gain:11:*", "gain:22:*"},
		ExclParms: []string{"gain:11:CS001"},
		MaxIter:   50,
		Epsilon:   1e-6,
		Shape:     cluster.DomainShape{FreqSize: 1e6, TimeSize: 60},
	})
}

func TestRoundTrip_AllKinds(t *testing.T) {
	reg := NewDefaultRegistry()

	tests := []struct {
		name string
		step *Step
	}{
		{"solve", sampleSolve()},
		{"solve without parameters", NewSolve(SolveParams{})},
		{"predict", NewPredict("MODEL_DATA", "CasA", "CygA")},
		{"correct", NewCorrect("CORRECTED_DATA")},
		{"subtract", NewSubtract("DATA", "3C196")},
		{"empty multi", NewMulti()},
		{"multi with one child", NewMulti(NewPredict("MODEL_DATA"))},
		{"multi with many children", NewMulti(sampleSolve(), NewPredict("MODEL_DATA"), NewSubtract("DATA"))},
		{"nested multi", NewMulti(
			NewMulti(NewPredict("A"), NewMulti()),
			NewCorrect("B"),
			NewMulti(NewMulti(sampleSolve())),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Marshal(tt.step)
			require.NoError(t, err)

			got, err := Unmarshal(buf, reg)
			require.NoError(t, err)
			assert.True(t, Equal(tt.step, got), "round trip mismatch:\nwant %v\ngot  %v", tt.step, got)
		})
	}
}

func TestEndToEnd_PredictThenCorrect(t *testing.T) {
	original := NewMulti(NewPredict("MODEL_DATA"), NewCorrect("CORRECTED_DATA"))
	buf, err := Marshal(original)
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(PredictTypeName, func() *Step { return &Step{Kind: KindPredict} })
	reg.Register(CorrectTypeName, func() *Step { return &Step{Kind: KindCorrect} })
	reg.Register(MultiTypeName, func() *Step { return &Step{Kind: KindMulti} })

	got, err := Unmarshal(buf, reg)
	require.NoError(t, err)
	require.Equal(t, KindMulti, got.Kind)
	require.Len(t, got.Children, 2)
	assert.Equal(t, KindPredict, got.Children[0].Kind)
	assert.Equal(t, "MODEL_DATA", got.Children[0].OutputData)
	assert.Equal(t, KindCorrect, got.Children[1].Kind)
	assert.Equal(t, "CORRECTED_DATA", got.Children[1].OutputData)
}

func TestUnmarshal_UnregisteredChildAbortsMulti(t *testing.T) {
	buf, err := Marshal(NewMulti(NewPredict("MODEL_DATA"), NewCorrect("CORRECTED_DATA")))
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Register(PredictTypeName, func() *Step { return &Step{Kind: KindPredict} })
	reg.Register(MultiTypeName, func() *Step { return &Step{Kind: KindMulti} })

	got, err := Unmarshal(buf, reg)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, mwerr.IsProtocol(err))
	assert.Contains(t, err.Error(), CorrectTypeName)
}

func TestUnmarshal_ProtocolErrors(t *testing.T) {
	reg := NewDefaultRegistry()

	w := blob.NewWriter()
	w.PutStart(PredictTypeName, 2)
	w.PutString("MODEL_DATA")
	w.PutStrings(nil)
	w.PutEnd()
	futureVersion, err := w.Finish()
	require.NoError(t, err)

	good, err := Marshal(NewPredict("MODEL_DATA"))
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  []byte
	}{
		{"version mismatch", futureVersion},
		{"truncated", good[:len(good)-3]},
		{"trailing bytes", append(append([]byte{}, good...), 1, 2, 3, 4)},
		{"empty", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.buf, reg)
			require.Error(t, err)
			assert.True(t, mwerr.IsProtocol(err), "error %v is not a protocol error", err)
		})
	}
}

// nested returns a chain of Multi steps around a single leaf, depth steps deep.
func nested(depth int) *Step {
	s := NewPredict("MODEL_DATA")
	for i := 1; i < depth; i++ {
		s = NewMulti(s)
	}
	return s
}

func TestNesting_Limit(t *testing.T) {
	reg := NewDefaultRegistry()

	buf, err := Marshal(nested(MaxDepth))
	require.NoError(t, err)
	got, err := Unmarshal(buf, reg)
	require.NoError(t, err)
	assert.Len(t, got.Leaves(), 1)

	_, err = Marshal(nested(MaxDepth + 1))
	assert.True(t, mwerr.IsUsage(err), "error %v is not a usage error", err)

	// Hand-built stream one level deeper than the limit.
	w := blob.NewWriter()
	for i := 0; i <= MaxDepth; i++ {
		w.PutStart(MultiTypeName, Version)
		if i < MaxDepth {
			w.PutUint32(1)
		} else {
			w.PutUint32(0)
		}
	}
	for i := 0; i <= MaxDepth; i++ {
		w.PutEnd()
	}
	deep, err := w.Finish()
	require.NoError(t, err)

	_, err = Unmarshal(deep, reg)
	require.Error(t, err)
	assert.True(t, mwerr.IsProtocol(err), "error %v is not a protocol error", err)
	assert.Contains(t, err.Error(), "nesting deeper than 1024")
}

func TestMarshal_InvalidKind(t *testing.T) {
	_, err := Marshal(&Step{})
	assert.True(t, mwerr.IsUsage(err))
}

func TestRegistry_Completeness(t *testing.T) {
	reg := NewDefaultRegistry()
	want := []string{CorrectTypeName, MultiTypeName, PredictTypeName, SolveTypeName, SubtractTypeName}
	assert.Equal(t, want, reg.Names())

	for _, name := range want {
		s, err := reg.Create(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.TypeName())
		assert.True(t, reg.Has(name))
	}

	_, err := reg.Create("MWImageStep")
	require.Error(t, err)
	assert.True(t, mwerr.IsProtocol(err))
	assert.Contains(t, err.Error(), "kind not registered")
	assert.False(t, reg.Has("MWImageStep"))
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := NewRegistry()
	reg.Register("X", func() *Step { return &Step{Kind: KindPredict} })
	reg.Register("X", func() *Step { return &Step{Kind: KindSubtract} })

	s, err := reg.Create("X")
	require.NoError(t, err)
	assert.Equal(t, KindSubtract, s.Kind)

	reg.Register("broken", func() *Step { return nil })
	_, err = reg.Create("broken")
	assert.True(t, mwerr.IsProtocol(err))
}

func TestAccept_ExactlyOnceInChildOrder(t *testing.T) {
	tree := NewMulti(
		NewPredict("p1"),
		NewMulti(sampleSolve(), NewSubtract("s1")),
		NewCorrect("c1"),
		NewMulti(),
	)

	var visited []string
	record := func(s *Step) error {
		visited = append(visited, s.String())
		return nil
	}
	v := &Visitor{Solve: record, Predict: record, Correct: record, Subtract: record}

	require.NoError(t, tree.Accept(v))
	assert.Equal(t, []string{"predict(p1)", "solve(2 parms)", "subtract(s1)", "correct(c1)"}, visited)
}

func TestAccept_DispatchesOnlyMatchingHandler(t *testing.T) {
	for _, s := range []*Step{sampleSolve(), NewPredict("p"), NewCorrect("c"), NewSubtract("s")} {
		t.Run(s.Kind.String(), func(t *testing.T) {
			calls := map[Kind]int{}
			handler := func(k Kind) Handler {
				return func(*Step) error {
					calls[k]++
					return nil
				}
			}
			v := &Visitor{
				Solve:    handler(KindSolve),
				Predict:  handler(KindPredict),
				Correct:  handler(KindCorrect),
				Subtract: handler(KindSubtract),
				Multi:    handler(KindMulti),
			}
			require.NoError(t, s.Accept(v))
			assert.Equal(t, map[Kind]int{s.Kind: 1}, calls)
		})
	}
}

func TestAccept_Fallbacks(t *testing.T) {
	// Default covers leaves without a dedicated handler.
	var n int
	v := &Visitor{Default: func(*Step) error { n++; return nil }}
	require.NoError(t, NewMulti(NewPredict("a"), NewCorrect("b")).Accept(v))
	assert.Equal(t, 2, n)

	err := NewPredict("a").Accept(&Visitor{})
	assert.True(t, mwerr.IsUsage(err))

	// A custom Multi handler decides whether to descend.
	var multis int
	v = &Visitor{
		Multi: func(s *Step) error {
			multis++
			return s.VisitChildren(&Visitor{Default: func(*Step) error { return nil }})
		},
	}
	require.NoError(t, NewMulti(NewPredict("a")).Accept(v))
	assert.Equal(t, 1, multis)
}

func TestAccept_StopsAtFirstError(t *testing.T) {
	var visited int
	v := &Visitor{Default: func(s *Step) error {
		visited++
		if s.OutputData == "bad" {
			return assert.AnError
		}
		return nil
	}}
	err := NewMulti(NewPredict("ok"), NewPredict("bad"), NewPredict("never")).Accept(v)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, visited)
}

func TestClone_IsDeep(t *testing.T) {
	original := NewMulti(sampleSolve(), NewMulti(NewPredict("MODEL_DATA", "CasA")))
	c := original.Clone()
	require.True(t, Equal(original, c))

	c.Children[0].Solve.Parms[0] = "changed"
	c.Children[1].Children[0].Sources[0] = "changed"
	c.Children[1].Push(NewCorrect("extra"))

	assert.Equal(t, "gain:11:*", original.Children[0].Solve.Parms[0])
	assert.Equal(t, "CasA", original.Children[1].Children[0].Sources[0])
	assert.Len(t, original.Children[1].Children, 1)
	assert.NotSame(t, original.Children[0], c.Children[0])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    *Step
		wantErr bool
	}{
		{"valid tree", NewMulti(NewPredict("MODEL_DATA"), sampleSolve()), false},
		{"empty multi", NewMulti(), false},
		{"missing output", NewPredict(""), true},
		{"leaf with children", &Step{Kind: KindCorrect, OutputData: "X", Children: []*Step{NewPredict("Y")}}, true},
		{"negative iterations", NewSolve(SolveParams{MaxIter: -1}), true},
		{"invalid kind", &Step{}, true},
		{"nil child", NewMulti(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"solve", KindSolve, false},
		{"Predict", KindPredict, false},
		{" correct ", KindCorrect, false},
		{"subtract", KindSubtract, false},
		{"multi", KindMulti, false},
		{"image", KindInvalid, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLeaves(t *testing.T) {
	tree := NewMulti(NewPredict("a"), NewMulti(NewCorrect("b")), NewSubtract("c"))
	var outputs []string
	for _, l := range tree.Leaves() {
		outputs = append(outputs, l.OutputData)
	}
	assert.Equal(t, []string{"a", "b", "c"}, outputs)
}

func genLeaf() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(int(KindSolve), int(KindSubtract)),
		gen.AnyString(),
		gen.SliceOf(gen.AlphaString()),
		gen.Int32Range(0, 1000),
		gen.Float64Range(0, 1),
	).Map(func(vs []interface{}) *Step {
		kind := Kind(vs[0].(int))
		if kind == KindSolve {
			return NewSolve(SolveParams{
				Parms:   vs[2].([]string),
				MaxIter: vs[3].(int32),
				Epsilon: vs[4].(float64),
				Shape:   cluster.DomainShape{FreqSize: vs[4].(float64), TimeSize: 1},
			})
		}
		return &Step{Kind: kind, OutputData: vs[1].(string), Sources: vs[2].([]string)}
	})
}

func genTree() gopter.Gen {
	multi := gen.SliceOf(genLeaf()).Map(func(children []*Step) *Step {
		return NewMulti(children...)
	})
	nested := gen.SliceOf(multi).Map(func(children []*Step) *Step {
		return NewMulti(children...)
	})
	return gen.OneGenOf(genLeaf(), multi, nested)
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	reg := NewDefaultRegistry()

	properties.Property("decode(encode(step)) equals step", prop.ForAll(
		func(s *Step) bool {
			buf, err := Marshal(s)
			if err != nil {
				return false
			}
			got, err := Unmarshal(buf, reg)
			return err == nil && Equal(s, got)
		},
		genTree(),
	))

	properties.Property("clone equals original", prop.ForAll(
		func(s *Step) bool {
			return Equal(s, s.Clone())
		},
		genTree(),
	))

	properties.TestingRun(t)
}
