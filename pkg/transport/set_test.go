package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// recordingConn appends every write to a shared log and echoes its name on read.
type recordingConn struct {
	name    string
	log     *[]string
	pending bool
	failing bool
	closed  bool
}

func (c *recordingConn) Read(context.Context) ([]byte, error) { return []byte(c.name), nil }

func (c *recordingConn) Write(_ context.Context, buf []byte) error {
	if c.failing {
		return mwerr.Transport("write", c.name, errors.New("connection reset"))
	}
	*c.log = append(*c.log, c.name+":"+string(buf))
	return nil
}

func (c *recordingConn) MessageLength(context.Context) (int, error) { return len(c.name), nil }
func (c *recordingConn) Addr() string                               { return c.name }
func (c *recordingConn) Close() error                               { c.closed = true; return nil }
func (c *recordingConn) Pending() bool                              { return c.pending }

func newSet(n int, log *[]string) (*ConnectionSet, []*recordingConn) {
	set := NewConnectionSet()
	conns := make([]*recordingConn, n)
	for i := range conns {
		conns[i] = &recordingConn{name: fmt.Sprintf("c%d", i), log: log}
		if got := set.Add(conns[i]); got != i {
			panic(fmt.Sprintf("Add() = %d, want %d", got, i))
		}
	}
	return set, conns
}

func TestConnectionSet_CloneSubsetOrder(t *testing.T) {
	ctx := context.Background()
	var log []string
	set, _ := newSet(3, &log)

	sub := set.Clone(2, 0, 1)
	require.Equal(t, 3, sub.Size())
	for i, want := range []string{"c2", "c0", "c1"} {
		buf, err := sub.Read(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, want, string(buf), "sequence number %d", i)
	}

	require.NoError(t, set.WriteAll(ctx, []byte("x")))
	assert.Equal(t, []string{"c0:x", "c1:x", "c2:x"}, log)

	// the original is untouched
	assert.Equal(t, 3, set.Size())
	assert.Equal(t, "c0", set.Get(0).Addr())
}

func TestConnectionSet_WriteAllStopsAtFailure(t *testing.T) {
	var log []string
	set, conns := newSet(3, &log)
	conns[1].failing = true

	err := set.WriteAll(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, mwerr.IsTransport(err))
	assert.Contains(t, err.Error(), "c1")
	assert.Equal(t, []string{"c0:x"}, log)
}

type fakeBroadcaster struct{ calls [][]string }

func (b *fakeBroadcaster) Broadcast(_ context.Context, conns []Connection, _ []byte) error {
	var addrs []string
	for _, c := range conns {
		addrs = append(addrs, c.Addr())
	}
	b.calls = append(b.calls, addrs)
	return nil
}

func TestConnectionSet_Broadcaster(t *testing.T) {
	var log []string
	set, _ := newSet(3, &log)
	b := &fakeBroadcaster{}
	set.SetBroadcaster(b)

	require.NoError(t, set.WriteAll(context.Background(), []byte("x")))
	require.NoError(t, set.Clone(2, 1).WriteAll(context.Background(), []byte("y")))

	assert.Empty(t, log)
	assert.Equal(t, [][]string{{"c0", "c1", "c2"}, {"c2", "c1"}}, b.calls)
}

func TestConnectionSet_ReadyConnection(t *testing.T) {
	var log []string
	set, conns := newSet(3, &log)
	assert.Equal(t, -1, set.ReadyConnection())

	conns[2].pending = true
	assert.Equal(t, 2, set.ReadyConnection())

	assert.Equal(t, -1, NewConnectionSet().ReadyConnection())
}

func TestConnectionSet_IndexOutOfRangePanics(t *testing.T) {
	var log []string
	set, _ := newSet(2, &log)
	ctx := context.Background()

	calls := map[string]func(){
		"read":     func() { _, _ = set.Read(ctx, 2) },
		"write":    func() { _ = set.Write(ctx, -1, nil) },
		"clone":    func() { set.Clone(0, 5) },
		"get":      func() { set.Get(7) },
		"negative": func() { _, _ = set.Read(ctx, -1) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r, "expected panic")
				err, ok := r.(error)
				require.True(t, ok, "panic value %v is not an error", r)
				assert.True(t, mwerr.IsUsage(err))
			}()
			call()
		})
	}
}

func TestConnectionSet_Close(t *testing.T) {
	var log []string
	set, conns := newSet(2, &log)
	require.NoError(t, set.Close())
	for _, c := range conns {
		assert.True(t, c.closed)
	}
}

func TestConnectionSet_CloneProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		indices := rapid.SliceOf(rapid.IntRange(0, n-1)).Draw(t, "indices")

		var log []string
		set, conns := newSet(n, &log)
		sub := set.Clone(indices...)

		if sub.Size() != len(indices) {
			t.Fatalf("Size() = %d, want %d", sub.Size(), len(indices))
		}
		for seq, orig := range indices {
			if sub.Get(seq) != Connection(conns[orig]) {
				t.Fatalf("clone[%d] = %s, want c%d", seq, sub.Get(seq).Addr(), orig)
			}
		}
		if set.Size() != n {
			t.Fatalf("original Size() = %d, want %d", set.Size(), n)
		}

		if err := sub.WriteAll(context.Background(), []byte("m")); err != nil {
			t.Fatalf("WriteAll() error = %v", err)
		}
		if len(log) != len(indices) {
			t.Fatalf("WriteAll() wrote %d messages, want %d", len(log), len(indices))
		}
		for seq, orig := range indices {
			if want := fmt.Sprintf("c%d:m", orig); log[seq] != want {
				t.Fatalf("write %d = %q, want %q", seq, log[seq], want)
			}
		}
	})
}
