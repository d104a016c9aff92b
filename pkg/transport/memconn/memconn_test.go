package memconn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
	"github.com/bft-labs/mwdispatch/pkg/transport"
)

func upper(_ context.Context, in []byte) ([]byte, error) {
	if string(in) == "quit" {
		return nil, nil
	}
	return []byte(strings.ToUpper(string(in))), nil
}

func TestConn_SingleConsumer(t *testing.T) {
	ctx := context.Background()
	c := New(upper)

	_, err := c.Read(ctx)
	require.Error(t, err, "read before any write")
	assert.True(t, mwerr.IsUsage(err))

	require.NoError(t, c.Write(ctx, []byte("predict")))

	n, err := c.MessageLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PREDICT", string(got))

	_, err = c.Read(ctx)
	assert.True(t, mwerr.IsUsage(err), "second read without a write")
}

func TestConn_DoubleWrite(t *testing.T) {
	ctx := context.Background()
	c := New(upper)

	require.NoError(t, c.Write(ctx, []byte("a")))
	err := c.Write(ctx, []byte("b"))
	assert.True(t, mwerr.IsUsage(err))

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", string(got), "the first reply is kept")
}

func TestConn_NoReplyMessage(t *testing.T) {
	ctx := context.Background()
	c := New(upper)

	require.NoError(t, c.Write(ctx, []byte("quit")))
	_, err := c.Read(ctx)
	assert.True(t, mwerr.IsUsage(err))
	require.NoError(t, c.Write(ctx, []byte("again")))
}

func TestConn_Deliver(t *testing.T) {
	ctx := context.Background()
	c := New(upper, WithName("node1"))
	assert.Equal(t, "mem://node1", c.Addr())

	require.NoError(t, c.Deliver([]byte("hello")))
	assert.True(t, mwerr.IsUsage(c.Deliver([]byte("twice"))))

	got, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestConn_HandlerFailureKillsConnection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("executor crashed")
	c := New(func(context.Context, []byte) ([]byte, error) { return nil, boom })

	err := c.Write(ctx, []byte("x"))
	require.Error(t, err)
	assert.True(t, mwerr.IsTransport(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), c.Addr())

	_, err = c.Read(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestConn_CloseAndCancel(t *testing.T) {
	c := New(upper)
	assert.True(t, strings.HasPrefix(c.Addr(), "mem://"))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Write(cancelled, []byte("x"))
	assert.True(t, mwerr.IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, c.Close())
	err = c.Write(context.Background(), []byte("x"))
	assert.True(t, mwerr.IsTransport(err))
	assert.ErrorIs(t, err, transport.ErrClosed)
	_, err = c.MessageLength(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestConn_InConnectionSet(t *testing.T) {
	ctx := context.Background()
	set := transport.NewConnectionSet()
	for i := 0; i < 3; i++ {
		set.Add(New(upper))
	}
	require.NoError(t, set.WriteAll(ctx, []byte("x")))
	assert.Equal(t, -1, set.ReadyConnection())
	for i := 0; i < set.Size(); i++ {
		got, err := set.Read(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, "X", string(got))
	}
}
