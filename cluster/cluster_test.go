package cluster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvPair(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		peer := 1 - ctx.Rank
		if err := ctx.Send(peer, 7, []int64{int64(ctx.Rank), 42}); err != nil {
			return err
		}
		var got []int64
		if err := ctx.Recv(peer, 7, &got); err != nil {
			return err
		}
		assert.Equal(t, []int64{int64(peer), 42}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestSelfSendSingleRank(t *testing.T) {
	g, err := NewGroup(1)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		if err := ctx.Send(0, 3, "periodic"); err != nil {
			return err
		}
		var got string
		src, err := ctx.RecvAny(3, &got)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, src)
		assert.Equal(t, "periodic", got)
		return nil
	})
	require.NoError(t, err)
}

func TestRecvMatchesBySourceAndTag(t *testing.T) {
	g, err := NewGroup(3)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		if ctx.Rank != 0 {
			// Both senders use the same tag; rank 0 must match by source.
			return ctx.Send(0, 5, ctx.Rank*100)
		}
		var fromTwo, fromOne int
		if err := ctx.Recv(2, 5, &fromTwo); err != nil {
			return err
		}
		if err := ctx.Recv(1, 5, &fromOne); err != nil {
			return err
		}
		assert.Equal(t, 200, fromTwo)
		assert.Equal(t, 100, fromOne)
		return nil
	})
	require.NoError(t, err)
}

func TestSendCopiesPayload(t *testing.T) {
	g, err := NewGroup(1)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		data := []float64{1.0, 2.0}
		if err := ctx.Send(0, 1, data); err != nil {
			return err
		}
		data[0] = -999 // must not leak into the delivered message
		var got []float64
		if err := ctx.Recv(0, 1, &got); err != nil {
			return err
		}
		assert.Equal(t, []float64{1.0, 2.0}, got)
		return nil
	})
	require.NoError(t, err)
}

func TestReduceScatterSum(t *testing.T) {
	g, err := NewGroup(4)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		// Rank r flags every rank s with s >= r, so rank s should count s+1 peers.
		flags := make([]int, ctx.Size)
		for s := ctx.Rank; s < ctx.Size; s++ {
			flags[s] = 1
		}
		n, err := ctx.ReduceScatterSum(flags)
		if err != nil {
			return err
		}
		assert.Equal(t, ctx.Rank+1, n)
		return nil
	})
	require.NoError(t, err)
}

func TestReduceScatterSumRepeated(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	err = g.Run(func(ctx *Context) error {
		for i := 0; i < 3; i++ {
			flags := []int{1, 1}
			n, err := ctx.ReduceScatterSum(flags)
			if err != nil {
				return err
			}
			assert.Equal(t, 2, n)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGroupSizeValidation(t *testing.T) {
	_, err := NewGroup(0)
	assert.Error(t, err)
}

func TestSendInvalidRank(t *testing.T) {
	g, err := NewGroup(1)
	require.NoError(t, err)
	ctx := g.Context(0)
	assert.Error(t, ctx.Send(5, 0, 1))
}

func TestRunAbortsCollectiveOnRankFailure(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- g.Run(func(ctx *Context) error {
			if ctx.Rank == 1 {
				return errors.New("bad input on rank 1")
			}
			// Rank 0 enters collectives the failed rank never reaches.
			if _, err := ctx.ReduceScatterSum(make([]int, ctx.Size)); err != nil {
				return err
			}
			return ctx.Barrier()
		})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorContains(t, err, "bad input on rank 1")
		assert.ErrorContains(t, err, "aborted")
	case <-time.After(5 * time.Second):
		t.Fatal("group did not unwind after a rank failure")
	}
}

func TestRunAbortWakesBlockedReceive(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- g.Run(func(ctx *Context) error {
			if ctx.Rank == 1 {
				return errors.New("rank 1 gave up")
			}
			var v int
			return ctx.Recv(1, 7, &v)
		})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorContains(t, err, "aborted")
	case <-time.After(5 * time.Second):
		t.Fatal("receive did not unwind after the peer failed")
	}
}

func TestSendAfterAbort(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)
	g.abort(errors.New("down"))
	assert.Error(t, g.Context(0).Send(1, 0, 1))
}
