package devctx

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostContextIsSingleLane(t *testing.T) {
	h := Host()
	assert.False(t, h.IsDevice())
	assert.Equal(t, 0, h.Lane())
	assert.Equal(t, 1, h.GroupSize())
	assert.NoError(t, h.Barrier(context.Background()))
}

func TestCalculateOffsetPartitionsEvenly(t *testing.T) {
	err := WorkGroup(4, func(c Context) error {
		start, end := c.CalculateOffset(8)
		assert.Equal(t, uint64(2), end-start)
		return nil
	})
	require.NoError(t, err)
}

func TestCalculateOffsetDistributesRemainder(t *testing.T) {
	const n = 3
	total := uint64(10) // 10/3 = 3 rem 1: lanes get 4,3,3
	var sumLen atomic.Int64
	err := WorkGroup(n, func(c Context) error {
		start, end := c.CalculateOffset(total)
		sumLen.Add(int64(end - start))
		if c.Lane() == 0 {
			assert.Equal(t, uint64(4), end-start)
		} else {
			assert.Equal(t, uint64(3), end-start)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(total), sumLen.Load())
}

func TestBarrierReleasesEveryLaneTogether(t *testing.T) {
	const n = 8
	var before, after atomic.Int32

	err := WorkGroup(n, func(c Context) error {
		before.Add(1)
		if err := c.Barrier(context.Background()); err != nil {
			return err
		}
		// Every lane must have incremented before before any lane
		// proceeds past the barrier.
		assert.Equal(t, int32(n), before.Load())
		after.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(n), after.Load())
}

func TestWorkGroupPropagatesError(t *testing.T) {
	sentinel := assert.AnError
	err := WorkGroup(3, func(c Context) error {
		if c.Lane() == 1 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestBroadcastSharesLeaderValue(t *testing.T) {
	const lanes = 6
	var wrong atomic.Int32
	err := WorkGroup(lanes, func(c Context) error {
		// every lane passes its own lane number; only lane 0's survives
		got, err := c.Broadcast(context.Background(), uint64(c.Lane()+100))
		if err != nil {
			return err
		}
		if got != 100 {
			wrong.Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, wrong.Load())
}

func TestBroadcastOnHostReturnsInput(t *testing.T) {
	got, err := Host().Broadcast(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
}
