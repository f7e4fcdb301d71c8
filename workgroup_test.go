package ishmem_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ishmem-go/ishmem"
	"github.com/ishmem-go/ishmem/internal/devctx"
)

// PutWorkGroup shards a transfer across a simulated device work-group;
// the result must match a single-lane Put of the same range.
func TestPutWorkGroupShardsTransfer(t *testing.T) {
	const nelems = 64
	withJob(t, 2, func(t *testing.T, inst *ishmem.Instance, pe, npes int) {
		src, err := inst.Calloc(nelems, 4)
		require.NoError(t, err)
		dst, err := inst.Calloc(nelems, 4)
		require.NoError(t, err)

		for i := 0; i < nelems; i++ {
			require.NoError(t, ishmem.P[uint32](inst, pe, src+uintptr(i*4), uint32(i+1)))
		}
		require.NoError(t, inst.Barrier())

		target := (pe + 1) % npes
		err = ishmem.WorkGroup(8, func(c devctx.Context) error {
			return ishmem.PutWorkGroup[uint32](inst, c, target, dst, src, nelems)
		})
		require.NoError(t, err)
		require.NoError(t, inst.Barrier())

		for i := 0; i < nelems; i++ {
			got, err := ishmem.G[uint32](inst, pe, dst+uintptr(i*4))
			require.NoError(t, err)
			require.Equal(t, uint32(i+1), got)
		}
	})
}

// ReduceWorkGroup behaves like Reduce: only one lane actually issues
// the team collective, but every lane observes the result after the
// group's closing barrier.
func TestReduceWorkGroupMatchesReduce(t *testing.T) {
	const npes = 4
	withJob(t, npes, func(t *testing.T, inst *ishmem.Instance, pe, n int) {
		src, err := inst.Calloc(1, 8)
		require.NoError(t, err)
		dst, err := inst.Calloc(1, 8)
		require.NoError(t, err)

		require.NoError(t, ishmem.P[uint64](inst, pe, src, uint64(pe)))
		require.NoError(t, inst.Barrier())

		err = ishmem.WorkGroup(4, func(c devctx.Context) error {
			return ishmem.ReduceWorkGroup[uint64](inst, c, ishmem.WorldTeam, ishmem.ReduceSum, dst, src, 1)
		})
		require.NoError(t, err)

		got, err := ishmem.G[uint64](inst, pe, dst)
		require.NoError(t, err)
		require.Equal(t, uint64(n*(n-1)/2), got)
	})
}

// TestWorkGroup's result is the leader's evaluation, broadcast so
// every lane agrees even when the underlying word changes between
// polls.
func TestTestWorkGroupBroadcastsLeaderResult(t *testing.T) {
	withJob(t, 1, func(t *testing.T, inst *ishmem.Instance, pe, npes int) {
		flag, err := inst.Calloc(1, 8)
		require.NoError(t, err)
		require.NoError(t, inst.SignalSetVal(pe, flag, 5))

		err = ishmem.WorkGroup(4, func(c devctx.Context) error {
			ok, err := inst.TestWorkGroup(c, flag, ishmem.CmpEq, 5)
			if err != nil {
				return err
			}
			require.True(t, ok)
			miss, err := inst.TestWorkGroup(c, flag, ishmem.CmpGt, 5)
			if err != nil {
				return err
			}
			require.False(t, miss)
			return nil
		})
		require.NoError(t, err)
	})
}

// WaitUntilWorkGroup releases every lane once the predicate holds.
func TestWaitUntilWorkGroupReleasesAllLanes(t *testing.T) {
	withJob(t, 2, func(t *testing.T, inst *ishmem.Instance, pe, npes int) {
		flag, err := inst.Calloc(1, 8)
		require.NoError(t, err)
		require.NoError(t, inst.Barrier())

		target := (pe + 1) % npes
		require.NoError(t, inst.SignalAddVal(target, flag, 1))

		err = ishmem.WorkGroup(4, func(c devctx.Context) error {
			return inst.WaitUntilWorkGroup(c, flag, ishmem.CmpGe, 1)
		})
		require.NoError(t, err)
		require.NoError(t, inst.Barrier())
	})
}
