package ishmem_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ishmem-go/ishmem"
	"github.com/ishmem-go/ishmem/internal/config"
	"github.com/ishmem-go/ishmem/internal/runtime"
)

// With metrics enabled, the proxy counts every dispatched request and
// the bytes RMA operations move. The put must exceed the fast-path
// cutover so it actually reaches the ring; a small put would be a
// direct peer-heap store the proxy never sees.
func TestProxyRecordsMetrics(t *testing.T) {
	const nelems = 4096 // uint32s: 16KB, past the cutover
	cfg := config.Default()
	cfg.EnableMetrics = true
	world := runtime.NewWorld(1)

	inst, err := ishmem.Init(cfg, world, 0, 1)
	require.NoError(t, err)
	defer inst.Finalize()

	require.NoError(t, inst.Nop())
	require.NoError(t, inst.Nop())

	src, err := inst.Calloc(nelems, 4)
	require.NoError(t, err)
	dst, err := inst.Calloc(nelems, 4)
	require.NoError(t, err)
	require.NoError(t, ishmem.Put[uint32](inst, 0, dst, src, nelems))

	mx := inst.Metrics()
	require.NotNil(t, mx)
	require.Equal(t, 2.0, testutil.ToFloat64(mx.Ops.WithLabelValues("nop", "none")))
	require.Equal(t, 1.0, testutil.ToFloat64(mx.Ops.WithLabelValues("put", "uint32")))
	require.Equal(t, float64(nelems*4), testutil.ToFloat64(mx.Bytes.WithLabelValues("put")))
}
