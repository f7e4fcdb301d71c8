package rma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishmem-go/ishmem/internal/heap"
)

// twoMappedHeaps builds two peer-mapped heaps and an Engine for each,
// with nil rings: a fast-path hit must never touch the ring, so any
// miss in these tests panics loudly instead of hanging.
func twoMappedHeaps(t *testing.T) (ea, eb Engine, ha, hb *heap.Heap) {
	t.Helper()
	ha, err := heap.New(0, 2, 1<<16)
	require.NoError(t, err)
	t.Cleanup(func() { ha.Close() })
	hb, err = heap.New(1, 2, 1<<16)
	require.NoError(t, err)
	t.Cleanup(func() { hb.Close() })

	ha.MapPeer(1, hb.Base())
	hb.MapPeer(0, ha.Base())
	return Engine{Heap: ha}, Engine{Heap: hb}, ha, hb
}

func TestPutFastPathStoresIntoPeerHeap(t *testing.T) {
	ea, _, ha, hb := twoMappedHeaps(t)

	src, err := ha.Malloc(16)
	require.NoError(t, err)
	dst, err := ha.Malloc(16)
	require.NoError(t, err)
	_, err = hb.Malloc(16)
	require.NoError(t, err)
	dstB, err := hb.Malloc(16)
	require.NoError(t, err)
	require.Equal(t, ha.Offset(dst), hb.Offset(dstB))

	copy(heap.BytesAt(src, 16), []byte("fast path payload"))
	require.NoError(t, Put[uint8](ea, 1, dst, src, 16))

	assert.Equal(t, []byte("fast path payload")[:16], hb.AtOffset(hb.Offset(dstB), 16))
}

func TestGetFastPathLoadsFromPeerHeap(t *testing.T) {
	ea, _, ha, hb := twoMappedHeaps(t)

	remote, err := ha.Malloc(8)
	require.NoError(t, err)
	remoteB, err := hb.Malloc(8)
	require.NoError(t, err)
	local, err := ha.Malloc(8)
	require.NoError(t, err)

	copy(hb.AtOffset(hb.Offset(remoteB), 8), []byte{9, 8, 7, 6, 5, 4, 3, 2})
	require.NoError(t, Get[uint8](ea, 1, local, remote, 8))

	assert.Equal(t, []byte{9, 8, 7, 6, 5, 4, 3, 2}, heap.BytesAt(local, 8))
}

func TestScalarFastPathRoundTrip(t *testing.T) {
	ea, eb, ha, hb := twoMappedHeaps(t)

	w, err := ha.Malloc(8)
	require.NoError(t, err)
	wB, err := hb.Malloc(8)
	require.NoError(t, err)

	// PE 0 writes PE 1's word; PE 1 reads it back through its own
	// symmetric address for the matched allocation.
	require.NoError(t, P[uint64](ea, 1, w, 0xfeedface))
	got, err := G[uint64](eb, 1, wB)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfeedface), got)
}

func TestFastPathDeclinesUnmappedPeer(t *testing.T) {
	h, err := heap.New(0, 4, 1<<16)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	e := Engine{Heap: h}
	_, ok := e.peer(h.Base(), 2)
	assert.False(t, ok)
}
