package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMallocOffsetParityAcrossPEs(t *testing.T) {
	a, err := New(0, 2, 1<<16)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(1, 2, 1<<16)
	require.NoError(t, err)
	defer b.Close()

	// Matched allocation sequences on every PE must produce the same
	// offset on every PE.
	pa, err := a.Malloc(32)
	require.NoError(t, err)
	pb, err := b.Malloc(32)
	require.NoError(t, err)
	assert.Equal(t, a.Offset(pa), b.Offset(pb))

	qa, err := a.Calloc(4, 8)
	require.NoError(t, err)
	qb, err := b.Calloc(4, 8)
	require.NoError(t, err)
	assert.Equal(t, a.Offset(qa), b.Offset(qb))
}

func TestMallocAlignsAndAdvances(t *testing.T) {
	h, err := New(0, 1, 1<<16)
	require.NoError(t, err)
	defer h.Close()

	p1, err := h.Malloc(3) // rounds up to 8
	require.NoError(t, err)
	p2, err := h.Malloc(8)
	require.NoError(t, err)
	assert.Equal(t, h.Offset(p1)+8, h.Offset(p2))
}

func TestMallocOutOfMemory(t *testing.T) {
	h, err := New(0, 1, 4096)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Malloc(1 << 20)
	assert.Error(t, err)
}

func TestPtrNotMappableWithoutMapPeer(t *testing.T) {
	h, err := New(0, 4, 1<<16)
	require.NoError(t, err)
	defer h.Close()

	p, err := h.Malloc(8)
	require.NoError(t, err)

	assert.False(t, h.IsMappable(1))
	_, ok := h.Ptr(p, 1)
	assert.False(t, ok)
}

func TestPtrMapsPeerByBaseDelta(t *testing.T) {
	a, err := New(0, 2, 1<<16)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(1, 2, 1<<16)
	require.NoError(t, err)
	defer b.Close()

	a.MapPeer(1, b.Base())
	assert.True(t, a.IsMappable(1))

	local, err := a.Malloc(8)
	require.NoError(t, err)
	remote, ok := a.Ptr(local, 1)
	require.True(t, ok)
	assert.Equal(t, b.Base()+(local-a.Base()), remote)
}

func TestAtOffsetRoundTrip(t *testing.T) {
	h, err := New(0, 1, 1<<16)
	require.NoError(t, err)
	defer h.Close()

	p, err := h.Malloc(8)
	require.NoError(t, err)
	off := h.Offset(p)

	view := h.AtOffset(off, 8)
	copy(view, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	readBack := h.AtOffset(off, 8)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, readBack)
	assert.Equal(t, h.PtrAtOffset(off), p)
}
