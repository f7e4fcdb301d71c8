package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishmem-go/ishmem/internal/constants"
	"github.com/ishmem-go/ishmem/internal/runtime"
)

// singlePE builds a 1-PE loopback plugin without Init (team bookkeeping
// never touches the symmetric heap, so the mmap can be skipped).
func singlePE(t *testing.T) runtime.Plugin {
	t.Helper()
	p, err := runtime.NewLoopbackPE(runtime.NewWorld(1), 0, 1)
	require.NoError(t, err)
	return p
}

func TestPoolCapacityFloor(t *testing.T) {
	p := NewPool(1)
	plugin := singlePE(t)

	// capacity 1 clamps up to MinTeamsMax
	teams := make([]Team, 0, constants.MinTeamsMax)
	for i := 0; i < constants.MinTeamsMax; i++ {
		tm, err := Split(p, plugin, World, 0, 1, 1)
		require.NoError(t, err)
		teams = append(teams, tm)
	}
	_, err := Split(p, plugin, World, 0, 1, 1)
	assert.Error(t, err)

	// destroying one frees a slot
	require.NoError(t, Destroy(p, plugin, teams[0]))
	_, err = Split(p, plugin, World, 0, 1, 1)
	assert.NoError(t, err)
}

func TestSplitConfigRoundTrip(t *testing.T) {
	p := NewPool(0)
	plugin := singlePE(t)

	tm, err := SplitConfig(p, plugin, World, 0, 1, 1, Config{NumContexts: 4})
	require.NoError(t, err)
	assert.Equal(t, Config{NumContexts: 4}, GetConfig(p, tm))

	// predefined teams report the zero config
	assert.Equal(t, Config{}, GetConfig(p, World))

	// destroy drops the recorded config
	require.NoError(t, Destroy(p, plugin, tm))
	assert.Equal(t, Config{}, GetConfig(p, tm))
}

func TestPredefinedTeamsNotDestroyable(t *testing.T) {
	p := NewPool(0)
	plugin := singlePE(t)
	assert.NoError(t, Destroy(p, plugin, World))
	assert.NoError(t, Destroy(p, plugin, Shared))
	assert.NoError(t, Destroy(p, plugin, Node))
}

func TestMyPe(t *testing.T) {
	plugin := singlePE(t)
	assert.Equal(t, 0, MyPe(plugin, World))
}

// Split2D partitions a 4-PE parent into 2x2 row and column teams;
// every PE's row rank is its parent rank mod the row width, and its
// column rank is its parent rank div the row width.
func TestSplit2DGridRanks(t *testing.T) {
	const npes = 4
	w := runtime.NewWorld(npes)
	for pe := 0; pe < npes; pe++ {
		plugin, err := runtime.NewLoopbackPE(w, pe, npes)
		require.NoError(t, err)
		p := NewPool(0)

		x, y, err := Split2D(p, plugin, World, 2)
		require.NoError(t, err)

		assert.Equal(t, 2, NPEs(plugin, x), "pe %d row size", pe)
		assert.Equal(t, 2, NPEs(plugin, y), "pe %d column size", pe)
		assert.Equal(t, pe%2, MyPe(plugin, x), "pe %d row rank", pe)
		assert.Equal(t, pe/2, MyPe(plugin, y), "pe %d column rank", pe)
	}
}

// An xrange wider than the parent clamps to the parent size instead
// of failing, leaving a single full-width row and one-member columns.
func TestSplit2DClampsOversizedXRange(t *testing.T) {
	plugin := singlePE(t)
	p := NewPool(0)

	x, y, err := Split2D(p, plugin, World, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, NPEs(plugin, x))
	assert.Equal(t, 1, NPEs(plugin, y))
	assert.Equal(t, 0, MyPe(plugin, x))
	assert.Equal(t, 0, MyPe(plugin, y))
}

func TestSplit2DRejectsNonPositiveXRange(t *testing.T) {
	plugin := singlePE(t)
	p := NewPool(0)
	_, _, err := Split2D(p, plugin, World, 0)
	assert.Error(t, err)
}
