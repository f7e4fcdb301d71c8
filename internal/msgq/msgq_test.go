package msgq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostTakeRoundTrip(t *testing.T) {
	q := New(8)
	idx := q.Post(SevWarn, "heap nearly full")
	rec := q.Take(idx)
	require.NotNil(t, rec)
	assert.Equal(t, SevWarn, rec.Severity)
	assert.Equal(t, "heap nearly full", rec.Text)

	// a second Take of the same slot observes it drained
	assert.Nil(t, q.Take(idx))
}

func TestPostTruncatesLongText(t *testing.T) {
	q := New(8)
	long := strings.Repeat("x", TextSize*2)
	rec := q.Take(q.Post(SevDebug, long))
	require.NotNil(t, rec)
	assert.Len(t, rec.Text, TextSize)
}

func TestTakeOutOfRangeIndex(t *testing.T) {
	q := New(8)
	assert.Nil(t, q.Take(1<<20))
}

func TestSlotsWrapAround(t *testing.T) {
	q := New(4)
	var last uint32
	for i := 0; i < 9; i++ {
		last = q.Post(SevDebug, "m")
	}
	// nine posts into four slots: the ninth lands back in slot 0
	assert.Equal(t, uint32(0), last)
	require.NotNil(t, q.Take(last))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "DEBUG", SevDebug.String())
	assert.Equal(t, "WARN", SevWarn.String())
	assert.Equal(t, "ERROR", SevError.String())
}
