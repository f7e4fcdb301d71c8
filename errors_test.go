package ishmem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("Malloc", ErrOutOfMemory, "symmetric heap exhausted")

	assert.Equal(t, "Malloc", err.Op)
	assert.Equal(t, ErrOutOfMemory, err.Code)
	assert.Equal(t, "ishmem: symmetric heap exhausted (op=Malloc)", err.Error())
}

func TestPEError(t *testing.T) {
	err := NewPEError("Ptr", 7, ErrNotMappable, "PE 7 not directly mappable")

	assert.Equal(t, 7, err.PE)
	assert.Equal(t, "ishmem: PE 7 not directly mappable (op=Ptr)", err.Error())
}

func TestTeamError(t *testing.T) {
	err := NewTeamError("TeamSplitStrided", 3, ErrTeamInvalid, "team 3 not found")

	assert.Equal(t, 3, err.Team)
	assert.Equal(t, "ishmem: team 3 not found (op=TeamSplitStrided)", err.Error())
}

func TestWrapErrorPreservesStructuredError(t *testing.T) {
	inner := NewPEError("Malloc", 2, ErrOutOfMemory, "out of heap")
	wrapped := WrapError("Calloc", inner)

	require.NotNil(t, wrapped)
	assert.Equal(t, "Calloc", wrapped.Op)
	assert.Equal(t, ErrOutOfMemory, wrapped.Code)
	assert.Equal(t, 2, wrapped.PE)
}

func TestWrapErrorClassifiesPlainError(t *testing.T) {
	wrapped := WrapError("Init", errors.New("boom"))

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrIO, wrapped.Code)
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("Init", nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("Barrier", ErrRuntimeBackend, "backend unreachable")

	assert.True(t, IsCode(err, ErrRuntimeBackend))
	assert.False(t, IsCode(err, ErrIO))
	assert.False(t, IsCode(nil, ErrIO))
}

func TestErrorIs(t *testing.T) {
	a := NewError("Barrier", ErrTeamInvalid, "team gone")
	b := &Error{Code: ErrTeamInvalid}

	assert.True(t, errors.Is(a, b))
}
