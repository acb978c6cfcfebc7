package rank

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DefaultsToZero(t *testing.T) {
	t.Setenv("RANK", "")
	t.Setenv("LOCAL_RANK", "")

	assert.Equal(t, 0, Resolve())
}

func TestResolve_PrimaryKeyWins(t *testing.T) {
	t.Setenv("RANK", "3")
	t.Setenv("LOCAL_RANK", "7")

	assert.Equal(t, 3, Resolve())
}

func TestResolve_FallbackKey(t *testing.T) {
	t.Setenv("RANK", "")
	t.Setenv("LOCAL_RANK", "2")

	assert.Equal(t, 2, Resolve())
}

func TestResolve_MalformedValueSkipped(t *testing.T) {
	t.Setenv("RANK", "not-a-number")
	t.Setenv("LOCAL_RANK", "5")

	assert.Equal(t, 5, Resolve())
}

func TestGate_IsPrimary(t *testing.T) {
	assert.True(t, NewGate(0).IsPrimary())
	assert.False(t, NewGate(1).IsPrimary())
	assert.False(t, NewGate(42).IsPrimary())
}

func TestGate_RunIfPrimary_ExecutesOnPrimary(t *testing.T) {
	executed := false
	err := NewGate(0).RunIfPrimary(func() error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
}

func TestGate_RunIfPrimary_SkipsOnNonPrimary(t *testing.T) {
	executed := false
	err := NewGate(1).RunIfPrimary(func() error {
		executed = true
		return errors.New("should never be returned")
	})
	require.NoError(t, err)
	assert.False(t, executed)
}

func TestGate_RunIfPrimary_PropagatesError(t *testing.T) {
	wantErr := errors.New("finalize failed")
	err := NewGate(0).RunIfPrimary(func() error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
