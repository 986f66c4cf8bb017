package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockReportsCurrentUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NotNil(t, clk)

	lo := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	hi := time.Now().UTC().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(lo) && got.Before(hi), "%v outside [%v, %v]", got, lo, hi)
	assert.False(t, clk.Now().Before(got), "clock went backwards")
}

func TestFixedClockStampsBatchEvents(t *testing.T) {
	t.Parallel()

	writtenAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := Fixed{T: writtenAt}
	assert.True(t, clk.Now().Equal(writtenAt))
	assert.True(t, clk.Now().Equal(clk.Now()))
}
