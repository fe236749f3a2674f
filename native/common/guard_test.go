package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuardHonoursPauses(t *testing.T) {
	pauses := NewPauses("troves")
	require.ErrorIs(t, Guard(pauses, "troves"), ErrModulePaused)
	require.NoError(t, Guard(pauses, "borrower"))
	require.NoError(t, Guard(nil, "troves"))

	pauses.Set("TROVES", false)
	require.NoError(t, Guard(pauses, "troves"))

	pauses.Set("borrower", true)
	pauses.Set("multirewards", true)
	require.Equal(t, []string{"borrower", "multirewards"}, pauses.List())
}

func TestManualClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := NewManualClock(start)
	require.Equal(t, start, clock.Now())
	clock.Advance(time.Minute)
	require.Equal(t, start.Add(time.Minute), clock.Now())
}
