package replay_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"ahrsmon/pkg/replay"
)

const src = "192.0.2.7:40001"

func TestFirstFrameAcceptedUnconditionally(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, 9999, 55))
	require.Equal(t, 1, g.Sources())
}

func TestInOrderSequenceAccepted(t *testing.T) {
	g := replay.New()
	for seq := uint32(1); seq <= 4; seq++ {
		require.NoError(t, g.Check(src, seq, uint64(seq)*10_000))
	}
}

func TestReplayOfEarlierSequenceRejected(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, 1, 10_000))
	require.NoError(t, g.Check(src, 2, 20_000))
	require.NoError(t, g.Check(src, 3, 30_000))

	require.ErrorIs(t, g.Check(src, 2, 20_000), replay.ErrReplayDetected)

	// State untouched by the reject: 4 still follows 3.
	require.NoError(t, g.Check(src, 4, 40_000))
}

func TestDuplicateSequenceRejectedStateUnchanged(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, 10, 100_000))
	require.ErrorIs(t, g.Check(src, 10, 100_000), replay.ErrReplayDetected)
	require.NoError(t, g.Check(src, 11, 110_000))
}

func TestForwardJumpBeyondWindowRejected(t *testing.T) {
	g := replay.New(replay.WithWindow(16))
	require.NoError(t, g.Check(src, 100, 1000))
	require.ErrorIs(t, g.Check(src, 200, 2000), replay.ErrReplayDetected)
	require.NoError(t, g.Check(src, 116, 2000))
}

func TestSequenceWrapAccepted(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, math.MaxUint32-1, 1000))
	require.NoError(t, g.Check(src, math.MaxUint32, 2000))
	require.NoError(t, g.Check(src, 0, 3000)) // wraps, advance of 1
	require.NoError(t, g.Check(src, 1, 4000))
}

func TestTimestampDecreaseWithoutRolloverRejected(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, 5, 500_000))
	require.ErrorIs(t, g.Check(src, 6, 400_000), replay.ErrReplayDetected)

	// Reject left the cursor at ts=500000.
	require.NoError(t, g.Check(src, 6, 500_001))
}

func TestTimestampRolloverWithSequenceAdvanceAccepted(t *testing.T) {
	g := replay.New()
	near := uint64(math.MaxUint64 - 400)
	require.NoError(t, g.Check(src, 20, near))
	require.NoError(t, g.Check(src, 21, 600)) // counter wrapped near max to near zero
}

func TestSourcesTrackedIndependently(t *testing.T) {
	g := replay.New()
	other := "192.0.2.8:40002"

	require.NoError(t, g.Check(src, 10, 100_000))
	require.NoError(t, g.Check(other, 10, 100_000))
	require.Equal(t, 2, g.Sources())

	require.ErrorIs(t, g.Check(src, 10, 100_000), replay.ErrReplayDetected)
	require.NoError(t, g.Check(other, 11, 110_000))
}

func TestForgetResetsSource(t *testing.T) {
	g := replay.New()
	require.NoError(t, g.Check(src, 50, 1000))
	g.Forget(src)
	require.Equal(t, 0, g.Sources())

	// Fresh state accepts any sequence again.
	require.NoError(t, g.Check(src, 3, 10))
}
