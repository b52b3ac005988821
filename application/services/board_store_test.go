package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
)

func storeWithFrames(t *testing.T, n int) (*BoardStore, []*entities.Frame) {
	t.Helper()
	board, err := aggregates.NewBoard("store")
	require.NoError(t, err)
	frames := make([]*entities.Frame, n)
	for i := range frames {
		pos, err := valueobjects.NewPosition(float64(i*10), 0)
		require.NoError(t, err)
		frames[i], err = entities.NewFrame(board.ID(), pos, "asset://f")
		require.NoError(t, err)
		require.NoError(t, board.AddFrame(frames[i]))
	}
	return NewBoardStore(board, zap.NewNop()), frames
}

func TestBoardStore_SequenceFollowsTopologyChanges(t *testing.T) {
	store, frames := storeWithFrames(t, 3)

	seq := store.Sequence()
	assert.Empty(t, seq.Ordinals)
	assert.Len(t, seq.Chains, 3)

	err := store.Update(func(b *aggregates.Board) error {
		_, err := b.Connect(frames[0].ID(), frames[1].ID())
		return err
	})
	require.NoError(t, err)

	seq = store.Sequence()
	assert.Len(t, seq.Ordinals, 1)
	assert.Len(t, seq.Chains, 2)
}

func TestBoardStore_SequenceStableAcrossMoves(t *testing.T) {
	store, frames := storeWithFrames(t, 2)

	err := store.Update(func(b *aggregates.Board) error {
		_, err := b.Connect(frames[0].ID(), frames[1].ID())
		return err
	})
	require.NoError(t, err)
	before := store.Sequence()

	pos, err := valueobjects.NewPosition(500, 500)
	require.NoError(t, err)
	err = store.Update(func(b *aggregates.Board) error {
		return b.MoveFrame(frames[0].ID(), pos)
	})
	require.NoError(t, err)

	after := store.Sequence()
	assert.Equal(t, before.Ordinals, after.Ordinals)
	assert.Equal(t, before.Playback, after.Playback)
}

func TestBoardStore_ReplaceInvalidatesSequence(t *testing.T) {
	store, _ := storeWithFrames(t, 2)
	_ = store.Sequence()

	fresh, err := aggregates.NewBoard("fresh")
	require.NoError(t, err)
	store.Replace(fresh)

	seq := store.Sequence()
	assert.Empty(t, seq.Playback)
	assert.Empty(t, seq.Chains)
}

func TestBoardStore_SnapshotIsDeepCopy(t *testing.T) {
	store, frames := storeWithFrames(t, 1)

	snap := store.Snapshot()
	pos, err := valueobjects.NewPosition(42, 42)
	require.NoError(t, err)
	err = store.Update(func(b *aggregates.Board) error {
		return b.MoveFrame(frames[0].ID(), pos)
	})
	require.NoError(t, err)

	snapFrame, ok := snap.Frame(frames[0].ID())
	require.True(t, ok)
	assert.Equal(t, 0.0, snapFrame.Position().X())
}
