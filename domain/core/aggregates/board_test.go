package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/domain/config"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

func addFrame(t *testing.T, board *Board) *entities.Frame {
	t.Helper()
	pos, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)
	frame, err := entities.NewFrame(board.ID(), pos, "asset://sketch")
	require.NoError(t, err)
	require.NoError(t, board.AddFrame(frame))
	return frame
}

func TestBoard_ConnectRequiresBothEndpoints(t *testing.T) {
	board, err := NewBoard("endpoints")
	require.NoError(t, err)
	a := addFrame(t, board)

	_, err = board.Connect(a.ID(), valueobjects.NewFrameID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Zero(t, board.ConnectionCount())
}

func TestBoard_ConnectRejectsDuplicate(t *testing.T) {
	board, err := NewBoard("duplicates")
	require.NoError(t, err)
	a := addFrame(t, board)
	b := addFrame(t, board)

	_, err = board.Connect(a.ID(), b.ID())
	require.NoError(t, err)

	_, err = board.Connect(a.ID(), b.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))

	// The reverse direction is a different connection.
	_, err = board.Connect(b.ID(), a.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, board.ConnectionCount())
}

func TestBoard_ConnectSelfLoopRespectsConfig(t *testing.T) {
	board, err := NewBoard("loops")
	require.NoError(t, err)
	a := addFrame(t, board)

	_, err = board.Connect(a.ID(), a.ID())
	require.NoError(t, err, "self loops are legal by default")

	cfg := config.DefaultDomainConfig()
	cfg.AllowSelfConnections = false
	strict, err := NewBoardWithConfig("strict", cfg)
	require.NoError(t, err)
	b := addFrame(t, strict)

	_, err = strict.Connect(b.ID(), b.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestBoard_RemoveFrameCascadesConnections(t *testing.T) {
	board, err := NewBoard("cascade")
	require.NoError(t, err)
	a := addFrame(t, board)
	b := addFrame(t, board)
	c := addFrame(t, board)

	ab, err := board.Connect(a.ID(), b.ID())
	require.NoError(t, err)
	bc, err := board.Connect(b.ID(), c.ID())
	require.NoError(t, err)
	ca, err := board.Connect(c.ID(), a.ID())
	require.NoError(t, err)

	removed, err := board.RemoveFrame(b.ID())
	require.NoError(t, err)

	assert.ElementsMatch(t, []valueobjects.ConnectionID{ab.ID(), bc.ID()}, removed)
	assert.False(t, board.HasFrame(b.ID()))
	assert.Equal(t, 1, board.ConnectionCount())
	_, ok := board.Connection(ca.ID())
	assert.True(t, ok, "connection not touching the removed frame survives")
}

func TestBoard_RemoveFrameWithoutConnections(t *testing.T) {
	board, err := NewBoard("plain")
	require.NoError(t, err)
	a := addFrame(t, board)
	before := board.TopologyVersion()

	removed, err := board.RemoveFrame(a.ID())
	require.NoError(t, err)

	assert.Empty(t, removed)
	assert.Equal(t, before, board.TopologyVersion(), "no connection change, no topology bump")
}

func TestBoard_RemoveMissingFrame(t *testing.T) {
	board, err := NewBoard("missing")
	require.NoError(t, err)

	_, err = board.RemoveFrame(valueobjects.NewFrameID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestBoard_AddFrameRejectsDuplicateID(t *testing.T) {
	board, err := NewBoard("twice")
	require.NoError(t, err)
	a := addFrame(t, board)

	err = board.AddFrame(a.Clone())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConflict(err))
	assert.Equal(t, 1, board.FrameCount())
}

func TestBoard_TopologyVersionTracksConnectionChanges(t *testing.T) {
	board, err := NewBoard("topology")
	require.NoError(t, err)
	a := addFrame(t, board)
	b := addFrame(t, board)
	require.Zero(t, board.TopologyVersion())

	conn, err := board.Connect(a.ID(), b.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, board.TopologyVersion())

	pos, err := valueobjects.NewPosition(300, 400)
	require.NoError(t, err)
	require.NoError(t, board.MoveFrame(a.ID(), pos))
	assert.Equal(t, 1, board.TopologyVersion(), "moves do not touch topology")

	require.NoError(t, board.RemoveConnection(conn.ID()))
	assert.Equal(t, 2, board.TopologyVersion())
}

func TestBoard_SnapshotIsIsolated(t *testing.T) {
	board, err := NewBoard("snapshot")
	require.NoError(t, err)
	a := addFrame(t, board)
	b := addFrame(t, board)
	_, err = board.Connect(a.ID(), b.ID())
	require.NoError(t, err)

	snap := board.Snapshot()

	pos, err := valueobjects.NewPosition(999, 999)
	require.NoError(t, err)
	require.NoError(t, board.MoveFrame(a.ID(), pos))
	_, err = board.RemoveFrame(b.ID())
	require.NoError(t, err)

	snapFrame, ok := snap.Frame(a.ID())
	require.True(t, ok)
	assert.Equal(t, 10.0, snapFrame.Position().X())
	assert.True(t, snap.HasFrame(b.ID()))
	assert.Equal(t, 1, snap.ConnectionCount())
	assert.Empty(t, snap.GetUncommittedEvents())
}

func TestBoard_SharePolicy(t *testing.T) {
	board, err := NewBoard("sharing")
	require.NoError(t, err)
	assert.Equal(t, ShareNone, board.SharePolicy())

	require.NoError(t, board.SetSharePolicy(ShareEdit))
	assert.Equal(t, ShareEdit, board.SharePolicy())

	err = board.SetSharePolicy(SharePolicy("owner"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, ShareEdit, board.SharePolicy())
}
