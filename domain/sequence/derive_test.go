package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
)

func makeFrame(t *testing.T, boardID valueobjects.BoardID) *entities.Frame {
	t.Helper()
	pos, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	frame, err := entities.NewFrame(boardID, pos, "asset://test")
	require.NoError(t, err)
	return frame
}

func makeConnection(t *testing.T, boardID valueobjects.BoardID, from, to valueobjects.FrameID) *entities.Connection {
	t.Helper()
	conn, err := entities.NewConnection(boardID, from, to)
	require.NoError(t, err)
	return conn
}

func frameIDs(frames ...*entities.Frame) []valueobjects.FrameID {
	ids := make([]valueobjects.FrameID, len(frames))
	for i, f := range frames {
		ids[i] = f.ID()
	}
	return ids
}

func TestDerive_Empty(t *testing.T) {
	result := Derive(nil, nil)

	assert.Empty(t, result.Ordinals)
	assert.Empty(t, result.Playback)
	assert.Empty(t, result.Chains)
}

func TestDerive_NoConnections(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)

	result := Derive([]*entities.Frame{a, b, c}, nil)

	assert.Empty(t, result.Ordinals)
	assert.Equal(t, frameIDs(a, b, c), result.Playback)
	require.Len(t, result.Chains, 3)
	for i, f := range []*entities.Frame{a, b, c} {
		assert.Equal(t, []valueobjects.FrameID{f.ID()}, result.Chains[i])
	}
}

func TestDerive_LinearChain(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	ab := makeConnection(t, boardID, a.ID(), b.ID())
	bc := makeConnection(t, boardID, b.ID(), c.ID())

	result := Derive(
		[]*entities.Frame{a, b, c},
		[]*entities.Connection{ab, bc},
	)

	assert.Equal(t, 1, result.Ordinals[ab.ID()])
	assert.Equal(t, 2, result.Ordinals[bc.ID()])
	assert.Equal(t, frameIDs(a, b, c), result.Playback)
	require.Len(t, result.Chains, 1)
	assert.Equal(t, frameIDs(a, b, c), result.Chains[0])
}

func TestDerive_BranchFlattensIntoOneTrack(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	ab := makeConnection(t, boardID, a.ID(), b.ID())
	ac := makeConnection(t, boardID, a.ID(), c.ID())

	result := Derive(
		[]*entities.Frame{a, b, c},
		[]*entities.Connection{ab, ac},
	)

	// Stored order wins the tie at A, so the A->B branch is walked first
	// and the A->C branch resumes from A afterwards.
	assert.Equal(t, 1, result.Ordinals[ab.ID()])
	assert.Equal(t, 2, result.Ordinals[ac.ID()])
	assert.Equal(t, frameIDs(a, b, c), result.Playback)
	require.Len(t, result.Chains, 2)
	assert.Equal(t, frameIDs(a, b), result.Chains[0])
	assert.Equal(t, frameIDs(c), result.Chains[1])
}

func TestDerive_CycleTerminates(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	ab := makeConnection(t, boardID, a.ID(), b.ID())
	bc := makeConnection(t, boardID, b.ID(), c.ID())
	ca := makeConnection(t, boardID, c.ID(), a.ID())

	result := Derive(
		[]*entities.Frame{a, b, c},
		[]*entities.Connection{ab, bc, ca},
	)

	// No root exists; the walk starts from the first stored connection
	// and every connection still gets exactly one ordinal.
	assert.Equal(t, 1, result.Ordinals[ab.ID()])
	assert.Equal(t, 2, result.Ordinals[bc.ID()])
	assert.Equal(t, 3, result.Ordinals[ca.ID()])
	assert.Equal(t, frameIDs(a, b, c), result.Playback)
	require.Len(t, result.Chains, 1)
}

func TestDerive_SelfLoop(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	loop := makeConnection(t, boardID, a.ID(), a.ID())

	result := Derive([]*entities.Frame{a}, []*entities.Connection{loop})

	assert.Equal(t, 1, result.Ordinals[loop.ID()])
	assert.Equal(t, frameIDs(a), result.Playback)
	require.Len(t, result.Chains, 1)
	assert.Equal(t, frameIDs(a), result.Chains[0])
}

func TestDerive_DisjointChainsAndOrphan(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	d := makeFrame(t, boardID)
	orphan := makeFrame(t, boardID)
	ab := makeConnection(t, boardID, a.ID(), b.ID())
	cd := makeConnection(t, boardID, c.ID(), d.ID())

	result := Derive(
		[]*entities.Frame{a, b, c, d, orphan},
		[]*entities.Connection{ab, cd},
	)

	assert.Equal(t, 1, result.Ordinals[ab.ID()])
	assert.Equal(t, 2, result.Ordinals[cd.ID()])
	assert.Equal(t, frameIDs(a, b, c, d, orphan), result.Playback)
	require.Len(t, result.Chains, 3)
	assert.Equal(t, frameIDs(a, b), result.Chains[0])
	assert.Equal(t, frameIDs(c, d), result.Chains[1])
	assert.Equal(t, frameIDs(orphan), result.Chains[2])
}

func TestDerive_MidChainJoin(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	d := makeFrame(t, boardID)
	ab := makeConnection(t, boardID, a.ID(), b.ID())
	bc := makeConnection(t, boardID, b.ID(), c.ID())
	db := makeConnection(t, boardID, d.ID(), b.ID())

	result := Derive(
		[]*entities.Frame{a, b, c, d},
		[]*entities.Connection{ab, bc, db},
	)

	// Two roots, A and D; the first root walk consumes the chain through
	// B so D's walk ends immediately at the already claimed frame.
	assert.Equal(t, 1, result.Ordinals[ab.ID()])
	assert.Equal(t, 2, result.Ordinals[bc.ID()])
	assert.Equal(t, 3, result.Ordinals[db.ID()])
	assert.Equal(t, frameIDs(a, b, c, d), result.Playback)
}

func TestDerive_DanglingEndpointSkipped(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	ghost := valueobjects.NewFrameID()
	conn := makeConnection(t, boardID, a.ID(), ghost)

	result := Derive([]*entities.Frame{a}, []*entities.Connection{conn})

	assert.Equal(t, 1, result.Ordinals[conn.ID()])
	assert.Equal(t, frameIDs(a), result.Playback)
	assert.NotContains(t, result.Playback, ghost)
}

func TestDerive_EveryFrameAppearsExactlyOnce(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	frames := make([]*entities.Frame, 6)
	for i := range frames {
		frames[i] = makeFrame(t, boardID)
	}
	conns := []*entities.Connection{
		makeConnection(t, boardID, frames[0].ID(), frames[1].ID()),
		makeConnection(t, boardID, frames[1].ID(), frames[2].ID()),
		makeConnection(t, boardID, frames[2].ID(), frames[0].ID()),
		makeConnection(t, boardID, frames[3].ID(), frames[4].ID()),
	}

	result := Derive(frames, conns)

	require.Len(t, result.Playback, len(frames))
	seen := make(map[valueobjects.FrameID]bool)
	for _, id := range result.Playback {
		assert.False(t, seen[id], "frame repeated in playback")
		seen[id] = true
	}
	assert.Len(t, result.Ordinals, len(conns))
}

func TestDerive_Deterministic(t *testing.T) {
	boardID := valueobjects.NewBoardID()
	a := makeFrame(t, boardID)
	b := makeFrame(t, boardID)
	c := makeFrame(t, boardID)
	conns := []*entities.Connection{
		makeConnection(t, boardID, a.ID(), b.ID()),
		makeConnection(t, boardID, a.ID(), c.ID()),
		makeConnection(t, boardID, c.ID(), a.ID()),
	}
	frames := []*entities.Frame{a, b, c}

	first := Derive(frames, conns)
	second := Derive(frames, conns)

	assert.Equal(t, first.Ordinals, second.Ordinals)
	assert.Equal(t, first.Playback, second.Playback)
	assert.Equal(t, first.Chains, second.Chains)
}
