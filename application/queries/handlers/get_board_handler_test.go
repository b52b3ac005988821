package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/application/queries"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// stubCache serves one board with a fixed staleness and error
type stubCache struct {
	board *aggregates.Board
	stale bool
	err   error
}

func (c *stubCache) Get(context.Context, valueobjects.BoardID) (*aggregates.Board, bool, error) {
	return c.board, c.stale, c.err
}
func (c *stubCache) Put(valueobjects.BoardID, *aggregates.Board) {}
func (c *stubCache) Invalidate(valueobjects.BoardID)             {}

func TestGetBoardHandler_SurfacesFailedRevalidation(t *testing.T) {
	board, err := aggregates.NewBoard("degraded")
	require.NoError(t, err)

	cache := &stubCache{
		board: board,
		stale: true,
		err:   pkgerrors.NewRevalidationError(board.ID().String(), pkgerrors.NewUnavailableError("storage")),
	}
	h := NewGetBoardHandler(cache, zap.NewNop())

	result, err := h.Handle(context.Background(), queries.GetBoardQuery{BoardID: board.ID().String()})
	require.NoError(t, err)

	res, ok := result.(queries.BoardResult)
	require.True(t, ok)
	require.NotNil(t, res.Board)
	assert.Equal(t, "degraded", res.Board.Name)
	assert.True(t, res.Stale)
	assert.True(t, res.RevalidateFailed)
}

func TestGetBoardHandler_MissFailureStillErrors(t *testing.T) {
	cache := &stubCache{err: pkgerrors.NewNotFoundError("board")}
	h := NewGetBoardHandler(cache, zap.NewNop())

	_, err := h.Handle(context.Background(), queries.GetBoardQuery{BoardID: valueobjects.NewBoardID().String()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
