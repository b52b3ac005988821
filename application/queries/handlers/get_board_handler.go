package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/application/queries"
	"storyboard/application/queries/bus"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// GetBoardHandler serves board snapshots through the stale-while-revalidate
// cache. A stale answer is still an answer; callers see the flag and may
// keep rendering while the background revalidation runs.
type GetBoardHandler struct {
	cache  ports.SnapshotCache
	logger *zap.Logger
}

// NewGetBoardHandler creates the handler
func NewGetBoardHandler(cache ports.SnapshotCache, logger *zap.Logger) *GetBoardHandler {
	return &GetBoardHandler{cache: cache, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *GetBoardHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.GetBoardQuery)
	if !ok {
		return nil, pkgerrors.NewValidationError("invalid query type for GetBoardHandler")
	}

	board, stale, err := h.cache.Get(ctx, valueobjects.BoardID(q.BoardID))
	revalidateFailed := board != nil && pkgerrors.IsRevalidation(err)
	if err != nil && !revalidateFailed {
		return nil, err
	}
	if revalidateFailed {
		h.logger.Warn("serving board after failed revalidation",
			zap.String("boardID", q.BoardID),
			zap.Error(err),
		)
	}

	return queries.BoardResult{
		Board:            toBoardView(board),
		Stale:            stale,
		RevalidateFailed: revalidateFailed,
	}, nil
}

// toBoardView maps the aggregate to its read model
func toBoardView(board *aggregates.Board) *queries.BoardView {
	if board == nil {
		return nil
	}

	view := &queries.BoardView{
		ID:          board.ID().String(),
		Name:        board.Name(),
		SharePolicy: string(board.SharePolicy()),
		Frames:      make([]queries.FrameView, 0, board.FrameCount()),
		Connections: make([]queries.ConnectionView, 0, board.ConnectionCount()),
		CreatedAt:   board.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:   board.UpdatedAt().Format(time.RFC3339Nano),
	}

	for _, frame := range board.Frames() {
		view.Frames = append(view.Frames, queries.FrameView{
			ID:         frame.ID().String(),
			X:          frame.Position().X(),
			Y:          frame.Position().Y(),
			AssetRef:   frame.AssetRef(),
			DurationMs: frame.Duration().Milliseconds(),
			Status:     string(frame.Status()),
			Version:    frame.Version(),
			CreatedAt:  frame.CreatedAt().Format(time.RFC3339Nano),
			UpdatedAt:  frame.UpdatedAt().Format(time.RFC3339Nano),
		})
	}

	for _, conn := range board.Connections() {
		view.Connections = append(view.Connections, queries.ConnectionView{
			ID:          conn.ID().String(),
			FromFrameID: conn.From().String(),
			ToFrameID:   conn.To().String(),
			CreatedAt:   conn.CreatedAt().Format(time.RFC3339Nano),
		})
	}

	return view
}
