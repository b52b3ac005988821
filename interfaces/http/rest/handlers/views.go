package handlers

import (
	"net/http"
	"time"

	"storyboard/application/queries"
	"storyboard/domain/core/aggregates"
)

// SharedAccessHeader marks requests arriving through a share link. Boards
// shared view-only reject writes from such requests.
const SharedAccessHeader = "X-Shared-Access"

// writeAllowed reports whether a request may mutate the board under its
// share policy
func writeAllowed(r *http.Request, policy aggregates.SharePolicy) bool {
	if r.Header.Get(SharedAccessHeader) == "" {
		return true
	}
	return policy == aggregates.ShareEdit
}

// toBoardView maps a board aggregate to its read model
func toBoardView(board *aggregates.Board) queries.BoardView {
	view := queries.BoardView{
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
