package queries

import (
	"storyboard/pkg/utils"
)

// GetBoardQuery fetches a board snapshot, served stale-while-revalidate
type GetBoardQuery struct {
	BoardID string `validate:"required,uuid"`
}

// Validate checks the query's invariants
func (q GetBoardQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// BoardResult carries a snapshot plus its cache freshness. RevalidateFailed
// reports that the snapshot is stale and the last background refresh failed,
// so the staleness will persist until storage recovers.
type BoardResult struct {
	Board            *BoardView
	Stale            bool
	RevalidateFailed bool
}

// BoardView is the read model handed to interface layers
type BoardView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	SharePolicy string           `json:"share_policy"`
	Frames      []FrameView      `json:"frames"`
	Connections []ConnectionView `json:"connections"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// FrameView is the read model for one frame
type FrameView struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	AssetRef   string  `json:"asset_ref,omitempty"`
	DurationMs int     `json:"duration_ms"`
	Status     string  `json:"status"`
	Version    int     `json:"version"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// ConnectionView is the read model for one connection
type ConnectionView struct {
	ID          string `json:"id"`
	FromFrameID string `json:"from_frame_id"`
	ToFrameID   string `json:"to_frame_id"`
	CreatedAt   string `json:"created_at"`
}
