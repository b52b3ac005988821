package ports

import (
	"context"

	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
)

// SnapshotCache is the stale-while-revalidate cache for board snapshots.
// Get always answers from cache when an entry exists, flags it stale past
// the TTL, and kicks revalidation in the background; a failed revalidation
// never evicts a held entry.
type SnapshotCache interface {
	// Get returns a detached copy of the cached snapshot and whether it is
	// stale. On a miss it loads synchronously; concurrent loads for one
	// board are collapsed. When the held entry's last background
	// revalidation failed, the entry is still returned together with the
	// revalidation error (pkg/errors.IsRevalidation).
	Get(ctx context.Context, boardID valueobjects.BoardID) (*aggregates.Board, bool, error)

	// Put atomically replaces the entry and its timestamp. The cache keeps
	// its own copy; the caller's board is not retained.
	Put(boardID valueobjects.BoardID, board *aggregates.Board)

	// Invalidate marks the entry stale, forcing revalidation on next use
	Invalidate(boardID valueobjects.BoardID)
}
