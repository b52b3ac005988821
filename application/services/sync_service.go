package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

const (
	resubscribeInitialBackoff = 250 * time.Millisecond
	resubscribeMaxBackoff     = 10 * time.Second
)

// dragGuard answers whether a local drag is in flight for a frame, in which
// case remote position updates for it must not be merged
type dragGuard interface {
	IsDragging(frameID valueobjects.FrameID) bool
}

// SyncService keeps the in-memory board converged with durable storage. It
// consumes the committed change feed, merges each event into the store with
// version-based staleness checks, and performs a full resynchronization
// whenever the subscription drops, since events during the gap are lost for
// good.
//
// Inserts that already exist and updates older than the local version are
// skipped: the feed also carries this session's own writes back, and the
// optimistic local apply has usually landed them already.
type SyncService struct {
	boardID valueobjects.BoardID
	store   *BoardStore
	repo    ports.BoardRepository
	feed    ports.ChangeFeed
	guard   dragGuard
	cache   ports.SnapshotCache
	logger  *zap.Logger
}

// NewSyncService creates a sync service for one board. guard and cache may
// be nil when drag protection or snapshot caching is not in play.
func NewSyncService(
	boardID valueobjects.BoardID,
	store *BoardStore,
	repo ports.BoardRepository,
	feed ports.ChangeFeed,
	guard dragGuard,
	cache ports.SnapshotCache,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		boardID: boardID,
		store:   store,
		repo:    repo,
		feed:    feed,
		guard:   guard,
		cache:   cache,
		logger:  logger,
	}
}

// Run subscribes to the change feed and applies events until the context is
// cancelled. When the feed channel closes it resubscribes with backoff and
// resynchronizes the full board before consuming again.
func (s *SyncService) Run(ctx context.Context) error {
	backoff := resubscribeInitialBackoff
	resynced := false

	for {
		ch, err := s.feed.Subscribe(ctx, s.boardID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("change feed subscribe failed, retrying",
				zap.String("boardID", s.boardID.String()),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = resubscribeInitialBackoff

		// The first subscription starts from a board loaded moments ago;
		// every later one follows a gap of unknown length.
		if resynced {
			if err := s.Resync(ctx); err != nil {
				s.logger.Error("board resynchronization failed",
					zap.String("boardID", s.boardID.String()),
					zap.Error(err),
				)
			}
		}
		resynced = true

		if err := s.consume(ctx, ch); err != nil {
			return err
		}
	}
}

// consume applies feed events until the channel closes or ctx is cancelled.
// A nil return means the subscription dropped and the caller should
// resubscribe.
func (s *SyncService) consume(ctx context.Context, ch <-chan ports.ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				s.logger.Info("change feed dropped",
					zap.String("boardID", s.boardID.String()),
				)
				return nil
			}
			s.Apply(ev)
		}
	}
}

// Apply merges one committed change into the store. Merge failures degrade
// to a log line; the next full resync repairs any divergence.
func (s *SyncService) Apply(ev ports.ChangeEvent) {
	var err error
	switch ev.Entity {
	case ports.EntityFrame:
		err = s.applyFrame(ev)
	case ports.EntityConnection:
		err = s.applyConnection(ev)
	default:
		s.logger.Warn("change event with unknown entity kind",
			zap.String("entity", string(ev.Entity)),
		)
		return
	}

	if err != nil {
		s.logger.Warn("failed to merge change event",
			zap.String("op", string(ev.Op)),
			zap.String("entity", string(ev.Entity)),
			zap.Error(err),
		)
		return
	}

	if s.cache != nil {
		s.cache.Invalidate(s.boardID)
	}
}

func (s *SyncService) applyFrame(ev ports.ChangeEvent) error {
	switch ev.Op {
	case ports.OpInsert, ports.OpUpdate:
		if ev.Frame == nil {
			return pkgerrors.NewValidationError("frame change event has no frame payload")
		}
		return s.store.Update(func(b *aggregates.Board) error {
			existing, ok := b.Frame(ev.Frame.ID())
			if !ok {
				return b.AddFrame(ev.Frame.Clone())
			}
			skipPosition := s.guard != nil && s.guard.IsDragging(ev.Frame.ID())
			existing.ApplyRemote(ev.Frame, skipPosition)
			return nil
		})

	case ports.OpDelete:
		return s.store.Update(func(b *aggregates.Board) error {
			if !b.HasFrame(ev.FrameID) {
				return nil
			}
			_, err := b.RemoveFrame(ev.FrameID)
			return err
		})

	default:
		return pkgerrors.NewValidationError("unknown change op: " + string(ev.Op))
	}
}

func (s *SyncService) applyConnection(ev ports.ChangeEvent) error {
	switch ev.Op {
	case ports.OpInsert, ports.OpUpdate:
		if ev.Connection == nil {
			return pkgerrors.NewValidationError("connection change event has no connection payload")
		}
		return s.store.Update(func(b *aggregates.Board) error {
			if _, ok := b.Connection(ev.Connection.ID()); ok {
				return nil
			}
			if err := b.AddConnection(ev.Connection.Clone()); err != nil {
				// A duplicate between the same endpoints means our own
				// optimistic apply got there first under a different id.
				if pkgerrors.IsConflict(err) {
					return nil
				}
				return err
			}
			return nil
		})

	case ports.OpDelete:
		return s.store.Update(func(b *aggregates.Board) error {
			if _, ok := b.Connection(ev.ConnectionID); !ok {
				return nil
			}
			return b.RemoveConnection(ev.ConnectionID)
		})

	default:
		return pkgerrors.NewValidationError("unknown change op: " + string(ev.Op))
	}
}

// Resync replaces the in-memory board with a fresh authoritative snapshot.
// Frames with a local drag in flight keep their locally rendered position
// through the reconciler, so wholesale replacement is safe.
func (s *SyncService) Resync(ctx context.Context) error {
	fresh, err := s.repo.GetBoard(ctx, s.boardID)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to fetch board for resync")
	}

	s.store.Replace(fresh)
	if s.cache != nil {
		s.cache.Put(s.boardID, fresh.Snapshot())
	}

	s.logger.Info("board resynchronized",
		zap.String("boardID", s.boardID.String()),
		zap.Int("frames", fresh.FrameCount()),
		zap.Int("connections", fresh.ConnectionCount()),
	)
	return nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > resubscribeMaxBackoff {
		return resubscribeMaxBackoff
	}
	return next
}
