// Package session wires the collaboration engine for one participant on one
// board: the in-memory store, durable sync, position reconciliation, the
// ephemeral broadcast channel and presence, behind a single lifecycle.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storyboard/application/commands"
	cmdbus "storyboard/application/commands/bus"
	cmdhandlers "storyboard/application/commands/handlers"
	"storyboard/application/ports"
	"storyboard/application/queries"
	querybus "storyboard/application/queries/bus"
	queryhandlers "storyboard/application/queries/handlers"
	"storyboard/application/services"
	"storyboard/domain/config"
	"storyboard/domain/core/aggregates"
	"storyboard/domain/core/valueobjects"
	"storyboard/domain/events"
	pkgerrors "storyboard/pkg/errors"
)

// Dependencies are the external collaborators a session runs against
type Dependencies struct {
	Repo    ports.BoardRepository
	Feed    ports.ChangeFeed
	Channel ports.EphemeralChannel
	Cache   ports.SnapshotCache

	// Roster is optional; without it the participant list stays empty
	Roster ports.PresenceRoster

	Config *config.DomainConfig
	Logger *zap.Logger
}

func (d Dependencies) validate() error {
	switch {
	case d.Repo == nil:
		return pkgerrors.NewValidationError("session requires a board repository")
	case d.Feed == nil:
		return pkgerrors.NewValidationError("session requires a change feed")
	case d.Channel == nil:
		return pkgerrors.NewValidationError("session requires an ephemeral channel")
	case d.Cache == nil:
		return pkgerrors.NewValidationError("session requires a snapshot cache")
	case d.Logger == nil:
		return pkgerrors.NewValidationError("session requires a logger")
	}
	return nil
}

// Session is one participant's live editing session on a board
type Session struct {
	boardID valueobjects.BoardID
	self    ports.PresenceUpdate
	channel ports.EphemeralChannel

	store      *services.BoardStore
	reconciler *services.Reconciler
	broadcast  *services.BroadcastService
	sync       *services.SyncService
	presence   *services.PresenceService

	commandBus *cmdbus.CommandBus
	queryBus   *querybus.QueryBus

	mu         sync.RWMutex
	selections map[valueobjects.ParticipantID][]valueobjects.FrameID

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	logger    *zap.Logger
}

// Open loads the board, wires every service and starts the background
// consumers. The returned session must be closed to flush pending writes.
func Open(ctx context.Context, boardID valueobjects.BoardID, self ports.PresenceUpdate, deps Dependencies) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	board, _, err := deps.Cache.Get(ctx, boardID)
	if err != nil && !(board != nil && pkgerrors.IsRevalidation(err)) {
		return nil, pkgerrors.Wrap(err, "failed to load board")
	}

	logger := deps.Logger.With(zap.String("boardID", boardID.String()))
	store := services.NewBoardStore(board, logger)

	s := &Session{
		boardID:    boardID,
		self:       self,
		channel:    deps.Channel,
		store:      store,
		selections: make(map[valueobjects.ParticipantID][]valueobjects.FrameID),
		logger:     logger,
	}

	s.commandBus = cmdbus.NewCommandBus()
	if err := registerCommandHandlers(s.commandBus, store, deps.Repo, logger); err != nil {
		return nil, err
	}

	s.queryBus = querybus.NewQueryBus()
	if err := s.queryBus.Register(queries.GetBoardQuery{}, queryhandlers.NewGetBoardHandler(deps.Cache, logger)); err != nil {
		return nil, err
	}
	if err := s.queryBus.Register(queries.GetPlaybackQuery{}, queryhandlers.NewGetPlaybackHandler(store, logger)); err != nil {
		return nil, err
	}

	s.broadcast = services.NewBroadcastService(deps.Channel, self.ParticipantID, cfg, logger)

	s.reconciler = services.NewReconciler(cfg,
		func(ctx context.Context, frameID valueobjects.FrameID, pos valueobjects.Position) error {
			return s.commandBus.Send(ctx, commands.MoveFrameCommand{
				BoardID: boardID.String(),
				FrameID: frameID.String(),
				X:       pos.X(),
				Y:       pos.Y(),
			})
		},
		func(frameID valueobjects.FrameID, pos valueobjects.Position) {
			if err := s.broadcast.SendFrameMove(context.Background(), frameID, pos.X(), pos.Y()); err != nil {
				logger.Debug("frame move broadcast failed", zap.Error(err))
			}
		},
		logger,
	)

	s.sync = services.NewSyncService(boardID, store, deps.Repo, deps.Feed, s.reconciler, deps.Cache, logger)

	if deps.Roster != nil {
		s.presence = services.NewPresenceService(boardID, self, deps.Roster, cfg, logger)
	}

	s.wireInbound()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.sync.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("sync loop exited", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.broadcast.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("broadcast loop exited", zap.Error(err))
		}
	}()
	if s.presence != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.presence.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Warn("presence loop exited", zap.Error(err))
			}
		}()
	}

	logger.Info("session opened",
		zap.String("participantID", self.ParticipantID.String()),
	)
	return s, nil
}

// wireInbound routes decoded ephemeral messages to the services that render
// them
func (s *Session) wireInbound() {
	s.broadcast.OnMessage(events.KindFrameMove, func(msg events.EphemeralMessage) {
		move, err := msg.DecodeFrameMove()
		if err != nil {
			s.logger.Debug("dropping malformed frame move", zap.Error(err))
			return
		}
		pos, err := valueobjects.NewPosition(move.X, move.Y)
		if err != nil {
			return
		}
		s.reconciler.ObserveRemoteMove(move.FrameID, pos)
		if s.presence != nil {
			s.presence.Touch(msg.SenderID)
		}
	})

	s.broadcast.OnMessage(events.KindCursorMove, func(msg events.EphemeralMessage) {
		cursor, err := msg.DecodeCursorMove()
		if err != nil {
			s.logger.Debug("dropping malformed cursor move", zap.Error(err))
			return
		}
		if s.presence != nil {
			s.presence.ObserveCursor(msg.SenderID, cursor.X, cursor.Y)
		}
	})

	s.broadcast.OnMessage(events.KindSelectionChange, func(msg events.EphemeralMessage) {
		sel, err := msg.DecodeSelectionChange()
		if err != nil {
			s.logger.Debug("dropping malformed selection change", zap.Error(err))
			return
		}
		s.mu.Lock()
		if len(sel.FrameIDs) == 0 {
			delete(s.selections, msg.SenderID)
		} else {
			s.selections[msg.SenderID] = append([]valueobjects.FrameID(nil), sel.FrameIDs...)
		}
		s.mu.Unlock()
		if s.presence != nil {
			s.presence.Touch(msg.SenderID)
		}
	})
}

func registerCommandHandlers(b *cmdbus.CommandBus, store *services.BoardStore, repo ports.BoardRepository, logger *zap.Logger) error {
	regs := []struct {
		cmd     cmdbus.Command
		handler cmdbus.CommandHandler
	}{
		{commands.CreateFrameCommand{}, cmdhandlers.NewCreateFrameHandler(store, repo, logger)},
		{commands.MoveFrameCommand{}, cmdhandlers.NewMoveFrameHandler(store, repo, logger)},
		{commands.UpdateFrameCommand{}, cmdhandlers.NewUpdateFrameHandler(store, repo, logger)},
		{commands.DeleteFrameCommand{}, cmdhandlers.NewDeleteFrameHandler(store, repo, logger)},
		{commands.CreateConnectionCommand{}, cmdhandlers.NewCreateConnectionHandler(store, repo, logger)},
		{commands.DeleteConnectionCommand{}, cmdhandlers.NewDeleteConnectionHandler(store, repo, logger)},
	}
	for _, r := range regs {
		if err := b.Register(r.cmd, r.handler); err != nil {
			return err
		}
	}
	return nil
}

// BoardID returns the board this session edits
func (s *Session) BoardID() valueobjects.BoardID {
	return s.boardID
}

// Commands exposes the command bus for durable mutations
func (s *Session) Commands() *cmdbus.CommandBus {
	return s.commandBus
}

// Queries exposes the query bus for read models
func (s *Session) Queries() *querybus.QueryBus {
	return s.queryBus
}

// Store exposes the live in-memory board
func (s *Session) Store() *services.BoardStore {
	return s.store
}

// Presence exposes the roster and cursor tracker; nil without a roster
// dependency
func (s *Session) Presence() *services.PresenceService {
	return s.presence
}

// BeginDrag starts a local drag gesture on a frame
func (s *Session) BeginDrag(frameID valueobjects.FrameID) {
	from := s.RenderPosition(frameID)
	s.reconciler.BeginDrag(frameID, from)
}

// DragTo records a drag tick: rendered locally at once, broadcast to peers
// under throttle, persisted after the debounce window
func (s *Session) DragTo(frameID valueobjects.FrameID, x, y float64) error {
	pos, err := valueobjects.NewPosition(x, y)
	if err != nil {
		return err
	}
	s.reconciler.DragTo(frameID, pos)
	return nil
}

// EndDrag finishes a local drag gesture
func (s *Session) EndDrag(frameID valueobjects.FrameID) {
	s.reconciler.EndDrag(frameID)
}

// RenderPosition resolves the position to draw a frame at, merging local
// drag, peer movement and the persisted value under a strict priority
func (s *Session) RenderPosition(frameID valueobjects.FrameID) valueobjects.Position {
	var persisted valueobjects.Position
	s.store.View(func(b *aggregates.Board) {
		if frame, ok := b.Frame(frameID); ok {
			persisted = frame.Position()
		}
	})
	return s.reconciler.RenderPosition(frameID, persisted)
}

// SendCursor broadcasts this participant's cursor position under throttle
func (s *Session) SendCursor(ctx context.Context, x, y float64) error {
	return s.broadcast.SendCursor(ctx, x, y)
}

// SendSelection broadcasts this participant's selected frames
func (s *Session) SendSelection(ctx context.Context, frameIDs []valueobjects.FrameID) error {
	return s.broadcast.SendSelection(ctx, frameIDs)
}

// PeerSelections returns each peer's currently selected frames
func (s *Session) PeerSelections() map[valueobjects.ParticipantID][]valueobjects.FrameID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[valueobjects.ParticipantID][]valueobjects.FrameID, len(s.selections))
	for id, ids := range s.selections {
		out[id] = append([]valueobjects.FrameID(nil), ids...)
	}
	return out
}

// Close flushes pending position writes, stops the background loops and
// tears down the ephemeral subscription
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		flushErr := s.reconciler.Close(ctx)

		s.cancel()
		s.wg.Wait()

		if err := s.channel.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
		s.closeErr = flushErr
		s.logger.Info("session closed")
	})
	return s.closeErr
}
