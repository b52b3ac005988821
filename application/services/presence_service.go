package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/config"
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
	pkgerrors "storyboard/pkg/errors"
)

// cursorSweepInterval is how often expired peer cursors are cleared
const cursorSweepInterval = 500 * time.Millisecond

// CursorState is a peer's last known cursor position
type CursorState struct {
	ParticipantID valueobjects.ParticipantID
	X             float64
	Y             float64
	UpdatedAt     time.Time
}

// PresenceService maintains the live participant roster for a board session
// and tracks peer cursors received over the ephemeral channel. Cursors are
// cleared after a fixed silence window so a disconnected peer's pointer does
// not linger on screen; participants go idle after a longer one.
type PresenceService struct {
	boardID valueobjects.BoardID
	self    ports.PresenceUpdate
	roster  ports.PresenceRoster

	mu           sync.RWMutex
	participants map[valueobjects.ParticipantID]*entities.Participant
	cursors      map[valueobjects.ParticipantID]CursorState

	cursorExpiry time.Duration
	idleTimeout  time.Duration
	logger       *zap.Logger
}

// NewPresenceService creates a presence service for one participant's
// session on a board
func NewPresenceService(boardID valueobjects.BoardID, self ports.PresenceUpdate, roster ports.PresenceRoster, cfg *config.DomainConfig, logger *zap.Logger) *PresenceService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	return &PresenceService{
		boardID:      boardID,
		self:         self,
		roster:       roster,
		participants: make(map[valueobjects.ParticipantID]*entities.Participant),
		cursors:      make(map[valueobjects.ParticipantID]CursorState),
		cursorExpiry: cfg.CursorExpiry,
		idleTimeout:  cfg.IdleTimeout,
		logger:       logger,
	}
}

// Run joins the roster and consumes updates until the context is cancelled.
// It also sweeps expired cursors and idle participants on a timer.
func (s *PresenceService) Run(ctx context.Context) error {
	updates, err := s.roster.Join(ctx, s.boardID, s.self)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to join presence roster")
	}
	defer func() {
		if err := s.roster.Leave(context.Background()); err != nil {
			s.logger.Warn("failed to leave presence roster", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(cursorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.applyUpdate(update)
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// ObserveCursor records a peer's cursor position. Wired as the handler for
// inbound cursor messages; also counts as roster activity.
func (s *PresenceService) ObserveCursor(id valueobjects.ParticipantID, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[id] = CursorState{
		ParticipantID: id,
		X:             x,
		Y:             y,
		UpdatedAt:     time.Now(),
	}
	if p, ok := s.participants[id]; ok {
		p.Touch()
	}
}

// Touch records non-cursor activity for a participant
func (s *PresenceService) Touch(id valueobjects.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.participants[id]; ok {
		p.Touch()
	}
}

// Participants returns the current roster sorted by join time
func (s *PresenceService) Participants() []*entities.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinedAt().Before(out[j].JoinedAt())
	})
	return out
}

// Cursors returns the currently visible peer cursors
func (s *PresenceService) Cursors() []CursorState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CursorState, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

func (s *PresenceService) applyUpdate(update ports.PresenceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !update.Online {
		delete(s.participants, update.ParticipantID)
		delete(s.cursors, update.ParticipantID)
		return
	}

	if p, ok := s.participants[update.ParticipantID]; ok {
		p.Touch()
		return
	}

	p, err := entities.NewParticipant(update.ParticipantID, update.DisplayName, update.AvatarRef)
	if err != nil {
		s.logger.Warn("dropping invalid presence update", zap.Error(err))
		return
	}
	s.participants[update.ParticipantID] = p
}

// sweep clears cursors past the silence window and marks long-quiet
// participants idle
func (s *PresenceService) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cursor := range s.cursors {
		if now.Sub(cursor.UpdatedAt) > s.cursorExpiry {
			delete(s.cursors, id)
		}
	}
	for _, p := range s.participants {
		if p.Activity() == entities.ActivityActive && now.Sub(p.LastSeenAt()) > s.idleTimeout {
			p.MarkIdle()
		}
	}
}
