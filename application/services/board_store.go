package services

import (
	"sync"

	"go.uber.org/zap"

	"storyboard/domain/core/aggregates"
	"storyboard/domain/sequence"
	pkgerrors "storyboard/pkg/errors"
)

// BoardStore holds the live in-memory board for one session and serializes
// every mutation. The durable sync adapter and the reconciler's write-back
// are the only writers; the sequence derivation engine reads through it and
// never mutates.
//
// The derived sequence is recomputed lazily whenever the board's topology
// version has moved, so it is fresh after every connection-set change while
// staying O(V+E) per recompute.
type BoardStore struct {
	mu     sync.RWMutex
	board  *aggregates.Board
	logger *zap.Logger

	seq         sequence.Result
	seqTopology int
	seqValid    bool
}

// NewBoardStore creates a store around an initial board snapshot
func NewBoardStore(board *aggregates.Board, logger *zap.Logger) *BoardStore {
	return &BoardStore{
		board:  board,
		logger: logger,
	}
}

// Replace swaps in a freshly fetched board, used by full resynchronization
func (s *BoardStore) Replace(board *aggregates.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.board = board
	s.seqValid = false

	s.logger.Debug("board store replaced",
		zap.String("boardID", board.ID().String()),
		zap.Int("frames", board.FrameCount()),
		zap.Int("connections", board.ConnectionCount()),
	)
}

// Update runs a mutation against the board under the write lock. A non-nil
// error from fn leaves no trace here only if fn itself rolled back; the
// store does not snapshot.
func (s *BoardStore) Update(fn func(*aggregates.Board) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board == nil {
		return pkgerrors.NewUnavailableError("board store")
	}

	err := fn(s.board)
	if s.board.TopologyVersion() != s.seqTopology {
		s.seqValid = false
	}
	return err
}

// View runs a read against the board under the read lock
func (s *BoardStore) View(fn func(*aggregates.Board)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.board != nil {
		fn(s.board)
	}
}

// Snapshot returns a deep copy of the current board
func (s *BoardStore) Snapshot() *aggregates.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.board == nil {
		return nil
	}
	return s.board.Snapshot()
}

// Sequence returns the derived playback sequence for the current topology,
// recomputing only when the connection set has changed since the last call.
func (s *BoardStore) Sequence() sequence.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board == nil {
		return sequence.Result{}
	}

	if !s.seqValid || s.board.TopologyVersion() != s.seqTopology {
		s.seq = sequence.Derive(s.board.Frames(), s.board.Connections())
		s.seqTopology = s.board.TopologyVersion()
		s.seqValid = true

		s.logger.Debug("sequence recomputed",
			zap.Int("ordinals", len(s.seq.Ordinals)),
			zap.Int("chains", len(s.seq.Chains)),
		)
	}

	return s.seq
}
