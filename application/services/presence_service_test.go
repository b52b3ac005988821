package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storyboard/application/ports"
	"storyboard/domain/config"
	"storyboard/domain/core/valueobjects"
)

// fakeRoster feeds presence updates under test control.
type fakeRoster struct {
	mu      sync.Mutex
	updates chan ports.PresenceUpdate
	joined  []ports.PresenceUpdate
	left    int
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{updates: make(chan ports.PresenceUpdate, 16)}
}

func (r *fakeRoster) Join(_ context.Context, _ valueobjects.BoardID, self ports.PresenceUpdate) (<-chan ports.PresenceUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, self)
	return r.updates, nil
}

func (r *fakeRoster) Leave(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left++
	return nil
}

func (r *fakeRoster) leaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

func presenceFixture(t *testing.T) (*PresenceService, *fakeRoster, func()) {
	t.Helper()
	roster := newFakeRoster()
	self := ports.PresenceUpdate{
		ParticipantID: valueobjects.NewParticipantID(),
		DisplayName:   "me",
		Online:        true,
	}
	cfg := config.DefaultDomainConfig()
	cfg.CursorExpiry = 100 * time.Millisecond
	svc := NewPresenceService(valueobjects.NewBoardID(), self, roster, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	return svc, roster, func() {
		cancel()
		<-done
	}
}

func TestPresenceService_RosterTracksJoinAndLeave(t *testing.T) {
	svc, roster, stop := presenceFixture(t)
	defer stop()

	peer := valueobjects.NewParticipantID()
	roster.updates <- ports.PresenceUpdate{
		ParticipantID: peer,
		DisplayName:   "peer one",
		Online:        true,
	}

	require.Eventually(t, func() bool {
		return len(svc.Participants()) == 1
	}, time.Second, 5*time.Millisecond)

	got := svc.Participants()[0]
	assert.Equal(t, peer, got.ID())
	assert.Equal(t, "peer one", got.DisplayName())
	assert.NotEmpty(t, got.Color())

	roster.updates <- ports.PresenceUpdate{ParticipantID: peer, Online: false}

	require.Eventually(t, func() bool {
		return len(svc.Participants()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceService_OfflineClearsCursor(t *testing.T) {
	svc, roster, stop := presenceFixture(t)
	defer stop()

	peer := valueobjects.NewParticipantID()
	roster.updates <- ports.PresenceUpdate{ParticipantID: peer, DisplayName: "p", Online: true}
	require.Eventually(t, func() bool {
		return len(svc.Participants()) == 1
	}, time.Second, 5*time.Millisecond)

	svc.ObserveCursor(peer, 10, 20)
	require.Len(t, svc.Cursors(), 1)

	roster.updates <- ports.PresenceUpdate{ParticipantID: peer, Online: false}

	require.Eventually(t, func() bool {
		return len(svc.Cursors()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceService_CursorExpiresAfterSilence(t *testing.T) {
	svc, _, stop := presenceFixture(t)
	defer stop()

	peer := valueobjects.NewParticipantID()
	svc.ObserveCursor(peer, 5, 5)
	require.Len(t, svc.Cursors(), 1)

	// Nothing else arrives; the sweep clears the cursor once the silence
	// window passes.
	require.Eventually(t, func() bool {
		return len(svc.Cursors()) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPresenceService_CursorsSortedByParticipant(t *testing.T) {
	svc, _, stop := presenceFixture(t)
	defer stop()

	for i := 0; i < 5; i++ {
		svc.ObserveCursor(valueobjects.NewParticipantID(), float64(i), 0)
	}

	cursors := svc.Cursors()
	require.Len(t, cursors, 5)
	for i := 1; i < len(cursors); i++ {
		assert.Less(t, cursors[i-1].ParticipantID, cursors[i].ParticipantID)
	}
}

func TestPresenceService_LeavesRosterOnShutdown(t *testing.T) {
	_, roster, stop := presenceFixture(t)

	stop()
	assert.Equal(t, 1, roster.leaveCount())
}
