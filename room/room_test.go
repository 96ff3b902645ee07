package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/protocol"
	"github.com/wfunc/coupserver/state"
	"github.com/wfunc/coupserver/timer"
)

// MockBroadcaster is a test double for the Broadcaster interface. It records
// every delivery and counts attempts to broadcast a private message.
type MockBroadcaster struct {
	mu      sync.Mutex
	public  []protocol.Outbound
	private map[string][]protocol.Outbound
	leaks   int
}

func newMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{private: make(map[string][]protocol.Outbound)}
}

func (m *MockBroadcaster) BroadcastToRoom(roomID string, msg protocol.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.Scope() != protocol.Public {
		m.leaks++
		return errors.New("private message broadcast")
	}
	m.public = append(m.public, msg)
	return nil
}

func (m *MockBroadcaster) SendTo(sessionID string, msg protocol.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private[sessionID] = append(m.private[sessionID], msg)
	return nil
}

func (m *MockBroadcaster) sentTo(conn string) []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Outbound(nil), m.private[conn]...)
}

func (m *MockBroadcaster) broadcasts() []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Outbound(nil), m.public...)
}

func (m *MockBroadcaster) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.public = nil
	m.private = make(map[string][]protocol.Outbound)
}

type MockArchiver struct {
	mu      sync.Mutex
	records []models.MatchRecord
}

func (m *MockArchiver) ArchiveMatch(rec models.MatchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

type MockMetrics struct {
	mu               sync.Mutex
	rejected         map[apperr.Code]int
	started, finished int
	frozen           int
}

func (m *MockMetrics) ObserveCommand(uint16, time.Duration) {}
func (m *MockMetrics) CommandRejected(code apperr.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[apperr.Code]int)
	}
	m.rejected[code]++
}
func (m *MockMetrics) GameStarted()  { m.mu.Lock(); m.started++; m.mu.Unlock() }
func (m *MockMetrics) GameFinished() { m.mu.Lock(); m.finished++; m.mu.Unlock() }
func (m *MockMetrics) RoomFrozen()   { m.mu.Lock(); m.frozen++; m.mu.Unlock() }

func find[T protocol.Outbound](msgs []protocol.Outbound) (T, bool) {
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.NewRand = func() (*rand.Rand, error) { return deck.SeededRand(1), nil }
	return opts
}

type harness struct {
	t       *testing.T
	room    *Room
	clock   *timer.ManualClock
	timers  *timer.TimerManager
	bc      *MockBroadcaster
	archive *MockArchiver
	metrics *MockMetrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := timer.NewManualClock(time.Unix(1700000000, 0))
	timers := timer.NewTimerManager(clock)
	h := &harness{t: t, clock: clock, timers: timers, bc: newMockBroadcaster(), archive: &MockArchiver{}, metrics: &MockMetrics{}}
	r, err := NewRoom("ROOM01", testOptions(), timers, h.bc, h.archive, h.metrics, nil)
	require.NoError(t, err)
	h.room = r
	t.Cleanup(func() { r.Close("test over") })
	return h
}

func (h *harness) do(conn string, msg protocol.Inbound) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.room.Do(ctx, conn, msg)
}

func (h *harness) must(conn string, msg protocol.Inbound) {
	h.t.Helper()
	require.NoError(h.t, h.do(conn, msg))
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.timers.RunDue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.room.Sync(ctx))
}

func (h *harness) disconnect(conn string) {
	h.t.Helper()
	h.room.Disconnect(conn, apperr.CodeDisconnected)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.room.Sync(ctx))
}

func ready(v bool) protocol.SetReady { return protocol.SetReady{Ready: &v} }

// startTwo seats alice (c1, leader) and bob (c2) and starts the game.
func (h *harness) startTwo() {
	h.t.Helper()
	h.must("c1", protocol.ClaimName{Name: "alice"})
	h.must("c2", protocol.ClaimName{Name: "bob"})
	h.must("c2", ready(true))
	h.must("c1", protocol.StartGame{})
}

func (h *harness) participantID(conn string) string {
	p, ok := h.room.registry.ByConn(conn)
	require.True(h.t, ok)
	return p.ID
}

func TestRoom_ClaimName(t *testing.T) {
	h := newHarness(t)

	h.must("c1", protocol.ClaimName{Name: "alice"})
	joined, ok := find[protocol.Joined](h.bc.sentTo("c1"))
	require.True(t, ok)
	assert.Equal(t, "alice", joined.Name)
	assert.False(t, joined.Rejoined)
	_, ok = find[protocol.YouAreLeader](h.bc.sentTo("c1"))
	assert.True(t, ok, "first claimant leads")

	roster, ok := find[protocol.RosterUpdate](h.bc.broadcasts())
	require.True(t, ok)
	require.Len(t, roster.Participants, 1)
	assert.True(t, roster.Participants[0].Ready)

	err := h.do("c2", protocol.ClaimName{Name: "alice"})
	assert.Equal(t, apperr.CodeNameTaken, apperr.CodeOf(err))
	rej, ok := find[protocol.JoinRejected](h.bc.sentTo("c2"))
	require.True(t, ok)
	assert.Equal(t, string(apperr.CodeNameTaken), rej.Code)
	_, ok = find[protocol.YouAreLeader](h.bc.sentTo("c2"))
	assert.False(t, ok)
}

func TestRoom_StartGame(t *testing.T) {
	h := newHarness(t)
	h.must("c1", protocol.ClaimName{Name: "alice"})
	h.must("c2", protocol.ClaimName{Name: "bob"})

	err := h.do("c2", protocol.StartGame{})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
	err = h.do("c1", protocol.StartGame{})
	assert.Equal(t, apperr.CodeIllegalAction, apperr.CodeOf(err), "bob is not ready")
	rejected, ok := find[protocol.Rejected](h.bc.sentTo("c1"))
	require.True(t, ok)
	assert.Equal(t, protocol.MsgStartGame, rejected.Request)

	h.must("c2", ready(true))
	confirm, ok := find[protocol.ReadyConfirm](h.bc.sentTo("c2"))
	require.True(t, ok)
	assert.True(t, confirm.Ready)

	h.must("c1", protocol.StartGame{})
	started, ok := find[protocol.GameStarted](h.bc.broadcasts())
	require.True(t, ok)
	assert.Equal(t, state.PhaseInProgress, started.State.Phase)
	assert.Len(t, started.State.Seats, 2)

	for _, conn := range []string{"c1", "c2"} {
		hand, ok := find[protocol.PrivateHand](h.bc.sentTo(conn))
		require.True(t, ok, conn)
		assert.Len(t, hand.Hand, 2)
	}
	assert.Zero(t, h.bc.leaks)
	assert.Equal(t, 1, h.metrics.started)

	err = h.do("c1", protocol.StartGame{})
	assert.Equal(t, apperr.CodeGameAlreadyStarted, apperr.CodeOf(err))
}

func TestRoom_UnreadyParticipantsAreDroppedAtStart(t *testing.T) {
	h := newHarness(t)
	h.must("c1", protocol.ClaimName{Name: "alice"})
	h.must("c2", protocol.ClaimName{Name: "bob"})
	h.must("c3", protocol.ClaimName{Name: "carol"})
	h.must("c2", ready(true))
	h.must("c1", protocol.StartGame{})

	assert.Equal(t, 2, h.room.registry.Len())
	err := h.do("c3", protocol.ClaimName{Name: "carol"})
	assert.Equal(t, apperr.CodeGameAlreadyStarted, apperr.CodeOf(err))
	err = h.do("c3", protocol.DeclareAction{Kind: state.Income})
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestRoom_WindowExpiresThroughInbox(t *testing.T) {
	h := newHarness(t)
	h.startTwo()
	alice := h.participantID("c1")

	h.must("c1", protocol.DeclareAction{Kind: state.Tax})
	h.advance(10 * time.Second)
	seat, _ := h.room.engine.Seat(alice)
	assert.Equal(t, 2, seat.Coins, "window still open")

	h.advance(6 * time.Second)
	seat, _ = h.room.engine.Seat(alice)
	assert.Equal(t, 5, seat.Coins, "unchallenged tax resolves on expiry")

	update, ok := find[protocol.StateUpdate](h.bc.broadcasts())
	require.True(t, ok)
	assert.NotEmpty(t, update.LastEvent)
}

func TestRoom_StaleTimerIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.startTwo()
	alice := h.participantID("c1")

	h.must("c1", protocol.DeclareAction{Kind: state.Tax})
	h.must("c2", protocol.Confirm{})
	h.must("c2", protocol.DeclareAction{Kind: state.Income})
	h.advance(time.Minute)

	seat, _ := h.room.engine.Seat(alice)
	assert.Equal(t, 5, seat.Coins)
	assert.Equal(t, alice, h.room.engine.PublicView().Turn)
}

func TestRoom_IllegalCommandIsRejectedPrivately(t *testing.T) {
	h := newHarness(t)
	h.startTwo()
	h.bc.reset()

	err := h.do("c2", protocol.DeclareAction{Kind: state.Income})
	assert.Equal(t, apperr.CodeIllegalAction, apperr.CodeOf(err))
	rej, ok := find[protocol.Rejected](h.bc.sentTo("c2"))
	require.True(t, ok)
	assert.Equal(t, protocol.MsgDeclareAction, rej.Request)
	assert.Empty(t, h.bc.broadcasts(), "a rejected command broadcasts nothing")
	assert.Equal(t, 1, h.metrics.rejected[apperr.CodeIllegalAction])
}

func TestRoom_DisconnectForfeitsAfterGrace(t *testing.T) {
	h := newHarness(t)
	h.startTwo()

	h.disconnect("c2")
	h.advance(30 * time.Second)
	assert.Equal(t, state.PhaseInProgress, h.room.engine.Phase())

	h.advance(31 * time.Second)
	assert.Equal(t, state.PhaseFinished, h.room.engine.Phase())
	over, ok := find[protocol.GameOver](h.bc.broadcasts())
	require.True(t, ok)
	assert.Equal(t, "alice", over.WinnerName)

	require.Len(t, h.archive.records, 1)
	rec := h.archive.records[0]
	assert.Equal(t, "ROOM01", rec.RoomID)
	assert.Equal(t, "alice", rec.WinnerName)
	require.Len(t, rec.Players, 2)
	assert.True(t, rec.Players[1].Forfeited)
	assert.Equal(t, 1, h.metrics.finished)
}

func TestRoom_ZeroGraceFallsBackToDefault(t *testing.T) {
	clock := timer.NewManualClock(time.Unix(1700000000, 0))
	timers := timer.NewTimerManager(clock)
	h := &harness{t: t, clock: clock, timers: timers, bc: newMockBroadcaster(), archive: &MockArchiver{}, metrics: &MockMetrics{}}
	opts := testOptions()
	opts.DisconnectGrace = 0
	opts.TeardownGrace = 0
	r, err := NewRoom("ROOM02", opts, timers, h.bc, h.archive, h.metrics, nil)
	require.NoError(t, err)
	h.room = r
	t.Cleanup(func() { r.Close("test over") })

	h.startTwo()
	h.disconnect("c2")
	h.advance(DefaultOptions().DisconnectGrace + time.Second)
	assert.Equal(t, state.PhaseFinished, h.room.engine.Phase(), "an unset grace still forfeits")
}

func TestRoom_RejoinCancelsForfeitAndCatchesUp(t *testing.T) {
	h := newHarness(t)
	h.startTwo()
	bob := h.participantID("c2")

	h.disconnect("c2")
	h.must("c3", protocol.ClaimName{Name: "bob"})

	joined, ok := find[protocol.Joined](h.bc.sentTo("c3"))
	require.True(t, ok)
	assert.True(t, joined.Rejoined)
	assert.Equal(t, bob, joined.ParticipantID)
	_, ok = find[protocol.StateUpdate](h.bc.sentTo("c3"))
	assert.True(t, ok)
	hand, ok := find[protocol.PrivateHand](h.bc.sentTo("c3"))
	require.True(t, ok)
	assert.Len(t, hand.Hand, 2)

	h.advance(2 * time.Minute)
	seat, _ := h.room.engine.Seat(bob)
	assert.False(t, seat.Dead)
	assert.True(t, seat.Connected)
}

func TestRoom_LeaderHandoff(t *testing.T) {
	h := newHarness(t)
	h.must("c1", protocol.ClaimName{Name: "alice"})
	h.must("c2", protocol.ClaimName{Name: "bob"})

	h.disconnect("c1")
	_, ok := find[protocol.YouAreLeader](h.bc.sentTo("c2"))
	assert.True(t, ok)
	leader, ok := h.room.registry.Leader()
	require.True(t, ok)
	assert.Equal(t, "bob", leader.Name)
}

func TestRoom_ConcurrentClaimsAreSerialized(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.do(fmt.Sprintf("c%d", i), protocol.ClaimName{Name: fmt.Sprintf("p%d", i)})
		}(i)
	}
	wg.Wait()

	joined, full := 0, 0
	for _, err := range errs {
		switch apperr.CodeOf(err) {
		case apperr.CodeUnknown:
			require.NoError(t, err)
			joined++
		case apperr.CodeRoomFull:
			full++
		}
	}
	assert.Equal(t, 6, joined)
	assert.Equal(t, 4, full)
	assert.Equal(t, 6, h.room.registry.Len())
}

func TestRoom_FatalErrorFreezesRoom(t *testing.T) {
	h := newHarness(t)
	h.startTwo()

	h.room.apply(nil, apperr.ErrConservationViolated)

	select {
	case <-h.room.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("frozen room should stop its worker")
	}
	_, ok := find[protocol.RoomClosed](h.bc.broadcasts())
	assert.True(t, ok)
	assert.Equal(t, 1, h.metrics.frozen)
	assert.ErrorIs(t, h.do("c1", protocol.Confirm{}), apperr.ErrRoomClosed)
}

func TestRoom_TimerEnqueueNeverBlocks(t *testing.T) {
	r := &Room{ID: "FULL01", inbox: make(chan command, 1), closeChan: make(chan struct{})}

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			r.enqueueFromTimer(expireCmd{windowID: uint64(i)})
		}
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("enqueueFromTimer blocked on a full inbox")
	}

	seen := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		select {
		case c := <-r.inbox:
			seen[c.(expireCmd).windowID] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d of 3 timer commands were delivered", i)
		}
	}
	assert.Len(t, seen, 3)
}

func TestRoom_DisconnectAfterCloseIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	saved := logger.Log
	logger.Log = zap.New(core).Sugar()
	t.Cleanup(func() { logger.Log = saved })

	h := newHarness(t)
	h.room.Close("test over")
	<-h.room.Done()

	h.room.Disconnect("c1", apperr.CodeDisconnected)
	dropped := logs.FilterMessage("disconnect dropped")
	require.Equal(t, 1, dropped.Len())
	assert.Equal(t, "ROOM01", dropped.All()[0].ContextMap()["room"])
}
