package roster

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wfunc/coupserver/apperr"
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("p%d", n)
	}
	return r
}

func mustClaim(t *testing.T, r *Registry, conn, name string) Participant {
	t.Helper()
	p, _, err := r.ClaimName(conn, name)
	if err != nil {
		t.Fatalf("claim %q on %s: %v", name, conn, err)
	}
	return p
}

func TestClaimName_FirstIsLeaderAndReady(t *testing.T) {
	r := newTestRegistry()
	p, res, err := r.ClaimName("c1", " alice ")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res != Joined {
		t.Errorf("result = %v, want joined", res)
	}
	if p.Name != "alice" {
		t.Errorf("name = %q, want trimmed alice", p.Name)
	}
	if !p.Leader || !p.Ready {
		t.Errorf("first participant should be leader and ready, got %+v", p)
	}

	q := mustClaim(t, r, "c2", "bob")
	if q.Leader || q.Ready {
		t.Errorf("second participant should be neither leader nor ready, got %+v", q)
	}
}

func TestClaimName_NameTaken(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	if _, _, err := r.ClaimName("c2", "alice"); !errors.Is(err, apperr.ErrNameTaken) {
		t.Fatalf("expected NameTaken, got %v", err)
	}
}

func TestClaimName_InvalidName(t *testing.T) {
	r := newTestRegistry()
	if _, _, err := r.ClaimName("c1", "   "); !errors.Is(err, apperr.ErrInvalidMessage) {
		t.Fatalf("expected InvalidMessage, got %v", err)
	}
}

func TestClaimName_RejoinRebindsConnection(t *testing.T) {
	r := newTestRegistry()
	orig := mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")
	if _, _, err := r.MarkDisconnected("c1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	p, res, err := r.ClaimName("c3", "alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if res != Rejoined {
		t.Errorf("result = %v, want rejoined", res)
	}
	if p.ID != orig.ID {
		t.Errorf("rejoin changed identity: %s -> %s", orig.ID, p.ID)
	}
	if got, ok := r.ByConn("c3"); !ok || got.ID != orig.ID {
		t.Error("new connection should map to the original participant")
	}
	if _, ok := r.ByConn("c1"); ok {
		t.Error("old connection should no longer be bound")
	}
}

func TestClaimName_ReconnectIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	orig := mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")
	r.MarkDisconnected("c1")

	first, _, err := r.ClaimName("c3", "alice")
	if err != nil {
		t.Fatalf("first rejoin: %v", err)
	}
	second, res, err := r.ClaimName("c3", "alice")
	if err != nil {
		t.Fatalf("second rejoin: %v", err)
	}
	if res != Rejoined || first.ID != orig.ID || second.ID != orig.ID {
		t.Errorf("expected the same identity twice, got %s and %s", first.ID, second.ID)
	}
	if r.Len() != 2 {
		t.Errorf("roster length = %d, want 2", r.Len())
	}
}

func TestClaimName_SecondNameOnSameConnection(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	if _, _, err := r.ClaimName("c1", "mallory"); !errors.Is(err, apperr.ErrIllegalAction) {
		t.Fatalf("expected IllegalAction, got %v", err)
	}
}

func TestClaimName_RoomFull(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < MaxParticipants; i++ {
		mustClaim(t, r, fmt.Sprintf("c%d", i), fmt.Sprintf("player%d", i))
	}
	if _, _, err := r.ClaimName("extra", "seventh"); !errors.Is(err, apperr.ErrRoomFull) {
		t.Fatalf("expected RoomFull, got %v", err)
	}
}

func TestClaimName_GameAlreadyStarted(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")
	r.SetStarted(true)

	if _, _, err := r.ClaimName("c3", "carol"); !errors.Is(err, apperr.ErrGameAlreadyStarted) {
		t.Fatalf("expected GameAlreadyStarted, got %v", err)
	}

	r.MarkDisconnected("c2")
	if _, res, err := r.ClaimName("c4", "bob"); err != nil || res != Rejoined {
		t.Fatalf("existing participant should rejoin after start, got %v %v", res, err)
	}
}

func TestMarkDisconnected_HandsOffToEarliestJoined(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")
	mustClaim(t, r, "c3", "carol")
	// Turn order no longer matches join order.
	if err := r.Reorder("c1", []string{"carol", "alice", "bob"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	_, handoff, err := r.MarkDisconnected("c1")
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if handoff.NewLeader == nil || handoff.NewLeader.Name != "bob" {
		t.Fatalf("expected bob to take over, got %+v", handoff.NewLeader)
	}
	if handoff.Empty {
		t.Error("room is not empty")
	}

	leaders := 0
	for _, p := range r.Participants() {
		if p.Leader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Errorf("leader count = %d, want 1", leaders)
	}
}

func TestMarkDisconnected_LastOneLeavesRoomEmpty(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	_, handoff, err := r.MarkDisconnected("c1")
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !handoff.Empty || handoff.NewLeader != nil {
		t.Errorf("expected empty room without new leader, got %+v", handoff)
	}

	// The next claimant takes the vacant leadership.
	p := mustClaim(t, r, "c2", "bob")
	if !p.Leader {
		t.Error("claimant of a room without a connected leader should lead")
	}
	if old, _ := r.ByID("p1"); old.Leader {
		t.Error("disconnected former leader should lose the flag")
	}
}

func TestMarkDisconnected_UnknownConnection(t *testing.T) {
	r := newTestRegistry()
	if _, _, err := r.MarkDisconnected("ghost"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for unbound connection, got %v", err)
	}
}

func TestReorder_LeaderOnlyPreStart(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")

	if err := r.Reorder("c2", []string{"bob", "alice"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-leader reorder: expected Forbidden, got %v", err)
	}
	if err := r.Reorder("c1", []string{"bob", "alice"}); err != nil {
		t.Fatalf("leader reorder: %v", err)
	}
	if got := r.Participants()[0].Name; got != "bob" {
		t.Errorf("first in order = %s, want bob", got)
	}
	if err := r.Reorder("c1", []string{"bob", "bob"}); !errors.Is(err, apperr.ErrIllegalAction) {
		t.Errorf("duplicate names: expected IllegalAction, got %v", err)
	}
	if err := r.Reorder("c1", []string{"bob", "zed"}); !errors.Is(err, apperr.ErrStaleReference) {
		t.Errorf("unknown name: expected StaleReference, got %v", err)
	}

	r.SetStarted(true)
	if err := r.Reorder("c1", []string{"alice", "bob"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("reorder after start: expected Forbidden, got %v", err)
	}
}

func TestSetReady(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")

	p, err := r.SetReady("c2", true)
	if err != nil || !p.Ready {
		t.Fatalf("set ready: %+v %v", p, err)
	}
	if r.ReadyCount() != 2 {
		t.Errorf("ready count = %d, want 2", r.ReadyCount())
	}
	if _, err := r.SetReady("nobody", true); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("unbound connection: expected Forbidden, got %v", err)
	}
}

func TestCompact(t *testing.T) {
	r := newTestRegistry()
	mustClaim(t, r, "c1", "alice")
	mustClaim(t, r, "c2", "bob")
	mustClaim(t, r, "c3", "carol")
	r.SetReady("c3", true)

	removed := r.Compact(func(p Participant) bool { return p.Ready })
	if len(removed) != 1 || removed[0].Name != "bob" {
		t.Fatalf("removed = %+v, want bob", removed)
	}
	if r.Len() != 2 {
		t.Errorf("roster length = %d, want 2", r.Len())
	}
	if _, ok := r.ByConn("c2"); ok {
		t.Error("compacted participant should lose its connection binding")
	}
}
