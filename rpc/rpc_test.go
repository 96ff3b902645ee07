package rpc

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/persistence"
	"github.com/wfunc/coupserver/room"
	"github.com/wfunc/coupserver/services"
	"github.com/wfunc/coupserver/state"
)

type staticRooms []room.Info

func (s staticRooms) List() []room.Info { return s }

func TestAdminService_OverTCP(t *testing.T) {
	db := persistence.NewMemory()
	now := time.Now().UTC().Truncate(time.Second)
	err := db.SaveMatchRecord(context.Background(), models.MatchRecord{
		ID:         "m1",
		RoomID:     "ABCDEF",
		WinnerName: "ann",
		Players: []models.MatchPlayer{
			{Name: "ann", Winner: true},
			{Name: "bob", Seat: 1},
		},
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	rooms := staticRooms{{ID: "ABCDEF", Phase: state.PhaseInProgress, Participants: 3, Connected: 2}}
	admin := NewAdminService(rooms, services.NewMatchService(db, time.Second))

	srv, err := NewServer("127.0.0.1:0", admin)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Start()
	defer srv.Stop()

	client, err := rpc.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	var roomsReply ListRoomsReply
	if err := client.Call("AdminService.ListRooms", &ListRoomsArgs{}, &roomsReply); err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(roomsReply.Rooms) != 1 || roomsReply.Rooms[0].Connected != 2 {
		t.Errorf("unexpected rooms: %+v", roomsReply.Rooms)
	}
	if roomsReply.Rooms[0].Phase != string(state.PhaseInProgress) {
		t.Errorf("unexpected phase %q", roomsReply.Rooms[0].Phase)
	}

	var statsReply GetPlayerStatsReply
	if err := client.Call("AdminService.GetPlayerStats", &GetPlayerStatsArgs{Name: "bob"}, &statsReply); err != nil {
		t.Fatalf("GetPlayerStats failed: %v", err)
	}
	if statsReply.Stats.TotalGames != 1 || statsReply.Stats.Losses != 1 {
		t.Errorf("unexpected stats: %+v", statsReply.Stats)
	}

	var matchesReply RecentMatchesReply
	if err := client.Call("AdminService.RecentMatches", &RecentMatchesArgs{Name: "ann", Limit: 5}, &matchesReply); err != nil {
		t.Fatalf("RecentMatches failed: %v", err)
	}
	if len(matchesReply.Matches) != 1 || matchesReply.Matches[0].ID != "m1" {
		t.Errorf("unexpected matches: %+v", matchesReply.Matches)
	}

	if err := client.Call("AdminService.GetPlayerStats", &GetPlayerStatsArgs{Name: "nobody"}, &statsReply); err == nil {
		t.Error("expected an error for an unknown player")
	}
}
