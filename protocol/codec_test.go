package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/state"
	"github.com/wfunc/coupserver/timer"
)

func TestDecode_Valid(t *testing.T) {
	tests := []struct {
		name string
		id   uint16
		data string
		want Inbound
	}{
		{"claim", MsgClaimName, `{"name":"alice"}`, ClaimName{Name: "alice"}},
		{"declare", MsgDeclareAction, `{"kind":"steal","target":"p2"}`, DeclareAction{Kind: state.Steal, Target: "p2"}},
		{"block", MsgBlock, `{"claim":"contessa"}`, Block{Claim: deck.Contessa}},
		{"exchange", MsgChooseExchange, `{"keep":[0,3]}`, ChooseExchange{Keep: []int{0, 3}}},
		{"empty confirm", MsgConfirm, ``, Confirm{}},
		{"object confirm", MsgConfirm, `{}`, Confirm{}},
		{"heartbeat", MsgHeartbeat, ``, Heartbeat{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.id, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_ZeroValuesArePresent(t *testing.T) {
	got, err := Decode(MsgSetReady, []byte(`{"ready":false}`))
	require.NoError(t, err)
	ready := got.(SetReady)
	require.NotNil(t, ready.Ready)
	assert.False(t, *ready.Ready)

	got, err = Decode(MsgChooseInfluence, []byte(`{"index":0}`))
	require.NoError(t, err)
	assert.Equal(t, 0, *got.(ChooseInfluence).Index)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		id   uint16
		data string
	}{
		{"unknown id", 999, `{}`},
		{"unknown field", MsgClaimName, `{"name":"a","admin":true}`},
		{"missing name", MsgClaimName, `{}`},
		{"missing ready", MsgSetReady, `{}`},
		{"missing index", MsgChooseInfluence, `{}`},
		{"missing order", MsgReorder, `{}`},
		{"unknown claim", MsgBlock, `{"claim":"jester"}`},
		{"bad json", MsgDeclareAction, `{"kind":`},
		{"wrong type", MsgChooseInfluence, `{"index":"one"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.id, []byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, apperr.CodeInvalidMessage, apperr.CodeOf(err))
		})
	}
}

func TestScopes(t *testing.T) {
	private := []Outbound{Joined{}, JoinRejected{}, YouAreLeader{}, ReadyConfirm{}, PrivateHand{}, ExchangeOptions{}, Rejected{}}
	for _, m := range private {
		assert.Equal(t, Private, m.Scope(), "%T", m)
	}
	public := []Outbound{RosterUpdate{}, GameStarted{}, StateUpdate{}, LogEntry{}, GameOver{}, RoomClosed{}}
	for _, m := range public {
		assert.Equal(t, Public, m.Scope(), "%T", m)
	}
}

func TestEncode_PublicStateCarriesNoHand(t *testing.T) {
	e := state.NewEngine(deck.SeededRand(3), timer.NewManualClock(timerStart), state.DefaultTiming())
	_, err := e.Handle("a", state.StartGame{Players: []state.Player{
		{ID: "a", Name: "alice", Connected: true},
		{ID: "b", Name: "bob", Connected: true},
	}})
	require.NoError(t, err)

	data, err := Encode(StateUpdate{State: e.PublicView()})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	seats := raw["state"].(map[string]any)["seats"].([]any)
	for _, s := range seats {
		seat := s.(map[string]any)
		assert.NotContains(t, seat, "hand")
		assert.EqualValues(t, 2, seat["influence"])
	}
}

func TestEncode_TooLarge(t *testing.T) {
	big := make([]byte, MaxPayload)
	for i := range big {
		big[i] = 'x'
	}
	_, err := Encode(LogEntry{Text: string(big)})
	assert.Error(t, err)
}

var timerStart = time.Unix(1700000000, 0)
