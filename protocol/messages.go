// Package protocol defines the typed messages carried inside network packets.
package protocol

import (
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/roster"
	"github.com/wfunc/coupserver/state"
)

// Inbound message ids.
const (
	MsgHeartbeat       uint16 = 1
	MsgClaimName       uint16 = 101
	MsgSetReady        uint16 = 102
	MsgReorder         uint16 = 103
	MsgStartGame       uint16 = 104
	MsgDeclareAction   uint16 = 201
	MsgChallenge       uint16 = 202
	MsgBlock           uint16 = 203
	MsgConfirm         uint16 = 204
	MsgChooseInfluence uint16 = 205
	MsgChooseExchange  uint16 = 206
)

// Outbound message ids.
const (
	MsgJoined          uint16 = 301
	MsgJoinRejected    uint16 = 302
	MsgYouAreLeader    uint16 = 303
	MsgRosterUpdate    uint16 = 304
	MsgReadyConfirm    uint16 = 305
	MsgGameStarted     uint16 = 306
	MsgStateUpdate     uint16 = 307
	MsgLogEntry        uint16 = 308
	MsgPrivateHand     uint16 = 309
	MsgExchangeOptions uint16 = 310
	MsgGameOver        uint16 = 311
	MsgRejected        uint16 = 312
	MsgRoomClosed      uint16 = 313
)

// Scope says who may receive an outbound message.
type Scope int

const (
	// Public messages go to every connection in the room.
	Public Scope = iota
	// Private messages go to exactly one connection.
	Private
)

// Inbound is a decoded client message.
type Inbound interface {
	MsgID() uint16
	validate() error
}

// Outbound is a server message.
type Outbound interface {
	MsgID() uint16
	Scope() Scope
}

// --- inbound ---

type Heartbeat struct{}

type ClaimName struct {
	Name string `json:"name"`
}

type SetReady struct {
	Ready *bool `json:"ready"`
}

type Reorder struct {
	Order []string `json:"order"`
}

type StartGame struct{}

type DeclareAction struct {
	Kind   state.ActionKind `json:"kind"`
	Target string           `json:"target,omitempty"`
}

type Challenge struct{}

type Block struct {
	Claim deck.Influence `json:"claim"`
}

type Confirm struct{}

type ChooseInfluence struct {
	Index *int `json:"index"`
}

type ChooseExchange struct {
	Keep []int `json:"keep"`
}

func (Heartbeat) MsgID() uint16       { return MsgHeartbeat }
func (ClaimName) MsgID() uint16       { return MsgClaimName }
func (SetReady) MsgID() uint16        { return MsgSetReady }
func (Reorder) MsgID() uint16         { return MsgReorder }
func (StartGame) MsgID() uint16       { return MsgStartGame }
func (DeclareAction) MsgID() uint16   { return MsgDeclareAction }
func (Challenge) MsgID() uint16       { return MsgChallenge }
func (Block) MsgID() uint16           { return MsgBlock }
func (Confirm) MsgID() uint16         { return MsgConfirm }
func (ChooseInfluence) MsgID() uint16 { return MsgChooseInfluence }
func (ChooseExchange) MsgID() uint16  { return MsgChooseExchange }

// --- outbound ---

type Joined struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Rejoined      bool   `json:"rejoined"`
}

type JoinRejected struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type YouAreLeader struct{}

type RosterUpdate struct {
	Participants []roster.Participant `json:"participants"`
}

type ReadyConfirm struct {
	Ready bool `json:"ready"`
}

type GameStarted struct {
	State state.PublicState `json:"state"`
}

type StateUpdate struct {
	State     state.PublicState `json:"state"`
	LastEvent string            `json:"lastEvent,omitempty"`
}

type LogEntry struct {
	Text string `json:"text"`
}

type PrivateHand struct {
	Hand []deck.Card `json:"hand"`
}

type ExchangeOptions struct {
	Options []deck.Card `json:"options"`
	Keep    int         `json:"keep"`
}

type GameOver struct {
	Winner     string `json:"winner"`
	WinnerName string `json:"winnerName"`
}

// Rejected answers a command that left the room unchanged.
type Rejected struct {
	Request uint16 `json:"request"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomClosed struct {
	Reason string `json:"reason"`
}

func (Joined) MsgID() uint16          { return MsgJoined }
func (JoinRejected) MsgID() uint16    { return MsgJoinRejected }
func (YouAreLeader) MsgID() uint16    { return MsgYouAreLeader }
func (RosterUpdate) MsgID() uint16    { return MsgRosterUpdate }
func (ReadyConfirm) MsgID() uint16    { return MsgReadyConfirm }
func (GameStarted) MsgID() uint16     { return MsgGameStarted }
func (StateUpdate) MsgID() uint16     { return MsgStateUpdate }
func (LogEntry) MsgID() uint16        { return MsgLogEntry }
func (PrivateHand) MsgID() uint16     { return MsgPrivateHand }
func (ExchangeOptions) MsgID() uint16 { return MsgExchangeOptions }
func (GameOver) MsgID() uint16        { return MsgGameOver }
func (Rejected) MsgID() uint16        { return MsgRejected }
func (RoomClosed) MsgID() uint16      { return MsgRoomClosed }

func (Joined) Scope() Scope          { return Private }
func (JoinRejected) Scope() Scope    { return Private }
func (YouAreLeader) Scope() Scope    { return Private }
func (RosterUpdate) Scope() Scope    { return Public }
func (ReadyConfirm) Scope() Scope    { return Private }
func (GameStarted) Scope() Scope     { return Public }
func (StateUpdate) Scope() Scope     { return Public }
func (LogEntry) Scope() Scope        { return Public }
func (PrivateHand) Scope() Scope     { return Private }
func (ExchangeOptions) Scope() Scope { return Private }
func (GameOver) Scope() Scope        { return Public }
func (Rejected) Scope() Scope        { return Private }
func (RoomClosed) Scope() Scope      { return Public }
