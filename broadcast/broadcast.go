// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/protocol"
	"github.com/wfunc/coupserver/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrPrivateMessage is returned when a single-recipient message is
	// offered for fan-out.
	ErrPrivateMessage = errors.New("private message cannot be broadcast")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msg protocol.Outbound) error
	SendTo(sessionID string, msg protocol.Outbound) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom sends a public message to every connection in roomID.
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msg protocol.Outbound) error {
	if msg.Scope() != protocol.Public {
		return ErrPrivateMessage
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	for _, s := range b.sessionManager.InRoom(roomID) {
		if err := s.Send(msg.MsgID(), data); err != nil {
			// the read loop notices the dead connection and reports the disconnect
			logger.Log.Debugw("broadcast send failed", "room", roomID, "session", s.ID, "err", err)
			continue
		}
	}
	return nil
}

// SendTo sends msg to one connection. Public messages are allowed too, for
// catching a single connection up.
func (b *RoomBroadcaster) SendTo(sessionID string, msg protocol.Outbound) error {
	s, ok := b.sessionManager.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.SendMessage(msg)
}
