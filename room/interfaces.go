package room

import (
	"time"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/protocol"
)

// Broadcaster defines the interface for delivering messages to a room.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, msg protocol.Outbound) error
	SendTo(sessionID string, msg protocol.Outbound) error
}

// Archiver receives finished matches. ArchiveMatch must not block the room.
type Archiver interface {
	ArchiveMatch(record models.MatchRecord)
}

// Metrics is the subset of monitor the rooms report to.
type Metrics interface {
	ObserveCommand(msgID uint16, d time.Duration)
	CommandRejected(code apperr.Code)
	GameStarted()
	GameFinished()
	RoomFrozen()
}

type nopMetrics struct{}

func (nopMetrics) ObserveCommand(uint16, time.Duration) {}
func (nopMetrics) CommandRejected(apperr.Code)          {}
func (nopMetrics) GameStarted()                         {}
func (nopMetrics) GameFinished()                        {}
func (nopMetrics) RoomFrozen()                          {}
