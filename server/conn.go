package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/network"
	"github.com/wfunc/coupserver/protocol"
	"github.com/wfunc/coupserver/room"
	"github.com/wfunc/coupserver/session"
)

// handleWebSocket upgrades only for rooms that exist.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookup(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, apperr.ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	if s.opts.HeartbeatInterval > 0 {
		wsConn.SetHeartbeat(s.opts.HeartbeatInterval)
	}
	s.handleConnection(r.Context(), rm, wsConn)
}

func (s *GameServer) handleConnection(parent context.Context, rm *room.Room, conn network.Connection) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()

	sess := session.NewSession(uuid.New().String(), conn)
	sess.RoomID = rm.ID
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	// Closing the socket unblocks ReadPacket when the room goes away.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	go func() {
		select {
		case <-rm.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Log.Infow("connection opened", "session", sess.ID, "room", rm.ID, "remote", conn.RemoteAddr())

	reason := s.readLoop(ctx, rm, sess)

	rm.Disconnect(sess.ID, reason)
	s.sessionManager.Remove(sess.ID)
	s.monitor.DecOnlinePlayers()
	conn.Close()
	logger.Log.Infow("connection closed", "session", sess.ID, "room", rm.ID, "reason", reason)
}

// readLoop forwards packets to the room until the transport fails, and
// returns why it stopped.
func (s *GameServer) readLoop(ctx context.Context, rm *room.Room, sess *session.Session) apperr.Code {
	for {
		packet, err := sess.Conn.ReadPacket()
		if errors.Is(err, io.ErrShortBuffer) {
			s.rejectRaw(sess, 0, apperr.New(apperr.CodeInvalidMessage, "malformed packet header"))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return apperr.CodeRoomClosed
			}
			return network.Classify(err)
		}
		sess.Touch()
		s.monitor.IncMessagesReceived(packet.MsgID)

		msg, err := protocol.Decode(packet.MsgID, packet.Data)
		if err != nil {
			s.rejectRaw(sess, packet.MsgID, err)
			continue
		}
		if err := rm.Do(ctx, sess.ID, msg); err != nil {
			if errors.Is(err, apperr.ErrRoomClosed) || ctx.Err() != nil {
				return apperr.CodeRoomClosed
			}
			// the room has already answered with a rejection
			logger.Log.Debugw("command rejected", "session", sess.ID, "msg", packet.MsgID, "error", err)
		}
	}
}

// rejectRaw answers a packet that never reached the room.
func (s *GameServer) rejectRaw(sess *session.Session, msgID uint16, err error) {
	s.monitor.CommandRejected(apperr.CodeInvalidMessage)
	if sendErr := sess.SendMessage(protocol.Rejected{
		Request: msgID,
		Code:    string(apperr.CodeInvalidMessage),
		Message: err.Error(),
	}); sendErr != nil {
		logger.Log.Debugw("send rejection failed", "session", sess.ID, "error", sendErr)
	}
}
