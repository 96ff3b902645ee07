package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/room"
)

const (
	maxCodeAttempts = 16
	qrSize          = 256
)

// Handler routes the public HTTP surface.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /createNamespace", s.handleCreateNamespace)
	mux.HandleFunc("GET /rooms/{code}", s.handleRoomExists)
	mux.HandleFunc("GET /exists/{code}", s.handleRoomExists)
	mux.HandleFunc("GET /rooms/{code}/qr.png", s.handleRoomQR)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

type createRoomResponse struct {
	Room    string `json:"room"`
	JoinURL string `json:"joinUrl"`
}

type roomStatusResponse struct {
	Exists       bool   `json:"exists"`
	Phase        string `json:"phase,omitempty"`
	Participants int    `json:"participants,omitempty"`
	Connected    int    `json:"connected,omitempty"`
}

// createRoom mints a fresh code, retrying on collisions.
func (s *GameServer) createRoom() (*room.Room, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := NewRoomCode()
		if err != nil {
			return nil, err
		}
		r, err := s.roomManager.CreateRoom(code)
		if errors.Is(err, room.ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.monitor.SetActiveRooms(s.roomManager.Count())
		return r, nil
	}
	return nil, errors.New("could not allocate a room code")
}

func (s *GameServer) joinURL(code string) string {
	return s.opts.PublicURL + "/?room=" + url.QueryEscape(code)
}

func (s *GameServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := s.createRoom()
	if err != nil {
		logger.Log.Errorw("create room failed", "error", err)
		http.Error(w, "could not create room", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{Room: rm.ID, JoinURL: s.joinURL(rm.ID)})
}

func (s *GameServer) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	rm, err := s.createRoom()
	if err != nil {
		logger.Log.Errorw("create room failed", "error", err)
		http.Error(w, "could not create room", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"namespace": rm.ID})
}

func (s *GameServer) lookup(raw string) (*room.Room, bool) {
	code, err := NormalizeRoomCode(raw)
	if err != nil {
		return nil, false
	}
	return s.roomManager.GetRoom(code)
}

func (s *GameServer) handleRoomExists(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookup(r.PathValue("code"))
	if !ok {
		writeJSON(w, http.StatusNotFound, roomStatusResponse{Exists: false})
		return
	}
	rm.Touch()
	info := rm.Info()
	writeJSON(w, http.StatusOK, roomStatusResponse{
		Exists:       true,
		Phase:        string(info.Phase),
		Participants: info.Participants,
		Connected:    info.Connected,
	})
}

func (s *GameServer) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookup(r.PathValue("code"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	png, err := qrcode.Encode(s.joinURL(rm.ID), qrcode.Medium, qrSize)
	if err != nil {
		logger.Log.Errorw("qr encode failed", "room", rm.ID, "error", err)
		http.Error(w, "could not render code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugw("write response failed", "error", err)
	}
}
