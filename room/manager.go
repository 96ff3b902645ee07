package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/timer"
)

// ErrRoomExists is returned when a room id is already in use.
var ErrRoomExists = errors.New("room already exists")

// Manager 管理所有房间. Its lock guards only the id -> room map; it is never
// held while a room processes a command.
type Manager struct {
	rooms       map[string]*Room
	mutex       sync.RWMutex
	opts        Options
	timers      *timer.TimerManager
	broadcaster Broadcaster
	archiver    Archiver
	metrics     Metrics
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts Options, timers *timer.TimerManager, broadcaster Broadcaster, archiver Archiver, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Manager{
		rooms:       make(map[string]*Room),
		opts:        opts,
		timers:      timers,
		broadcaster: broadcaster,
		archiver:    archiver,
		metrics:     metrics,
	}
}

// CreateRoom 创建一个新房间并添加到管理器
func (m *Manager) CreateRoom(id string) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[id]; exists {
		return nil, ErrRoomExists
	}
	room, err := NewRoom(id, m.opts, m.timers, m.broadcaster, m.archiver, m.metrics, m.RemoveRoom)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = room
	logger.Log.Infow("room created", "room", id)
	return room, nil
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	delete(m.rooms, id)
	m.mutex.Unlock()

	if exists {
		room.Close("room closed")
		logger.Log.Infow("room removed", "room", id)
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Touch marks a room active. It reports whether the room exists.
func (m *Manager) Touch(id string) bool {
	room, ok := m.GetRoom(id)
	if ok {
		room.Touch()
	}
	return ok
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// List returns a snapshot of every room, ordered by id.
func (m *Manager) List() []Info {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	out := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep asks every room idle for longer than IdleTimeout with nobody
// connected to tear itself down, and returns their ids. Each room re-checks
// on its own worker, so a participant arriving meanwhile keeps it alive.
func (m *Manager) Sweep(now time.Time) []string {
	cutoff := now.Add(-m.opts.IdleTimeout)
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mutex.RUnlock()

	var idle []string
	for _, r := range rooms {
		info := r.Info()
		if info.Connected == 0 && info.LastActivity.Before(cutoff) {
			r.requestSweep(cutoff)
			idle = append(idle, info.ID)
		}
	}
	if len(idle) > 0 {
		logger.Log.Infow("sweeping idle rooms", "count", len(idle))
	}
	sort.Strings(idle)
	return idle
}

// RunSweeper sweeps every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep(m.timers.Clock().Now())
		case <-ctx.Done():
			return nil
		}
	}
}

// CloseAll closes every room, for shutdown.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mutex.Unlock()

	for _, r := range rooms {
		r.Close("server shutting down")
	}
}
