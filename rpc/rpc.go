package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/room"
)

const queryTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server with the given services registered.
func NewServer(addr string, services ...interface{}) (*Server, error) {
	srv := rpc.NewServer()
	for _, svc := range services {
		if err := srv.Register(svc); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.address
}

// Start accepts RPC connections until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomLister is satisfied by room.Manager.
type RoomLister interface {
	List() []room.Info
}

// MatchQueries is satisfied by services.MatchService.
type MatchQueries interface {
	GetPlayerStats(ctx context.Context, name string) (models.PlayerStats, error)
	RecentMatches(ctx context.Context, name string, limit int) ([]models.MatchRecord, error)
}

// AdminService exposes read-only operational queries. Method shapes follow
// net/rpc: exported args, pointer reply, error result.
type AdminService struct {
	rooms   RoomLister
	matches MatchQueries
}

func NewAdminService(rooms RoomLister, matches MatchQueries) *AdminService {
	return &AdminService{rooms: rooms, matches: matches}
}

type ListRoomsArgs struct{}

type RoomSummary struct {
	ID           string
	Phase        string
	Participants int
	Connected    int
	Frozen       bool
	CreatedAt    time.Time
	LastActivity time.Time
}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, info := range a.rooms.List() {
		reply.Rooms = append(reply.Rooms, RoomSummary{
			ID:           info.ID,
			Phase:        string(info.Phase),
			Participants: info.Participants,
			Connected:    info.Connected,
			Frozen:       info.Frozen,
			CreatedAt:    info.CreatedAt,
			LastActivity: info.LastActivity,
		})
	}
	return nil
}

type GetPlayerStatsArgs struct {
	Name string
}

type GetPlayerStatsReply struct {
	Stats models.PlayerStats
}

func (a *AdminService) GetPlayerStats(args *GetPlayerStatsArgs, reply *GetPlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	stats, err := a.matches.GetPlayerStats(ctx, args.Name)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}

type RecentMatchesArgs struct {
	// Name filters to one player's matches when set.
	Name  string
	Limit int
}

type RecentMatchesReply struct {
	Matches []models.MatchRecord
}

func (a *AdminService) RecentMatches(args *RecentMatchesArgs, reply *RecentMatchesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	matches, err := a.matches.RecentMatches(ctx, args.Name, args.Limit)
	if err != nil {
		return err
	}
	reply.Matches = matches
	return nil
}
