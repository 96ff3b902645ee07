package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/coupserver/broadcast"
	"github.com/wfunc/coupserver/health"
	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/monitor"
	"github.com/wfunc/coupserver/persistence"
	"github.com/wfunc/coupserver/room"
	gameserver_rpc "github.com/wfunc/coupserver/rpc"
	"github.com/wfunc/coupserver/services"
	"github.com/wfunc/coupserver/session"
	"github.com/wfunc/coupserver/timer"
)

// Options 服务器参数
type Options struct {
	HTTPAddress    string
	MetricsAddress string
	RPCAddress     string
	HealthAddress  string
	// PublicURL is the base of join links, without a trailing slash.
	PublicURL         string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
	SweepInterval     time.Duration
	TimerResolution   time.Duration
	Room              room.Options
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	timers         *timer.TimerManager
	roomManager    *room.Manager
	sessionManager *session.Manager
	matchService   *services.MatchService
	broadcaster    broadcast.Broadcaster
	monitor        *monitor.Monitor
}

func NewGameServer(opts Options, db persistence.Database) *GameServer {
	return newGameServer(opts, db, timer.NewTimerManager(timer.SystemClock{}))
}

func newGameServer(opts Options, db persistence.Database, timers *timer.TimerManager) *GameServer {
	s := &GameServer{
		opts:           opts,
		timers:         timers,
		sessionManager: session.NewManager(),
		matchService:   services.NewMatchService(db, 0),
		monitor:        monitor.NewMonitor("coup"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	// 初始化广播器
	rb := broadcast.NewRoomBroadcaster(s.sessionManager)
	s.broadcaster = rb
	s.roomManager = room.NewRoomManager(opts.Room, timers, rb, s.matchService, s.monitor)
	return s
}

// Rooms exposes the room directory.
func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

// Start runs every listener, the timer loop and the idle sweeper until ctx
// is cancelled or one of them fails.
func (s *GameServer) Start(ctx context.Context) error {
	rpcServer, err := gameserver_rpc.NewServer(s.opts.RPCAddress,
		gameserver_rpc.NewAdminService(s.roomManager, s.matchService))
	if err != nil {
		return err
	}
	healthServer, err := health.New(s.opts.HealthAddress)
	if err != nil {
		rpcServer.Stop()
		return err
	}

	httpServer := &http.Server{Addr: s.opts.HTTPAddress, Handler: s.Handler()}
	metricsServer := &http.Server{Addr: s.opts.MetricsAddress, Handler: s.metricsHandler()}

	s.timers.Start(s.opts.TimerResolution)
	defer s.timers.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Infof("Game server listening on %s", s.opts.HTTPAddress)
		return serveHTTP(httpServer)
	})
	g.Go(func() error {
		logger.Log.Infof("Metrics server listening on %s", s.opts.MetricsAddress)
		return serveHTTP(metricsServer)
	})
	g.Go(rpcServer.Start)
	g.Go(healthServer.Serve)
	g.Go(func() error {
		return s.roomManager.RunSweeper(ctx, s.opts.SweepInterval)
	})
	g.Go(func() error {
		return s.reportGauges(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("shutting down")
		healthServer.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.roomManager.CloseAll()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Shutdown(shutdownCtx)
		rpcServer.Stop()
		healthServer.Stop()
		if err := s.matchService.Wait(shutdownCtx); err != nil {
			logger.Log.Warnw("pending match archives abandoned", "error", err)
		}
		return nil
	})

	healthServer.SetServing(true)
	return g.Wait()
}

func serveHTTP(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) reportGauges(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.monitor.SetActiveRooms(s.roomManager.Count())
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *GameServer) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.monitor.Handler())
	return mux
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true // 允许所有跨域请求
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
