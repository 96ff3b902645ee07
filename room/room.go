// room/room.go
package room

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/models"
	"github.com/wfunc/coupserver/protocol"
	"github.com/wfunc/coupserver/roster"
	"github.com/wfunc/coupserver/state"
	"github.com/wfunc/coupserver/timer"
)

// Options 房间参数
type Options struct {
	Timing state.Timing
	// DisconnectGrace is how long an in-game participant may stay away
	// before forfeiting.
	DisconnectGrace time.Duration
	// TeardownGrace is how long a room with nobody connected survives.
	TeardownGrace time.Duration
	// IdleTimeout is the inactivity after which the sweeper may remove a room.
	IdleTimeout time.Duration
	InboxSize   int
	// NewRand seeds each room's deck.
	NewRand func() (*rand.Rand, error)
}

// DefaultOptions returns the timings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timing:          state.DefaultTiming(),
		DisconnectGrace: 60 * time.Second,
		TeardownGrace:   60 * time.Second,
		IdleTimeout:     time.Hour,
		InboxSize:       64,
		NewRand:         deck.NewRand,
	}
}

// Info is a read-only snapshot of a room, safe to read from any goroutine.
type Info struct {
	ID           string      `json:"id"`
	Phase        state.Phase `json:"phase"`
	Participants int         `json:"participants"`
	Connected    int         `json:"connected"`
	Frozen       bool        `json:"frozen"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActivity time.Time   `json:"lastActivity"`
}

// Room 是游戏房间的核心结构. Every mutation runs on the room's own worker
// goroutine, one command at a time, in arrival order.
type Room struct {
	ID        string
	CreatedAt time.Time

	opts        Options
	timers      *timer.TimerManager
	broadcaster Broadcaster
	archiver    Archiver
	metrics     Metrics
	onTeardown  func(id string)

	inbox     chan command
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	// owned by the worker
	registry      *roster.Registry
	engine        *state.Engine
	windowTimer   int64
	teardownTimer int64
	forfeitTimers map[string]int64
	frozen        bool

	infoMutex sync.RWMutex
	info      Info
}

type command interface {
	isCommand()
}

type inboundCmd struct {
	connID string
	msg    protocol.Inbound
	resp   chan error
}

type disconnectCmd struct {
	connID string
	reason apperr.Code
}

type expireCmd struct{ windowID uint64 }

type forfeitCmd struct{ participantID string }

type teardownCmd struct{}

type syncCmd struct{ done chan struct{} }

type sweepCmd struct{ cutoff time.Time }

func (inboundCmd) isCommand()    {}
func (disconnectCmd) isCommand() {}
func (expireCmd) isCommand()     {}
func (forfeitCmd) isCommand()    {}
func (teardownCmd) isCommand()   {}
func (syncCmd) isCommand()       {}
func (sweepCmd) isCommand()      {}

// NewRoom 创建一个新房间并启动它的工作协程
func NewRoom(id string, opts Options, timers *timer.TimerManager, broadcaster Broadcaster, archiver Archiver, metrics Metrics, onTeardown func(string)) (*Room, error) {
	if opts.NewRand == nil {
		opts.NewRand = deck.NewRand
	}
	defaults := DefaultOptions()
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaults.InboxSize
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = defaults.DisconnectGrace
	}
	if opts.TeardownGrace <= 0 {
		opts.TeardownGrace = defaults.TeardownGrace
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	rng, err := opts.NewRand()
	if err != nil {
		return nil, err
	}
	now := timers.Clock().Now()
	r := &Room{
		ID:            id,
		CreatedAt:     now,
		opts:          opts,
		timers:        timers,
		broadcaster:   broadcaster,
		archiver:      archiver,
		metrics:       metrics,
		onTeardown:    onTeardown,
		inbox:         make(chan command, opts.InboxSize),
		closeChan:     make(chan struct{}),
		done:          make(chan struct{}),
		registry:      roster.NewRegistry(),
		engine:        state.NewEngine(rng, timers.Clock(), opts.Timing),
		forfeitTimers: make(map[string]int64),
	}
	r.info = Info{ID: id, Phase: state.PhaseLobby, CreatedAt: now, LastActivity: now}

	go r.loop()
	return r, nil
}

// Do submits a client message and waits until the room has processed it.
// Participant-facing errors are also sent back to connID as a rejection.
func (r *Room) Do(ctx context.Context, connID string, msg protocol.Inbound) error {
	resp := make(chan error, 1)
	if err := r.enqueue(ctx, inboundCmd{connID: connID, msg: msg, resp: resp}); err != nil {
		return err
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return apperr.ErrRoomClosed
	}
}

// Disconnect reports that connID's transport went away.
func (r *Room) Disconnect(connID string, reason apperr.Code) {
	if err := r.enqueue(context.Background(), disconnectCmd{connID: connID, reason: reason}); err != nil {
		logger.Log.Debugw("disconnect dropped", "room", r.ID, "conn", connID, "reason", reason, "error", err)
	}
}

// Sync returns once every command enqueued before it has been processed.
func (r *Room) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := r.enqueue(ctx, syncCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return apperr.ErrRoomClosed
	}
}

// Info returns the latest snapshot.
func (r *Room) Info() Info {
	r.infoMutex.RLock()
	defer r.infoMutex.RUnlock()
	return r.info
}

// Touch records activity without a command, e.g. an existence check.
func (r *Room) Touch() {
	now := r.timers.Clock().Now()
	r.infoMutex.Lock()
	r.info.LastActivity = now
	r.infoMutex.Unlock()
}

// Close 关闭房间, stopping the worker after its current command.
func (r *Room) Close(reason string) {
	r.closeOnce.Do(func() {
		if r.broadcaster != nil {
			r.broadcaster.BroadcastToRoom(r.ID, protocol.RoomClosed{Reason: reason})
		}
		close(r.closeChan)
	})
}

// Done is closed once the worker has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) enqueue(ctx context.Context, c command) error {
	select {
	case <-r.closeChan:
		return apperr.ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- c:
		return nil
	case <-r.closeChan:
		return apperr.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) requestSweep(cutoff time.Time) {
	r.enqueueFromTimer(sweepCmd{cutoff: cutoff})
}

// enqueueFromTimer never blocks the shared timer goroutine on one room.
// With a full inbox the command is handed to a goroutine, so timer commands
// may arrive out of order. Every timer handler re-checks the window id or
// the participant's connectivity when it runs, which makes that safe.
func (r *Room) enqueueFromTimer(c command) {
	select {
	case r.inbox <- c:
	case <-r.closeChan:
	default:
		go func() {
			if err := r.enqueue(context.Background(), c); err != nil {
				logger.Log.Debugw("timer command dropped", "room", r.ID, "error", err)
			}
		}()
	}
}

// loop 是房间的主循环
func (r *Room) loop() {
	defer close(r.done)
	defer r.cancelTimers()
	for {
		select {
		case c := <-r.inbox:
			r.dispatch(c)
			r.refreshInfo()
		case <-r.closeChan:
			return
		}
	}
}

func (r *Room) dispatch(c command) {
	switch c := c.(type) {
	case inboundCmd:
		c.resp <- r.handleInbound(c.connID, c.msg)
	case disconnectCmd:
		r.handleDisconnect(c.connID, c.reason)
	case expireCmd:
		if r.frozen {
			return
		}
		events, err := r.engine.Expire(c.windowID)
		r.apply(events, err)
	case forfeitCmd:
		r.handleForfeit(c.participantID)
	case teardownCmd:
		r.handleTeardown()
	case sweepCmd:
		if r.registry.ConnectedCount() == 0 && r.Info().LastActivity.Before(c.cutoff) {
			logger.Log.Infow("tearing down idle room", "room", r.ID)
			r.teardown("idle")
		}
	case syncCmd:
		close(c.done)
	}
}

func (r *Room) handleInbound(connID string, msg protocol.Inbound) error {
	start := time.Now()
	r.Touch()
	if r.frozen {
		return apperr.ErrRoomClosed
	}

	var err error
	switch m := msg.(type) {
	case protocol.Heartbeat:
		return nil
	case protocol.ClaimName:
		err = r.claimName(connID, m.Name)
	case protocol.SetReady:
		err = r.setReady(connID, *m.Ready)
	case protocol.Reorder:
		err = r.reorder(connID, m.Order)
	case protocol.StartGame:
		err = r.startGame(connID)
	default:
		err = r.play(connID, msg)
	}
	r.metrics.ObserveCommand(msg.MsgID(), time.Since(start))
	if err != nil {
		r.reject(connID, msg, err)
	}
	return err
}

func (r *Room) reject(connID string, msg protocol.Inbound, err error) {
	code := apperr.CodeOf(err)
	r.metrics.CommandRejected(code)
	if code.Fatal() {
		r.freeze(err)
		return
	}
	message := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	var out protocol.Outbound = protocol.Rejected{Request: msg.MsgID(), Code: string(code), Message: message}
	if msg.MsgID() == protocol.MsgClaimName {
		out = protocol.JoinRejected{Code: string(code), Reason: message}
	}
	r.send(connID, out)
}

func (r *Room) claimName(connID, name string) error {
	p, result, err := r.registry.ClaimName(connID, name)
	if err != nil {
		return err
	}
	logger.Log.Infow("name claimed", "room", r.ID, "participant", p.ID, "name", p.Name, "result", result.String())
	r.cancelTeardown()
	r.send(connID, protocol.Joined{ParticipantID: p.ID, Name: p.Name, Rejoined: result == roster.Rejoined})
	if p.Leader {
		r.send(connID, protocol.YouAreLeader{})
	}

	if r.registry.Started() {
		if id, ok := r.forfeitTimers[p.ID]; ok {
			r.timers.RemoveTimer(id)
			delete(r.forfeitTimers, p.ID)
		}
		events, err := r.engine.SetConnected(p.ID, true)
		r.apply(events, err)
		r.catchUp(connID, p.ID)
	}
	r.broadcastRoster()
	return nil
}

// catchUp sends a rejoining connection everything it missed.
func (r *Room) catchUp(connID, participantID string) {
	r.send(connID, protocol.StateUpdate{State: r.engine.PublicView()})
	if view, ok := r.engine.PrivateView(participantID); ok {
		r.send(connID, protocol.PrivateHand{Hand: view.Hand})
	}
	if p, ok := r.engine.Pending(); ok && p.Window == state.WindowExchange && p.Initiator == participantID {
		if view, ok := r.engine.PrivateView(participantID); ok {
			options := append(view.Hand, p.Drawn...)
			r.send(connID, protocol.ExchangeOptions{Options: options, Keep: p.Keep})
		}
	}
}

func (r *Room) setReady(connID string, ready bool) error {
	p, err := r.registry.SetReady(connID, ready)
	if err != nil {
		return err
	}
	r.send(connID, protocol.ReadyConfirm{Ready: p.Ready})
	r.broadcastRoster()
	return nil
}

func (r *Room) reorder(connID string, order []string) error {
	if err := r.registry.Reorder(connID, order); err != nil {
		return err
	}
	r.broadcastRoster()
	return nil
}

func (r *Room) startGame(connID string) error {
	p, ok := r.registry.ByConn(connID)
	if !ok {
		return apperr.New(apperr.CodeForbidden, "claim a name first")
	}
	if r.registry.Started() {
		return apperr.ErrGameAlreadyStarted
	}
	if !p.Leader {
		return apperr.New(apperr.CodeForbidden, "only the leader can start the game")
	}
	if n := r.registry.ReadyCount(); n < state.MinPlayers {
		return apperr.Newf(apperr.CodeIllegalAction, "need at least %d ready participants, have %d", state.MinPlayers, n)
	}

	var players []state.Player
	for _, q := range r.registry.Participants() {
		if q.Ready && q.Connected {
			players = append(players, state.Player{ID: q.ID, Name: q.Name, Connected: true})
		}
	}
	events, err := r.engine.Handle(p.ID, state.StartGame{Players: players})
	if err != nil {
		return err
	}
	dropped := r.registry.Compact(func(q roster.Participant) bool { return q.Ready && q.Connected })
	r.registry.SetStarted(true)
	logger.Log.Infow("game started", "room", r.ID, "players", len(players), "dropped", len(dropped))

	r.apply(events, nil)
	r.broadcastRoster()
	return nil
}

func (r *Room) play(connID string, msg protocol.Inbound) error {
	p, ok := r.registry.ByConn(connID)
	if !ok {
		return apperr.New(apperr.CodeForbidden, "claim a name first")
	}
	cmd, err := toCommand(msg)
	if err != nil {
		return err
	}
	events, err := r.engine.Handle(p.ID, cmd)
	if err != nil {
		return err
	}
	r.apply(events, nil)
	return nil
}

func toCommand(msg protocol.Inbound) (state.Command, error) {
	switch m := msg.(type) {
	case protocol.DeclareAction:
		return state.DeclareAction{Kind: m.Kind, Target: m.Target}, nil
	case protocol.Challenge:
		return state.Challenge{}, nil
	case protocol.Block:
		return state.Block{Claim: m.Claim}, nil
	case protocol.Confirm:
		return state.Confirm{}, nil
	case protocol.ChooseInfluence:
		return state.ChooseInfluence{Index: *m.Index}, nil
	case protocol.ChooseExchange:
		return state.ChooseExchange{Keep: m.Keep}, nil
	}
	return nil, apperr.Newf(apperr.CodeInvalidMessage, "message %d is not a game command", msg.MsgID())
}

func (r *Room) handleDisconnect(connID string, reason apperr.Code) {
	p, handoff, err := r.registry.MarkDisconnected(connID)
	if err != nil {
		// the connection never claimed a name
		return
	}
	logger.Log.Infow("participant disconnected", "room", r.ID, "participant", p.ID, "reason", reason)
	if handoff.NewLeader != nil {
		r.send(handoff.NewLeader.ConnID, protocol.YouAreLeader{})
	}

	if !r.frozen && r.engine.Phase() == state.PhaseInProgress {
		events, err := r.engine.SetConnected(p.ID, false)
		r.apply(events, err)
		id := p.ID
		r.forfeitTimers[id] = r.timers.AddTimer(r.opts.DisconnectGrace, 0, func() {
			r.enqueueFromTimer(forfeitCmd{participantID: id})
		})
	}
	r.broadcastRoster()

	if handoff.Empty {
		r.scheduleTeardown()
	}
}

func (r *Room) handleForfeit(participantID string) {
	delete(r.forfeitTimers, participantID)
	p, ok := r.registry.ByID(participantID)
	if !ok || p.Connected || r.frozen {
		return
	}
	events, err := r.engine.Forfeit(participantID)
	r.apply(events, err)
}

func (r *Room) scheduleTeardown() {
	r.cancelTeardown()
	r.teardownTimer = r.timers.AddTimer(r.opts.TeardownGrace, 0, func() {
		r.enqueueFromTimer(teardownCmd{})
	})
}

func (r *Room) cancelTeardown() {
	if r.teardownTimer != 0 {
		r.timers.RemoveTimer(r.teardownTimer)
		r.teardownTimer = 0
	}
}

func (r *Room) handleTeardown() {
	r.teardownTimer = 0
	if r.registry.ConnectedCount() > 0 {
		return
	}
	logger.Log.Infow("tearing down empty room", "room", r.ID)
	r.teardown("empty")
}

func (r *Room) teardown(reason string) {
	if r.onTeardown != nil {
		r.onTeardown(r.ID)
		return
	}
	r.Close(reason)
}

// freeze stops a room whose state can no longer be trusted.
func (r *Room) freeze(err error) {
	if r.frozen {
		return
	}
	r.frozen = true
	r.metrics.RoomFrozen()
	logger.Log.Errorw("room frozen", "room", r.ID, "err", err)
	r.cancelTimers()
	r.teardown("internal error")
}

// apply fans the events of one engine call out to the connections.
func (r *Room) apply(events []state.Event, err error) {
	if err != nil {
		if apperr.IsFatal(err) {
			r.freeze(err)
			return
		}
		logger.Log.Warnw("engine rejected internal command", "room", r.ID, "err", err)
		return
	}
	if len(events) == 0 {
		return
	}

	var lastEvent string
	started, over := false, false
	for _, ev := range events {
		switch ev.Kind {
		case state.EventLog:
			lastEvent = ev.Text
			r.broadcast(protocol.LogEntry{Text: ev.Text})
		case state.EventGameStarted:
			started = true
			r.metrics.GameStarted()
			r.broadcast(protocol.GameStarted{State: r.engine.PublicView()})
		case state.EventHandChanged:
			if view, ok := r.engine.PrivateView(ev.Recipient); ok {
				r.sendToParticipant(ev.Recipient, protocol.PrivateHand{Hand: view.Hand})
			}
		case state.EventExchangeOptions:
			r.sendToParticipant(ev.Recipient, protocol.ExchangeOptions{Options: ev.Cards, Keep: ev.Keep})
		case state.EventDeadline:
			r.scheduleWindow(ev.WindowID, ev.After)
		case state.EventGameOver:
			over = true
		}
	}
	if !started {
		r.broadcast(protocol.StateUpdate{State: r.engine.PublicView(), LastEvent: lastEvent})
	}
	if over {
		r.finish()
	}
}

func (r *Room) finish() {
	r.cancelWindow()
	for id, t := range r.forfeitTimers {
		r.timers.RemoveTimer(t)
		delete(r.forfeitTimers, id)
	}
	r.metrics.GameFinished()

	summary := r.engine.Summary()
	winnerName := ""
	players := make([]models.MatchPlayer, 0, len(summary.Seats))
	for i, s := range summary.Seats {
		if s.ID == summary.Winner {
			winnerName = s.Name
		}
		players = append(players, models.MatchPlayer{
			ParticipantID: s.ID,
			Name:          s.Name,
			Seat:          i,
			Coins:         s.Coins,
			Influence:     s.Influence,
			Winner:        s.ID == summary.Winner,
			Forfeited:     s.Forfeited,
		})
	}
	r.broadcast(protocol.GameOver{Winner: summary.Winner, WinnerName: winnerName})
	logger.Log.Infow("game over", "room", r.ID, "winner", winnerName)

	if r.archiver != nil {
		r.archiver.ArchiveMatch(models.MatchRecord{
			ID:         uuid.NewString(),
			RoomID:     r.ID,
			WinnerID:   summary.Winner,
			WinnerName: winnerName,
			Players:    players,
			Log:        summary.Log,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
		})
	}
}

func (r *Room) scheduleWindow(windowID uint64, after time.Duration) {
	r.cancelWindow()
	r.windowTimer = r.timers.AddTimer(after, 0, func() {
		r.enqueueFromTimer(expireCmd{windowID: windowID})
	})
}

func (r *Room) cancelWindow() {
	if r.windowTimer != 0 {
		r.timers.RemoveTimer(r.windowTimer)
		r.windowTimer = 0
	}
}

func (r *Room) cancelTimers() {
	r.cancelWindow()
	r.cancelTeardown()
	for id, t := range r.forfeitTimers {
		r.timers.RemoveTimer(t)
		delete(r.forfeitTimers, id)
	}
}

func (r *Room) broadcastRoster() {
	r.broadcast(protocol.RosterUpdate{Participants: r.registry.Participants()})
}

func (r *Room) broadcast(msg protocol.Outbound) {
	if err := r.broadcaster.BroadcastToRoom(r.ID, msg); err != nil {
		logger.Log.Warnw("broadcast failed", "room", r.ID, "msg", msg.MsgID(), "err", err)
	}
}

func (r *Room) send(connID string, msg protocol.Outbound) {
	if connID == "" {
		return
	}
	if err := r.broadcaster.SendTo(connID, msg); err != nil {
		logger.Log.Debugw("send failed", "room", r.ID, "conn", connID, "msg", msg.MsgID(), "err", err)
	}
}

func (r *Room) sendToParticipant(participantID string, msg protocol.Outbound) {
	p, ok := r.registry.ByID(participantID)
	if !ok || !p.Connected {
		return
	}
	r.send(p.ConnID, msg)
}

func (r *Room) refreshInfo() {
	r.infoMutex.Lock()
	defer r.infoMutex.Unlock()
	r.info.Phase = r.engine.Phase()
	r.info.Participants = r.registry.Len()
	r.info.Connected = r.registry.ConnectedCount()
	r.info.Frozen = r.frozen
}
