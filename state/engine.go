package state

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/timer"
)

// Phase is the coarse game phase, the id of the current machine state.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// Timing bounds every counter-window.
type Timing struct {
	ChallengeWindow time.Duration
	BlockWindow     time.Duration
	ChoiceWindow    time.Duration
}

// DefaultTiming returns the window lengths used when none are configured.
func DefaultTiming() Timing {
	return Timing{
		ChallengeWindow: 15 * time.Second,
		BlockWindow:     15 * time.Second,
		ChoiceWindow:    30 * time.Second,
	}
}

func (t Timing) of(w Window) time.Duration {
	switch w {
	case WindowChallenge, WindowBlockChallenge:
		return t.ChallengeWindow
	case WindowBlock:
		return t.BlockWindow
	default:
		return t.ChoiceWindow
	}
}

// Seat is one participant's in-game state.
type Seat struct {
	ID        string
	Name      string
	Coins     int
	Hand      []deck.Card
	Revealed  []deck.Card
	Dead      bool
	Forfeited bool
	Connected bool
	Color     string
}

// PendingAction is the declared action awaiting resolution.
type PendingAction struct {
	Initiator  string
	Kind       ActionKind
	Target     string
	Window     Window
	WindowID   uint64
	Deadline   time.Time
	Passed     map[string]bool
	Blocker    string
	BlockClaim deck.Influence
	Challenger string
	Loser      string
	// Drawn holds the exchange cards while the initiator chooses.
	Drawn []deck.Card
	Keep  int

	next resume
}

// Engine is the authoritative game state for one room. It is not safe for
// concurrent use; the owning room serializes every call.
type Engine struct {
	machine  *BaseStateMachine
	lobby    *LobbyState
	progress *ProgressState
	finished *FinishedState

	rng    *rand.Rand
	clock  timer.Clock
	timing Timing

	deck      *deck.Deck
	seats     []*Seat
	turn      int
	pending   *PendingAction
	winner    string
	log       []string
	windowSeq uint64

	startedAt  time.Time
	finishedAt time.Time

	out   []Event
	fault error
}

// NewEngine returns an engine in the lobby phase.
func NewEngine(rng *rand.Rand, clock timer.Clock, timing Timing) *Engine {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	e := &Engine{rng: rng, clock: clock, timing: timing}
	e.lobby = &LobbyState{stateBase{ID: string(PhaseLobby), engine: e}}
	e.progress = &ProgressState{stateBase{ID: string(PhaseInProgress), engine: e}}
	e.finished = &FinishedState{stateBase{ID: string(PhaseFinished), engine: e}}
	e.machine = NewBaseStateMachine(e.lobby)
	e.machine.AddTransition(e.lobby, e.progress, func() bool { return len(e.seats) >= MinPlayers })
	e.machine.AddTransition(e.progress, e.finished, func() bool { return e.livingCount() <= 1 })
	return e
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return Phase(e.machine.GetCurrentState().GetID())
}

// Handle applies cmd on behalf of actor. On a participant-facing error the
// state is unchanged and no events are returned. A fatal error means the
// engine must not be used again.
func (e *Engine) Handle(actor string, cmd Command) ([]Event, error) {
	if e.fault != nil {
		return nil, e.fault
	}
	e.out = nil
	if err := e.machine.GetCurrentState().Handle(actor, cmd); err != nil {
		e.out = nil
		return nil, err
	}
	return e.flush()
}

// Expire applies the default outcome of window id. Stale ids are ignored.
func (e *Engine) Expire(id uint64) ([]Event, error) {
	if e.fault != nil {
		return nil, e.fault
	}
	e.out = nil
	p := e.pending
	if e.Phase() != PhaseInProgress || p == nil || p.WindowID != id {
		return nil, nil
	}
	e.closeWindow()
	return e.flush()
}

// SetConnected records a participant's connection status. A disconnected
// turn holder has the turn passed; a disconnected responder no longer holds
// the window open.
func (e *Engine) SetConnected(id string, connected bool) ([]Event, error) {
	if e.fault != nil {
		return nil, e.fault
	}
	e.out = nil
	s := e.seat(id)
	if s == nil {
		return nil, nil
	}
	if s.Connected == connected {
		return nil, nil
	}
	s.Connected = connected
	if e.Phase() != PhaseInProgress || s.Dead {
		return e.flush()
	}
	if connected {
		e.logf("%s reconnected", s.Name)
		return e.flush()
	}
	e.logf("%s disconnected", s.Name)
	if e.current().ID == id {
		e.passTurn(s)
		return e.flush()
	}
	if p := e.pending; p != nil {
		if p.Window == WindowInfluenceLoss && p.Loser == id {
			e.loseInfluence(s, 0)
			e.resumeWith(p.next)
		} else {
			e.closeIfSettled()
		}
	}
	return e.flush()
}

// Forfeit removes a participant whose reconnect grace ran out. Their hand is
// revealed and they are out of the game.
func (e *Engine) Forfeit(id string) ([]Event, error) {
	if e.fault != nil {
		return nil, e.fault
	}
	e.out = nil
	s := e.seat(id)
	if s == nil || s.Dead || s.Connected || e.Phase() != PhaseInProgress {
		return nil, nil
	}
	s.Revealed = append(s.Revealed, s.Hand...)
	s.Hand = nil
	s.Dead = true
	s.Forfeited = true
	e.logf("%s forfeits", s.Name)
	e.emit(Event{Kind: EventHandChanged, Recipient: s.ID})

	switch {
	case e.livingCount() <= 1:
		e.endTurn()
	case e.current().ID == id:
		e.passTurn(s)
	case e.pending != nil:
		p := e.pending
		if p.Window == WindowInfluenceLoss && p.Loser == id {
			e.resumeWith(p.next)
		} else {
			e.closeIfSettled()
		}
	}
	return e.flush()
}

// Log returns the append-only game log.
func (e *Engine) Log() []string {
	out := make([]string, len(e.log))
	copy(out, e.log)
	return out
}

// Winner returns the winning participant id once the game is finished.
func (e *Engine) Winner() string {
	return e.winner
}

// Pending returns a copy of the pending action, if any.
func (e *Engine) Pending() (PendingAction, bool) {
	if e.pending == nil {
		return PendingAction{}, false
	}
	return *e.pending, true
}

// Seat returns a copy of the seat for id.
func (e *Engine) Seat(id string) (Seat, bool) {
	s := e.seat(id)
	if s == nil {
		return Seat{}, false
	}
	c := *s
	c.Hand = append([]deck.Card(nil), s.Hand...)
	c.Revealed = append([]deck.Card(nil), s.Revealed...)
	return c, true
}

// CheckConservation verifies that every card id is in exactly one place.
func (e *Engine) CheckConservation() error {
	if e.deck == nil {
		return nil
	}
	seen := make(map[int]int, deck.Size)
	count := func(cards []deck.Card) {
		for _, c := range cards {
			seen[c.ID]++
		}
	}
	count(e.deck.Cards())
	for _, s := range e.seats {
		count(s.Hand)
		count(s.Revealed)
	}
	if e.pending != nil {
		count(e.pending.Drawn)
	}
	if len(seen) != deck.Size {
		return apperr.Newf(apperr.CodeConservationViolated, "%d distinct cards, want %d", len(seen), deck.Size)
	}
	for id, n := range seen {
		if id < 0 || id >= deck.Size || n != 1 {
			return apperr.Newf(apperr.CodeConservationViolated, "card %d seen %d times", id, n)
		}
	}
	return nil
}

func (e *Engine) flush() ([]Event, error) {
	if e.fault == nil {
		e.fault = e.CheckConservation()
	}
	events := e.out
	e.out = nil
	return events, e.fault
}

func (e *Engine) fail(err error) {
	if e.fault == nil {
		e.fault = err
	}
}

func (e *Engine) emit(ev Event) {
	e.out = append(e.out, ev)
}

func (e *Engine) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	e.log = append(e.log, line)
	e.emit(Event{Kind: EventLog, Text: line})
}

func (e *Engine) seat(id string) *Seat {
	for _, s := range e.seats {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (e *Engine) current() *Seat {
	if len(e.seats) == 0 {
		return nil
	}
	return e.seats[e.turn]
}

func (e *Engine) livingCount() int {
	n := 0
	for _, s := range e.seats {
		if !s.Dead {
			n++
		}
	}
	return n
}

// advanceTurn moves the turn to the next living seat after the current one.
func (e *Engine) advanceTurn() {
	n := len(e.seats)
	for i := 1; i <= n; i++ {
		idx := (e.turn + i) % n
		if !e.seats[idx].Dead {
			e.turn = idx
			return
		}
	}
}

func seatColor(i, n int) string {
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", i*360/n)
}
