package state

import (
	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
)

// LobbyState holds the engine until the leader starts the game.
type LobbyState struct {
	stateBase
}

func (s *LobbyState) Handle(actor string, cmd Command) error {
	start, ok := cmd.(StartGame)
	if !ok {
		return apperr.New(apperr.CodeIllegalAction, "the game has not started")
	}
	return s.start(start.Players)
}

func (s *LobbyState) start(players []Player) error {
	e := s.engine
	if len(players) < MinPlayers {
		return apperr.Newf(apperr.CodeIllegalAction, "need at least %d ready participants", MinPlayers)
	}
	if len(players) > MaxPlayers {
		return apperr.Newf(apperr.CodeIllegalAction, "at most %d participants", MaxPlayers)
	}

	d := deck.Build(e.rng)
	hands, err := d.Deal(len(players))
	if err != nil {
		return err
	}
	seats := make([]*Seat, len(players))
	for i, p := range players {
		seats[i] = &Seat{
			ID:        p.ID,
			Name:      p.Name,
			Coins:     StartingCoins,
			Hand:      hands[i],
			Connected: p.Connected,
			Color:     seatColor(i, len(players)),
		}
	}
	e.deck = d
	e.seats = seats
	e.turn = 0
	if err := e.machine.ChangeState(e.progress); err != nil {
		e.deck, e.seats = nil, nil
		return apperr.Wrap(apperr.CodeIllegalAction, "cannot start", err)
	}
	return nil
}

// FinishedState is terminal; every command is rejected.
type FinishedState struct {
	stateBase
}

func (s *FinishedState) OnEnter() {
	e := s.engine
	e.finishedAt = e.clock.Now()
	for _, seat := range e.seats {
		if !seat.Dead {
			e.winner = seat.ID
			e.logf("%s wins", seat.Name)
		}
	}
	e.emit(Event{Kind: EventGameOver, Winner: e.winner})
}

func (s *FinishedState) Handle(actor string, cmd Command) error {
	if _, ok := cmd.(StartGame); ok {
		return apperr.ErrGameAlreadyStarted
	}
	return apperr.New(apperr.CodeIllegalAction, "the game is over")
}
