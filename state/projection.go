package state

import (
	"sort"
	"time"

	"github.com/wfunc/coupserver/deck"
)

// PublicSeat is what everyone may know about a seat.
type PublicSeat struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Coins     int              `json:"coins"`
	Influence int              `json:"influence"`
	Revealed  []deck.Influence `json:"revealed"`
	Dead      bool             `json:"dead"`
	Connected bool             `json:"connected"`
	Color     string           `json:"color"`
}

// PublicPending is the public part of the pending action.
type PublicPending struct {
	Initiator  string         `json:"initiator"`
	Kind       ActionKind     `json:"kind"`
	Target     string         `json:"target,omitempty"`
	Window     Window         `json:"window"`
	WindowID   uint64         `json:"windowId"`
	Deadline   time.Time      `json:"deadline"`
	Blocker    string         `json:"blocker,omitempty"`
	BlockClaim deck.Influence `json:"blockClaim,omitempty"`
	Loser      string         `json:"loser,omitempty"`
	Passed     []string       `json:"passed"`
}

// PublicState never carries an unrevealed card.
type PublicState struct {
	Phase    Phase          `json:"phase"`
	Turn     string         `json:"turn,omitempty"`
	Seats    []PublicSeat   `json:"seats"`
	DeckSize int            `json:"deckSize"`
	Pending  *PublicPending `json:"pending,omitempty"`
	Winner   string         `json:"winner,omitempty"`
	Log      []string       `json:"log"`
}

// PrivateView is one participant's own hand.
type PrivateView struct {
	ParticipantID string      `json:"participantId"`
	Hand          []deck.Card `json:"hand"`
}

// PublicView projects the state for broadcast.
func (e *Engine) PublicView() PublicState {
	v := PublicState{
		Phase:  e.Phase(),
		Seats:  make([]PublicSeat, 0, len(e.seats)),
		Winner: e.winner,
		Log:    e.Log(),
	}
	if e.deck != nil {
		v.DeckSize = e.deck.Len()
	}
	if v.Phase == PhaseInProgress {
		v.Turn = e.current().ID
	}
	for _, s := range e.seats {
		v.Seats = append(v.Seats, PublicSeat{
			ID:        s.ID,
			Name:      s.Name,
			Coins:     s.Coins,
			Influence: len(s.Hand),
			Revealed:  deck.KindsOf(s.Revealed),
			Dead:      s.Dead,
			Connected: s.Connected,
			Color:     s.Color,
		})
	}
	if p := e.pending; p != nil {
		pp := &PublicPending{
			Initiator:  p.Initiator,
			Kind:       p.Kind,
			Target:     p.Target,
			Window:     p.Window,
			WindowID:   p.WindowID,
			Deadline:   p.Deadline,
			Blocker:    p.Blocker,
			BlockClaim: p.BlockClaim,
			Loser:      p.Loser,
			Passed:     make([]string, 0, len(p.Passed)),
		}
		for id := range p.Passed {
			pp.Passed = append(pp.Passed, id)
		}
		sort.Strings(pp.Passed)
		v.Pending = pp
	}
	return v
}

// PrivateView returns the hand of id, if seated.
func (e *Engine) PrivateView(id string) (PrivateView, bool) {
	s := e.seat(id)
	if s == nil {
		return PrivateView{}, false
	}
	return PrivateView{
		ParticipantID: id,
		Hand:          append([]deck.Card{}, s.Hand...),
	}, true
}

// SeatResult is the final standing of one seat.
type SeatResult struct {
	ID        string
	Name      string
	Coins     int
	Influence int
	Dead      bool
	Forfeited bool
}

// Summary describes a finished game.
type Summary struct {
	Winner     string
	StartedAt  time.Time
	FinishedAt time.Time
	Seats      []SeatResult
	Log        []string
}

// Summary reports the match outcome. It is meaningful once finished.
func (e *Engine) Summary() Summary {
	out := Summary{
		Winner:     e.winner,
		StartedAt:  e.startedAt,
		FinishedAt: e.finishedAt,
		Seats:      make([]SeatResult, 0, len(e.seats)),
		Log:        e.Log(),
	}
	for _, s := range e.seats {
		out.Seats = append(out.Seats, SeatResult{
			ID:        s.ID,
			Name:      s.Name,
			Coins:     s.Coins,
			Influence: len(s.Hand),
			Dead:      s.Dead,
			Forfeited: s.Forfeited,
		})
	}
	return out
}
