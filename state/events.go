package state

import (
	"time"

	"github.com/wfunc/coupserver/deck"
)

// EventKind identifies emitted engine events.
type EventKind string

const (
	EventLog             EventKind = "log"
	EventGameStarted     EventKind = "game_started"
	EventHandChanged     EventKind = "hand_changed"
	EventExchangeOptions EventKind = "exchange_options"
	EventDeadline        EventKind = "deadline"
	EventGameOver        EventKind = "game_over"
)

// Event is an engine output. Recipient is set only on private events and
// names the one participant allowed to see it.
type Event struct {
	Kind      EventKind
	Text      string
	Recipient string
	Cards     []deck.Card
	Keep      int
	WindowID  uint64
	After     time.Duration
	Winner    string
}

// Private reports whether the event is scoped to a single participant.
func (e Event) Private() bool {
	return e.Recipient != ""
}
