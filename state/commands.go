package state

import "github.com/wfunc/coupserver/deck"

// Command is the closed set of participant commands the engine accepts.
type Command interface {
	command()
}

// Player is a participant admitted to the game at start.
type Player struct {
	ID        string
	Name      string
	Connected bool
}

// StartGame moves the lobby into play with Players in turn order.
type StartGame struct {
	Players []Player
}

// DeclareAction proposes the actor's action for this turn.
type DeclareAction struct {
	Kind   ActionKind
	Target string
}

// Challenge disputes the open claim: the action's claim in the challenge
// window, the block's claim in the block-challenge window.
type Challenge struct{}

// Block counter-claims the pending action with Claim.
type Block struct {
	Claim deck.Influence
}

// Confirm passes on the open window without challenging or blocking.
type Confirm struct{}

// ChooseInfluence picks which hand card to reveal when losing influence.
type ChooseInfluence struct {
	Index int
}

// ChooseExchange picks which exchange options to keep, by index.
type ChooseExchange struct {
	Keep []int
}

func (StartGame) command()       {}
func (DeclareAction) command()   {}
func (Challenge) command()       {}
func (Block) command()           {}
func (Confirm) command()         {}
func (ChooseInfluence) command() {}
func (ChooseExchange) command()  {}
