package state

import "github.com/wfunc/coupserver/deck"

// ActionKind names a turn action.
type ActionKind string

const (
	Income      ActionKind = "income"
	ForeignAid  ActionKind = "foreign_aid"
	Coup        ActionKind = "coup"
	Tax         ActionKind = "tax"
	Assassinate ActionKind = "assassinate"
	Steal       ActionKind = "steal"
	Exchange    ActionKind = "exchange"
)

const (
	// StartingCoins is each participant's treasury at game start.
	StartingCoins = 2
	// ForcedCoupThreshold is the treasury at which coup is the only legal action.
	ForcedCoupThreshold = 10
	// MinPlayers and MaxPlayers bound the base game.
	MinPlayers = 2
	MaxPlayers = 6
)

type actionRule struct {
	cost     int
	targeted bool
	// claim is the influence the actor asserts; empty when unchallengeable.
	claim deck.Influence
	// blockers lists the influences that may block the action.
	blockers []deck.Influence
	// targetBlocks restricts blocking to the target.
	targetBlocks bool
}

var catalog = map[ActionKind]actionRule{
	Income:      {},
	ForeignAid:  {blockers: []deck.Influence{deck.Duke}},
	Coup:        {cost: 7, targeted: true},
	Tax:         {claim: deck.Duke},
	Assassinate: {cost: 3, targeted: true, claim: deck.Assassin, blockers: []deck.Influence{deck.Contessa}, targetBlocks: true},
	Steal:       {targeted: true, claim: deck.Captain, blockers: []deck.Influence{deck.Ambassador, deck.Captain}, targetBlocks: true},
	Exchange:    {claim: deck.Ambassador},
}

// Cost returns the coins paid on declaration.
func (k ActionKind) Cost() int {
	return catalog[k].cost
}

// Valid reports whether k is in the action catalog.
func (k ActionKind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

func (r actionRule) blockable() bool {
	return len(r.blockers) > 0
}

func (r actionRule) blockableBy(claim deck.Influence) bool {
	for _, b := range r.blockers {
		if b == claim {
			return true
		}
	}
	return false
}

// Window is the counter-window currently open on the pending action.
type Window string

const (
	WindowChallenge      Window = "challenge"
	WindowBlock          Window = "block"
	WindowBlockChallenge Window = "block_challenge"
	WindowInfluenceLoss  Window = "influence_loss"
	WindowExchange       Window = "exchange"
)

// responsive windows are the ones others answer with challenge/block/confirm.
func (w Window) responsive() bool {
	return w == WindowChallenge || w == WindowBlock || w == WindowBlockChallenge
}

// resume is what happens once an owed influence loss is paid.
type resume int

const (
	resumeProceed resume = iota // the action survived its challenge
	resumeCancel                // the action's claim was a lie
	resumeResolve               // the block's claim was a lie
	resumeBlocked               // the block survived its challenge
	resumeEndTurn
)
