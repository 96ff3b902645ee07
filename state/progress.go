package state

import (
	"github.com/wfunc/coupserver/apperr"
	"github.com/wfunc/coupserver/deck"
)

// ProgressState runs turns and the counter-window resolution.
type ProgressState struct {
	stateBase
}

func (s *ProgressState) OnEnter() {
	e := s.engine
	e.startedAt = e.clock.Now()
	e.logf("The game begins with %d players", len(e.seats))
	e.emit(Event{Kind: EventGameStarted})
	for _, seat := range e.seats {
		e.emit(Event{Kind: EventHandChanged, Recipient: seat.ID})
	}
	e.logf("%s goes first", e.current().Name)
}

func (s *ProgressState) Handle(actor string, cmd Command) error {
	e := s.engine
	seat := e.seat(actor)
	if seat == nil {
		return apperr.New(apperr.CodeStaleReference, "not seated in this game")
	}
	if seat.Dead {
		return apperr.New(apperr.CodeStaleReference, "eliminated participants cannot act")
	}
	switch c := cmd.(type) {
	case StartGame:
		return apperr.ErrGameAlreadyStarted
	case DeclareAction:
		return e.declare(seat, c)
	case Challenge:
		return e.challenge(seat)
	case Block:
		return e.block(seat, c.Claim)
	case Confirm:
		return e.confirm(seat)
	case ChooseInfluence:
		return e.chooseInfluence(seat, c.Index)
	case ChooseExchange:
		return e.chooseExchange(seat, c.Keep)
	default:
		return apperr.ErrInvalidMessage
	}
}

func (e *Engine) declare(actor *Seat, cmd DeclareAction) error {
	if e.pending != nil {
		return apperr.New(apperr.CodeIllegalAction, "an action is already pending")
	}
	if e.current().ID != actor.ID {
		return apperr.New(apperr.CodeIllegalAction, "not your turn")
	}
	rule, ok := catalog[cmd.Kind]
	if !ok {
		return apperr.Newf(apperr.CodeIllegalAction, "unknown action %q", cmd.Kind)
	}
	if actor.Coins >= ForcedCoupThreshold && cmd.Kind != Coup {
		return apperr.Newf(apperr.CodeIllegalAction, "with %d or more coins you must coup", ForcedCoupThreshold)
	}
	if actor.Coins < rule.cost {
		return apperr.Newf(apperr.CodeIllegalAction, "%s costs %d coins", cmd.Kind, rule.cost)
	}
	var target *Seat
	if rule.targeted {
		if cmd.Target == "" {
			return apperr.Newf(apperr.CodeIllegalAction, "%s needs a target", cmd.Kind)
		}
		if cmd.Target == actor.ID {
			return apperr.New(apperr.CodeIllegalAction, "cannot target yourself")
		}
		target = e.seat(cmd.Target)
		if target == nil || target.Dead || !target.Connected {
			return apperr.New(apperr.CodeStaleReference, "target is not a connected living participant")
		}
	} else if cmd.Target != "" {
		return apperr.Newf(apperr.CodeIllegalAction, "%s takes no target", cmd.Kind)
	}

	actor.Coins -= rule.cost
	e.pending = &PendingAction{Initiator: actor.ID, Kind: cmd.Kind, Target: cmd.Target}
	if target != nil {
		e.logf("%s declares %s against %s", actor.Name, cmd.Kind, target.Name)
	} else {
		e.logf("%s declares %s", actor.Name, cmd.Kind)
	}
	if rule.claim != "" {
		e.openWindow(WindowChallenge)
		e.closeIfSettled()
		return nil
	}
	e.afterChallengeWindow()
	return nil
}

func (e *Engine) challenge(actor *Seat) error {
	p := e.pending
	if p == nil {
		return apperr.New(apperr.CodeIllegalAction, "nothing to challenge")
	}
	switch p.Window {
	case WindowChallenge:
		if actor.ID == p.Initiator {
			return apperr.New(apperr.CodeIllegalAction, "cannot challenge your own claim")
		}
		if p.Passed[actor.ID] {
			return apperr.New(apperr.CodeIllegalAction, "already passed on this claim")
		}
		accused := e.seat(p.Initiator)
		claim := catalog[p.Kind].claim
		p.Challenger = actor.ID
		e.logf("%s challenges %s's %s", actor.Name, accused.Name, claim)
		e.resolveChallenge(actor, accused, claim, false)
	case WindowBlockChallenge:
		if actor.ID != p.Initiator {
			return apperr.New(apperr.CodeIllegalAction, "only the action's initiator may challenge a block")
		}
		blocker := e.seat(p.Blocker)
		p.Challenger = actor.ID
		e.logf("%s challenges %s's %s", actor.Name, blocker.Name, p.BlockClaim)
		e.resolveChallenge(actor, blocker, p.BlockClaim, true)
	default:
		return apperr.New(apperr.CodeIllegalAction, "no claim is open to challenge")
	}
	return nil
}

func (e *Engine) block(actor *Seat, claim deck.Influence) error {
	p := e.pending
	if p == nil || p.Window != WindowBlock {
		return apperr.New(apperr.CodeIllegalAction, "nothing to block")
	}
	if !e.eligible(actor, WindowBlock) {
		return apperr.New(apperr.CodeIllegalAction, "you cannot block this action")
	}
	if p.Passed[actor.ID] {
		return apperr.New(apperr.CodeIllegalAction, "already passed on this action")
	}
	if !catalog[p.Kind].blockableBy(claim) {
		return apperr.Newf(apperr.CodeIllegalAction, "%s cannot block %s", claim, p.Kind)
	}
	p.Blocker = actor.ID
	p.BlockClaim = claim
	e.logf("%s blocks with %s", actor.Name, claim)
	e.openWindow(WindowBlockChallenge)
	e.closeIfSettled()
	return nil
}

func (e *Engine) confirm(actor *Seat) error {
	p := e.pending
	if p == nil || !p.Window.responsive() {
		return apperr.New(apperr.CodeIllegalAction, "nothing to confirm")
	}
	if !e.eligible(actor, p.Window) {
		return apperr.New(apperr.CodeIllegalAction, "you have no say in this window")
	}
	if p.Passed[actor.ID] {
		return nil
	}
	p.Passed[actor.ID] = true
	e.closeIfSettled()
	return nil
}

func (e *Engine) chooseInfluence(actor *Seat, index int) error {
	p := e.pending
	if p == nil || p.Window != WindowInfluenceLoss || p.Loser != actor.ID {
		return apperr.New(apperr.CodeIllegalAction, "you do not owe an influence")
	}
	if index < 0 || index >= len(actor.Hand) {
		return apperr.Newf(apperr.CodeStaleReference, "no card at index %d", index)
	}
	e.loseInfluence(actor, index)
	e.resumeWith(p.next)
	return nil
}

func (e *Engine) chooseExchange(actor *Seat, keep []int) error {
	p := e.pending
	if p == nil || p.Window != WindowExchange || p.Initiator != actor.ID {
		return apperr.New(apperr.CodeIllegalAction, "no exchange in progress")
	}
	if len(keep) != p.Keep {
		return apperr.Newf(apperr.CodeIllegalAction, "keep exactly %d cards", p.Keep)
	}
	options := len(actor.Hand) + len(p.Drawn)
	seen := make(map[int]bool, len(keep))
	for _, i := range keep {
		if i < 0 || i >= options {
			return apperr.Newf(apperr.CodeStaleReference, "no option at index %d", i)
		}
		if seen[i] {
			return apperr.Newf(apperr.CodeIllegalAction, "option %d chosen twice", i)
		}
		seen[i] = true
	}
	e.finishExchange(keep)
	return nil
}

// openWindow starts a new window on the pending action with a fresh id.
func (e *Engine) openWindow(w Window) {
	p := e.pending
	e.windowSeq++
	d := e.timing.of(w)
	p.Window = w
	p.WindowID = e.windowSeq
	p.Deadline = e.clock.Now().Add(d)
	p.Passed = make(map[string]bool)
	e.emit(Event{Kind: EventDeadline, WindowID: p.WindowID, After: d})
}

func (e *Engine) eligible(s *Seat, w Window) bool {
	p := e.pending
	if s.Dead || p == nil {
		return false
	}
	switch w {
	case WindowChallenge:
		return s.ID != p.Initiator
	case WindowBlock:
		if catalog[p.Kind].targetBlocks {
			return s.ID == p.Target
		}
		return s.ID != p.Initiator
	case WindowBlockChallenge:
		return s.ID == p.Initiator
	}
	return false
}

// closeIfSettled closes a response window once no connected eligible
// responder is still undecided.
func (e *Engine) closeIfSettled() {
	p := e.pending
	if p == nil || !p.Window.responsive() {
		return
	}
	for _, s := range e.seats {
		if e.eligible(s, p.Window) && s.Connected && !p.Passed[s.ID] {
			return
		}
	}
	e.closeWindow()
}

// closeWindow applies the default outcome of the open window.
func (e *Engine) closeWindow() {
	p := e.pending
	switch p.Window {
	case WindowChallenge:
		e.afterChallengeWindow()
	case WindowBlock:
		e.applyEffect()
	case WindowBlockChallenge:
		e.blockStands()
	case WindowInfluenceLoss:
		if s := e.seat(p.Loser); s != nil && len(s.Hand) > 0 {
			e.loseInfluence(s, 0)
		}
		e.resumeWith(p.next)
	case WindowExchange:
		keep := make([]int, p.Keep)
		for i := range keep {
			keep[i] = i
		}
		e.finishExchange(keep)
	}
}

func (e *Engine) afterChallengeWindow() {
	p := e.pending
	if catalog[p.Kind].blockable() && e.hasBlocker() {
		e.openWindow(WindowBlock)
		e.closeIfSettled()
		return
	}
	e.applyEffect()
}

func (e *Engine) hasBlocker() bool {
	for _, s := range e.seats {
		if e.eligible(s, WindowBlock) {
			return true
		}
	}
	return false
}

// resolveChallenge reveals whether accused holds claim. An honest claimant
// swaps the card for a fresh draw and the challenger loses an influence; a
// bluffer loses one instead.
func (e *Engine) resolveChallenge(challenger, accused *Seat, claim deck.Influence, onBlock bool) {
	idx := -1
	for i, c := range accused.Hand {
		if c.Kind == claim {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.logf("%s does not have %s", accused.Name, claim)
		next := resumeCancel
		if onBlock {
			next = resumeResolve
		}
		e.requireLoss(accused, next)
		return
	}

	card := accused.Hand[idx]
	accused.Hand = append(accused.Hand[:idx:idx], accused.Hand[idx+1:]...)
	e.deck.ReturnAndReshuffle(card)
	drawn, err := e.deck.Draw(1)
	if err != nil {
		e.fail(err)
		return
	}
	accused.Hand = append(accused.Hand, drawn...)
	e.logf("%s reveals %s and draws a replacement", accused.Name, claim)
	e.emit(Event{Kind: EventHandChanged, Recipient: accused.ID})
	next := resumeProceed
	if onBlock {
		next = resumeBlocked
	}
	e.requireLoss(challenger, next)
}

// requireLoss makes s lose one influence, then continues with next. A
// choice is only asked for when s holds more than one card and is connected.
func (e *Engine) requireLoss(s *Seat, next resume) {
	if s.Dead || len(s.Hand) == 0 {
		e.resumeWith(next)
		return
	}
	if len(s.Hand) == 1 || !s.Connected {
		e.loseInfluence(s, 0)
		e.resumeWith(next)
		return
	}
	p := e.pending
	p.Loser = s.ID
	p.next = next
	e.openWindow(WindowInfluenceLoss)
}

func (e *Engine) loseInfluence(s *Seat, idx int) {
	card := s.Hand[idx]
	s.Hand = append(s.Hand[:idx:idx], s.Hand[idx+1:]...)
	s.Revealed = append(s.Revealed, card)
	e.logf("%s loses %s", s.Name, card.Kind)
	e.emit(Event{Kind: EventHandChanged, Recipient: s.ID})
	if len(s.Hand) == 0 {
		s.Dead = true
		e.logf("%s is out", s.Name)
	}
}

func (e *Engine) resumeWith(next resume) {
	if e.fault != nil {
		return
	}
	p := e.pending
	p.Loser = ""
	switch next {
	case resumeProceed:
		e.afterChallengeWindow()
	case resumeCancel:
		e.logf("%s's %s fails", e.seat(p.Initiator).Name, p.Kind)
		e.endTurn()
	case resumeResolve:
		e.applyEffect()
	case resumeBlocked:
		e.blockStands()
	default:
		e.endTurn()
	}
}

func (e *Engine) blockStands() {
	p := e.pending
	e.logf("%s's %s is blocked", e.seat(p.Initiator).Name, p.Kind)
	e.endTurn()
}

func (e *Engine) applyEffect() {
	p := e.pending
	actor := e.seat(p.Initiator)
	target := e.seat(p.Target)
	switch p.Kind {
	case Income:
		actor.Coins++
		e.logf("%s takes income", actor.Name)
	case ForeignAid:
		actor.Coins += 2
		e.logf("%s takes foreign aid", actor.Name)
	case Tax:
		actor.Coins += 3
		e.logf("%s collects tax", actor.Name)
	case Steal:
		if target != nil && !target.Dead {
			n := min(2, target.Coins)
			target.Coins -= n
			actor.Coins += n
			e.logf("%s steals %d from %s", actor.Name, n, target.Name)
		}
	case Coup, Assassinate:
		if target != nil && !target.Dead {
			e.requireLoss(target, resumeEndTurn)
			return
		}
	case Exchange:
		e.beginExchange()
		return
	}
	e.endTurn()
}

func (e *Engine) beginExchange() {
	p := e.pending
	actor := e.seat(p.Initiator)
	drawn, err := e.deck.Draw(2)
	if err != nil {
		e.fail(err)
		return
	}
	p.Drawn = drawn
	p.Keep = len(actor.Hand)
	options := make([]deck.Card, 0, len(actor.Hand)+len(drawn))
	options = append(options, actor.Hand...)
	options = append(options, drawn...)
	e.emit(Event{Kind: EventExchangeOptions, Recipient: actor.ID, Cards: options, Keep: p.Keep})
	e.openWindow(WindowExchange)
}

func (e *Engine) finishExchange(keep []int) {
	p := e.pending
	actor := e.seat(p.Initiator)
	options := make([]deck.Card, 0, len(actor.Hand)+len(p.Drawn))
	options = append(options, actor.Hand...)
	options = append(options, p.Drawn...)
	chosen := make(map[int]bool, len(keep))
	hand := make([]deck.Card, 0, len(keep))
	for _, i := range keep {
		chosen[i] = true
		hand = append(hand, options[i])
	}
	var back []deck.Card
	for i, c := range options {
		if !chosen[i] {
			back = append(back, c)
		}
	}
	actor.Hand = hand
	p.Drawn = nil
	e.deck.ReturnAndReshuffle(back...)
	e.logf("%s exchanges cards with the deck", actor.Name)
	e.emit(Event{Kind: EventHandChanged, Recipient: actor.ID})
	e.endTurn()
}

// passTurn ends the turn of a holder who can no longer act.
func (e *Engine) passTurn(s *Seat) {
	if p := e.pending; p != nil && p.Window == WindowInfluenceLoss {
		if l := e.seat(p.Loser); l != nil && len(l.Hand) > 0 {
			e.loseInfluence(l, 0)
		}
	}
	e.logf("%s's turn is passed", s.Name)
	e.endTurn()
}

func (e *Engine) endTurn() {
	if p := e.pending; p != nil && len(p.Drawn) > 0 {
		e.deck.ReturnAndReshuffle(p.Drawn...)
	}
	e.pending = nil
	if e.livingCount() <= 1 {
		if err := e.machine.ChangeState(e.finished); err != nil {
			e.fail(err)
		}
		return
	}
	e.advanceTurn()
	e.logf("It is %s's turn", e.current().Name)
}
