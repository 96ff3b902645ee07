package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/protocol"
	"github.com/wfunc/coupserver/state"
)

const helpText = `commands:
  name <name>            claim a display name
  ready | unready        toggle readiness
  order <a,b,c>          set turn order (leader)
  start                  start the game (leader)
  income | aid | tax | exchange
  coup <name> | assassinate <name> | steal <name>
  challenge              challenge the open claim
  block <influence>      block with duke, captain, ambassador or contessa
  pass                   let the open window go
  lose <index>           reveal the card at index
  keep <i,j>             keep these exchange options
  quit`

var errUnknownCommand = errors.New("unknown command, type help")

var simpleActions = map[string]state.ActionKind{
	"income":   state.Income,
	"aid":      state.ForeignAid,
	"tax":      state.Tax,
	"exchange": state.Exchange,
}

var targetedActions = map[string]state.ActionKind{
	"coup":        state.Coup,
	"assassinate": state.Assassinate,
	"steal":       state.Steal,
}

// parseCommand turns one input line into an outbound message. ids maps
// display names to participant ids for targeted actions.
func parseCommand(line string, ids map[string]string) (protocol.Inbound, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errUnknownCommand
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	if kind, ok := simpleActions[verb]; ok {
		return protocol.DeclareAction{Kind: kind}, nil
	}
	if kind, ok := targetedActions[verb]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: %s <name>", verb)
		}
		id, ok := ids[args[0]]
		if !ok {
			return nil, fmt.Errorf("no participant named %q", args[0])
		}
		return protocol.DeclareAction{Kind: kind, Target: id}, nil
	}

	switch verb {
	case "name":
		if len(args) == 0 {
			return nil, errors.New("usage: name <name>")
		}
		return protocol.ClaimName{Name: strings.Join(args, " ")}, nil
	case "ready", "unready":
		ready := verb == "ready"
		return protocol.SetReady{Ready: &ready}, nil
	case "order":
		if len(args) != 1 {
			return nil, errors.New("usage: order <a,b,c>")
		}
		var order []string
		for _, name := range strings.Split(args[0], ",") {
			id, ok := ids[name]
			if !ok {
				return nil, fmt.Errorf("no participant named %q", name)
			}
			order = append(order, id)
		}
		return protocol.Reorder{Order: order}, nil
	case "start":
		return protocol.StartGame{}, nil
	case "challenge":
		return protocol.Challenge{}, nil
	case "block":
		if len(args) != 1 {
			return nil, errors.New("usage: block <influence>")
		}
		return protocol.Block{Claim: deck.Influence(strings.ToLower(args[0]))}, nil
	case "pass":
		return protocol.Confirm{}, nil
	case "lose":
		if len(args) != 1 {
			return nil, errors.New("usage: lose <index>")
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, err
		}
		return protocol.ChooseInfluence{Index: &i}, nil
	case "keep":
		if len(args) != 1 {
			return nil, errors.New("usage: keep <i,j>")
		}
		keep := []int{}
		for _, part := range strings.Split(args[0], ",") {
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			keep = append(keep, i)
		}
		return protocol.ChooseExchange{Keep: keep}, nil
	}
	return nil, errUnknownCommand
}
