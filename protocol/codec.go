package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wfunc/coupserver/apperr"
)

// MaxPayload is the largest payload the 2-byte length header can describe.
const MaxPayload = 1<<16 - 1

// Decode parses the payload of an inbound packet. Unknown ids, unknown
// fields and missing required fields are InvalidMessage.
func Decode(msgID uint16, data []byte) (Inbound, error) {
	var msg Inbound
	switch msgID {
	case MsgHeartbeat:
		msg = &Heartbeat{}
	case MsgClaimName:
		msg = &ClaimName{}
	case MsgSetReady:
		msg = &SetReady{}
	case MsgReorder:
		msg = &Reorder{}
	case MsgStartGame:
		msg = &StartGame{}
	case MsgDeclareAction:
		msg = &DeclareAction{}
	case MsgChallenge:
		msg = &Challenge{}
	case MsgBlock:
		msg = &Block{}
	case MsgConfirm:
		msg = &Confirm{}
	case MsgChooseInfluence:
		msg = &ChooseInfluence{}
	case MsgChooseExchange:
		msg = &ChooseExchange{}
	default:
		return nil, apperr.Newf(apperr.CodeInvalidMessage, "unknown message id %d", msgID)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(msg); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidMessage, fmt.Sprintf("malformed payload for message %d", msgID), err)
		}
		if dec.More() {
			return nil, apperr.Newf(apperr.CodeInvalidMessage, "trailing data after message %d", msgID)
		}
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return deref(msg), nil
}

// Encode marshals an outbound message payload.
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("message %d payload is %d bytes, max %d", msg.MsgID(), len(data), MaxPayload)
	}
	return data, nil
}

// deref hands out values so callers can type-switch on plain struct types.
func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *Heartbeat:
		return *m
	case *ClaimName:
		return *m
	case *SetReady:
		return *m
	case *Reorder:
		return *m
	case *StartGame:
		return *m
	case *DeclareAction:
		return *m
	case *Challenge:
		return *m
	case *Block:
		return *m
	case *Confirm:
		return *m
	case *ChooseInfluence:
		return *m
	case *ChooseExchange:
		return *m
	}
	return msg
}

func missing(field string) error {
	return apperr.Newf(apperr.CodeInvalidMessage, "missing required field %q", field)
}

func (Heartbeat) validate() error { return nil }
func (StartGame) validate() error { return nil }
func (Challenge) validate() error { return nil }
func (Confirm) validate() error   { return nil }

func (m ClaimName) validate() error {
	if m.Name == "" {
		return missing("name")
	}
	return nil
}

func (m SetReady) validate() error {
	if m.Ready == nil {
		return missing("ready")
	}
	return nil
}

func (m Reorder) validate() error {
	if m.Order == nil {
		return missing("order")
	}
	return nil
}

func (m DeclareAction) validate() error {
	if m.Kind == "" {
		return missing("kind")
	}
	return nil
}

func (m Block) validate() error {
	if m.Claim == "" {
		return missing("claim")
	}
	if !m.Claim.Valid() {
		return apperr.Newf(apperr.CodeInvalidMessage, "unknown influence %q", m.Claim)
	}
	return nil
}

func (m ChooseInfluence) validate() error {
	if m.Index == nil {
		return missing("index")
	}
	return nil
}

func (m ChooseExchange) validate() error {
	if m.Keep == nil {
		return missing("keep")
	}
	return nil
}
