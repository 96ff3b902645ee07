// Package roster is the per-room participant registry: identity, connection
// binding, readiness, leadership and connectivity.
package roster

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wfunc/coupserver/apperr"
)

const (
	// MaxParticipants caps the distinct participants of one room.
	MaxParticipants = 6
	// MaxNameLength caps display names, in runes.
	MaxNameLength = 24
)

// ClaimResult tells a successful claimant whether a participant was created
// or an existing one was rebound.
type ClaimResult int

const (
	Joined ClaimResult = iota
	Rejoined
)

func (r ClaimResult) String() string {
	if r == Rejoined {
		return "rejoined"
	}
	return "joined"
}

// Participant is one roster entry. Values handed out by the registry are
// copies.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ConnID    string `json:"-"`
	Ready     bool   `json:"ready"`
	Leader    bool   `json:"leader"`
	Connected bool   `json:"connected"`
	JoinSeq   int    `json:"-"`
}

// Handoff describes what a disconnect did to leadership.
type Handoff struct {
	// NewLeader is the participant that took over, if any.
	NewLeader *Participant
	// Empty is set when no participant remains connected.
	Empty bool
}

// Registry holds participants in turn order. It is not safe for concurrent
// use; the owning room serializes access.
type Registry struct {
	participants []*Participant
	byConn       map[string]*Participant
	started      bool
	nextSeq      int
	newID        func() string
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Participant),
		newID:  uuid.NewString,
	}
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.New(apperr.CodeInvalidMessage, "name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperr.Newf(apperr.CodeInvalidMessage, "name longer than %d characters", MaxNameLength)
	}
	return name, nil
}

// ClaimName binds connID to the participant called name, creating it if
// needed. A disconnected participant with that name is rebound (Rejoined).
func (r *Registry) ClaimName(connID, name string) (Participant, ClaimResult, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Participant{}, Joined, err
	}

	if owner, ok := r.byConn[connID]; ok {
		if owner.Name == name {
			return *owner, Rejoined, nil
		}
		return Participant{}, Joined, apperr.Newf(apperr.CodeIllegalAction,
			"connection already joined as %q", owner.Name)
	}

	existing := r.byName(name)
	if existing != nil {
		if existing.Connected {
			return Participant{}, Joined, apperr.Newf(apperr.CodeNameTaken, "name %q is taken", name)
		}
		existing.ConnID = connID
		existing.Connected = true
		r.byConn[connID] = existing
		r.claimLeadershipIfVacant(existing)
		return *existing, Rejoined, nil
	}

	if r.started {
		return Participant{}, Joined, apperr.New(apperr.CodeGameAlreadyStarted, "game already started")
	}
	if len(r.participants) >= MaxParticipants {
		return Participant{}, Joined, apperr.Newf(apperr.CodeRoomFull, "room holds at most %d participants", MaxParticipants)
	}

	p := &Participant{
		ID:        r.newID(),
		Name:      name,
		ConnID:    connID,
		Connected: true,
		JoinSeq:   r.nextSeq,
	}
	r.nextSeq++
	r.participants = append(r.participants, p)
	r.byConn[connID] = p
	r.claimLeadershipIfVacant(p)
	return *p, Joined, nil
}

// claimLeadershipIfVacant makes p leader when no connected leader exists.
// Before the game starts the new leader is implicitly ready.
func (r *Registry) claimLeadershipIfVacant(p *Participant) {
	if leader := r.leader(); leader != nil && leader.Connected {
		return
	}
	r.setLeader(p)
	if !r.started {
		p.Ready = true
	}
}

func (r *Registry) setLeader(p *Participant) {
	for _, other := range r.participants {
		other.Leader = false
	}
	p.Leader = true
}

// SetReady toggles readiness of the participant bound to connID.
func (r *Registry) SetReady(connID string, ready bool) (Participant, error) {
	p, err := r.bound(connID)
	if err != nil {
		return Participant{}, err
	}
	if r.started {
		return Participant{}, apperr.New(apperr.CodeGameAlreadyStarted, "readiness is fixed once the game starts")
	}
	p.Ready = ready
	return *p, nil
}

// MarkDisconnected flips the participant bound to connID to disconnected and
// hands leadership to the earliest-joined connected participant.
func (r *Registry) MarkDisconnected(connID string) (Participant, Handoff, error) {
	p, err := r.bound(connID)
	if err != nil {
		return Participant{}, Handoff{}, err
	}
	delete(r.byConn, connID)
	p.Connected = false
	p.ConnID = ""

	var handoff Handoff
	if p.Leader {
		if next := r.earliestConnected(); next != nil {
			r.setLeader(next)
			cp := *next
			handoff.NewLeader = &cp
		}
	}
	handoff.Empty = r.ConnectedCount() == 0
	return *p, handoff, nil
}

// Reorder redefines turn order. Only the leader may do it, and only before
// the game starts. names must be a permutation of the roster.
func (r *Registry) Reorder(connID string, names []string) error {
	p, err := r.bound(connID)
	if err != nil {
		return err
	}
	if !p.Leader {
		return apperr.New(apperr.CodeForbidden, "only the leader can reorder players")
	}
	if r.started {
		return apperr.New(apperr.CodeForbidden, "turn order is fixed once the game starts")
	}
	if len(names) != len(r.participants) {
		return apperr.Newf(apperr.CodeIllegalAction, "order lists %d names, roster has %d", len(names), len(r.participants))
	}
	ordered := make([]*Participant, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if seen[name] {
			return apperr.Newf(apperr.CodeIllegalAction, "name %q listed twice", name)
		}
		seen[name] = true
		q := r.byName(name)
		if q == nil {
			return apperr.Newf(apperr.CodeStaleReference, "no participant named %q", name)
		}
		ordered = append(ordered, q)
	}
	r.participants = ordered
	return nil
}

// Compact removes every participant keep rejects and returns the removed
// entries.
func (r *Registry) Compact(keep func(Participant) bool) []Participant {
	var removed []Participant
	kept := r.participants[:0]
	for _, p := range r.participants {
		if keep(*p) {
			kept = append(kept, p)
			continue
		}
		removed = append(removed, *p)
		if p.ConnID != "" {
			delete(r.byConn, p.ConnID)
		}
	}
	for i := len(kept); i < len(r.participants); i++ {
		r.participants[i] = nil
	}
	r.participants = kept
	if leader := r.leader(); leader == nil || !leader.Connected {
		if next := r.earliestConnected(); next != nil {
			r.setLeader(next)
		}
	}
	return removed
}

// SetStarted records that the game has started.
func (r *Registry) SetStarted(started bool) {
	r.started = started
}

func (r *Registry) Started() bool {
	return r.started
}

// Participants returns copies of all participants in turn order.
func (r *Registry) Participants() []Participant {
	out := make([]Participant, len(r.participants))
	for i, p := range r.participants {
		out[i] = *p
	}
	return out
}

func (r *Registry) ByConn(connID string) (Participant, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Registry) ByID(id string) (Participant, bool) {
	for _, p := range r.participants {
		if p.ID == id {
			return *p, true
		}
	}
	return Participant{}, false
}

func (r *Registry) Leader() (Participant, bool) {
	if p := r.leader(); p != nil {
		return *p, true
	}
	return Participant{}, false
}

func (r *Registry) Len() int {
	return len(r.participants)
}

func (r *Registry) ConnectedCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// ReadyCount counts participants that are both ready and connected.
func (r *Registry) ReadyCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Ready && p.Connected {
			n++
		}
	}
	return n
}

func (r *Registry) bound(connID string) (*Participant, error) {
	p, ok := r.byConn[connID]
	if !ok {
		return nil, apperr.New(apperr.CodeForbidden, "claim a name first")
	}
	return p, nil
}

func (r *Registry) byName(name string) *Participant {
	for _, p := range r.participants {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *Registry) leader() *Participant {
	for _, p := range r.participants {
		if p.Leader {
			return p
		}
	}
	return nil
}

func (r *Registry) earliestConnected() *Participant {
	var best *Participant
	for _, p := range r.participants {
		if !p.Connected {
			continue
		}
		if best == nil || p.JoinSeq < best.JoinSeq {
			best = p
		}
	}
	return best
}
