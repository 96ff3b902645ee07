// Package deck holds the court deck of influence cards.
package deck

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/wfunc/coupserver/apperr"
)

// Influence is one of the five character kinds a card represents.
type Influence string

const (
	Duke       Influence = "duke"
	Assassin   Influence = "assassin"
	Captain    Influence = "captain"
	Ambassador Influence = "ambassador"
	Contessa   Influence = "contessa"
)

// Kinds lists every influence kind in canonical order.
var Kinds = []Influence{Duke, Assassin, Captain, Ambassador, Contessa}

const (
	// CopiesPerKind is the number of cards of each kind in the court deck.
	CopiesPerKind = 3
	// Size is the total number of cards in play.
	Size = CopiesPerKind * 5
	// HandSize is the number of cards dealt to each participant.
	HandSize = 2
)

// Valid reports whether k names a known influence kind.
func (k Influence) Valid() bool {
	for _, kind := range Kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Card is a single physical card. ID is unique across the 15 cards so that
// a card held twice can be detected.
type Card struct {
	ID   int       `json:"id"`
	Kind Influence `json:"kind"`
}

// KindsOf returns the influence kinds of cards, preserving order.
func KindsOf(cards []Card) []Influence {
	out := make([]Influence, len(cards))
	for i, c := range cards {
		out[i] = c.Kind
	}
	return out
}

// NewSeed generates a 32-byte ChaCha8 seed using crypto/rand.
func NewSeed() ([32]byte, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

// NewRand returns a generator seeded from crypto/rand.
func NewRand() (*rand.Rand, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}

// SeededRand returns a deterministic generator for tests and replays.
func SeededRand(n uint64) *rand.Rand {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], n)
	return rand.New(rand.NewChaCha8(seed))
}

// Deck is the ordered pool of cards not held and not lost. Draws come off
// the end of the slice.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// Build returns a freshly shuffled deck with three cards of each kind.
func Build(rng *rand.Rand) *Deck {
	cards := make([]Card, 0, Size)
	id := 0
	for _, kind := range Kinds {
		for i := 0; i < CopiesPerKind; i++ {
			cards = append(cards, Card{ID: id, Kind: kind})
			id++
		}
	}
	d := &Deck{cards: cards, rng: rng}
	d.shuffle()
	return d
}

// Len returns the number of cards remaining.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining cards.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}

// Deal removes and returns two cards for each of n participants.
func (d *Deck) Deal(n int) ([][]Card, error) {
	if n < 0 || HandSize*n > len(d.cards) {
		return nil, apperr.Newf(apperr.CodeInsufficientCards,
			"deal %d hands needs %d cards, %d remain", n, HandSize*n, len(d.cards))
	}
	hands := make([][]Card, n)
	for i := range hands {
		hands[i], _ = d.Draw(HandSize)
	}
	return hands, nil
}

// Draw removes and returns k cards from the top of the deck.
func (d *Deck) Draw(k int) ([]Card, error) {
	if k < 0 || k > len(d.cards) {
		return nil, apperr.Newf(apperr.CodeInsufficientCards,
			"draw %d cards, %d remain", k, len(d.cards))
	}
	cut := len(d.cards) - k
	drawn := append([]Card(nil), d.cards[cut:]...)
	d.cards = d.cards[:cut]
	return drawn, nil
}

// ReturnAndReshuffle merges cards back into the deck and reshuffles, so the
// order of later draws says nothing about what was returned.
func (d *Deck) ReturnAndReshuffle(cards ...Card) {
	d.cards = append(d.cards, cards...)
	d.shuffle()
}

// shuffle is a uniform Fisher-Yates permutation.
func (d *Deck) shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}
