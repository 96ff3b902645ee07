package deck

import (
	"errors"
	"testing"

	"github.com/wfunc/coupserver/apperr"
)

func TestBuildHasThreeOfEachKind(t *testing.T) {
	d := Build(SeededRand(1))
	if d.Len() != Size {
		t.Fatalf("deck size = %d, want %d", d.Len(), Size)
	}
	counts := make(map[Influence]int)
	ids := make(map[int]bool)
	for _, c := range d.Cards() {
		counts[c.Kind]++
		if ids[c.ID] {
			t.Fatalf("card id %d appears twice", c.ID)
		}
		ids[c.ID] = true
	}
	for _, kind := range Kinds {
		if counts[kind] != CopiesPerKind {
			t.Errorf("%s count = %d, want %d", kind, counts[kind], CopiesPerKind)
		}
	}
}

func TestDealRemovesTwoPerParticipant(t *testing.T) {
	d := Build(SeededRand(2))
	hands, err := d.Deal(6)
	if err != nil {
		t.Fatalf("deal: %v", err)
	}
	if len(hands) != 6 {
		t.Fatalf("hands = %d, want 6", len(hands))
	}
	for i, h := range hands {
		if len(h) != HandSize {
			t.Errorf("hand %d size = %d, want %d", i, len(h), HandSize)
		}
	}
	if d.Len() != Size-12 {
		t.Errorf("remaining = %d, want %d", d.Len(), Size-12)
	}
}

func TestDealInsufficientCards(t *testing.T) {
	d := Build(SeededRand(3))
	_, err := d.Deal(8)
	if !errors.Is(err, apperr.ErrInsufficientCards) {
		t.Fatalf("expected InsufficientCards, got %v", err)
	}
	if d.Len() != Size {
		t.Errorf("failed deal must not remove cards, remaining = %d", d.Len())
	}
}

func TestDrawTooMany(t *testing.T) {
	d := Build(SeededRand(4))
	if _, err := d.Draw(Size + 1); !errors.Is(err, apperr.ErrInsufficientCards) {
		t.Fatalf("expected InsufficientCards, got %v", err)
	}
}

func TestReturnAndReshuffleConservesCards(t *testing.T) {
	d := Build(SeededRand(5))
	drawn, err := d.Draw(4)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	d.ReturnAndReshuffle(drawn...)
	if d.Len() != Size {
		t.Fatalf("deck size = %d, want %d", d.Len(), Size)
	}
	seen := make(map[int]bool)
	for _, c := range d.Cards() {
		seen[c.ID] = true
	}
	for _, c := range drawn {
		if !seen[c.ID] {
			t.Errorf("returned card %d missing from deck", c.ID)
		}
	}
}

// Every kind should land on top roughly a fifth of the time.
func TestShuffleIsUnbiased(t *testing.T) {
	const trials = 5000
	rng := SeededRand(6)
	top := make(map[Influence]int)
	for i := 0; i < trials; i++ {
		d := Build(rng)
		card, _ := d.Draw(1)
		top[card[0].Kind]++
	}
	want := trials / len(Kinds)
	for _, kind := range Kinds {
		got := top[kind]
		if got < want*3/4 || got > want*5/4 {
			t.Errorf("%s on top %d times, want about %d", kind, got, want)
		}
	}
}

func TestInfluenceValid(t *testing.T) {
	if !Contessa.Valid() {
		t.Error("contessa should be valid")
	}
	if Influence("jester").Valid() {
		t.Error("jester should be invalid")
	}
}
