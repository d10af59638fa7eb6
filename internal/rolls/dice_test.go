package rolls

import (
	"errors"
	"testing"
)

func TestCryptoRollerStaysWithinSides(t *testing.T) {
	roller := NewCryptoRoller()
	for _, sides := range []int{1, 10, 12, 20} {
		seen := map[int]bool{}
		for i := 0; i < 2000; i++ {
			value, err := roller.Roll(sides)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value < 1 || value > sides {
				t.Fatalf("d%d rolled %d", sides, value)
			}
			seen[value] = true
		}
		if len(seen) != sides {
			t.Fatalf("expected every face of d%d to appear, saw %d", sides, len(seen))
		}
	}
}

func TestCryptoRollerRejectsInvalidDie(t *testing.T) {
	if _, err := NewCryptoRoller().Roll(0); err == nil {
		t.Fatalf("expected error for zero-sided die")
	}
}

func TestRollDiceUsesSideCountPerDie(t *testing.T) {
	dice, err := rollDice(newFixedRoller(map[int][]int{10: {4, 9}, 12: {12}, 20: {1}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := DiceValues{BD: 4, CD: 12, LD: 1, MD: 9}
	if dice != expected {
		t.Fatalf("unexpected dice %+v, want %+v", dice, expected)
	}
}

type brokenRoller struct {
	value int
	err   error
}

func (r brokenRoller) Roll(int) (int, error) {
	return r.value, r.err
}

func TestRollDiceRejectsOutOfRangeValues(t *testing.T) {
	if _, err := rollDice(brokenRoller{value: 21}); err == nil {
		t.Fatalf("expected out of range value to be rejected")
	}
	failure := errors.New("entropy exhausted")
	if _, err := rollDice(brokenRoller{err: failure}); !errors.Is(err, failure) {
		t.Fatalf("expected roller error, got %v", err)
	}
}
