package rolls

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
)

// Roller draws one uniformly distributed value in [1, sides].
type Roller interface {
	Roll(sides int) (int, error)
}

type cryptoRoller struct{}

// NewCryptoRoller returns a Roller backed by crypto/rand. Every draw is
// independent; there is no seed to share or replay.
func NewCryptoRoller() Roller {
	return cryptoRoller{}
}

func (cryptoRoller) Roll(sides int) (int, error) {
	if sides < 1 {
		return 0, fmt.Errorf("invalid die with %d sides", sides)
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random value: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

// rollDice draws one value for each die of the default set.
func rollDice(roller Roller) (DiceValues, error) {
	var values DiceValues
	for _, dieType := range DefaultDieTypes {
		value, err := roller.Roll(dieType.Sides)
		if err != nil {
			return DiceValues{}, err
		}
		if value < 1 || value > dieType.Sides {
			return DiceValues{}, fmt.Errorf("%s rolled %d outside [1,%d]", dieType.Code, value, dieType.Sides)
		}
		values.set(dieType.Code, value)
	}
	return values, nil
}
