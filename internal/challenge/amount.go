package challenge

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Amounts are multiples of 1e-10 native units between 1e-8 and 1e-7. Ten
// decimal places keeps the amount space at ~900 distinct values, small enough
// to send cheaply but large enough that a collision between two concurrent
// users within one scan window is unlikely.
const (
	decimalPlaces = 10
	minSteps      = 100  // 100 * 1e-10 = 1e-8
	maxSteps      = 1000 // 1000 * 1e-10 = 1e-7
)

var baseUnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// GenerateAmount returns a random challenge amount as a decimal string in
// native units, plus its base-unit (wei) form. The base-unit string is derived
// exactly once here; scanners compare against it verbatim and must never
// recompute it from the decimal form.
func GenerateAmount() (amount, baseUnits string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxSteps-minSteps))
	if err != nil {
		return "", "", fmt.Errorf("generating challenge amount: %w", err)
	}
	steps := n.Int64() + minSteps

	amount = fmt.Sprintf("0.%0*d", decimalPlaces, steps)
	baseUnits, err = ToBaseUnits(amount)
	if err != nil {
		return "", "", err
	}
	return amount, baseUnits, nil
}

// ToBaseUnits converts a decimal native-unit amount to an integer base-unit
// string, flooring any fraction below one wei. The computation is exact
// rational arithmetic; no floats are involved.
func ToBaseUnits(amount string) (string, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", amount)
	}
	if r.Sign() < 0 {
		return "", fmt.Errorf("negative amount %q", amount)
	}
	r.Mul(r, new(big.Rat).SetInt(baseUnitScale))
	// Floor: integer division of numerator by denominator.
	return new(big.Int).Quo(r.Num(), r.Denom()).String(), nil
}
