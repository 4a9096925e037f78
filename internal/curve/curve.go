// Package curve computes the next spot price of a pool after a trade.
package curve

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/apperrors"
)

// BasisPoints is the denominator for every bps-denominated quantity.
const BasisPoints = 10000

// Kind selects how the spot price moves per trade.
type Kind uint8

const (
	Linear Kind = iota
	Exponential
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k == Linear || k == Exponential
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown curve kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts the textual name or the numeric code of a curve.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "0":
		return Linear, nil
	case "exponential", "1":
		return Exponential, nil
	}
	return 0, apperrors.Validation(fmt.Sprintf("unknown curve kind %q", s))
}

// Direction is the side of the trade from the trader's point of view.
type Direction uint8

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, apperrors.Validation(fmt.Sprintf("unknown direction %q", s))
}

// ValidateStep rejects exponential steps above 100%.
func ValidateStep(kind Kind, step uint64) error {
	if !kind.Valid() {
		return apperrors.Validation(fmt.Sprintf("unknown curve kind %d", uint8(kind)))
	}
	if kind == Exponential && step > BasisPoints {
		return apperrors.Validation(fmt.Sprintf("exponential delta %d exceeds %d bps", step, BasisPoints))
	}
	return nil
}

// NextPrice returns the spot price that follows a trade at current.
//
// Exponential sells divide by (step/10000 + 1) with integer division, so any
// step below 10000 leaves the price unchanged and 10000 halves it. This is
// not the inverse of an exponential buy; pools in the wild depend on it.
func NextPrice(current, step uint64, kind Kind, dir Direction) (uint64, error) {
	switch kind {
	case Linear:
		if dir == Buy {
			next, overflow := math.SafeAdd(current, step)
			if overflow {
				return 0, apperrors.Arithmetic("linear buy overflows spot price")
			}
			return next, nil
		}
		next, underflow := math.SafeSub(current, step)
		if underflow {
			return 0, apperrors.Arithmetic("linear sell underflows spot price")
		}
		return next, nil

	case Exponential:
		if dir == Buy {
			scaled, overflow := math.SafeMul(current, step)
			if overflow {
				return 0, apperrors.Arithmetic("exponential buy overflows spot price")
			}
			next, overflow := math.SafeAdd(current, scaled/BasisPoints)
			if overflow {
				return 0, apperrors.Arithmetic("exponential buy overflows spot price")
			}
			return next, nil
		}
		return current / (step/BasisPoints + 1), nil
	}

	return 0, apperrors.Validation(fmt.Sprintf("unknown curve kind %d", uint8(kind)))
}
