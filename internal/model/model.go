// Package model defines the core domain types shared across the exchange
// engine. All monetary state is held in integer minor units (1 major unit =
// 100 minor units). shopspring/decimal appears only at the boundary, never
// float64 for money.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MinorPerMajor converts between user-facing major units and the integer
// minor units used internally.
const MinorPerMajor = 100

// Price is a limit price in minor units per share. Valid prices are
// multiples of 50 minor units (0.5 major) within [50, 1000]; the two
// outcome prices of a traded pair always sum to ResolutionValue.
type Price int64

// ResolutionValue is the fixed value a complementary yes/no pair resolves
// to: 10 major units, in minor units per share.
const ResolutionValue Price = 10 * MinorPerMajor

// PriceTick is the minimum price increment (0.5 major units).
const PriceTick Price = MinorPerMajor / 2

// MaxOrderQuantity bounds the quantity of a single order or mint so that
// quantity times any valid price cannot overflow int64.
const MaxOrderQuantity = math.MaxInt64 / int64(ResolutionValue)

// ValidQuantity reports whether q is a usable order or mint quantity.
func ValidQuantity(q int64) bool {
	return q > 0 && q <= MaxOrderQuantity
}

var (
	ErrInvalidPrice    = errors.New("model: price must be a multiple of 0.5 in [0.5, 10]")
	ErrInvalidQuantity = errors.New("model: quantity must be a positive integer")
	ErrInvalidAmount   = errors.New("model: amount must be a positive number of minor units")
)

// Valid reports whether p lies on the tick grid within [0.5, 10] major.
func (p Price) Valid() bool {
	return p >= PriceTick && p <= ResolutionValue && p%PriceTick == 0
}

// Complement returns the price of the opposite outcome: ResolutionValue − p.
// Every synthetic Bid placement and every sell-side lookup goes through
// this, never a post-hoc check.
func (p Price) Complement() Price {
	return ResolutionValue - p
}

// Major renders the price in major units for user-facing payloads.
func (p Price) Major() decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Div(decimal.NewFromInt(MinorPerMajor))
}

// ParsePrice converts a user-supplied major-unit price into a Price,
// rejecting anything off the 0.5 grid or outside [0.5, 10].
func ParsePrice(major decimal.Decimal) (Price, error) {
	minor := major.Mul(decimal.NewFromInt(MinorPerMajor))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidPrice, major)
	}
	p := Price(minor.IntPart())
	if !p.Valid() {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidPrice, major)
	}
	return p, nil
}

// MajorToMinor converts a user-supplied major-unit amount to minor units.
func MajorToMinor(major decimal.Decimal) (int64, error) {
	minor := major.Mul(decimal.NewFromInt(MinorPerMajor))
	if !minor.IsInteger() || minor.Sign() <= 0 {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidAmount, major)
	}
	return minor.IntPart(), nil
}

// MinorToMajor renders an internal minor-unit amount in major units.
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(MinorPerMajor))
}

// Money is a user's monetary balance split into spendable and reserved
// halves, both in minor units and both always ≥ 0.
type Money struct {
	Balance int64 `json:"balance"`
	Locked  int64 `json:"locked"`
}

// Position is a user's holding in one outcome of one symbol. Quantity is
// the spendable amount; Locked is held separately against resting Exit
// orders.
type Position struct {
	Quantity int64 `json:"quantity"`
	Locked   int64 `json:"locked"`
}

// SymbolPosition maps outcome → holding for one symbol. An outcome absent
// from the map has never been held.
type SymbolPosition map[Outcome]*Position

// OrderKind distinguishes the two flavors of resting interest.
type OrderKind string

const (
	// KindExit is a genuine resting sell of owned tokens, stored on its
	// own outcome's side of the book.
	KindExit OrderKind = "exit"
	// KindBid is synthetic resting interest created from an unmatched buy,
	// stored on the complementary outcome's side at the complement price.
	// The wire value "buy" matches the original service's order type.
	KindBid OrderKind = "buy"
)

// OrderSnapshot is the externally visible form of a resting order.
type OrderSnapshot struct {
	UserID   string    `json:"userId"`
	ID       string    `json:"id"`
	Quantity int64     `json:"quantity"`
	Kind     OrderKind `json:"type"`
}

// LevelSnapshot is the externally visible form of one price level.
type LevelSnapshot struct {
	Total  int64           `json:"total"`
	Orders []OrderSnapshot `json:"orders"`
}

// SideSnapshot maps major-unit price (as a decimal string, e.g. "2.5") to
// the level resting there.
type SideSnapshot map[string]LevelSnapshot

// BookSnapshot is the externally visible form of one symbol's book.
type BookSnapshot struct {
	Yes SideSnapshot `json:"yes"`
	No  SideSnapshot `json:"no"`
}
