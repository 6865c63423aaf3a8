package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidFactor is returned when a scale factor is zero or negative.
var ErrInvalidFactor = errors.New("currency scale factor must be positive")

var half = decimal.New(5, -1)

// Scaler converts between integer-scaled prices (as stored by the ledger and
// sent on the wire) and human-readable decimals (as typed and displayed).
// The factor is fixed at construction; a Scaler is safe to share.
type Scaler struct {
	factor int64
	dec    decimal.Decimal
}

// NewScaler creates a Scaler for factor F. F must be positive.
func NewScaler(factor int64) (Scaler, error) {
	if factor <= 0 {
		return Scaler{}, fmt.Errorf("%w: got %d", ErrInvalidFactor, factor)
	}
	return Scaler{factor: factor, dec: decimal.NewFromInt(factor)}, nil
}

// Factor returns F.
func (s Scaler) Factor() int64 {
	return s.factor
}

// ToHumanReadable returns x / F.
func (s Scaler) ToHumanReadable(x int64) decimal.Decimal {
	return decimal.NewFromInt(x).Div(s.dec)
}

// FromHumanReadable returns round(d * F), rounding halves up like the
// browser client always has (2.5 -> 3, -2.5 -> -2).
func (s Scaler) FromHumanReadable(d decimal.Decimal) int64 {
	return d.Mul(s.dec).Add(half).Floor().IntPart()
}

// ParseHumanReadable parses a decimal string entered by a user and scales it.
func (s Scaler) ParseHumanReadable(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return s.FromHumanReadable(d), nil
}

// Format renders a scaled amount as a human-readable string, e.g. 2500 -> "2.5".
func (s Scaler) Format(x int64) string {
	return s.ToHumanReadable(x).String()
}
