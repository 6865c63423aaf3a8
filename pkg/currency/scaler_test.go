package currency_test

import (
	"errors"
	"math/rand"
	"testing"

	"etf_cda/pkg/currency"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScaler_RejectsNonPositive(t *testing.T) {
	for _, f := range []int64{0, -1, -1000} {
		_, err := currency.NewScaler(f)
		require.Error(t, err)
		assert.True(t, errors.Is(err, currency.ErrInvalidFactor))
	}
}

func TestScaler_Scenario(t *testing.T) {
	s, err := currency.NewScaler(1000)
	require.NoError(t, err)

	assert.Equal(t, int64(2500), s.FromHumanReadable(decimal.RequireFromString("2.5")))
	assert.True(t, s.ToHumanReadable(2500).Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "2.5", s.Format(2500))
}

func TestScaler_Rounding(t *testing.T) {
	s, err := currency.NewScaler(10)
	require.NoError(t, err)

	assert.Equal(t, int64(3), s.FromHumanReadable(decimal.RequireFromString("0.25")))
	assert.Equal(t, int64(2), s.FromHumanReadable(decimal.RequireFromString("0.24")))
	assert.Equal(t, int64(-2), s.FromHumanReadable(decimal.RequireFromString("-0.25")))
}

func TestScaler_ParseHumanReadable(t *testing.T) {
	s, err := currency.NewScaler(1000)
	require.NoError(t, err)

	v, err := s.ParseHumanReadable(" 12.345 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v)

	_, err = s.ParseHumanReadable("abc")
	assert.Error(t, err)
}

func TestScaler_RoundTrip(t *testing.T) {
	s, err := currency.NewScaler(1000)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		multiple := rng.Int63n(1_000_000) * s.Factor()
		assert.Equal(t, multiple, s.FromHumanReadable(s.ToHumanReadable(multiple)))

		x := rng.Int63n(1_000_000_000) - 500_000_000
		got := s.FromHumanReadable(s.ToHumanReadable(x))
		diff := got - x
		if diff < 0 {
			diff = -diff
		}
		assert.Less(t, diff, int64(1), "x=%d got=%d", x, got)
	}
}
