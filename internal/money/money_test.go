package money

import (
	"errors"
	"testing"

	"github.com/safar/go-storefront/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "whole", input: "10", want: "10"},
		{name: "one decimal", input: "9.5", want: "9.5"},
		{name: "two decimals", input: "19.99", want: "19.99"},
		{name: "trailing zeros", input: "20.00", want: "20"},
		{name: "zero", input: "0", want: "0"},
		{name: "three decimals", input: "10.001", wantErr: true},
		{name: "negative", input: "-1.00", wantErr: true},
		{name: "garbage", input: "ten dollars", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestCents(t *testing.T) {
	cents, err := Cents(decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cents)

	cents, err = Cents(decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cents)

	cents, err = Cents(decimal.RequireFromString("19.99"))
	require.NoError(t, err)
	assert.Equal(t, int64(1999), cents)
}

func TestCentsFractional(t *testing.T) {
	_, err := Cents(decimal.RequireFromString("10.005"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrFractionalCents))
}

func TestSubtotal(t *testing.T) {
	got := Subtotal(decimal.RequireFromString("10.00"), 2)
	assert.True(t, got.Equal(decimal.RequireFromString("20.00")), "got %s", got)

	got = Subtotal(decimal.RequireFromString("0.10"), 3)
	assert.True(t, got.Equal(decimal.RequireFromString("0.30")), "got %s", got)
}

func TestSum(t *testing.T) {
	got := Sum(
		decimal.RequireFromString("20.00"),
		decimal.RequireFromString("19.99"),
		decimal.RequireFromString("0.01"),
	)
	assert.True(t, got.Equal(decimal.RequireFromString("40.00")), "got %s", got)

	assert.True(t, Sum().IsZero())
}
