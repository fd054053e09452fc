package promo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiscount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "10%", want: "10"},
		{in: "0%", want: "0"},
		{in: " 12.5 % ", want: "12.5"},
		{in: "100%", want: "100"},
		{in: "150%", want: "150"},
		{in: "10", wantErr: true},
		{in: "%", wantErr: true},
		{in: "", wantErr: true},
		{in: "ten%", wantErr: true},
		{in: "-5%", wantErr: true},
		{in: "+10%", wantErr: true},
		{in: "1e2%", wantErr: true},
		{in: "5E1%", wantErr: true},
		{in: ".5%", wantErr: true},
		{in: "10.%", wantErr: true},
		{in: "1 0%", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDiscount(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedDiscount)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"expected %s, got %s", tt.want, got)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.True(t, Clamp(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, Clamp(decimal.NewFromInt(250)).Equal(decimal.NewFromInt(100)))
	assert.True(t, Clamp(decimal.NewFromInt(42)).Equal(decimal.NewFromInt(42)))
}
