package instrument

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey_Option(t *testing.T) {
	inst, err := ParseKey("QQQ 241101P00498000")
	require.NoError(t, err)

	opt, ok := inst.(Option)
	require.True(t, ok)
	assert.Equal(t, "QQQ", opt.Underlying)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), opt.Expiry)
	assert.Equal(t, Put, opt.Right)
	assert.InDelta(t, 498.0, opt.Strike, 1e-9)
	assert.Equal(t, 100, opt.EffectiveMultiplier())
}

func TestParseKey_OptionRoundTrip(t *testing.T) {
	cases := []string{
		"QQQ 241101P00498000",
		"SPY 250620C00550500",
		"BRK.B 261218C01234000",
	}
	for _, key := range cases {
		t.Run(key, func(t *testing.T) {
			inst, err := ParseKey(key)
			require.NoError(t, err)
			assert.Equal(t, key, inst.Key())
		})
	}
}

func TestParseKey_WhitespaceTolerance(t *testing.T) {
	inst, err := ParseKey("  QQQ    241101P00498000 ")
	require.NoError(t, err)
	assert.Equal(t, "QQQ 241101P00498000", inst.Key())
}

func TestParseKey_Stock(t *testing.T) {
	inst, err := ParseKey("AMZN")
	require.NoError(t, err)
	stk, ok := inst.(Stock)
	require.True(t, ok)
	assert.Equal(t, "AMZN", stk.Symbol)
	assert.Equal(t, "AMZN", stk.Key())
	assert.Equal(t, "AMZN", stk.UnderlyingSymbol())
}

func TestParseKey_Malformed(t *testing.T) {
	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"lowercase symbol", "amzn"},
		{"tail too short", "QQQ 241101P0049800"},
		{"tail too long", "QQQ 241101P004980000"},
		{"bad right", "QQQ 241101X00498000"},
		{"bad expiry", "QQQ 249901P00498000"},
		{"bad strike digits", "QQQ 241101P0049800A"},
		{"zero strike", "QQQ 241101P00000000"},
		{"too many fields", "QQQ 241101P00498000 extra"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseKey(tc.key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestOptionKeySerialization(t *testing.T) {
	opt := Option{
		Underlying: "QQQ",
		Expiry:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		Strike:     498.0,
		Right:      Put,
	}
	assert.Equal(t, "QQQ 241101P00498000", opt.Key())
}

func TestRightSign(t *testing.T) {
	assert.Equal(t, 1.0, Call.Sign())
	assert.Equal(t, -1.0, Put.Sign())
}
