package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey reports a position key that cannot be parsed into an
// instrument. Callers must treat it as caller input error, never retry.
var ErrInvalidKey = errors.New("invalid position key")

// ParseKey parses a position-key string into an instrument.
//
// A key without an option tail is a stock symbol ("AMZN"). An option key
// follows the OCC-style local symbol layout used by the broker:
//
//	"<UNDERLYING> <YYMMDD><RIGHT><STRIKE*1000, zero-padded to 8 digits>"
//
// e.g. "QQQ 241101P00498000" = QQQ put, expiry 2024-11-01, strike 498.
// Internal whitespace between underlying and the contract tail may vary.
func ParseKey(key string) (Instrument, error) {
	fields := strings.Fields(key)
	switch len(fields) {
	case 0:
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	case 1:
		sym := fields[0]
		if !validSymbol(sym) {
			return nil, fmt.Errorf("%w: bad symbol %q", ErrInvalidKey, key)
		}
		return Stock{Symbol: sym}, nil
	case 2:
		return parseOptionTail(fields[0], fields[1])
	default:
		return nil, fmt.Errorf("%w: %q has %d fields, want 1 or 2", ErrInvalidKey, key, len(fields))
	}
}

func parseOptionTail(underlying, tail string) (Instrument, error) {
	if !validSymbol(underlying) {
		return nil, fmt.Errorf("%w: bad underlying %q", ErrInvalidKey, underlying)
	}
	// YYMMDD (6) + right (1) + strike (8)
	if len(tail) != 15 {
		return nil, fmt.Errorf("%w: contract tail %q has length %d, want 15", ErrInvalidKey, tail, len(tail))
	}
	expiry, err := time.Parse("060102", tail[:6])
	if err != nil {
		return nil, fmt.Errorf("%w: bad expiry %q: %v", ErrInvalidKey, tail[:6], err)
	}
	right := Right(tail[6:7])
	if !right.Valid() {
		return nil, fmt.Errorf("%w: bad right %q, want C or P", ErrInvalidKey, tail[6:7])
	}
	milli, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad strike %q: %v", ErrInvalidKey, tail[7:], err)
	}
	if milli <= 0 {
		return nil, fmt.Errorf("%w: non-positive strike in %q", ErrInvalidKey, tail)
	}
	return Option{
		Underlying: underlying,
		Expiry:     expiry,
		Strike:     float64(milli) / 1000,
		Right:      right,
		Multiplier: DefaultMultiplier,
	}, nil
}

func validSymbol(sym string) bool {
	if sym == "" || len(sym) > 21 {
		return false
	}
	for _, r := range sym {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '/':
		default:
			return false
		}
	}
	return true
}
