// Package units converts human readable native value amounts to and from wei.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	gweiDecimals  = 9
	etherDecimals = 18
)

// Denominations in wei.
const (
	Wei   uint64 = 1
	Gwei  uint64 = 1e9
	Ether uint64 = 1e18
)

var (
	// ErrInvalidValue is returned for malformed, negative or sub-wei amounts.
	ErrInvalidValue = errors.New("invalid value")
	// ErrOverflow is returned when an amount does not fit in 256 bits.
	ErrOverflow = errors.New("value overflows 256 bits")
)

// suffix order matters: "gwei" ends with "wei" and "ether" starts with "eth".
var suffixes = []struct {
	name     string
	decimals int32
}{
	{"gwei", gweiDecimals},
	{"wei", 0},
	{"ether", etherDecimals},
	{"eth", etherDecimals},
}

// ParseValue parses an amount such as "1", "0.5 ether", "30 gwei" or "2300wei".
// A bare number is read as ether.
func ParseValue(s string) (*uint256.Int, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	decimals := int32(etherDecimals)
	for _, sfx := range suffixes {
		if strings.HasSuffix(raw, sfx.name) {
			raw = strings.TrimSpace(strings.TrimSuffix(raw, sfx.name))
			decimals = sfx.decimals
			break
		}
	}
	return parse(raw, decimals)
}

// ParseEther parses a decimal ether amount into wei.
func ParseEther(s string) (*uint256.Int, error) {
	return parse(strings.TrimSpace(s), etherDecimals)
}

// MustParseEther is ParseEther for constants and tests; it panics on bad input.
func MustParseEther(s string) *uint256.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -etherDecimals).String()
}

func parse(raw string, decimals int32) (*uint256.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidValue)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidValue, raw)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q is not a whole number of wei", ErrInvalidValue, raw)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}
