package units

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"0.5", "500000000000000000"},
		{"0.5 ether", "500000000000000000"},
		{"2ETH", "2000000000000000000"},
		{"30 gwei", "30000000000"},
		{"2300wei", "2300"},
		{" 0 ", "0"},
	}
	for _, tc := range cases {
		got, err := ParseValue(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got.Dec() != tc.want {
			t.Fatalf("parse %q: expected %s, got %s", tc.in, tc.want, got.Dec())
		}
	}
}

func TestParseValueRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0.5 wei", "1e-19"} {
		if _, err := ParseValue(in); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("parse %q: expected invalid value, got %v", in, err)
		}
	}

	huge := "115792089237316195423570985008687907853269984665640564039457584007913129639936 wei"
	if _, err := ParseValue(huge); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestFormatEther(t *testing.T) {
	if got := FormatEther(MustParseEther("1.25")); got != "1.25" {
		t.Fatalf("expected 1.25, got %s", got)
	}
	if got := FormatEther(uint256.NewInt(1)); got != "0.000000000000000001" {
		t.Fatalf("unexpected single wei rendering %s", got)
	}
	if got := FormatEther(nil); got != "0" {
		t.Fatalf("expected 0 for nil, got %s", got)
	}
}
