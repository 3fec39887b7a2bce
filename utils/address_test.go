package utils_test

import (
	"testing"

	"web3-rewards-backend/utils"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0xCf2126b7e17b53D600323a7E37Be49AD15BcaF94", "0xcf2126b7e17b53d600323a7e37be49ad15bcaf94"},
		{"  0xABCDEF0123456789abcdef0123456789ABCDEF01  ", "0xabcdef0123456789abcdef0123456789abcdef01"},
		{"0xabc", "0xabc"},
	}
	for _, tt := range tests {
		if got := utils.NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAddressIdempotent(t *testing.T) {
	// Checksummed and lowercase forms must collapse to the same key.
	a := utils.NormalizeAddress("0xCf2126b7e17b53D600323a7E37Be49AD15BcaF94")
	b := utils.NormalizeAddress("0xcf2126b7e17b53d600323a7e37be49ad15bcaf94")
	if a != b {
		t.Errorf("case variants normalized differently: %q vs %q", a, b)
	}
	if utils.NormalizeAddress(a) != a {
		t.Error("normalization is not idempotent")
	}
}

func TestIsHexAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0xCf2126b7e17b53D600323a7E37Be49AD15BcaF94", true},
		{"0xcf2126b7e17b53d600323a7e37be49ad15bcaf94", true},
		{" 0xcf2126b7e17b53d600323a7e37be49ad15bcaf94 ", true},
		{"cf2126b7e17b53d600323a7e37be49ad15bcaf94", false},
		{"0xcf2126b7e17b53d600323a7e37be49ad15bcaf9", false},  // 39 chars
		{"0xcf2126b7e17b53d600323a7e37be49ad15bcaf944", false}, // 41 chars
		{"0xzz2126b7e17b53d600323a7e37be49ad15bcaf94", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := utils.IsHexAddress(tt.in); got != tt.want {
			t.Errorf("IsHexAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
