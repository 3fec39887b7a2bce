// utils/address.go
package utils

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress canonicalizes a wallet address for use as a join key.
// Every read and write path that compares wallets must go through this —
// checksummed and lowercase forms of the same address have to collapse to
// one user row and one IP binding.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsHexAddress reports whether s looks like an Ethereum address
// (0x followed by 40 hex chars, any case).
func IsHexAddress(s string) bool {
	return addressPattern.MatchString(strings.TrimSpace(s))
}
