// Package validation provides input validation for holdergate.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

// User ids are opaque snowflake-style identifiers: digits only, 1-32 chars.
var userIDRegex = regexp.MustCompile(`^[0-9]{1,32}$`)

// ValidateUserID validates an opaque user identifier.
func ValidateUserID(id string) error {
	if id == "" {
		return errors.New("user id cannot be empty")
	}
	if !userIDRegex.MatchString(id) {
		return errors.New("invalid user id: must be 1-32 digits")
	}
	return nil
}

// ValidateAddress validates an EVM wallet address (0x + 40 hex chars).
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// SameAddress compares two EVM addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ValidateBaseUnits validates an integer string in the chain's smallest unit.
// Transfer amounts are matched by string equality during scanning, so the
// form must be canonical: digits only, no sign, no leading zeros.
func ValidateBaseUnits(v string) error {
	if v == "" {
		return errors.New("base unit amount cannot be empty")
	}
	if len(v) > 1 && v[0] == '0' {
		return errors.New("base unit amount has leading zeros")
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return errors.New("base unit amount must contain digits only")
		}
	}
	return nil
}

// ValidateNetworkName validates a configured network identifier: lowercase
// alphanumeric with hyphens, 2-32 chars.
var networkNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,30}[a-z0-9]$`)

// ValidateNetworkName validates a network identifier.
func ValidateNetworkName(name string) error {
	if !networkNameRegex.MatchString(name) {
		return errors.New("invalid network name: must be lowercase alphanumeric with hyphens")
	}
	return nil
}
