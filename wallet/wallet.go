// Package wallet normalizes and validates Ethereum wallet addresses, the identity key used
// throughout the service. Addresses are stored and compared in lower case; Checksum renders
// the EIP-55 mixed-case form for display.
package wallet

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned for anything that is not 0x followed by 40 hex digits.
var ErrInvalidAddress = errors.New("invalid wallet address")

// Normalize trims and lower-cases an address after validating its shape.
func Normalize(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if !IsAddress(a) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(a), nil
}

// IsAddress reports whether s has the 0x + 40 hex digit shape. Case is not checked.
func IsAddress(s string) bool {
	if len(s) != 42 || (s[:2] != "0x" && s[:2] != "0X") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// Equal compares two addresses case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Checksum returns the EIP-55 encoding of addr.
func Checksum(addr string) (string, error) {
	lower, err := Normalize(addr)
	if err != nil {
		return "", err
	}
	hexPart := lower[2:]
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(hexPart))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(hexPart); i++ {
		c := hexPart[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out), nil
}

// IsTxHash reports whether s looks like a 32-byte transaction hash.
func IsTxHash(s string) bool {
	if len(s) != 66 || s[:2] != "0x" {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
