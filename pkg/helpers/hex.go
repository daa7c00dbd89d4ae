package helpers

import (
	"encoding/hex"
	"strings"
)

// HexToBytes decodes a hex string (with or without 0x prefix), returning nil
// on invalid input.
func HexToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// BytesToHex encodes bytes as a lowercase hex string without prefix.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// IsHex reports whether s is a valid hex string (0x prefix allowed).
func IsHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
