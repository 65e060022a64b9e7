// Package util provides small helpers shared across SegakAI components.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionTokenBytes is the number of random bytes in a session token. The
// token is hex encoded, so it is twice as long.
const SessionTokenBytes = 32

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns length hex characters drawn from crypto/rand.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, (length+1)/2)
	// crypto/rand.Read does not return errors on supported platforms.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:length]
}

// GenerateSessionToken returns a new opaque session token of 64 hex characters.
func GenerateSessionToken() string {
	return GenerateRandomHex(SessionTokenBytes * 2)
}
