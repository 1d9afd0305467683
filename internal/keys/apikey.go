package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix identifies ActionChat API keys; it is part of the random prefix
// shown back to users, so keys are recognizable in config files and logs.
const Prefix = "ac_"

const displayPrefixLen = 10

// NewAPIKey returns a raw API key of the form "ac_" + 64 hex chars. The raw
// value is shown exactly once, at creation time; only the hash is stored.
func NewAPIKey() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return Prefix + hex.EncodeToString(b[:]), nil
}

// HashAPIKey is the stored form of a key: unsalted SHA-256 hex. Keys carry
// 256 bits of entropy, so brute-forcing the hash is not a concern.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DisplayPrefix returns the short fragment of a raw key safe to store and
// render in key listings.
func DisplayPrefix(raw string) string {
	if len(raw) <= displayPrefixLen {
		return raw
	}
	return raw[:displayPrefixLen]
}

// MaskSecret renders a stored secret for read-only display. Long secrets keep
// enough of both ends to be recognizable; short ones are fully hidden.
func MaskSecret(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) < 16 {
		return "***"
	}
	return v[:8] + "..." + v[len(v)-4:]
}
