// Package util mints opaque identifiers and secrets.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	idBytes     = 16
	secretBytes = 32
)

// NewID returns prefix_<32 hex chars>, or the bare hex when prefix is empty.
func NewID(prefix string) string {
	return withPrefix(prefix, randomHex(idBytes))
}

// NewSecret is NewID with twice the entropy, for bearer values such as
// refresh tokens that are only ever stored hashed.
func NewSecret(prefix string) string {
	return withPrefix(prefix, randomHex(secretBytes))
}

func randomHex(n int) string {
	buf := make([]byte, n)
	// crypto/rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func withPrefix(prefix, value string) string {
	if prefix == "" {
		return value
	}
	return prefix + "_" + value
}
