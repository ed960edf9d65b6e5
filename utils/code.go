package utils

import (
	"crypto/rand"
	"fmt"
)

// Game codes are short enough to read out loud, so stick to uppercase
// letters and digits.
const gameCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GameCodeLength is the length of every shareable lobby code.
const GameCodeLength = 6

// GenerateGameCode returns a random 6-character alphanumeric code.
// Uniqueness among live lobbies is enforced by the DB unique index;
// callers retry on collision.
func GenerateGameCode() (string, error) {
	buf := make([]byte, GameCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = gameCodeCharset[int(b)%len(gameCodeCharset)]
	}
	return string(buf), nil
}
