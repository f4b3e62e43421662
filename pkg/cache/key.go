package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the exact-match cache key for a prompt and model.
//
// The prompt is normalized first (trimmed, lowercased, internal whitespace
// collapsed) so that trivially reformatted requests share a key, then
// hashed together with the model identifier. The key is deterministic:
// identical logical requests always map to the same entry.
func Fingerprint(text, model string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// Normalize canonicalizes prompt text for key derivation: leading and
// trailing space removed, letters lowercased, runs of whitespace collapsed
// to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
