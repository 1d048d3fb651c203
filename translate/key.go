package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey derives the cache key for a translation request. The key is a pure
// function of the case/whitespace-normalized source text and the language
// pair, so semantically identical requests from different passes (or after a
// restart) collide on the same entry.
func CacheKey(text, source, target string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:]) + ":" + source + ":" + target
}
