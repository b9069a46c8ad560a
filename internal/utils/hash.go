package utils

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// UtteranceKey hashes an utterance so that repeats differing only in case,
// spacing or trailing punctuation collide.
func UtteranceKey(s string) uint64 {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	norm = strings.TrimRightFunc(norm, unicode.IsPunct)
	h := fnv.New64a()
	_, _ = h.Write([]byte(norm))
	return h.Sum64()
}
