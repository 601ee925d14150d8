package postings

import (
	"github.com/cespare/xxhash/v2"
)

// signatureWindow is the number of leading byte positions EditSignature
// covers.
const signatureWindow = 64

// LongestCommonPrefix returns the longest prefix shared by a and b.
func LongestCommonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// EditSignature condenses the positional difference between term a and a
// reference term b into a bitmask: bit i is set when byte i differs, with a
// position present in only one of the two terms counting as a difference.
// Only the first 64 byte positions are represented; Hash covers the rest of
// the term. Equal terms always produce signature 0.
func EditSignature(a, b string) uint64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n > signatureWindow {
		n = signatureWindow
	}
	var sig uint64
	for i := 0; i < n; i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// Hash folds the 64-bit xxhash of a term into 32 bits. Block summaries store
// it beside the edit signature so terms whose signatures happen to collide
// are still told apart without the full term bytes.
func Hash(term string) uint32 {
	h := xxhash.Sum64String(term)
	return uint32(h>>32) ^ uint32(h)
}
