// Package postings defines the posting model of the tern inverted index and
// the iterator contract segment builds consume postings through.
//
// A posting records that a value (typically a document reference) occurred
// under a term of a field of an index. Postings destined for one segment
// arrive as a single sorted stream; the types here carry them, compare them,
// and merge several sorted streams into one.
package postings

import (
	"bytes"
	"strings"
)

// Posting is one occurrence of a value under an (index, field, term) key,
// together with opaque properties and a timestamp. Props and Timestamp ride
// along untouched; only Index, Field, Term and Value participate in ordering
// and duplicate elimination.
type Posting struct {
	Index     string
	Field     string
	Term      string
	Value     []byte
	Props     []byte
	Timestamp int64
}

// Key returns the (index, field, term) tuple the posting is grouped under.
func (p Posting) Key() Key {
	return Key{Index: p.Index, Field: p.Field, Term: p.Term}
}

// Entry returns the posting's value entry, the part stored under its key.
func (p Posting) Entry() ValueEntry {
	return ValueEntry{Value: p.Value, Props: p.Props, Timestamp: p.Timestamp}
}

// Compare orders postings by (index, field, term, value). Props and
// Timestamp do not participate in the order.
func Compare(a, b Posting) int {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	return bytes.Compare(a.Value, b.Value)
}

// Key is the (index, field, term) tuple all postings of one term share.
// Keys are comparable with == and ordered lexicographically component by
// component.
type Key struct {
	Index string
	Field string
	Term  string
}

// Compare orders keys by index, then field, then term.
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.Index, other.Index); c != 0 {
		return c
	}
	if c := strings.Compare(k.Field, other.Field); c != 0 {
		return c
	}
	return strings.Compare(k.Term, other.Term)
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return k.Index + "/" + k.Field + "/" + k.Term
}

// ValueEntry is one deduplicated value stored under a key.
type ValueEntry struct {
	Value     []byte
	Props     []byte
	Timestamp int64
}
