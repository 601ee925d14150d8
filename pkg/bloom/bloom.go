// Package bloom provides the probabilistic membership filters block
// summaries use to rule out keys without touching the data file.
package bloom

import (
	"bytes"
	"fmt"

	bbloom "github.com/bits-and-blooms/bloom/v3"
)

// Filter is a fixed-size bloom filter. A Filter never reports a false
// negative: a key that was added always tests positive. Construct with New;
// the zero value is only valid as a GobDecode target.
type Filter struct {
	set *bbloom.BloomFilter
}

// New returns a filter sized for capacity elements at the given
// false-positive rate.
func New(capacity uint, fpRate float64) *Filter {
	return &Filter{set: bbloom.NewWithEstimates(capacity, fpRate)}
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	f.set.Add(key)
}

// Test reports whether key may have been added. False positives occur at
// roughly the configured rate; false negatives never.
func (f *Filter) Test(key []byte) bool {
	return f.set.Test(key)
}

// GobEncode implements gob.GobEncoder so filters persist inside the offsets
// artifact.
func (f *Filter) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.set.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode bloom filter: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (f *Filter) GobDecode(data []byte) error {
	set := &bbloom.BloomFilter{}
	if _, err := set.ReadFrom(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to decode bloom filter: %w", err)
	}
	f.set = set
	return nil
}
