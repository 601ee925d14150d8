package segment

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/TernDB/tern/pkg/bloom"
	"github.com/TernDB/tern/pkg/postings"
)

// KeyInfo is what a block summary keeps per key instead of the key itself:
// how the key's term relates to the block's final term, and the extent of
// the key's records in the data file.
type KeyInfo struct {
	// Signature is the positional difference between this key's term and
	// the block's final term (postings.EditSignature). The final key's own
	// signature is always zero.
	Signature uint64

	// Hash is the folded term hash (postings.Hash).
	Hash uint32

	// KeySize is the size of the key record in bytes, header included.
	KeySize uint32

	// ValuesSize is the combined size of the key's value runs in bytes,
	// headers included.
	ValuesSize uint32

	// ValueCount is the number of deduplicated values stored under the key.
	ValueCount uint32
}

// BlockSummary describes one closed block: where it starts in the data
// file, a membership filter over its serialized keys, the common prefix of
// its terms, and per-key record extents in key order.
type BlockSummary struct {
	Start      uint64
	Bloom      *bloom.Filter
	TermPrefix string
	Keys       []KeyInfo
}

// OffsetsTable is the in-memory block index of a segment: one summary per
// closed block, keyed by the block's final (greatest) key. It is built by
// the writer, persisted wholesale as the offsets artifact, and loaded back
// by readers.
type OffsetsTable struct {
	summaries map[postings.Key]*BlockSummary
}

// NewOffsetsTable returns an empty table.
func NewOffsetsTable() *OffsetsTable {
	return &OffsetsTable{summaries: make(map[postings.Key]*BlockSummary)}
}

// Insert records the summary of the block ending at finalKey.
func (t *OffsetsTable) Insert(finalKey postings.Key, summary *BlockSummary) {
	t.summaries[finalKey] = summary
}

// Lookup returns the summary of the block whose final key is key.
func (t *OffsetsTable) Lookup(key postings.Key) (*BlockSummary, bool) {
	summary, ok := t.summaries[key]
	return summary, ok
}

// Len returns the number of summarized blocks.
func (t *OffsetsTable) Len() int {
	return len(t.summaries)
}

// Range calls fn for each (finalKey, summary) pair until fn returns false.
// Iteration order is unspecified.
func (t *OffsetsTable) Range(fn func(postings.Key, *BlockSummary) bool) {
	for k, s := range t.summaries {
		if !fn(k, s) {
			return
		}
	}
}

// Save persists the table to path through a temporary file and rename, so
// a crashed save never leaves a truncated artifact at the advertised path.
func (t *OffsetsTable) Save(path string, opts WriterOptions) error {
	fm, err := NewFileManager(path, opts)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(fm).Encode(t.summaries); err != nil {
		fm.Cleanup()
		return fmt.Errorf("failed to encode offsets table: %w", err)
	}
	if opts.SyncOnFinalize {
		if err := fm.Sync(); err != nil {
			fm.Cleanup()
			return fmt.Errorf("failed to sync offsets table: %w", err)
		}
	}
	return fm.FinalizeFile()
}

// LoadOffsets reads a table persisted by Save.
func LoadOffsets(path string) (*OffsetsTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open offsets table: %w", err)
	}
	defer file.Close()

	summaries := make(map[postings.Key]*BlockSummary)
	if err := gob.NewDecoder(file).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("failed to decode offsets table: %w", err)
	}
	return &OffsetsTable{summaries: summaries}, nil
}
