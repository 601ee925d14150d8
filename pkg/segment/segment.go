// Package segment builds the immutable on-disk segments of the tern
// inverted index.
//
// A segment is two artifacts sharing a path root: a data file holding
// block-structured posting records (see format.go for the layout) and an
// offsets artifact holding the persisted block index. The Writer produces
// both in a single forward pass over a sorted posting stream; once
// finalized, neither artifact is ever modified.
package segment

import (
	"errors"
)

const (
	dataSuffix    = ".data"
	offsetsSuffix = ".offsets"
)

var (
	// ErrKeyTooLarge means a serialized key does not fit the key record
	// header's 15-bit length field.
	ErrKeyTooLarge = errors.New("serialized key exceeds maximum key size")

	// ErrValueRunTooLarge means a value run payload does not fit the run
	// header's 30-bit length field.
	ErrValueRunTooLarge = errors.New("value run exceeds maximum run size")

	// ErrWriterFinished is returned when a writer is driven again after its
	// pass completed or was aborted.
	ErrWriterFinished = errors.New("segment writer already finished")
)

// Segment locates one segment on disk. Root is the path prefix both
// artifacts derive from; Offsets is populated by OpenOffsets and stays nil
// for write-only use.
type Segment struct {
	Root    string
	Offsets *OffsetsTable
}

// NewSegment returns a segment rooted at the given path prefix. Nothing is
// opened or created until a Writer runs or OpenOffsets is called.
func NewSegment(root string) *Segment {
	return &Segment{Root: root}
}

// DataPath returns the path of the segment's data file.
func (s *Segment) DataPath() string {
	return s.Root + dataSuffix
}

// OffsetsPath returns the path of the segment's offsets artifact.
func (s *Segment) OffsetsPath() string {
	return s.Root + offsetsSuffix
}

// OpenOffsets loads the persisted offsets artifact into s.Offsets.
func (s *Segment) OpenOffsets() error {
	table, err := LoadOffsets(s.OffsetsPath())
	if err != nil {
		return err
	}
	s.Offsets = table
	return nil
}
