package segment

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/flate"

	"github.com/TernDB/tern/pkg/codec"
	"github.com/TernDB/tern/pkg/common/log"
	"github.com/TernDB/tern/pkg/postings"
)

// decodedRun is one value run as laid out in the data file.
type decodedRun struct {
	compressed bool
	payload    []byte
}

// decodedTerm is one key record plus the value runs grouped under it.
type decodedTerm struct {
	key        postings.Key
	keyBytes   []byte
	start      int
	end        int
	keySize    int
	valuesSize int
	runs       []decodedRun
	values     []postings.ValueEntry
}

// parseDataFile splits a data file into terms, failing the test on any
// structural violation: a truncated header, a run before the first key, a
// zero-length run, or an uncompressed run following a compressed one.
func parseDataFile(t *testing.T, data []byte) []decodedTerm {
	t.Helper()
	var terms []decodedTerm
	off := 0
	for off < len(data) {
		if data[off]&0x80 == 0 {
			t.Fatalf("offset %d: expected a key record", off)
		}
		if off+keyHeaderSize > len(data) {
			t.Fatalf("offset %d: truncated key header", off)
		}
		size := int(binary.BigEndian.Uint16(data[off:off+keyHeaderSize]) &^ keyFlag)
		start := off
		off += keyHeaderSize
		if off+size > len(data) {
			t.Fatalf("offset %d: truncated key of %d bytes", off, size)
		}
		keyBytes := data[off : off+size]
		key, err := codec.UnmarshalKey(keyBytes)
		if err != nil {
			t.Fatalf("offset %d: bad key record: %v", off, err)
		}
		off += size

		term := decodedTerm{
			key:      key,
			keyBytes: keyBytes,
			start:    start,
			keySize:  keyHeaderSize + size,
		}
		for off < len(data) && data[off]&0x80 == 0 {
			if off+valueHeaderSize > len(data) {
				t.Fatalf("offset %d: truncated run header", off)
			}
			hdr := binary.BigEndian.Uint32(data[off : off+valueHeaderSize])
			runSize := int(hdr &^ compressedFlag)
			off += valueHeaderSize
			if runSize == 0 {
				t.Fatalf("offset %d: zero-length run", off)
			}
			if off+runSize > len(data) {
				t.Fatalf("offset %d: truncated run of %d bytes", off, runSize)
			}
			term.runs = append(term.runs, decodedRun{
				compressed: hdr&compressedFlag != 0,
				payload:    data[off : off+runSize],
			})
			term.valuesSize += valueHeaderSize + runSize
			off += runSize
		}
		term.end = off
		term.values = decodeTermValues(t, term.key, term.runs)
		terms = append(terms, term)
	}
	return terms
}

// decodeTermValues reassembles a term's value list from its runs. A term is
// either one uncompressed run or a sequence of compressed runs forming a
// single deflate stream.
func decodeTermValues(t *testing.T, key postings.Key, runs []decodedRun) []postings.ValueEntry {
	t.Helper()
	if len(runs) == 0 {
		return nil
	}
	if !runs[0].compressed {
		if len(runs) != 1 {
			t.Fatalf("key %s: uncompressed term has %d runs", key, len(runs))
		}
		values, err := codec.UnmarshalValues(runs[0].payload)
		if err != nil {
			t.Fatalf("key %s: bad uncompressed run: %v", key, err)
		}
		return values
	}

	var stream bytes.Buffer
	for i, r := range runs {
		if !r.compressed {
			t.Fatalf("key %s: run %d is uncompressed after a compressed run", key, i)
		}
		stream.Write(r.payload)
	}
	fr := flate.NewReader(&stream)
	inflated, err := io.ReadAll(fr)
	if err != nil {
		t.Fatalf("key %s: failed to inflate runs: %v", key, err)
	}
	if err := fr.Close(); err != nil {
		t.Fatalf("key %s: close inflater: %v", key, err)
	}

	var values []postings.ValueEntry
	br := bytes.NewReader(inflated)
	for {
		batch, err := codec.ReadValues(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("key %s: bad value batch: %v", key, err)
		}
		values = append(values, batch...)
	}
	return values
}

// expectedBlocks reproduces the block partition from decoded term extents:
// a block closes once the terms since its start exceed BlockThreshold
// bytes, and a trailing partial block keeps its keys.
func expectedBlocks(terms []decodedTerm) [][]decodedTerm {
	var blocks [][]decodedTerm
	var current []decodedTerm
	blockStart := 0
	for _, term := range terms {
		current = append(current, term)
		if term.end-blockStart > BlockThreshold {
			blocks = append(blocks, current)
			current = nil
			blockStart = term.end
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func readDataFile(t *testing.T, seg *Segment) []byte {
	t.Helper()
	data, err := os.ReadFile(seg.DataPath())
	if err != nil {
		t.Fatalf("failed to read data file: %v", err)
	}
	return data
}

func testWriterOptions() WriterOptions {
	opts := DefaultWriterOptions()
	opts.SyncOnFinalize = false
	opts.Logger = log.NewStandardLogger(log.WithLevel(log.LevelError))
	return opts
}

// buildSegment runs a full pass over items and returns the finalized
// segment and its build stats.
func buildSegment(t *testing.T, root string, items []postings.Posting) (*Segment, Stats) {
	t.Helper()
	seg := NewSegment(root)
	w, err := NewWriter(seg, testWriterOptions())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteFrom(postings.NewSliceIterator(items)); err != nil {
		t.Fatalf("WriteFrom: %v", err)
	}
	return seg, w.Stats()
}
