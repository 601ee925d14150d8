package segment

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/flate"

	"github.com/TernDB/tern/pkg/bloom"
	"github.com/TernDB/tern/pkg/codec"
	"github.com/TernDB/tern/pkg/common/log"
	"github.com/TernDB/tern/pkg/postings"
)

// Stats counts what one segment build consumed and produced.
type Stats struct {
	// Postings is the number of postings consumed from the input stream.
	Postings uint64
	// Duplicates is the number of consecutive duplicate values dropped.
	Duplicates uint64
	// Keys is the number of key records written.
	Keys uint64
	// ValueRuns is the number of value runs written.
	ValueRuns uint64
	// Blocks is the number of blocks closed.
	Blocks uint64
	// DataBytes is the number of bytes written to the data file.
	DataBytes uint64
}

// pendingKey is one finished key awaiting its block summary.
type pendingKey struct {
	key        postings.Key
	keyBytes   []byte
	keySize    uint32
	valuesSize uint32
	valueCount uint32
}

// Writer builds one segment in a single forward pass over a sorted posting
// stream.
//
// The pass groups consecutive postings by key, drops values equal to their
// immediate predecessor within a key, and serializes each key's surviving
// values into value runs behind the key's record. Small terms stay
// uncompressed; larger ones share a per-term deflate stream that is flushed
// at forced mid-term runs and finished at the term's end. As records
// accumulate, the writer partitions them into blocks and summarizes each
// closed block into the offsets table, which is persisted as the second
// artifact when the pass ends.
//
// A Writer is single-use and not safe for concurrent use: construct it,
// drive it with one WriteFrom call, and let WriteFrom release everything on
// the way out. On failure both artifacts' temporary files are removed and
// nothing appears at the advertised paths.
type Writer struct {
	seg    *Segment
	opts   WriterOptions
	logger log.Logger

	data    *FileManager
	offsets *OffsetsTable

	// comp deflates each term's compressed runs into chunk. It is reset at
	// every key record so one term's runs never depend on another's.
	comp  *flate.Writer
	chunk bytes.Buffer

	// buffer collects complete records and drains to the data file past
	// BufferFlushThreshold. pos counts all record bytes ever buffered, so
	// it equals the data file position once the buffer drains.
	buffer bytes.Buffer
	pos    uint64

	blockStart uint64
	blockKeys  []pendingKey

	cur            postings.Key
	curKeyBytes    []byte
	haveCur        bool
	lastValue      []byte
	haveLastValue  bool
	staging        []postings.ValueEntry
	termCompressed bool
	termKeySize    uint32
	termValuesSize uint32
	termValueCount uint32

	stats    Stats
	finished bool
}

// NewWriter opens the segment's data file for writing. The returned writer
// must be driven by exactly one WriteFrom call, or released with Abort.
func NewWriter(seg *Segment, opts WriterOptions) (*Writer, error) {
	opts = opts.sanitize()

	data, err := NewFileManager(seg.DataPath(), opts)
	if err != nil {
		return nil, err
	}
	comp, err := flate.NewWriter(nil, flate.BestSpeed)
	if err != nil {
		data.Cleanup()
		return nil, fmt.Errorf("failed to create deflate stream: %w", err)
	}
	return &Writer{
		seg:     seg,
		opts:    opts,
		logger:  opts.Logger.WithField("segment", seg.Root),
		data:    data,
		offsets: NewOffsetsTable(),
		comp:    comp,
	}, nil
}

// WriteFrom consumes itr to exhaustion and finalizes the segment. It can
// run at most once per Writer; later calls return ErrWriterFinished.
//
// On success both artifacts are complete at their advertised paths. On any
// failure the pass's resources are released in order, the temporary files
// are removed, and the first error is returned.
func (w *Writer) WriteFrom(itr postings.Iterator) (err error) {
	if w.finished {
		return ErrWriterFinished
	}
	w.finished = true
	defer func() {
		terr := w.teardown(err == nil)
		if err == nil {
			err = terr
		}
	}()

	for {
		p, ok := itr.Next()
		if !ok {
			break
		}
		if err = w.add(p); err != nil {
			return err
		}
	}
	return w.finish()
}

// Abort releases a writer whose pass never ran, removing its temporary
// file. Aborting a finished writer is a no-op.
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	return w.teardown(false)
}

// Stats returns a snapshot of the build counters. It remains valid after
// the pass ends.
func (w *Writer) Stats() Stats {
	return w.stats
}

// add advances the grouping state machine by one posting.
func (w *Writer) add(p postings.Posting) error {
	w.stats.Postings++
	key := p.Key()

	switch {
	case !w.haveCur:
		// First posting of the pass opens the first term.
		if err := w.startTerm(key); err != nil {
			return err
		}
	case key == w.cur:
		if w.haveLastValue && bytes.Equal(p.Value, w.lastValue) {
			// Consecutive duplicate within the term.
			w.stats.Duplicates++
			return nil
		}
	default:
		// Key changed: close the finished term, then open the next.
		if err := w.finishTerm(); err != nil {
			return err
		}
		if err := w.startTerm(key); err != nil {
			return err
		}
	}

	if err := w.stageValue(p.Entry()); err != nil {
		return err
	}
	w.lastValue = append(w.lastValue[:0], p.Value...)
	w.haveLastValue = true
	return nil
}

// startTerm writes the key record for key and resets the per-term state.
// The deflate stream restarts here, so each term's compressed runs decode
// without replaying earlier terms.
func (w *Writer) startTerm(key postings.Key) error {
	keyBytes, err := codec.MarshalKey(key)
	if err != nil {
		return err
	}
	if len(keyBytes) > MaxKeySize {
		return fmt.Errorf("%w: key %s serializes to %d bytes", ErrKeyTooLarge, key, len(keyBytes))
	}

	var hdr [keyHeaderSize]byte
	putKeyHeader(hdr[:], len(keyBytes))
	if err := w.writeRecord(hdr[:], keyBytes); err != nil {
		return err
	}

	w.chunk.Reset()
	w.comp.Reset(&w.chunk)

	w.cur = key
	w.curKeyBytes = keyBytes
	w.haveCur = true
	w.haveLastValue = false
	w.staging = w.staging[:0]
	w.termCompressed = false
	w.termKeySize = uint32(keyHeaderSize + len(keyBytes))
	w.termValuesSize = 0
	w.termValueCount = 0
	return nil
}

// stageValue adds one value to the current term, force-flushing a partial
// run once staging grows past the threshold.
func (w *Writer) stageValue(v postings.ValueEntry) error {
	// Copy the byte fields: the iterator may reuse its buffers.
	w.staging = append(w.staging, postings.ValueEntry{
		Value:     append([]byte(nil), v.Value...),
		Props:     append([]byte(nil), v.Props...),
		Timestamp: v.Timestamp,
	})
	w.termValueCount++
	if len(w.staging) > StagingThreshold {
		return w.flushStaging(false)
	}
	return nil
}

// finishTerm flushes the term's remaining staged values, queues the key for
// the current block's summary, and closes the block once it has outgrown
// the threshold.
func (w *Writer) finishTerm() error {
	if !w.haveCur {
		return nil
	}
	if err := w.flushStaging(true); err != nil {
		return err
	}

	w.blockKeys = append(w.blockKeys, pendingKey{
		key:        w.cur,
		keyBytes:   w.curKeyBytes,
		keySize:    w.termKeySize,
		valuesSize: w.termValuesSize,
		valueCount: w.termValueCount,
	})
	w.stats.Keys++
	w.haveCur = false

	if w.pos-w.blockStart > BlockThreshold {
		w.closeBlock()
	}
	return nil
}

// flushStaging writes the staged values as one value run.
//
// Mid-term flushes (finish = false) keep the deflate stream open so the
// term's runs concatenate into a single valid stream; the end-of-term flush
// finishes the stream instead. An uncompressed term with nothing staged
// writes no run at all, while a compressed term always ends with the run
// carrying the stream's final bytes.
func (w *Writer) flushStaging(finish bool) error {
	if len(w.staging) == 0 && !(finish && w.termCompressed) {
		return nil
	}
	compress := w.termCompressed || len(w.staging) > CompressMinValues

	var payload []byte
	if len(w.staging) > 0 {
		serialized, err := codec.MarshalValues(w.staging)
		if err != nil {
			return err
		}
		w.staging = w.staging[:0]
		if compress {
			if _, err := w.comp.Write(serialized); err != nil {
				return fmt.Errorf("failed to deflate value run: %w", err)
			}
		} else {
			payload = serialized
		}
	}

	if compress {
		if finish {
			if err := w.comp.Close(); err != nil {
				return fmt.Errorf("failed to finish deflate stream: %w", err)
			}
		} else {
			if err := w.comp.Flush(); err != nil {
				return fmt.Errorf("failed to flush deflate stream: %w", err)
			}
		}
		payload = w.chunk.Bytes()
		w.termCompressed = true
	}

	if len(payload) == 0 {
		return nil
	}
	if len(payload) > MaxValueRunSize {
		return fmt.Errorf("%w: run of %d bytes under key %s", ErrValueRunTooLarge, len(payload), w.cur)
	}

	var hdr [valueHeaderSize]byte
	putValueHeader(hdr[:], compress, len(payload))
	if err := w.writeRecord(hdr[:], payload); err != nil {
		return err
	}
	w.termValuesSize += uint32(valueHeaderSize + len(payload))
	w.stats.ValueRuns++
	if compress {
		w.chunk.Reset()
	}
	return nil
}

// closeBlock summarizes the block's queued keys and registers the summary
// in the offsets table under the block's final key. Closing an empty block
// is a no-op.
func (w *Writer) closeBlock() {
	if len(w.blockKeys) == 0 {
		return
	}
	final := w.blockKeys[len(w.blockKeys)-1]

	filter := bloom.New(BloomCapacity, BloomFPRate)
	prefix := w.blockKeys[0].key.Term
	keys := make([]KeyInfo, 0, len(w.blockKeys))
	for _, pk := range w.blockKeys {
		filter.Add(pk.keyBytes)
		prefix = postings.LongestCommonPrefix(prefix, pk.key.Term)
		keys = append(keys, KeyInfo{
			Signature:  postings.EditSignature(pk.key.Term, final.key.Term),
			Hash:       postings.Hash(pk.key.Term),
			KeySize:    pk.keySize,
			ValuesSize: pk.valuesSize,
			ValueCount: pk.valueCount,
		})
	}
	w.offsets.Insert(final.key, &BlockSummary{
		Start:      w.blockStart,
		Bloom:      filter,
		TermPrefix: prefix,
		Keys:       keys,
	})
	w.stats.Blocks++
	w.logger.Debug("closed block at %d: %d keys, %d bytes",
		w.blockStart, len(w.blockKeys), w.pos-w.blockStart)

	w.blockStart = w.pos
	w.blockKeys = w.blockKeys[:0]
}

// writeRecord appends one complete record to the output buffer and advances
// the position counter, draining the buffer once it grows past the
// threshold. Draining happens only here, so the data file always ends on a
// record boundary.
func (w *Writer) writeRecord(header, payload []byte) error {
	w.buffer.Write(header)
	w.buffer.Write(payload)
	w.pos += uint64(len(header) + len(payload))
	if w.buffer.Len() > BufferFlushThreshold {
		return w.flushBuffer()
	}
	return nil
}

// flushBuffer drains the buffered records to the data file.
func (w *Writer) flushBuffer() error {
	if w.buffer.Len() == 0 {
		return nil
	}
	n, err := w.data.Write(w.buffer.Bytes())
	w.stats.DataBytes += uint64(n)
	if err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	if n != w.buffer.Len() {
		return fmt.Errorf("short write to data file: %d of %d bytes", n, w.buffer.Len())
	}
	w.buffer.Reset()
	return nil
}

// finish closes the trailing term and block, drains the buffer, and
// persists the offsets artifact.
func (w *Writer) finish() error {
	if err := w.finishTerm(); err != nil {
		return err
	}
	w.closeBlock()
	if err := w.flushBuffer(); err != nil {
		return err
	}
	if w.opts.SyncOnFinalize {
		if err := w.data.Sync(); err != nil {
			return fmt.Errorf("failed to sync data file: %w", err)
		}
	}
	if err := w.offsets.Save(w.seg.OffsetsPath(), w.opts); err != nil {
		return err
	}
	w.logger.Info("finalized segment: %d postings in, %d keys across %d blocks, %d bytes",
		w.stats.Postings, w.stats.Keys, w.stats.Blocks, w.stats.DataBytes)
	return nil
}

// teardown releases the pass's resources in order: the deflate stream, the
// data file, then the in-memory offsets table. On success the data file is
// renamed into place; on failure its temporary file is removed.
func (w *Writer) teardown(success bool) error {
	w.comp = nil
	w.chunk.Reset()
	w.buffer.Reset()

	var err error
	if success {
		err = w.data.FinalizeFile()
	} else if cerr := w.data.Cleanup(); cerr != nil {
		err = cerr
	}

	w.offsets = nil
	w.blockKeys = nil
	w.staging = nil
	return err
}
