package segment

import (
	"encoding/binary"
)

// A segment data file is a flat sequence of records. Each record starts
// with a big-endian header whose top bit tells the two record kinds apart,
// so the kind is readable from the leading byte:
//
//	key record   uint16  1 | size:15           then the serialized key
//	value run    uint32  0 | c:1 | size:30     then the payload
//
// where c marks a deflate-compressed payload. A key record groups every
// value run after it and before the next key record.
const (
	// BlockThreshold is the encoded size a block may exceed only once
	// before it closes.
	BlockThreshold = 8192

	// BufferFlushThreshold is the buffered output size past which the
	// buffer drains to the data file. Draining happens only on record
	// boundaries.
	BufferFlushThreshold = 1 << 20

	// StagingThreshold is the staged value count past which an unfinished
	// term is force-flushed into a partial value run.
	StagingThreshold = 10000

	// CompressMinValues is the largest staged batch written uncompressed.
	// Runs holding more values than this are deflate-compressed.
	CompressMinValues = 5

	// BloomCapacity and BloomFPRate size each block summary's bloom filter.
	BloomCapacity = 512
	BloomFPRate   = 0.01

	// MaxKeySize is the largest serialized key the 15-bit header length
	// admits.
	MaxKeySize = 1<<15 - 1

	// MaxValueRunSize is the largest run payload the 30-bit header length
	// admits.
	MaxValueRunSize = 1<<30 - 1

	keyHeaderSize   = 2
	valueHeaderSize = 4

	keyFlag        = uint16(1) << 15
	compressedFlag = uint32(1) << 30
)

// putKeyHeader writes the key record header for a key of the given
// serialized size. size must not exceed MaxKeySize.
func putKeyHeader(dst []byte, size int) {
	binary.BigEndian.PutUint16(dst, keyFlag|uint16(size))
}

// putValueHeader writes the value run header for a payload of the given
// size. size must not exceed MaxValueRunSize.
func putValueHeader(dst []byte, compressed bool, size int) {
	h := uint32(size)
	if compressed {
		h |= compressedFlag
	}
	binary.BigEndian.PutUint32(dst, h)
}
