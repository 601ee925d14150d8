// Package codec serializes posting keys and value lists into the opaque
// byte payloads the segment data format embeds.
//
// Every Marshal call produces a self-contained message: payloads written by
// independent calls decode independently and in order, which is what lets a
// term's value runs be decoded one staged batch at a time.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/TernDB/tern/pkg/postings"
)

// MarshalKey encodes a key into its canonical byte form. The same bytes are
// embedded in key records and inserted into block bloom filters, so readers
// can probe a filter from nothing but the key.
func MarshalKey(k postings.Key) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(k); err != nil {
		return nil, fmt.Errorf("failed to encode key %s: %w", k, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalKey decodes a key encoded by MarshalKey.
func UnmarshalKey(data []byte) (postings.Key, error) {
	var k postings.Key
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&k); err != nil {
		return postings.Key{}, fmt.Errorf("failed to decode key: %w", err)
	}
	return k, nil
}

// MarshalValues encodes one batch of value entries.
func MarshalValues(values []postings.ValueEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return nil, fmt.Errorf("failed to encode %d values: %w", len(values), err)
	}
	return buf.Bytes(), nil
}

// UnmarshalValues decodes a single batch encoded by MarshalValues.
func UnmarshalValues(data []byte) ([]postings.ValueEntry, error) {
	return ReadValues(bytes.NewReader(data))
}

// ReadValues decodes the next batch of value entries from r, returning
// io.EOF once the stream is exhausted. r should implement io.ByteReader
// (bytes.Reader, bufio.Reader) so no bytes past the batch are consumed and
// the following batch can be read from the same reader.
func ReadValues(r io.Reader) ([]postings.ValueEntry, error) {
	var values []postings.ValueEntry
	if err := gob.NewDecoder(r).Decode(&values); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode values: %w", err)
	}
	return values, nil
}
