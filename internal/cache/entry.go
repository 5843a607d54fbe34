package cache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Entry is a stored cache record. Value holds the encoded form of the cached
// bytes (after compression/encryption); SizeBytes is the length of that form.
type Entry struct {
	Key            string
	Value          []byte
	WrittenAt      time.Time
	TTL            time.Duration
	ETag           string
	LastModified   string
	SizeBytes      int64
	AccessCount    int64
	LastAccessedAt time.Time
}

// Live reports whether the entry is within its TTL at the given instant.
// A dead entry must never be returned by a get, though it may persist
// physically until lazily removed.
func (e *Entry) Live(now time.Time) bool {
	return now.Sub(e.WrittenAt) <= e.TTL
}

// Touch records a successful read.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	e.LastAccessedAt = now
}

// encodeEntry serializes an entry to its durable wire form.
func encodeEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEntry deserializes a durable record.
func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
