package faceauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// recordVersion is written into every enrollment document.
const recordVersion = "1.0"

// StoredDescriptor is an enrollment read back from persistence.
// A nil *StoredDescriptor means the identity has not enrolled.
type StoredDescriptor struct {
	Values     Descriptor
	Malformed  bool // the record exists but could not be decoded as a numeric array
	EnrolledAt time.Time
}

// usable reports whether the record can take part in a comparison.
func (s *StoredDescriptor) usable() bool {
	return s != nil && !s.Malformed && s.Values.Valid()
}

type enrollmentRecord struct {
	Descriptor json.RawMessage `json:"descriptor"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	Version    string          `json:"version,omitempty"`
}

// ParseStoredRecord decodes the facial_data column. It accepts the enrollment document
// ({"descriptor": [...], "timestamp": ..., "version": "1.0"}) and a bare array.
// Empty input or JSON null yields nil. Anything else that fails to decode is returned
// with Malformed set so callers can tell corrupt data from a missing enrollment.
func ParseStoredRecord(raw []byte) *StoredDescriptor {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '[' {
		d, err := ParseDescriptor(trimmed)
		if err != nil {
			return &StoredDescriptor{Malformed: true}
		}
		return &StoredDescriptor{Values: d}
	}

	var rec enrollmentRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil || len(rec.Descriptor) == 0 {
		return &StoredDescriptor{Malformed: true}
	}
	d, err := ParseDescriptor(rec.Descriptor)
	if err != nil {
		return &StoredDescriptor{Malformed: true}
	}
	return &StoredDescriptor{Values: d, EnrolledAt: parseTimestamp(rec.Timestamp)}
}

// parseTimestamp understands both shapes written over time: epoch milliseconds and RFC 3339.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// EncodeStoredRecord builds the enrollment document for d.
func EncodeStoredRecord(d Descriptor, at time.Time) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: expected %d finite values, got %d", ErrMalformedDescriptor, DescriptorSize, len(d))
	}
	data, err := json.Marshal(struct {
		Descriptor Descriptor `json:"descriptor"`
		Timestamp  int64      `json:"timestamp"`
		Version    string     `json:"version"`
	}{
		Descriptor: d,
		Timestamp:  at.UnixMilli(),
		Version:    recordVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("encode enrollment record: %w", err)
	}
	return data, nil
}
