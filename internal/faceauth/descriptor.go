// Package faceauth implements the facial-descriptor second factor: decoding descriptors,
// scoring two of them and turning the score into an accept/reject verdict.
//
// Descriptors come from an external face-feature extractor. The package never looks at
// images and keeps no state between calls, so every function is safe for concurrent use.
package faceauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// DescriptorSize is the number of components in a face descriptor.
const DescriptorSize = 128

// ErrMalformedDescriptor is returned when raw input cannot be decoded as a numeric array.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// Descriptor is a point in the 128-dimensional face feature space.
// A nil Descriptor means "absent".
type Descriptor []float64

// Valid reports whether d has exactly DescriptorSize finite components.
func (d Descriptor) Valid() bool {
	if len(d) != DescriptorSize {
		return false
	}
	for _, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Float32 converts the descriptor for vector storage and ANN indexes.
func (d Descriptor) Float32() []float32 {
	out := make([]float32, len(d))
	for i, v := range d {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 converts a stored float32 vector back to a Descriptor.
func FromFloat32(v []float32) Descriptor {
	if v == nil {
		return nil
	}
	out := make(Descriptor, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// ParseDescriptor decodes a JSON array of numbers. Null elements decode to 0.
// The length is not checked here; use Valid for that.
func ParseDescriptor(raw []byte) (Descriptor, error) {
	var values []*float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	if values == nil {
		return nil, ErrMalformedDescriptor
	}

	d := make(Descriptor, len(values))
	for i, v := range values {
		if v != nil {
			d[i] = *v
		}
	}
	return d, nil
}

// UnmarshalJSON lets request bodies carry descriptors with null elements.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = nil
		return nil
	}
	parsed, err := ParseDescriptor(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
