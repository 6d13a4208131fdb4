package faceauth

import (
	"fmt"
	"math"
)

// DefaultThreshold is the similarity a capture must exceed to be accepted.
const DefaultThreshold = 0.7

// Rejection reasons exposed to API consumers. A genuine mismatch carries no reason.
const (
	ReasonNotEnrolled       = "not enrolled"
	ReasonCorruptStoredData = "corrupt stored data"
	ReasonInvalidCapture    = "invalid capture"
)

// Outcome classifies a verification attempt.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeNotEnrolled
	OutcomeCorruptStoredData
	OutcomeInvalidCapture
	OutcomeBelowThreshold
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeNotEnrolled:
		return "not_enrolled"
	case OutcomeCorruptStoredData:
		return "corrupt_stored_data"
	case OutcomeInvalidCapture:
		return "invalid_capture"
	case OutcomeBelowThreshold:
		return "below_threshold"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the verdict for one verification attempt.
type Result struct {
	Accepted   bool    `json:"accepted"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason,omitempty"`
	Outcome    Outcome `json:"-"`
}

// CountsTowardLockout reports whether the attempt was a genuine face mismatch.
// Data-quality rejections must not lock a user out.
func (r Result) CountsTowardLockout() bool {
	return r.Outcome == OutcomeBelowThreshold
}

// ValidateThreshold checks that t is usable as an acceptance threshold.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("threshold must be within [0, 1], got %v", t)
	}
	return nil
}

// Verify compares a stored enrollment against a fresh capture. Preconditions are checked
// in order (enrollment present, enrollment well-formed, capture well-formed) and each
// failure has its own outcome. Acceptance requires similarity strictly above threshold.
func Verify(stored *StoredDescriptor, captured Descriptor, threshold float64) Result {
	switch {
	case stored == nil:
		return Result{Outcome: OutcomeNotEnrolled, Reason: ReasonNotEnrolled}
	case !stored.usable():
		return Result{Outcome: OutcomeCorruptStoredData, Reason: ReasonCorruptStoredData}
	case !captured.Valid():
		return Result{Outcome: OutcomeInvalidCapture, Reason: ReasonInvalidCapture}
	}

	similarity := ComputeSimilarity(stored.Values, captured)
	if similarity > threshold {
		return Result{Accepted: true, Similarity: similarity, Outcome: OutcomeAccepted}
	}
	return Result{Similarity: similarity, Outcome: OutcomeBelowThreshold}
}
