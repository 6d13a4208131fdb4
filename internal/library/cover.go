package library

import (
	"bytes"
	"crypto/md5" //nolint:gosec // fingerprint, not a security boundary
	"encoding/base64"
	"math"
	"regexp"
	"strings"
)

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// CoverCheck is the advisory result of comparing a captured cover photo with a reference.
// It is reported to the client and never blocks a loan operation.
type CoverCheck struct {
	Match      bool   `json:"match"`
	Similarity int    `json:"similarity"` // percent
	Reason     string `json:"reason"`
}

// noReferenceCover is reported when there is nothing to compare against.
var noReferenceCover = CoverCheck{Match: true, Similarity: 100, Reason: "no reference cover to verify"}

func stripDataURL(s string) string {
	return dataURLPrefix.ReplaceAllString(strings.TrimSpace(s), "")
}

func payloadDigest(s string) ([md5.Size]byte, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil || len(raw) == 0 {
		return [md5.Size]byte{}, false
	}
	return md5.Sum(raw), true //nolint:gosec
}

// CompareCovers scores captured against reference. Identical payloads score 100, including
// the same image encoded with different line wrapping. Anything else scores 80% of the
// length ratio of the two encodings, which matches at minPercent or above.
func CompareCovers(captured, reference string, minPercent int) CoverCheck {
	c, r := stripDataURL(captured), stripDataURL(reference)
	if c == "" || r == "" {
		return CoverCheck{Reason: "missing image data"}
	}
	if c == r {
		return CoverCheck{Match: true, Similarity: 100, Reason: "exact match"}
	}

	cd, okC := payloadDigest(c)
	rd, okR := payloadDigest(r)
	if okC && okR && bytes.Equal(cd[:], rd[:]) {
		return CoverCheck{Match: true, Similarity: 100, Reason: "hash match"}
	}

	ratio := float64(min(len(c), len(r))) / float64(max(len(c), len(r)))
	similarity := int(math.Round(ratio * 100 * 0.8))
	if similarity >= minPercent {
		return CoverCheck{Match: true, Similarity: similarity, Reason: "similar cover detected"}
	}
	return CoverCheck{Similarity: similarity, Reason: "cover mismatch"}
}

// checkCover compares when a capture was supplied; without a reference it reports a pass.
func checkCover(captured, reference string, minPercent int) *CoverCheck {
	if strings.TrimSpace(captured) == "" {
		return nil
	}
	if strings.TrimSpace(reference) == "" {
		c := noReferenceCover
		return &c
	}
	c := CompareCovers(captured, reference, minPercent)
	return &c
}
