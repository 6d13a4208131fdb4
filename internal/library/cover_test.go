package library

import (
	"strings"
	"testing"
)

func TestCompareCovers(t *testing.T) {
	long := strings.Repeat("A", 100)

	tests := []struct {
		name      string
		captured  string
		reference string
		want      CoverCheck
	}{
		{"missing capture", "", "QUJD", CoverCheck{Reason: "missing image data"}},
		{"missing reference", "QUJD", "data:image/jpeg;base64,", CoverCheck{Reason: "missing image data"}},
		{"exact", "QUJD", "QUJD", CoverCheck{Match: true, Similarity: 100, Reason: "exact match"}},
		{"exact after prefix", "data:image/png;base64,QUJD", "data:image/jpeg;base64,QUJD", CoverCheck{Match: true, Similarity: 100, Reason: "exact match"}},
		{"same bytes wrapped", "QUJD\nREVG", "QUJDREVG", CoverCheck{Match: true, Similarity: 100, Reason: "hash match"}},
		{"equal length differs", long, strings.Repeat("B", 100), CoverCheck{Match: true, Similarity: 80, Reason: "similar cover detected"}},
		{"at threshold", strings.Repeat("A", 88), strings.Repeat("B", 100), CoverCheck{Match: true, Similarity: 70, Reason: "similar cover detected"}},
		{"below threshold", strings.Repeat("A", 50), strings.Repeat("B", 100), CoverCheck{Similarity: 40, Reason: "cover mismatch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareCovers(tt.captured, tt.reference, 70); got != tt.want {
				t.Errorf("CompareCovers() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckCover(t *testing.T) {
	if got := checkCover("  ", "QUJD", 70); got != nil {
		t.Errorf("expected nil without capture, got %+v", got)
	}
	if got := checkCover("QUJD", "", 70); got == nil || *got != noReferenceCover {
		t.Errorf("expected pass without reference, got %+v", got)
	}
	if got := checkCover("QUJD", "QUJD", 70); got == nil || got.Reason != "exact match" {
		t.Errorf("expected comparison, got %+v", got)
	}
}
