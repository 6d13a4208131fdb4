package library

import (
	"testing"

	"github.com/kozaktomas/smart-library/internal/database"
)

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jiří", "Jiri"},
		{"Němcová", "Nemcova"},
		{"Crème brûlée", "Creme brulee"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RemoveDiacritics(tt.input); got != tt.expected {
			t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  The   Little-Prince ", "the little prince"},
		{"ŽLUŤOUČKÝ kůň", "zlutoucky kun"},
		{"\t\n", ""},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.expected {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestMatchesQuery(t *testing.T) {
	book := database.Book{Title: "Válka s mloky", Author: "Karel Čapek", ISBN: "978-80-7335-001-5", Barcode: "LIB-042"}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"valka", true},
		{"capek mloky", true},
		{"CAPEK", true},
		{"lib 042", true},
		{"capek hasek", false},
		{"dune", false},
	}

	for _, tt := range tests {
		if got := MatchesQuery(book, tt.query); got != tt.want {
			t.Errorf("MatchesQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestFilterBooks(t *testing.T) {
	books := []database.Book{{Title: "Dune"}, {Title: "Dune Messiah"}, {Title: "Solaris"}}
	if got := FilterBooks(books, "dune"); len(got) != 2 || got[1].Title != "Dune Messiah" {
		t.Errorf("unexpected result %+v", got)
	}
	if got := FilterBooks(books, " "); len(got) != 3 {
		t.Errorf("blank query should keep all books, got %d", len(got))
	}
}
