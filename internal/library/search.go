package library

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/smart-library/internal/database"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeText prepares text for search: no diacritics, lowercase, dashes and runs of
// whitespace collapsed to single spaces.
func NormalizeText(s string) string {
	s = strings.ToLower(RemoveDiacritics(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// MatchesQuery reports whether every term of query occurs in the book's title, author,
// ISBN or barcode. An empty query matches everything.
func MatchesQuery(book database.Book, query string) bool {
	terms := strings.Fields(NormalizeText(query))
	if len(terms) == 0 {
		return true
	}
	haystack := NormalizeText(book.Title + " " + book.Author + " " + book.ISBN + " " + book.Barcode)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// FilterBooks returns the books matching query, preserving order.
func FilterBooks(books []database.Book, query string) []database.Book {
	if strings.TrimSpace(query) == "" {
		return books
	}
	out := make([]database.Book, 0, len(books))
	for _, b := range books {
		if MatchesQuery(b, query) {
			out = append(out, b)
		}
	}
	return out
}
