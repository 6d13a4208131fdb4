package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/smart-library/internal/database"
)

func seedBooks(m *mocks) {
	m.books.AddBook(database.Book{Title: "Dune", Author: "Frank Herbert", Barcode: "BC-1", Quantity: 2, Available: 2, CoverImage: "data:image/png;base64,AAAA"})
	m.books.AddBook(database.Book{Title: "Čapkovy povídky", Author: "Karel Čapek", Barcode: "BC-2", Quantity: 1, Available: 0})
	m.books.AddBook(database.Book{Title: "Neuromancer", Author: "William Gibson", ISBN: "978-0441569595", Barcode: "BC-3", Quantity: 1, Available: 1})
}

func TestBooksHandler_ListBooks(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		available bool
		want      []string
	}{
		{"all", "/api/v1/books", false, []string{"Dune", "Neuromancer", "Čapkovy povídky"}},
		{"available only", "/api/v1/books/available", true, []string{"Dune", "Neuromancer"}},
		{"query by author", "/api/v1/books?q=herbert", false, []string{"Dune"}},
		{"query ignores diacritics", "/api/v1/books?q=capek", false, []string{"Čapkovy povídky"}},
		{"query by barcode", "/api/v1/books?q=bc-3", false, []string{"Neuromancer"}},
		{"available with query", "/api/v1/books/available?q=capek", true, []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := setupMocks(t)
			seedBooks(m)
			h := NewBooksHandler(testConfig(), nil)

			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.available {
				h.ListAvailable(recorder, req)
			} else {
				h.ListBooks(recorder, req)
			}

			assertStatusCode(t, recorder, http.StatusOK)
			var result []bookResponse
			parseJSONResponse(t, recorder, &result)

			got := make([]string, len(result))
			for i, b := range result {
				got[i] = b.Title
				if b.CoverImage != "" {
					t.Errorf("listing of %q should not carry the cover", b.Title)
				}
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestBooksHandler_ListBooks_BackendError(t *testing.T) {
	m := setupMocks(t)
	m.books.ListBooksError = errors.New("connection refused")
	h := NewBooksHandler(testConfig(), nil)

	recorder := httptest.NewRecorder()
	h.ListBooks(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, errInternal)
}

func TestBooksHandler_WriterNotAvailable(t *testing.T) {
	database.ResetForTesting()
	t.Cleanup(database.ResetForTesting)
	h := NewBooksHandler(testConfig(), nil)

	recorder := httptest.NewRecorder()
	h.ListBooks(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	assertJSONError(t, recorder, "book storage not available")
}

func TestBooksHandler_GetBook(t *testing.T) {
	m := setupMocks(t)
	seedBooks(m)
	h := NewBooksHandler(testConfig(), nil)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"found", "1", http.StatusOK},
		{"unknown", "42", http.StatusNotFound},
		{"invalid", "x", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/books/"+tc.id, nil), map[string]string{"id": tc.id})
			recorder := httptest.NewRecorder()
			h.GetBook(recorder, req)

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var book bookResponse
			parseJSONResponse(t, recorder, &book)
			if book.Title != "Dune" || book.CoverImage == "" {
				t.Errorf("unexpected book: %+v", book)
			}
		})
	}
}

func TestBooksHandler_GetBookByBarcode(t *testing.T) {
	m := setupMocks(t)
	seedBooks(m)
	h := NewBooksHandler(testConfig(), nil)

	tests := []struct {
		name       string
		barcode    string
		wantStatus int
		wantTitle  string
	}{
		{"found", "BC-3", http.StatusOK, "Neuromancer"},
		{"unknown", "BC-404", http.StatusNotFound, ""},
		{"blank", "", http.StatusBadRequest, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/books/barcode/x", nil), map[string]string{"barcode": tc.barcode})
			recorder := httptest.NewRecorder()
			h.GetBookByBarcode(recorder, req)

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantTitle != "" {
				var book bookResponse
				parseJSONResponse(t, recorder, &book)
				if book.Title != tc.wantTitle {
					t.Errorf("title = %q, want %q", book.Title, tc.wantTitle)
				}
			}
		})
	}
}

func TestBooksHandler_CreateBook(t *testing.T) {
	m := setupMocks(t)
	h := NewBooksHandler(testConfig(), nil)

	recorder := httptest.NewRecorder()
	h.CreateBook(recorder, jsonRequest(t, http.MethodPost, "/api/v1/books", map[string]any{
		"title":   " Dune ",
		"author":  "Frank Herbert",
		"barcode": "BC-1",
	}))

	assertStatusCode(t, recorder, http.StatusCreated)
	var book bookResponse
	parseJSONResponse(t, recorder, &book)
	if book.Title != "Dune" || book.Quantity != 1 || book.Available != 1 {
		t.Errorf("unexpected book: %+v", book)
	}
	if m.books.Available(book.ID) != 1 {
		t.Error("book was not stored")
	}
}

func TestBooksHandler_CreateBook_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantErr    string
	}{
		{"invalid json", "{", http.StatusBadRequest, errInvalidRequestBody},
		{"missing title", map[string]any{"barcode": "BC-9"}, http.StatusBadRequest, "title and barcode are required"},
		{"missing barcode", map[string]any{"title": "Dune"}, http.StatusBadRequest, "title and barcode are required"},
		{"negative quantity", map[string]any{"title": "Dune", "barcode": "BC-9", "quantity": -2}, http.StatusBadRequest, "quantity must be positive"},
		{"duplicate barcode", map[string]any{"title": "Dune", "barcode": "BC-1"}, http.StatusConflict, "barcode already registered"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := setupMocks(t)
			seedBooks(m)
			h := NewBooksHandler(testConfig(), nil)

			recorder := httptest.NewRecorder()
			h.CreateBook(recorder, jsonRequest(t, http.MethodPost, "/api/v1/books", tc.body))

			assertStatusCode(t, recorder, tc.wantStatus)
			assertJSONError(t, recorder, tc.wantErr)
		})
	}
}
