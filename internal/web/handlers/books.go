package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/library"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// BooksHandler handles catalogue endpoints
type BooksHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
}

// NewBooksHandler creates a new books handler
func NewBooksHandler(cfg *config.Config, sm *middleware.SessionManager) *BooksHandler {
	return &BooksHandler{config: cfg, sessionManager: sm}
}

func getBookWriter(r *http.Request, w http.ResponseWriter) database.BookWriter {
	writer, err := database.GetBookWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "book storage not available")
		return nil
	}
	return writer
}

// --- Book responses ---

type bookResponse struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	ISBN       string `json:"isbn,omitempty"`
	Barcode    string `json:"barcode"`
	Quantity   int    `json:"quantity"`
	Available  int    `json:"available"`
	CoverImage string `json:"cover_image,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func newBookResponse(b *database.Book, withCover bool) bookResponse {
	resp := bookResponse{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		ISBN:      b.ISBN,
		Barcode:   b.Barcode,
		Quantity:  b.Quantity,
		Available: b.Available,
		CreatedAt: b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if withCover {
		resp.CoverImage = b.CoverImage
	}
	return resp
}

func (h *BooksHandler) listBooks(w http.ResponseWriter, r *http.Request, availableOnly bool) {
	bw := getBookWriter(r, w)
	if bw == nil {
		return
	}
	books, err := library.SearchBooks(r.Context(), bw, r.URL.Query().Get("q"), availableOnly)
	if err != nil {
		respondInternal(w, r, "failed to list books", err)
		return
	}

	result := make([]bookResponse, len(books))
	for i := range books {
		result[i] = newBookResponse(&books[i], false)
	}
	respondJSON(w, http.StatusOK, result)
}

// ListBooks returns the catalogue, filtered by the optional q parameter.
func (h *BooksHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	h.listBooks(w, r, false)
}

// ListAvailable returns books with at least one copy on the shelf.
func (h *BooksHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	h.listBooks(w, r, true)
}

func (h *BooksHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid book ID")
		return
	}
	bw := getBookWriter(r, w)
	if bw == nil {
		return
	}
	book, err := bw.GetBook(r.Context(), id)
	if err != nil {
		respondInternal(w, r, "failed to get book", err)
		return
	}
	if book == nil {
		respondError(w, http.StatusNotFound, "book not found")
		return
	}
	respondJSON(w, http.StatusOK, newBookResponse(book, true))
}

func (h *BooksHandler) GetBookByBarcode(w http.ResponseWriter, r *http.Request) {
	barcode := strings.TrimSpace(chi.URLParam(r, "barcode"))
	if barcode == "" {
		respondError(w, http.StatusBadRequest, "barcode is required")
		return
	}
	bw := getBookWriter(r, w)
	if bw == nil {
		return
	}
	book, err := bw.GetBookByBarcode(r.Context(), barcode)
	if err != nil {
		respondInternal(w, r, "failed to get book", err)
		return
	}
	if book == nil {
		respondError(w, http.StatusNotFound, "book not found")
		return
	}
	respondJSON(w, http.StatusOK, newBookResponse(book, true))
}

func (h *BooksHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		Author     string `json:"author"`
		ISBN       string `json:"isbn"`
		Barcode    string `json:"barcode"`
		Quantity   int    `json:"quantity"`
		CoverImage string `json:"cover_image"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Title == "" || req.Barcode == "" {
		respondError(w, http.StatusBadRequest, "title and barcode are required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	bw := getBookWriter(r, w)
	if bw == nil {
		return
	}
	book := &database.Book{
		Title:      req.Title,
		Author:     strings.TrimSpace(req.Author),
		ISBN:       strings.TrimSpace(req.ISBN),
		Barcode:    req.Barcode,
		Quantity:   req.Quantity,
		CoverImage: req.CoverImage,
	}
	err := bw.CreateBook(r.Context(), book)
	if errors.Is(err, database.ErrDuplicateBarcode) {
		respondError(w, http.StatusConflict, "barcode already registered")
		return
	}
	if err != nil {
		respondInternal(w, r, "failed to create book", err)
		return
	}
	respondJSON(w, http.StatusCreated, newBookResponse(book, false))
}
