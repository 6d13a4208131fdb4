package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/library"
	"github.com/kozaktomas/smart-library/internal/notify"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// LoansHandler handles issuing, returning and reissuing books for the logged-in member.
type LoansHandler struct {
	config         *config.Config
	sessionManager *middleware.SessionManager
	notifier       notify.Notifier
}

// NewLoansHandler creates a new loans handler
func NewLoansHandler(cfg *config.Config, sm *middleware.SessionManager, notifier notify.Notifier) *LoansHandler {
	return &LoansHandler{config: cfg, sessionManager: sm, notifier: notifier}
}

// service assembles the circulation service from the registered stores.
func (h *LoansHandler) service(w http.ResponseWriter, r *http.Request) *library.Service {
	ctx := r.Context()
	users, err := database.GetUserReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return nil
	}
	books, err := database.GetBookReader(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return nil
	}
	loans, err := database.GetLoanWriter(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, errDatabaseUnavailable)
		return nil
	}
	return library.NewService(users, books, loans, h.notifier, h.config.Library)
}

// respondLibraryError maps circulation errors to HTTP statuses.
func respondLibraryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, library.ErrBookNotFound),
		errors.Is(err, library.ErrLoanNotFound),
		errors.Is(err, library.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, library.ErrBarcodeMismatch):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, library.ErrBookUnavailable),
		errors.Is(err, library.ErrLoanNotActive):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondInternal(w, r, "loan operation failed", err)
	}
}

type loanBook struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Barcode string `json:"barcode"`
}

// loanResponse represents a loan. Dates are calendar dates in UTC.
type loanResponse struct {
	ID                int64               `json:"id"`
	Reference         string              `json:"reference"`
	Status            database.LoanStatus `json:"status"`
	IssuedAt          time.Time           `json:"issued_at"`
	DueDate           string              `json:"due_date"`
	ReturnDate        string              `json:"return_date,omitempty"`
	Overdue           bool                `json:"overdue"`
	Book              loanBook            `json:"book"`
	CoverVerification *library.CoverCheck `json:"cover_verification,omitempty"`
}

func newLoanResponse(l *database.Loan, b *database.Book, cover *library.CoverCheck) loanResponse {
	resp := loanResponse{
		ID:        l.ID,
		Reference: l.Reference,
		Status:    l.Status,
		IssuedAt:  l.IssuedAt.UTC(),
		DueDate:   l.DueAt.UTC().Format(time.DateOnly),
		Overdue:   l.Status.Open() && time.Now().After(l.DueAt),
		Book: loanBook{
			ID:      b.ID,
			Title:   b.Title,
			Author:  b.Author,
			Barcode: b.Barcode,
		},
		CoverVerification: cover,
	}
	if l.ReturnedAt != nil {
		resp.ReturnDate = l.ReturnedAt.UTC().Format(time.DateOnly)
	}
	return resp
}

type issueRequest struct {
	BookID     int64  `json:"book_id"`
	Barcode    string `json:"barcode"`
	CoverImage string `json:"cover_image"`
}

// Issue lends a book to the caller.
func (h *LoansHandler) Issue(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req issueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BookID <= 0 || req.Barcode == "" {
		respondError(w, http.StatusBadRequest, "book_id and barcode are required")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}
	receipt, err := svc.Issue(r.Context(), library.IssueRequest{
		UserID:  userID,
		BookID:  req.BookID,
		Barcode: req.Barcode,
		Cover:   req.CoverImage,
	})
	if err != nil {
		respondLibraryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newLoanResponse(&receipt.Loan, &receipt.Book, receipt.Cover))
}

// List returns the caller's books that are still out.
func (h *LoansHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	svc := h.service(w, r)
	if svc == nil {
		return
	}
	loans, err := svc.OpenLoans(r.Context(), userID)
	if err != nil {
		respondInternal(w, r, "failed to list loans", err)
		return
	}

	result := make([]loanResponse, len(loans))
	for i := range loans {
		result[i] = newLoanResponse(&loans[i].Loan, &loans[i].Book, nil)
	}
	respondJSON(w, http.StatusOK, result)
}

type loanActionRequest struct {
	Barcode    string `json:"barcode"`
	CoverImage string `json:"cover_image"`
}

type loanAction func(svc *library.Service, r *http.Request, userID, loanID int64, req loanActionRequest) (*library.Receipt, error)

func (h *LoansHandler) handleAction(w http.ResponseWriter, r *http.Request, action loanAction) {
	userID, ok := sessionUserID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loanID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}
	var req loanActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Barcode == "" {
		respondError(w, http.StatusBadRequest, "barcode is required")
		return
	}

	svc := h.service(w, r)
	if svc == nil {
		return
	}
	receipt, err := action(svc, r, userID, loanID, req)
	if err != nil {
		respondLibraryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newLoanResponse(&receipt.Loan, &receipt.Book, receipt.Cover))
}

// Return closes one of the caller's loans.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, func(svc *library.Service, r *http.Request, userID, loanID int64, req loanActionRequest) (*library.Receipt, error) {
		return svc.Return(r.Context(), userID, loanID, req.Barcode, req.CoverImage)
	})
}

// Reissue extends one of the caller's active loans.
func (h *LoansHandler) Reissue(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, func(svc *library.Service, r *http.Request, userID, loanID int64, req loanActionRequest) (*library.Receipt, error) {
		return svc.Reissue(r.Context(), userID, loanID, req.Barcode, req.CoverImage)
	})
}
