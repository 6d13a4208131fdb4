// Package library implements circulation: issuing, returning and reissuing books.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/notify"
)

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrBookUnavailable = errors.New("book is not available")
	ErrBarcodeMismatch = errors.New("book barcode verification failed")
	ErrLoanNotFound    = errors.New("loan not found")
	ErrLoanNotActive   = errors.New("loan is not active")
	ErrUserNotFound    = errors.New("user not found")
)

// Receipt describes the outcome of a circulation operation.
type Receipt struct {
	Loan  database.Loan
	Book  database.Book
	Cover *CoverCheck // nil when no cover was captured
}

// Service applies the loan policy on top of the repositories.
type Service struct {
	users    database.UserReader
	books    database.BookReader
	loans    database.LoanWriter
	notifier notify.Notifier
	policy   config.LibraryConfig
	now      func() time.Time
}

// NewService creates a circulation service. A nil notifier logs notices instead.
func NewService(users database.UserReader, books database.BookReader, loans database.LoanWriter,
	notifier notify.Notifier, policy config.LibraryConfig) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		users:    users,
		books:    books,
		loans:    loans,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// IssueRequest asks to lend a book to a user.
type IssueRequest struct {
	UserID  int64
	BookID  int64
	Barcode string
	Cover   string // base64 photo of the cover, optional
}

func barcodeMatches(book *database.Book, barcode string) bool {
	return book.Barcode == strings.TrimSpace(barcode)
}

// Issue lends one copy of a book. The book ID and scanned barcode must name the same book.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Receipt, error) {
	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	book, err := s.books.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	if !barcodeMatches(book, req.Barcode) {
		return nil, ErrBarcodeMismatch
	}
	if book.Available <= 0 {
		return nil, ErrBookUnavailable
	}

	now := s.now().UTC()
	loan := &database.Loan{
		Reference:  uuid.NewString(),
		UserID:     user.ID,
		BookID:     book.ID,
		Status:     database.LoanActive,
		IssuedAt:   now,
		DueAt:      now.Add(s.policy.LoanPeriod()),
		IssueCover: stripDataURL(req.Cover),
	}
	if err := s.loans.IssueLoan(ctx, loan); err != nil {
		if errors.Is(err, database.ErrNoCopiesAvailable) {
			return nil, ErrBookUnavailable
		}
		return nil, fmt.Errorf("issue loan: %w", err)
	}
	book.Available--

	s.notify(ctx, s.notifier.LoanIssued, user, book, loan)

	return &Receipt{
		Loan:  *loan,
		Book:  *book,
		Cover: checkCover(req.Cover, book.CoverImage, s.policy.CoverMatchPercent),
	}, nil
}

// openLoan loads a loan the user holds together with its book, and checks the barcode.
func (s *Service) openLoan(ctx context.Context, userID, loanID int64, barcode string) (*database.Loan, *database.Book, error) {
	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return nil, nil, fmt.Errorf("get loan: %w", err)
	}
	// Another member's loan is reported as missing.
	if loan == nil || loan.UserID != userID {
		return nil, nil, ErrLoanNotFound
	}
	if !loan.Status.Open() {
		return nil, nil, ErrLoanNotActive
	}

	book, err := s.books.GetBook(ctx, loan.BookID)
	if err != nil {
		return nil, nil, fmt.Errorf("get book: %w", err)
	}
	if book == nil {
		return nil, nil, ErrBookNotFound
	}
	if !barcodeMatches(book, barcode) {
		return nil, nil, ErrBarcodeMismatch
	}
	return loan, book, nil
}

// Return closes an open loan and puts the copy back on the shelf.
func (s *Service) Return(ctx context.Context, userID, loanID int64, barcode, cover string) (*Receipt, error) {
	loan, book, err := s.openLoan(ctx, userID, loanID, barcode)
	if err != nil {
		return nil, err
	}

	returnedAt := s.now().UTC()
	if err := s.loans.ReturnLoan(ctx, loan.ID, returnedAt, stripDataURL(cover)); err != nil {
		if errors.Is(err, database.ErrLoanClosed) {
			return nil, ErrLoanNotActive
		}
		return nil, fmt.Errorf("return loan: %w", err)
	}
	loan.Status = database.LoanReturned
	loan.ReturnedAt = &returnedAt
	loan.ReturnCover = stripDataURL(cover)
	book.Available = min(book.Available+1, book.Quantity)

	if user, err := s.users.GetUser(ctx, userID); err == nil && user != nil {
		s.notify(ctx, s.notifier.LoanReturned, user, book, loan)
	}

	return &Receipt{
		Loan:  *loan,
		Book:  *book,
		Cover: checkCover(cover, loan.IssueCover, s.policy.CoverMatchPercent),
	}, nil
}

// Reissue extends an active loan by the reissue period, counted from the current due date.
// A loan can be reissued once.
func (s *Service) Reissue(ctx context.Context, userID, loanID int64, barcode, cover string) (*Receipt, error) {
	loan, book, err := s.openLoan(ctx, userID, loanID, barcode)
	if err != nil {
		return nil, err
	}
	if loan.Status != database.LoanActive {
		return nil, ErrLoanNotActive
	}

	due := loan.DueAt.Add(s.policy.ReissuePeriod())
	if err := s.loans.ReissueLoan(ctx, loan.ID, due); err != nil {
		if errors.Is(err, database.ErrLoanClosed) {
			return nil, ErrLoanNotActive
		}
		return nil, fmt.Errorf("reissue loan: %w", err)
	}
	loan.Status = database.LoanReissued
	loan.DueAt = due

	if user, err := s.users.GetUser(ctx, userID); err == nil && user != nil {
		s.notify(ctx, s.notifier.LoanReissued, user, book, loan)
	}

	return &Receipt{
		Loan:  *loan,
		Book:  *book,
		Cover: checkCover(cover, loan.IssueCover, s.policy.CoverMatchPercent),
	}, nil
}

// OpenLoans lists the user's books that are still out.
func (s *Service) OpenLoans(ctx context.Context, userID int64) ([]database.LoanWithBook, error) {
	loans, err := s.loans.ListOpenLoans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

// SearchBooks lists the catalogue, optionally only books on the shelf, filtered by query.
func (s *Service) SearchBooks(ctx context.Context, query string, availableOnly bool) ([]database.Book, error) {
	return SearchBooks(ctx, s.books, query, availableOnly)
}

// SearchBooks is the storage-only form of Service.SearchBooks.
func SearchBooks(ctx context.Context, books database.BookReader, query string, availableOnly bool) ([]database.Book, error) {
	var (
		list []database.Book
		err  error
	)
	if availableOnly {
		list, err = books.ListAvailableBooks(ctx)
	} else {
		list, err = books.ListBooks(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return FilterBooks(list, query), nil
}

func (s *Service) notify(ctx context.Context, send func(context.Context, notify.LoanNotice) error,
	user *database.User, book *database.Book, loan *database.Loan) {
	n := notify.LoanNotice{
		To:        user.Email,
		Name:      user.Name,
		Title:     book.Title,
		Author:    book.Author,
		Barcode:   book.Barcode,
		Reference: loan.Reference,
		IssuedAt:  loan.IssuedAt,
		DueAt:     loan.DueAt,
	}
	if loan.ReturnedAt != nil {
		n.ReturnedAt = *loan.ReturnedAt
	}
	if err := send(ctx, n); err != nil {
		slog.WarnContext(ctx, "failed to queue loan notice", "loan", loan.ID, "to", user.Email, "error", err)
	}
}
