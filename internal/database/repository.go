package database

import (
	"context"
	"errors"
	"time"
)

// Storage-level conflicts. Lookups that find nothing return nil, nil instead of an error.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateEnrollmentID = errors.New("enrollment ID already registered")
	ErrDuplicateBarcode      = errors.New("barcode already registered")
	ErrNoCopiesAvailable     = errors.New("no copies available")
	ErrLoanClosed            = errors.New("loan is not in the expected state")
)

// UserReader provides read-only access to members
type UserReader interface {
	// GetUser retrieves a user by ID, returns nil if not found
	GetUser(ctx context.Context, id int64) (*User, error)
	// GetUserByEmail retrieves a user by email (case-insensitive), returns nil if not found
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserByEnrollmentID retrieves a user by enrollment ID, returns nil if not found
	GetUserByEnrollmentID(ctx context.Context, enrollmentID string) (*User, error)
	// ListUsers returns all users ordered by name, without images or enrollment data
	ListUsers(ctx context.Context) ([]User, error)
	// GetFacialData returns the raw enrollment column. found is false for unknown users;
	// a known user who never enrolled yields found=true and nil data.
	GetFacialData(ctx context.Context, userID int64) (data []byte, found bool, err error)
	// ListFacialData returns the raw enrollment column of every user
	ListFacialData(ctx context.Context) ([]FacialDataRecord, error)
	// ListEnrolledDescriptors returns every well-formed enrollment from the vector column
	ListEnrolledDescriptors(ctx context.Context) ([]EnrolledDescriptor, error)
}

// UserWriter provides write access to members
type UserWriter interface {
	UserReader

	// CreateUser inserts the user and sets its ID and timestamps
	CreateUser(ctx context.Context, user *User) error
	// UpdateFacialData replaces the enrollment document. descriptor mirrors it into the
	// vector column and may be nil when the document is not a valid descriptor.
	UpdateFacialData(ctx context.Context, userID int64, data []byte, descriptor []float32) error
	// UpdatePassword replaces the bcrypt hash
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	// DeleteUser removes the user and their loan history
	DeleteUser(ctx context.Context, userID int64) error
}

// BookReader provides read-only access to the catalogue
type BookReader interface {
	// GetBook retrieves a book by ID, returns nil if not found
	GetBook(ctx context.Context, id int64) (*Book, error)
	// GetBookByBarcode retrieves a book by barcode, returns nil if not found
	GetBookByBarcode(ctx context.Context, barcode string) (*Book, error)
	// ListBooks returns the whole catalogue ordered by title
	ListBooks(ctx context.Context) ([]Book, error)
	// ListAvailableBooks returns books with at least one copy on the shelf
	ListAvailableBooks(ctx context.Context) ([]Book, error)
}

// BookWriter provides write access to the catalogue
type BookWriter interface {
	BookReader

	// CreateBook inserts the book and sets its ID. Available defaults to Quantity.
	CreateBook(ctx context.Context, book *Book) error
}

// LoanReader provides read-only access to loans
type LoanReader interface {
	// GetLoan retrieves a loan by ID, returns nil if not found
	GetLoan(ctx context.Context, id int64) (*Loan, error)
	// ListOpenLoans returns the user's active and reissued loans, soonest due first
	ListOpenLoans(ctx context.Context, userID int64) ([]LoanWithBook, error)
}

// LoanWriter provides write access to loans. Each method updates the loan and the
// book's available counter atomically.
type LoanWriter interface {
	LoanReader

	// IssueLoan inserts the loan and takes one copy off the shelf.
	// Returns ErrNoCopiesAvailable if the book has none left.
	IssueLoan(ctx context.Context, loan *Loan) error
	// ReturnLoan closes an open loan and puts the copy back.
	// Returns ErrLoanClosed if the loan is no longer open.
	ReturnLoan(ctx context.Context, loanID int64, returnedAt time.Time, cover string) error
	// ReissueLoan moves the due date of an active loan.
	// Returns ErrLoanClosed if the loan is not active.
	ReissueLoan(ctx context.Context, loanID int64, dueAt time.Time) error
}
