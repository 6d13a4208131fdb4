package database

import (
	"time"
)

// User is a library member. FacialData holds the raw enrollment document exactly as
// stored; it is decoded by faceauth.ParseStoredRecord at verification time.
type User struct {
	ID           int64
	Name         string
	Email        string
	EnrollmentID string // student/staff number, optional
	PasswordHash string
	FacialData   []byte // nil when the member never enrolled
	ProfileImage []byte // opaque image bytes, never inspected
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EnrolledDescriptor is a user's descriptor as mirrored into the vector column.
// Only well-formed enrollments have one.
type EnrolledDescriptor struct {
	UserID     int64
	Descriptor []float32
}

// FacialDataRecord is the raw enrollment column of one user, used for audits.
type FacialDataRecord struct {
	UserID     int64
	Email      string
	FacialData []byte
}

// Book is a catalogue entry with its copy counters.
type Book struct {
	ID         int64
	Title      string
	Author     string
	ISBN       string
	Barcode    string
	Quantity   int
	Available  int
	CoverImage string // base64, compared advisorily on issue and return
	CreatedAt  time.Time
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReissued LoanStatus = "reissued"
	LoanReturned LoanStatus = "returned"
)

// Open reports whether the book is still out.
func (s LoanStatus) Open() bool {
	return s == LoanActive || s == LoanReissued
}

// Loan is one copy of a book lent to a user.
type Loan struct {
	ID          int64
	Reference   string // public UUID used in notifications
	UserID      int64
	BookID      int64
	Status      LoanStatus
	IssuedAt    time.Time
	DueAt       time.Time
	ReturnedAt  *time.Time
	IssueCover  string // base64 cover captured when the loan was issued
	ReturnCover string // base64 cover captured on return
}

// LoanWithBook is a loan joined with the lent book for listings.
type LoanWithBook struct {
	Loan
	Book Book
}
