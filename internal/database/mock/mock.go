// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/smart-library/internal/database"
)

// MockUserWriter is a mock implementation of database.UserWriter
type MockUserWriter struct {
	mu          sync.RWMutex
	users       map[int64]*database.User
	descriptors map[int64][]float32
	userCounter int64

	// FacialDataReads counts GetFacialData calls, for cache tests
	FacialDataReads int

	// Error injection
	GetUserError        error
	ListUsersError      error
	GetFacialDataError  error
	ListDescriptorError error
	CreateUserError     error
	UpdateFacialError   error
	UpdatePasswordError error
	DeleteUserError     error
}

// NewMockUserWriter creates a new mock user writer
func NewMockUserWriter() *MockUserWriter {
	return &MockUserWriter{
		users:       make(map[int64]*database.User),
		descriptors: make(map[int64][]float32),
	}
}

// AddUser adds a user to the mock store. A zero ID is assigned automatically.
func (m *MockUserWriter) AddUser(user database.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		m.userCounter++
		user.ID = m.userCounter
	} else if user.ID > m.userCounter {
		m.userCounter = user.ID
	}
	m.users[user.ID] = &user
	return user.ID
}

// SetDescriptor sets the vector-column mirror of a user's enrollment
func (m *MockUserWriter) SetDescriptor(userID int64, descriptor []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors[userID] = descriptor
}

// User returns a copy of a stored user for assertions
func (m *MockUserWriter) User(id int64) (database.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return database.User{}, false
	}
	return *u, true
}

func (m *MockUserWriter) GetUser(ctx context.Context, id int64) (*database.User, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *MockUserWriter) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockUserWriter) GetUserByEnrollmentID(ctx context.Context, enrollmentID string) (*database.User, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.EnrollmentID != "" && u.EnrollmentID == enrollmentID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockUserWriter) ListUsers(ctx context.Context) ([]database.User, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.User
	for _, u := range m.users {
		copied := *u
		copied.FacialData = nil
		copied.ProfileImage = nil
		result = append(result, copied)
	}
	slices.SortFunc(result, func(a, b database.User) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (m *MockUserWriter) GetFacialData(ctx context.Context, userID int64) ([]byte, bool, error) {
	if m.GetFacialDataError != nil {
		return nil, false, m.GetFacialDataError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FacialDataReads++
	u, ok := m.users[userID]
	if !ok {
		return nil, false, nil
	}
	return u.FacialData, true, nil
}

func (m *MockUserWriter) ListFacialData(ctx context.Context) ([]database.FacialDataRecord, error) {
	if m.ListUsersError != nil {
		return nil, m.ListUsersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.FacialDataRecord
	for _, u := range m.users {
		result = append(result, database.FacialDataRecord{UserID: u.ID, Email: u.Email, FacialData: u.FacialData})
	}
	slices.SortFunc(result, func(a, b database.FacialDataRecord) int { return cmp.Compare(a.UserID, b.UserID) })
	return result, nil
}

func (m *MockUserWriter) ListEnrolledDescriptors(ctx context.Context) ([]database.EnrolledDescriptor, error) {
	if m.ListDescriptorError != nil {
		return nil, m.ListDescriptorError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.EnrolledDescriptor
	for id, d := range m.descriptors {
		if d != nil {
			result = append(result, database.EnrolledDescriptor{UserID: id, Descriptor: d})
		}
	}
	return result, nil
}

func (m *MockUserWriter) CreateUser(ctx context.Context, user *database.User) error {
	if m.CreateUserError != nil {
		return m.CreateUserError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return database.ErrDuplicateEmail
		}
		if user.EnrollmentID != "" && u.EnrollmentID == user.EnrollmentID {
			return database.ErrDuplicateEnrollmentID
		}
	}
	m.userCounter++
	user.ID = m.userCounter
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *MockUserWriter) UpdateFacialData(ctx context.Context, userID int64, data []byte, descriptor []float32) error {
	if m.UpdateFacialError != nil {
		return m.UpdateFacialError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.FacialData = data
	m.descriptors[userID] = descriptor
	return nil
}

func (m *MockUserWriter) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if m.UpdatePasswordError != nil {
		return m.UpdatePasswordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *MockUserWriter) DeleteUser(ctx context.Context, userID int64) error {
	if m.DeleteUserError != nil {
		return m.DeleteUserError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	delete(m.descriptors, userID)
	return nil
}

// MockBookWriter is a mock implementation of database.BookWriter
type MockBookWriter struct {
	mu          sync.RWMutex
	books       map[int64]*database.Book
	bookCounter int64

	// Error injection
	GetBookError    error
	ListBooksError  error
	CreateBookError error
}

// NewMockBookWriter creates a new mock book writer
func NewMockBookWriter() *MockBookWriter {
	return &MockBookWriter{
		books: make(map[int64]*database.Book),
	}
}

// AddBook adds a book to the mock store. A zero ID is assigned automatically.
func (m *MockBookWriter) AddBook(book database.Book) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book.ID == 0 {
		m.bookCounter++
		book.ID = m.bookCounter
	} else if book.ID > m.bookCounter {
		m.bookCounter = book.ID
	}
	m.books[book.ID] = &book
	return book.ID
}

// Available returns the current available counter of a book, -1 if unknown
func (m *MockBookWriter) Available(id int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return -1
	}
	return b.Available
}

// adjustAvailable changes the counter; it refuses to go below zero or above quantity.
func (m *MockBookWriter) adjustAvailable(id int64, delta int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return false
	}
	next := b.Available + delta
	if next < 0 || next > b.Quantity {
		return false
	}
	b.Available = next
	return true
}

func (m *MockBookWriter) sorted(filter func(*database.Book) bool) []database.Book {
	var result []database.Book
	for _, b := range m.books {
		if filter(b) {
			result = append(result, *b)
		}
	}
	slices.SortFunc(result, func(a, b database.Book) int { return strings.Compare(a.Title, b.Title) })
	return result
}

func (m *MockBookWriter) GetBook(ctx context.Context, id int64) (*database.Book, error) {
	if m.GetBookError != nil {
		return nil, m.GetBookError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (m *MockBookWriter) GetBookByBarcode(ctx context.Context, barcode string) (*database.Book, error) {
	if m.GetBookError != nil {
		return nil, m.GetBookError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.books {
		if b.Barcode == barcode {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockBookWriter) ListBooks(ctx context.Context) ([]database.Book, error) {
	if m.ListBooksError != nil {
		return nil, m.ListBooksError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(*database.Book) bool { return true }), nil
}

func (m *MockBookWriter) ListAvailableBooks(ctx context.Context) ([]database.Book, error) {
	if m.ListBooksError != nil {
		return nil, m.ListBooksError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(b *database.Book) bool { return b.Available > 0 }), nil
}

func (m *MockBookWriter) CreateBook(ctx context.Context, book *database.Book) error {
	if m.CreateBookError != nil {
		return m.CreateBookError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.Barcode == book.Barcode {
			return database.ErrDuplicateBarcode
		}
	}
	m.bookCounter++
	book.ID = m.bookCounter
	book.Available = book.Quantity
	book.CreatedAt = time.Now()
	copied := *book
	m.books[book.ID] = &copied
	return nil
}

// MockLoanWriter is a mock implementation of database.LoanWriter.
// It adjusts the available counters of the MockBookWriter it was created with.
type MockLoanWriter struct {
	mu          sync.RWMutex
	books       *MockBookWriter
	loans       map[int64]*database.Loan
	loanCounter int64

	// Error injection
	GetLoanError   error
	ListLoansError error
	IssueError     error
	ReturnError    error
	ReissueError   error
}

// NewMockLoanWriter creates a new mock loan writer backed by books
func NewMockLoanWriter(books *MockBookWriter) *MockLoanWriter {
	return &MockLoanWriter{
		books: books,
		loans: make(map[int64]*database.Loan),
	}
}

// AddLoan adds a loan to the mock store without touching book counters
func (m *MockLoanWriter) AddLoan(loan database.Loan) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loan.ID == 0 {
		m.loanCounter++
		loan.ID = m.loanCounter
	} else if loan.ID > m.loanCounter {
		m.loanCounter = loan.ID
	}
	m.loans[loan.ID] = &loan
	return loan.ID
}

// Loan returns a copy of a stored loan for assertions
func (m *MockLoanWriter) Loan(id int64) (database.Loan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return database.Loan{}, false
	}
	return *l, true
}

func (m *MockLoanWriter) GetLoan(ctx context.Context, id int64) (*database.Loan, error) {
	if m.GetLoanError != nil {
		return nil, m.GetLoanError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (m *MockLoanWriter) ListOpenLoans(ctx context.Context, userID int64) ([]database.LoanWithBook, error) {
	if m.ListLoansError != nil {
		return nil, m.ListLoansError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.LoanWithBook
	for _, l := range m.loans {
		if l.UserID != userID || !l.Status.Open() {
			continue
		}
		item := database.LoanWithBook{Loan: *l}
		if b, _ := m.books.GetBook(ctx, l.BookID); b != nil {
			item.Book = *b
		}
		result = append(result, item)
	}
	slices.SortFunc(result, func(a, b database.LoanWithBook) int { return a.DueAt.Compare(b.DueAt) })
	return result, nil
}

func (m *MockLoanWriter) IssueLoan(ctx context.Context, loan *database.Loan) error {
	if m.IssueError != nil {
		return m.IssueError
	}
	if !m.books.adjustAvailable(loan.BookID, -1) {
		return database.ErrNoCopiesAvailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loanCounter++
	loan.ID = m.loanCounter
	copied := *loan
	m.loans[loan.ID] = &copied
	return nil
}

func (m *MockLoanWriter) ReturnLoan(ctx context.Context, loanID int64, returnedAt time.Time, cover string) error {
	if m.ReturnError != nil {
		return m.ReturnError
	}
	m.mu.Lock()
	l, ok := m.loans[loanID]
	if !ok || !l.Status.Open() {
		m.mu.Unlock()
		return database.ErrLoanClosed
	}
	l.Status = database.LoanReturned
	l.ReturnedAt = &returnedAt
	l.ReturnCover = cover
	bookID := l.BookID
	m.mu.Unlock()

	m.books.adjustAvailable(bookID, 1)
	return nil
}

func (m *MockLoanWriter) ReissueLoan(ctx context.Context, loanID int64, dueAt time.Time) error {
	if m.ReissueError != nil {
		return m.ReissueError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[loanID]
	if !ok || l.Status != database.LoanActive {
		return database.ErrLoanClosed
	}
	l.Status = database.LoanReissued
	l.DueAt = dueAt
	return nil
}

// Register installs the three mocks as the PostgreSQL backend.
// Callers should t.Cleanup(database.ResetForTesting).
func Register(users *MockUserWriter, books *MockBookWriter, loans *MockLoanWriter) {
	database.RegisterPostgresBackend(
		func() database.UserWriter { return users },
		func() database.BookWriter { return books },
		func() database.LoanWriter { return loans },
	)
}
