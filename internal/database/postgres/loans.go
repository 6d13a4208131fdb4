package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/smart-library/internal/database"
)

// LoanRepository provides PostgreSQL-backed loan storage. Every state change runs in a
// transaction together with the matching update of books.available.
type LoanRepository struct {
	pool *Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

func (r *LoanRepository) GetLoan(ctx context.Context, id int64) (*database.Loan, error) {
	var l database.Loan
	var returnedAt sql.NullTime
	err := r.pool.QueryRow(ctx,
		`SELECT id, reference, user_id, book_id, status, issued_at, due_at, returned_at, issue_cover, return_cover
		 FROM loans WHERE id = $1`, id).
		Scan(&l.ID, &l.Reference, &l.UserID, &l.BookID, &l.Status, &l.IssuedAt, &l.DueAt, &returnedAt,
			&l.IssueCover, &l.ReturnCover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	if returnedAt.Valid {
		l.ReturnedAt = &returnedAt.Time
	}
	return &l, nil
}

func (r *LoanRepository) ListOpenLoans(ctx context.Context, userID int64) ([]database.LoanWithBook, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, l.reference, l.user_id, l.book_id, l.status, l.issued_at, l.due_at, l.issue_cover,
		        b.id, b.title, b.author, b.isbn, b.barcode, b.quantity, b.available, b.cover_image, b.created_at
		 FROM loans l
		 JOIN books b ON b.id = l.book_id
		 WHERE l.user_id = $1 AND l.status IN ('active', 'reissued')
		 ORDER BY l.due_at, l.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list open loans: %w", err)
	}
	defer rows.Close()

	var loans []database.LoanWithBook
	for rows.Next() {
		var l database.LoanWithBook
		if err := rows.Scan(&l.ID, &l.Reference, &l.UserID, &l.BookID, &l.Status, &l.IssuedAt, &l.DueAt,
			&l.IssueCover, &l.Book.ID, &l.Book.Title, &l.Book.Author, &l.Book.ISBN, &l.Book.Barcode,
			&l.Book.Quantity, &l.Book.Available, &l.Book.CoverImage, &l.Book.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return loans, nil
}

func (r *LoanRepository) IssueLoan(ctx context.Context, loan *database.Loan) error {
	if loan.Reference == "" {
		loan.Reference = uuid.NewString()
	}
	loan.Status = database.LoanActive

	return r.pool.inTx(ctx, "issue", func(tx *sql.Tx) error {
		// The conditional decrement is the availability check; it cannot race another issue.
		res, err := tx.ExecContext(ctx,
			`UPDATE books SET available = available - 1 WHERE id = $1 AND available > 0`, loan.BookID)
		if err != nil {
			return fmt.Errorf("take copy: %w", err)
		}
		if ok, err := affectedOne(res); err != nil {
			return err
		} else if !ok {
			return database.ErrNoCopiesAvailable
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO loans (reference, user_id, book_id, status, issued_at, due_at, issue_cover)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			loan.Reference, loan.UserID, loan.BookID, loan.Status, loan.IssuedAt, loan.DueAt, loan.IssueCover).
			Scan(&loan.ID)
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		return nil
	})
}

func (r *LoanRepository) ReturnLoan(ctx context.Context, loanID int64, returnedAt time.Time, cover string) error {
	return r.pool.inTx(ctx, "return", func(tx *sql.Tx) error {
		var bookID int64
		err := tx.QueryRowContext(ctx,
			`UPDATE loans SET status = 'returned', returned_at = $2, return_cover = $3
			 WHERE id = $1 AND status IN ('active', 'reissued')
			 RETURNING book_id`, loanID, returnedAt, cover).Scan(&bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrLoanClosed
		}
		if err != nil {
			return fmt.Errorf("close loan: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available = LEAST(available + 1, quantity) WHERE id = $1`, bookID); err != nil {
			return fmt.Errorf("return copy: %w", err)
		}
		return nil
	})
}

func (r *LoanRepository) ReissueLoan(ctx context.Context, loanID int64, dueAt time.Time) error {
	res, err := r.pool.Exec(ctx,
		`UPDATE loans SET status = 'reissued', due_at = $2 WHERE id = $1 AND status = 'active'`, loanID, dueAt)
	if err != nil {
		return fmt.Errorf("reissue loan: %w", err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return database.ErrLoanClosed
	}
	return nil
}
