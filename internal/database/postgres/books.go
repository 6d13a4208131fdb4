package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/smart-library/internal/database"
)

// BookRepository provides PostgreSQL-backed catalogue storage
type BookRepository struct {
	pool *Pool
}

// NewBookRepository creates a new BookRepository
func NewBookRepository(pool *Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

const bookColumns = `id, title, author, isbn, barcode, quantity, available, cover_image, created_at`

func scanBook(row interface{ Scan(...any) error }, b *database.Book) error {
	return row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Barcode, &b.Quantity, &b.Available, //nolint:wrapcheck
		&b.CoverImage, &b.CreatedAt)
}

func (r *BookRepository) getBookWhere(ctx context.Context, where string, arg any) (*database.Book, error) {
	var b database.Book
	err := scanBook(r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE `+where, arg), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

func (r *BookRepository) GetBook(ctx context.Context, id int64) (*database.Book, error) {
	return r.getBookWhere(ctx, "id = $1", id)
}

func (r *BookRepository) GetBookByBarcode(ctx context.Context, barcode string) (*database.Book, error) {
	return r.getBookWhere(ctx, "barcode = $1", barcode)
}

func (r *BookRepository) listBooks(ctx context.Context, where string) ([]database.Book, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bookColumns+` FROM books `+where+` ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []database.Book
	for rows.Next() {
		var b database.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func (r *BookRepository) ListBooks(ctx context.Context) ([]database.Book, error) {
	return r.listBooks(ctx, "")
}

func (r *BookRepository) ListAvailableBooks(ctx context.Context) ([]database.Book, error) {
	return r.listBooks(ctx, "WHERE available > 0")
}

func (r *BookRepository) CreateBook(ctx context.Context, book *database.Book) error {
	book.Available = book.Quantity
	book.CreatedAt = time.Now()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO books (title, author, isbn, barcode, quantity, available, cover_image, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		book.Title, book.Author, book.ISBN, book.Barcode, book.Quantity, book.Available,
		book.CoverImage, book.CreatedAt).Scan(&book.ID)
	if isUniqueViolation(err, "books_barcode_key") {
		return database.ErrDuplicateBarcode
	}
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}
