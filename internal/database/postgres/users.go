package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/smart-library/internal/database"
)

// UserRepository provides PostgreSQL-backed member storage
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, name, email, COALESCE(enrollment_id, ''), password_hash,
	facial_data, profile_image, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*database.User, error) {
	var u database.User
	var facial sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EnrollmentID, &u.PasswordHash,
		&facial, &u.ProfileImage, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	if facial.Valid {
		u.FacialData = []byte(facial.String)
	}
	return &u, nil
}

func (r *UserRepository) getUserWhere(ctx context.Context, where string, arg any) (*database.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id int64) (*database.User, error) {
	return r.getUserWhere(ctx, "id = $1", id)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*database.User, error) {
	return r.getUserWhere(ctx, "LOWER(email) = LOWER($1)", email)
}

func (r *UserRepository) GetUserByEnrollmentID(ctx context.Context, enrollmentID string) (*database.User, error) {
	return r.getUserWhere(ctx, "enrollment_id = $1", enrollmentID)
}

func (r *UserRepository) ListUsers(ctx context.Context) ([]database.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, COALESCE(enrollment_id, ''), created_at, updated_at FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []database.User
	for rows.Next() {
		var u database.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.EnrollmentID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) GetFacialData(ctx context.Context, userID int64) ([]byte, bool, error) {
	var facial sql.NullString
	err := r.pool.QueryRow(ctx, `SELECT facial_data FROM users WHERE id = $1`, userID).Scan(&facial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get facial data: %w", err)
	}
	if !facial.Valid {
		return nil, true, nil
	}
	return []byte(facial.String), true, nil
}

func (r *UserRepository) ListFacialData(ctx context.Context) ([]database.FacialDataRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, facial_data FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list facial data: %w", err)
	}
	defer rows.Close()

	var records []database.FacialDataRecord
	for rows.Next() {
		var rec database.FacialDataRecord
		var facial sql.NullString
		if err := rows.Scan(&rec.UserID, &rec.Email, &facial); err != nil {
			return nil, fmt.Errorf("scan facial data: %w", err)
		}
		if facial.Valid {
			rec.FacialData = []byte(facial.String)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facial data: %w", err)
	}
	return records, nil
}

func (r *UserRepository) ListEnrolledDescriptors(ctx context.Context) ([]database.EnrolledDescriptor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, face_descriptor FROM users WHERE face_descriptor IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enrolled descriptors: %w", err)
	}
	defer rows.Close()

	var entries []database.EnrolledDescriptor
	for rows.Next() {
		var id int64
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan enrolled descriptor: %w", err)
		}
		entries = append(entries, database.EnrolledDescriptor{UserID: id, Descriptor: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled descriptors: %w", err)
	}
	return entries, nil
}

// descriptorArg converts a descriptor to a query argument, NULL when absent.
func descriptorArg(descriptor []float32) any {
	if descriptor == nil {
		return nil
	}
	return pgvector.NewVector(descriptor)
}

// nullableText converts raw bytes to a query argument, NULL when absent.
func nullableText(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}

// CreateUser inserts the user. The vector column is left empty; callers enrolling a
// descriptor follow up with UpdateFacialData or pass it through CreateUserWithDescriptor.
func (r *UserRepository) CreateUser(ctx context.Context, user *database.User) error {
	return r.CreateUserWithDescriptor(ctx, user, nil)
}

// CreateUserWithDescriptor inserts the user together with the vector-column mirror.
func (r *UserRepository) CreateUserWithDescriptor(ctx context.Context, user *database.User, descriptor []float32) error {
	var enrollmentID any
	if user.EnrollmentID != "" {
		enrollmentID = user.EnrollmentID
	}

	now := time.Now()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, enrollment_id, password_hash, facial_data, face_descriptor, profile_image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING id`,
		user.Name, user.Email, enrollmentID, user.PasswordHash, nullableText(user.FacialData),
		descriptorArg(descriptor), user.ProfileImage, now).Scan(&user.ID)
	switch {
	case isUniqueViolation(err, "users_email_key"):
		return database.ErrDuplicateEmail
	case isUniqueViolation(err, "users_enrollment_id_key"):
		return database.ErrDuplicateEnrollmentID
	case err != nil:
		return fmt.Errorf("create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *UserRepository) UpdateFacialData(ctx context.Context, userID int64, data []byte, descriptor []float32) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET facial_data = $1, face_descriptor = $2, updated_at = NOW() WHERE id = $3`,
		nullableText(data), descriptorArg(descriptor), userID)
	if err != nil {
		return fmt.Errorf("update facial data: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeleteUser removes the user; loans and sessions cascade. Copies still out are put back.
func (r *UserRepository) DeleteUser(ctx context.Context, userID int64) error {
	return r.pool.inTx(ctx, "delete user", func(tx *sql.Tx) error {
		// Copies on open loans go back on the shelf; the loans themselves cascade.
		if _, err := tx.ExecContext(ctx,
			`UPDATE books b SET available = b.available + o.cnt
			 FROM (SELECT book_id, COUNT(*) AS cnt FROM loans
			       WHERE user_id = $1 AND status IN ('active', 'reissued') GROUP BY book_id) o
			 WHERE b.id = o.book_id`, userID); err != nil {
			return fmt.Errorf("release open loans: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}
