//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/faceauth"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testDescriptor(v float32) []float32 {
	d := make([]float32, faceauth.DescriptorSize)
	for i := range d {
		d[i] = v
	}
	return d
}

func TestUserRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewUserRepository(pool)

	descriptor := testDescriptor(0.05)
	doc, err := faceauth.EncodeStoredRecord(faceauth.FromFloat32(descriptor), time.Now())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	user := &database.User{
		Name:         "Ada Lovelace",
		Email:        "Ada@Example.com",
		EnrollmentID: "S-1001",
		PasswordHash: "$2a$10$hash",
		FacialData:   doc,
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		if err := repo.CreateUserWithDescriptor(ctx, user, descriptor); err != nil {
			t.Fatalf("Failed to create user: %v", err)
		}
		if user.ID == 0 {
			t.Fatal("Expected ID to be set")
		}

		got, err := repo.GetUserByEmail(ctx, "ada@example.com")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if got == nil || got.ID != user.ID {
			t.Fatalf("Expected user %d, got %+v", user.ID, got)
		}

		got, err = repo.GetUserByEnrollmentID(ctx, "S-1001")
		if err != nil || got == nil {
			t.Fatalf("Expected user by enrollment ID, got %+v err=%v", got, err)
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup := &database.User{Name: "Other", Email: "ADA@example.com", PasswordHash: "x"}
		if err := repo.CreateUser(ctx, dup); !errors.Is(err, database.ErrDuplicateEmail) {
			t.Errorf("Expected ErrDuplicateEmail, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		got, err := repo.GetUser(ctx, 999999)
		if err != nil || got != nil {
			t.Errorf("Expected nil, nil for missing user, got %+v, %v", got, err)
		}
		_, found, err := repo.GetFacialData(ctx, 999999)
		if err != nil || found {
			t.Errorf("Expected not found, got found=%v err=%v", found, err)
		}
	})

	t.Run("FacialDataRoundTrip", func(t *testing.T) {
		raw, found, err := repo.GetFacialData(ctx, user.ID)
		if err != nil || !found {
			t.Fatalf("Failed to get facial data: found=%v err=%v", found, err)
		}
		stored := faceauth.ParseStoredRecord(raw)
		result := faceauth.Verify(stored, faceauth.FromFloat32(descriptor), faceauth.DefaultThreshold)
		if !result.Accepted {
			t.Errorf("Expected stored enrollment to verify, got %+v", result)
		}
	})

	t.Run("EnrolledDescriptors", func(t *testing.T) {
		entries, err := repo.ListEnrolledDescriptors(ctx)
		if err != nil {
			t.Fatalf("Failed to list descriptors: %v", err)
		}
		if len(entries) != 1 || entries[0].UserID != user.ID || len(entries[0].Descriptor) != 128 {
			t.Errorf("Unexpected entries %+v", entries)
		}

		if err := repo.UpdateFacialData(ctx, user.ID, []byte("corrupt"), nil); err != nil {
			t.Fatalf("Failed to update facial data: %v", err)
		}
		entries, err = repo.ListEnrolledDescriptors(ctx)
		if err != nil {
			t.Fatalf("Failed to list descriptors: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("Expected corrupt enrollment to drop out of vector column, got %d", len(entries))
		}
	})
}

func TestLoanRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	books := NewBookRepository(pool)
	loans := NewLoanRepository(pool)

	user := &database.User{Name: "Reader", Email: "reader@example.com", PasswordHash: "x"}
	if err := users.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	book := &database.Book{Title: "Dune", Author: "Frank Herbert", Barcode: "978-0441013593", Quantity: 1}
	if err := books.CreateBook(ctx, book); err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}
	if err := books.CreateBook(ctx, &database.Book{Title: "Dup", Barcode: book.Barcode, Quantity: 1}); !errors.Is(err, database.ErrDuplicateBarcode) {
		t.Errorf("Expected ErrDuplicateBarcode, got %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	loan := &database.Loan{UserID: user.ID, BookID: book.ID, IssuedAt: now, DueAt: now.Add(14 * 24 * time.Hour)}

	t.Run("Issue", func(t *testing.T) {
		if err := loans.IssueLoan(ctx, loan); err != nil {
			t.Fatalf("Failed to issue loan: %v", err)
		}
		if loan.Reference == "" || loan.ID == 0 {
			t.Errorf("Expected reference and ID, got %+v", loan)
		}

		got, _ := books.GetBook(ctx, book.ID)
		if got.Available != 0 {
			t.Errorf("Expected 0 available, got %d", got.Available)
		}

		second := &database.Loan{UserID: user.ID, BookID: book.ID, IssuedAt: now, DueAt: now}
		if err := loans.IssueLoan(ctx, second); !errors.Is(err, database.ErrNoCopiesAvailable) {
			t.Errorf("Expected ErrNoCopiesAvailable, got %v", err)
		}
	})

	t.Run("ListOpen", func(t *testing.T) {
		open, err := loans.ListOpenLoans(ctx, user.ID)
		if err != nil {
			t.Fatalf("Failed to list loans: %v", err)
		}
		if len(open) != 1 || open[0].Book.Title != "Dune" {
			t.Errorf("Unexpected open loans %+v", open)
		}
	})

	t.Run("Reissue", func(t *testing.T) {
		due := loan.DueAt.Add(7 * 24 * time.Hour)
		if err := loans.ReissueLoan(ctx, loan.ID, due); err != nil {
			t.Fatalf("Failed to reissue: %v", err)
		}
		if err := loans.ReissueLoan(ctx, loan.ID, due); !errors.Is(err, database.ErrLoanClosed) {
			t.Errorf("Expected second reissue to fail with ErrLoanClosed, got %v", err)
		}
		got, _ := loans.GetLoan(ctx, loan.ID)
		if got.Status != database.LoanReissued || !got.DueAt.Equal(due) {
			t.Errorf("Unexpected loan after reissue %+v", got)
		}
	})

	t.Run("Return", func(t *testing.T) {
		if err := loans.ReturnLoan(ctx, loan.ID, now, ""); err != nil {
			t.Fatalf("Failed to return: %v", err)
		}
		if err := loans.ReturnLoan(ctx, loan.ID, now, ""); !errors.Is(err, database.ErrLoanClosed) {
			t.Errorf("Expected ErrLoanClosed on double return, got %v", err)
		}
		got, _ := books.GetBook(ctx, book.ID)
		if got.Available != 1 {
			t.Errorf("Expected 1 available after return, got %d", got.Available)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	users := NewUserRepository(pool)
	repo := NewSessionRepository(pool)

	user := &database.User{Name: "S", Email: "s@example.com", PasswordHash: "x"}
	if err := users.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	now := time.Now()
	s := middleware.StoredSession{
		ID: "abc", UserID: user.ID, State: "awaiting_face", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	s.State = "authenticated"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}

	got, err := repo.Get(ctx, "abc")
	if err != nil || got == nil {
		t.Fatalf("Failed to get session: %+v %v", got, err)
	}
	if got.State != "authenticated" || got.UserID != user.ID {
		t.Errorf("Unexpected session %+v", got)
	}

	expired := middleware.StoredSession{
		ID: "old", UserID: user.ID, State: "authenticated", CreatedAt: now, ExpiresAt: now.Add(-time.Hour),
	}
	if err := repo.Save(ctx, expired); err != nil {
		t.Fatalf("Failed to save expired session: %v", err)
	}
	n, err := repo.DeleteExpired(ctx)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 expired session deleted, got %d err=%v", n, err)
	}
}

func TestMigrationsApplied(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	versions, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(versions) == 0 || versions[0].Version != "001_init.sql" || versions[0].AppliedAt.IsZero() {
		t.Errorf("Unexpected migrations %v", versions)
	}

	// Applying again is a no-op.
	if err := pool.Migrate(context.Background()); err != nil {
		t.Errorf("Second migrate failed: %v", err)
	}
	again, err := pool.MigrationsApplied(context.Background())
	if err != nil || len(again) != len(versions) {
		t.Errorf("Second migrate changed history: %v, %v", again, err)
	}
}
