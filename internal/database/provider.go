package database

import (
	"context"
	"errors"
	"fmt"
)

var errNotInitialized = errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")

var (
	postgresUserWriter  func() UserWriter
	postgresBookWriter  func() BookWriter
	postgresLoanWriter  func() LoanWriter
	descriptorIndex     *DescriptorIndex // Singleton for duplicate-enrollment checks
	descriptorCache     *CachedDescriptorReader
	postgresInitialized bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	users func() UserWriter,
	books func() BookWriter,
	loans func() LoanWriter,
) {
	postgresUserWriter = users
	postgresBookWriter = books
	postgresLoanWriter = loans
	postgresInitialized = true
}

// RegisterDescriptorIndex registers the process-wide descriptor index.
func RegisterDescriptorIndex(idx *DescriptorIndex) {
	descriptorIndex = idx
}

// GetDescriptorIndex returns the registered descriptor index, or nil if not registered.
func GetDescriptorIndex() *DescriptorIndex {
	return descriptorIndex
}

// RegisterDescriptorCache registers the process-wide stored-descriptor cache.
func RegisterDescriptorCache(c *CachedDescriptorReader) {
	descriptorCache = c
}

// GetDescriptorCache returns the registered cache, or nil if not registered.
func GetDescriptorCache() *CachedDescriptorReader {
	return descriptorCache
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// ResetForTesting clears every registration. Tests call it from t.Cleanup.
func ResetForTesting() {
	postgresUserWriter = nil
	postgresBookWriter = nil
	postgresLoanWriter = nil
	descriptorIndex = nil
	descriptorCache = nil
	postgresInitialized = false
}

// GetUserReader returns a UserReader from the PostgreSQL backend
func GetUserReader(ctx context.Context) (UserReader, error) {
	return GetUserWriter(ctx)
}

// GetUserWriter returns a UserWriter from the PostgreSQL backend
func GetUserWriter(ctx context.Context) (UserWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresUserWriter == nil {
		return nil, fmt.Errorf("PostgreSQL user writer not registered")
	}
	return postgresUserWriter(), nil
}

// GetBookReader returns a BookReader from the PostgreSQL backend
func GetBookReader(ctx context.Context) (BookReader, error) {
	return GetBookWriter(ctx)
}

// GetBookWriter returns a BookWriter from the PostgreSQL backend
func GetBookWriter(ctx context.Context) (BookWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresBookWriter == nil {
		return nil, fmt.Errorf("PostgreSQL book writer not registered")
	}
	return postgresBookWriter(), nil
}

// GetLoanReader returns a LoanReader from the PostgreSQL backend
func GetLoanReader(ctx context.Context) (LoanReader, error) {
	return GetLoanWriter(ctx)
}

// GetLoanWriter returns a LoanWriter from the PostgreSQL backend
func GetLoanWriter(ctx context.Context) (LoanWriter, error) {
	if !postgresInitialized {
		return nil, errNotInitialized
	}
	if postgresLoanWriter == nil {
		return nil, fmt.Errorf("PostgreSQL loan writer not registered")
	}
	return postgresLoanWriter(), nil
}
