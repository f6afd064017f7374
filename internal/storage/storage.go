package storage

import (
	"context"

	"library-circulation/internal/models"
)

// Storage defines the interface for the durable record store
type Storage interface {
	// Book operations

	// LoadBooks returns every book in catalog insertion order
	LoadBooks(ctx context.Context) ([]models.Book, error)
	// SaveBook inserts or replaces a book record
	SaveBook(ctx context.Context, book models.Book) error

	// Loan operations

	// LoadLoans returns the latest version of every loan, returned ones included
	LoadLoans(ctx context.Context) ([]models.Loan, error)
	// SaveLoan inserts or replaces a loan record keyed by its id
	SaveLoan(ctx context.Context, loan models.Loan) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
