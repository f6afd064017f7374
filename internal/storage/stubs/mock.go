package stubs

import (
	"context"
	"sort"
	"sync"

	"library-circulation/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface for testing and local runs
type MockDB struct {
	mu        sync.RWMutex
	books     map[string]models.Book
	bookOrder []string
	loans     map[string]models.Loan
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		books: make(map[string]models.Book),
		loans: make(map[string]models.Loan),
	}
}

// NewSeededMockDB creates a mock database holding the demo catalog
func NewSeededMockDB() *MockDB {
	m := NewMockDB()
	for _, book := range DefaultBooks() {
		m.putBook(book)
	}
	return m
}

// DefaultBooks is the demo catalog used to seed empty stores
func DefaultBooks() []models.Book {
	return []models.Book{
		{ID: "1", Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "978-0-7432-7356-5", PublicationYear: 1925, Genre: "Classic Literature"},
		{ID: "2", Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "978-0-06-112008-4", PublicationYear: 1960, Genre: "Fiction"},
		{ID: "3", Title: "1984", Author: "George Orwell", ISBN: "978-0-452-28423-4", PublicationYear: 1949, Genre: "Dystopian Fiction"},
		{ID: "4", Title: "Pride and Prejudice", Author: "Jane Austen", ISBN: "978-0-14-143951-8", PublicationYear: 1813, Genre: "Romance"},
		{ID: "5", Title: "The Catcher in the Rye", Author: "J.D. Salinger", ISBN: "978-0-316-76948-0", PublicationYear: 1951, Genre: "Coming-of-age"},
		{ID: "6", Title: "Harry Potter and the Sorcerer's Stone", Author: "J.K. Rowling", ISBN: "978-0-439-70818-8", PublicationYear: 1997, Genre: "Fantasy"},
		{ID: "7", Title: "The Lord of the Rings", Author: "J.R.R. Tolkien", ISBN: "978-0-544-00341-5", PublicationYear: 1954, Genre: "Fantasy"},
		{ID: "8", Title: "Dune", Author: "Frank Herbert", ISBN: "978-0-441-17271-9", PublicationYear: 1965, Genre: "Science Fiction"},
		{ID: "9", Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "978-0-547-92822-7", PublicationYear: 1937, Genre: "Fantasy"},
	}
}

// Initialize does nothing for mock DB, there is no schema to create
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// LoadBooks returns all books in insertion order
func (m *MockDB) LoadBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0, len(m.bookOrder))
	for _, id := range m.bookOrder {
		books = append(books, m.books[id])
	}
	return books, nil
}

// SaveBook inserts or replaces a book
func (m *MockDB) SaveBook(ctx context.Context, book models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putBook(book)
	return nil
}

// LoadLoans returns all loans sorted by borrow date
func (m *MockDB) LoadLoans(ctx context.Context) ([]models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loans := make([]models.Loan, 0, len(m.loans))
	for _, loan := range m.loans {
		loans = append(loans, loan.Clone())
	}

	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].BorrowDate.Equal(loans[j].BorrowDate) {
			return loans[i].BorrowDate.Before(loans[j].BorrowDate)
		}
		return loans[i].ID < loans[j].ID
	})

	return loans, nil
}

// SaveLoan inserts or replaces a loan. Older revisions never overwrite newer ones.
func (m *MockDB) SaveLoan(ctx context.Context, loan models.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.loans[loan.ID]; ok && existing.Revision() > loan.Revision() {
		return nil
	}
	m.loans[loan.ID] = loan.Clone()
	return nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func (m *MockDB) putBook(book models.Book) {
	if _, exists := m.books[book.ID]; !exists {
		m.bookOrder = append(m.bookOrder, book.ID)
	}
	m.books[book.ID] = book
}
