package stubs

import (
	"context"
	"testing"
	"time"

	"library-circulation/internal/models"
)

func TestMockDB_InitializeLeavesStoreEmpty(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	books, err := db.LoadBooks(ctx)
	if err != nil {
		t.Fatalf("Failed to load books: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("Expected an empty catalog, got %d books", len(books))
	}
}

func TestNewSeededMockDB(t *testing.T) {
	db := NewSeededMockDB()
	ctx := context.Background()

	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	books, err := db.LoadBooks(ctx)
	if err != nil {
		t.Fatalf("Failed to load books: %v", err)
	}

	if len(books) != len(DefaultBooks()) {
		t.Fatalf("Expected %d books, got %d", len(DefaultBooks()), len(books))
	}

	// Books keep insertion order
	for i, book := range DefaultBooks() {
		if books[i].ID != book.ID {
			t.Errorf("Expected book %s at position %d, got %s", book.ID, i, books[i].ID)
		}
	}
}

func TestMockDB_SaveBook(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	if err := db.SaveBook(ctx, models.Book{ID: "b1", Title: "First"}); err != nil {
		t.Fatalf("Failed to save book: %v", err)
	}
	if err := db.SaveBook(ctx, models.Book{ID: "b2", Title: "Second"}); err != nil {
		t.Fatalf("Failed to save book: %v", err)
	}
	// Replacing keeps the original position
	if err := db.SaveBook(ctx, models.Book{ID: "b1", Title: "First, revised"}); err != nil {
		t.Fatalf("Failed to save book: %v", err)
	}

	books, err := db.LoadBooks(ctx)
	if err != nil {
		t.Fatalf("Failed to load books: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("Expected 2 books, got %d", len(books))
	}
	if books[0].ID != "b1" || books[0].Title != "First, revised" {
		t.Errorf("Expected replaced b1 first, got %+v", books[0])
	}
}

func TestMockDB_SaveLoan(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	borrowed := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	loan := models.Loan{
		ID:          "L1",
		BookID:      "4",
		BorrowerID:  "jane",
		BorrowDate:  borrowed,
		DueDate:     borrowed.AddDate(0, 0, 31),
		MaxRenewals: 2,
	}
	if err := db.SaveLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to save loan: %v", err)
	}

	earlier := loan
	earlier.ID = "L0"
	earlier.BookID = "1"
	earlier.BorrowDate = borrowed.AddDate(0, 0, -5)
	if err := db.SaveLoan(ctx, earlier); err != nil {
		t.Fatalf("Failed to save loan: %v", err)
	}

	// Returning replaces the record
	returned := borrowed.AddDate(0, 0, 3)
	loan.ReturnDate = &returned
	if err := db.SaveLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to save loan: %v", err)
	}

	loans, err := db.LoadLoans(ctx)
	if err != nil {
		t.Fatalf("Failed to load loans: %v", err)
	}
	if len(loans) != 2 {
		t.Fatalf("Expected 2 loans, got %d", len(loans))
	}

	// Loans are ordered by borrow date
	if loans[0].ID != "L0" || loans[1].ID != "L1" {
		t.Errorf("Expected L0 then L1, got %s then %s", loans[0].ID, loans[1].ID)
	}
	if loans[1].ReturnDate == nil || !loans[1].ReturnDate.Equal(returned) {
		t.Errorf("Expected L1 to be returned at %s", returned)
	}
}

func TestMockDB_SaveLoanKeepsNewestRevision(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	borrowed := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	returned := borrowed.AddDate(0, 0, 2)
	loan := models.Loan{ID: "L1", BookID: "4", BorrowerID: "jane", BorrowDate: borrowed, DueDate: borrowed.AddDate(0, 0, 31), MaxRenewals: 2}

	closed := loan
	closed.ReturnDate = &returned
	if err := db.SaveLoan(ctx, closed); err != nil {
		t.Fatalf("Failed to save loan: %v", err)
	}

	// A late write of the open version must not resurrect the loan
	if err := db.SaveLoan(ctx, loan); err != nil {
		t.Fatalf("Failed to save loan: %v", err)
	}

	loans, _ := db.LoadLoans(ctx)
	if len(loans) != 1 || loans[0].ReturnDate == nil {
		t.Errorf("Expected the returned version to win, got %+v", loans)
	}
}
