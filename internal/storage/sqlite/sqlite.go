package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"library-circulation/internal/models"
)

// SQLiteDB is an embedded single-file record store
type SQLiteDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database file at path
func Open(path string, logger *zap.Logger) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteDB{db: db, logger: logger}, nil
}

// Initialize creates the schema
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS books (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	isbn TEXT NOT NULL,
	publication_year INTEGER NOT NULL,
	genre TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL,
	borrower_id TEXT NOT NULL,
	borrow_date TEXT NOT NULL,
	due_date TEXT NOT NULL,
	return_date TEXT,
	renewal_count INTEGER NOT NULL,
	max_renewals INTEGER NOT NULL,
	revision INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS loans_active_by_book ON loans(book_id) WHERE return_date IS NULL;
`)
	if err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return nil
}

// isoLayout is fixed width so that text order in SQL matches time order
const isoLayout = "2006-01-02T15:04:05.000000000Z07:00"

func iso(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func parseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// LoadBooks returns all books in insertion order
func (s *SQLiteDB) LoadBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, author, isbn, publication_year, genre FROM books ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		var book models.Book
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &book.PublicationYear, &book.Genre); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return books, nil
}

// SaveBook inserts or replaces a book, keeping its position
func (s *SQLiteDB) SaveBook(ctx context.Context, book models.Book) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO books(id, title, author, isbn, publication_year, genre)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	author = excluded.author,
	isbn = excluded.isbn,
	publication_year = excluded.publication_year,
	genre = excluded.genre`,
		book.ID, book.Title, book.Author, book.ISBN, book.PublicationYear, book.Genre)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

// LoadLoans returns every loan ordered by borrow date
func (s *SQLiteDB) LoadLoans(ctx context.Context) ([]models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, book_id, borrower_id, borrow_date, due_date, return_date, renewal_count, max_renewals
FROM loans ORDER BY borrow_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		var (
			loan                models.Loan
			borrowDate, dueDate string
			returnDate          sql.NullString
		)
		if err := rows.Scan(&loan.ID, &loan.BookID, &loan.BorrowerID, &borrowDate, &dueDate, &returnDate,
			&loan.RenewalCount, &loan.MaxRenewals); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		if loan.BorrowDate, err = parseISO(borrowDate); err != nil {
			return nil, fmt.Errorf("loan %s: bad borrow_date: %w", loan.ID, err)
		}
		if loan.DueDate, err = parseISO(dueDate); err != nil {
			return nil, fmt.Errorf("loan %s: bad due_date: %w", loan.ID, err)
		}
		if returnDate.Valid {
			rd, err := parseISO(returnDate.String)
			if err != nil {
				return nil, fmt.Errorf("loan %s: bad return_date: %w", loan.ID, err)
			}
			loan.ReturnDate = &rd
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

// SaveLoan upserts a loan. A write carrying an older revision is ignored.
func (s *SQLiteDB) SaveLoan(ctx context.Context, loan models.Loan) error {
	var returnDate sql.NullString
	if loan.ReturnDate != nil {
		returnDate = sql.NullString{String: iso(*loan.ReturnDate), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO loans(id, book_id, borrower_id, borrow_date, due_date, return_date, renewal_count, max_renewals, revision)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	due_date = excluded.due_date,
	return_date = excluded.return_date,
	renewal_count = excluded.renewal_count,
	revision = excluded.revision
WHERE excluded.revision >= loans.revision`,
		loan.ID, loan.BookID, loan.BorrowerID, iso(loan.BorrowDate), iso(loan.DueDate), returnDate,
		loan.RenewalCount, loan.MaxRenewals, int64(loan.Revision()))
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("Stale loan write ignored",
			zap.String("loan_id", loan.ID),
			zap.Uint64("revision", loan.Revision()),
		)
	}
	return nil
}

// Close closes the database
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
