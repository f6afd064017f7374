package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"library-circulation/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

type ClickHouseDB struct {
	conn   clickhouse.Conn
	logger *zap.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool, logger *zap.Logger) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseDB{conn: conn, logger: logger}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/ directory)
	return nil
}

// LoadBooks returns all books ordered by the time they were first added
func (db *ClickHouseDB) LoadBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT id, title, author, isbn, publication_year, genre
		FROM books FINAL
		ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load books: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		var (
			book models.Book
			year int32
		)
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.ISBN, &year, &book.Genre); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		book.PublicationYear = int(year)
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}
	return books, nil
}

// SaveBook appends a new row version; the original added_at is kept so catalog order is stable
func (db *ClickHouseDB) SaveBook(ctx context.Context, book models.Book) error {
	var count uint64
	var addedAt time.Time
	row := db.conn.QueryRow(ctx, `SELECT count(), min(added_at) FROM books WHERE id = ?`, book.ID)
	if err := row.Scan(&count, &addedAt); err != nil {
		return fmt.Errorf("failed to look up book %s: %w", book.ID, err)
	}
	if count == 0 {
		addedAt = time.Now().UTC()
	}

	err := db.conn.Exec(ctx, `
		INSERT INTO books (id, title, author, isbn, publication_year, genre, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.ISBN, int32(book.PublicationYear), book.Genre, addedAt)
	if err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	return nil
}

// LoadLoans returns the newest revision of every loan
func (db *ClickHouseDB) LoadLoans(ctx context.Context) ([]models.Loan, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT id, book_id, borrower_id, borrow_date, due_date, return_date, renewal_count, max_renewals
		FROM loans FINAL
		ORDER BY borrow_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		var (
			loan        models.Loan
			returnDate  *time.Time
			renewals    uint8
			maxRenewals uint8
		)
		if err := rows.Scan(&loan.ID, &loan.BookID, &loan.BorrowerID, &loan.BorrowDate, &loan.DueDate,
			&returnDate, &renewals, &maxRenewals); err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loan.ReturnDate = returnDate
		loan.RenewalCount = int(renewals)
		loan.MaxRenewals = int(maxRenewals)
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loans: %w", err)
	}
	return loans, nil
}

// SaveLoan appends a new row version. ReplacingMergeTree keeps the highest revision.
func (db *ClickHouseDB) SaveLoan(ctx context.Context, loan models.Loan) error {
	var returnDate any
	if loan.ReturnDate != nil {
		returnDate = *loan.ReturnDate
	}
	err := db.conn.Exec(ctx, `
		INSERT INTO loans (id, book_id, borrower_id, borrow_date, due_date, return_date, renewal_count, max_renewals, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.BookID, loan.BorrowerID, loan.BorrowDate, loan.DueDate, returnDate,
		uint8(loan.RenewalCount), uint8(loan.MaxRenewals), loan.Revision())
	if err != nil {
		return fmt.Errorf("failed to save loan: %w", err)
	}
	db.logger.Debug("Loan saved to ClickHouse",
		zap.String("loan_id", loan.ID),
		zap.Uint64("revision", loan.Revision()),
	)
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
