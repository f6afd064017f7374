package circulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"library-circulation/internal/catalog"
	"library-circulation/internal/ledger"
	"library-circulation/internal/models"
)

const defaultLockTimeout = 250 * time.Millisecond

// RecordStore persists catalog and loan records after a transition commits
type RecordStore interface {
	SaveBook(ctx context.Context, book models.Book) error
	SaveLoan(ctx context.Context, loan models.Loan) error
}

// Options tune the service. Zero values select defaults.
type Options struct {
	LockTimeout      time.Duration
	AllowedBorrowers []string // empty allows any non-blank borrower id
	Clock            Clock
}

// Service orchestrates borrow, return and renew over the catalog and the ledger
type Service struct {
	catalog *catalog.Index
	ledger  *ledger.Ledger
	store   RecordStore
	clock   Clock
	logger  *zap.Logger

	lockTimeout      time.Duration
	allowedBorrowers map[string]bool
	locks            sync.Map // book id -> *semaphore.Weighted
}

// NewService creates a circulation service. store may be nil for a purely in-memory service.
func NewService(cat *catalog.Index, led *ledger.Ledger, store RecordStore, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}

	var allowed map[string]bool
	if len(opts.AllowedBorrowers) > 0 {
		allowed = make(map[string]bool, len(opts.AllowedBorrowers))
		for _, id := range opts.AllowedBorrowers {
			allowed[id] = true
		}
	}

	return &Service{
		catalog:          cat,
		ledger:           led,
		store:            store,
		clock:            opts.Clock,
		logger:           logger,
		lockTimeout:      opts.LockTimeout,
		allowedBorrowers: allowed,
	}
}

// Restore loads persisted books and loans into an empty service
func (s *Service) Restore(books []models.Book, loans []models.Loan) error {
	for _, book := range books {
		if err := s.catalog.Add(book); err != nil {
			return fmt.Errorf("failed to restore catalog: %w", err)
		}
	}
	for _, loan := range loans {
		if _, ok := s.catalog.Get(loan.BookID); !ok {
			s.logger.Warn("Loan references unknown book",
				zap.String("loan_id", loan.ID),
				zap.String("book_id", loan.BookID),
			)
		}
	}
	if err := s.ledger.Restore(loans); err != nil {
		return fmt.Errorf("failed to restore loans: %w", err)
	}
	s.logger.Info("Circulation state restored",
		zap.Int("books", len(books)),
		zap.Int("loans", len(loans)),
	)
	return nil
}

// AddBook registers a new book in the catalog and persists it
func (s *Service) AddBook(ctx context.Context, book models.Book) (BookView, error) {
	book.ID = strings.TrimSpace(book.ID)
	book.Title = strings.TrimSpace(book.Title)
	if book.ID == "" || book.Title == "" {
		return BookView{}, fmt.Errorf("%w: book id and title are required", ErrValidation)
	}
	if err := s.catalog.Add(book); err != nil {
		if errors.Is(err, catalog.ErrDuplicateBook) {
			return BookView{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return BookView{}, err
	}

	if s.store != nil {
		if err := s.store.SaveBook(ctx, book); err != nil {
			s.logger.Error("Failed to persist book", zap.Error(err), zap.String("book_id", book.ID))
		}
	}
	s.logger.Info("Book added", zap.String("book_id", book.ID), zap.String("title", book.Title))
	return newBookView(catalog.Entry{Book: book, Available: !s.ledger.IsOnLoan(book.ID)}), nil
}

// ListBooks returns the catalog entries matching the filter, in catalog order
func (s *Service) ListBooks(f catalog.Filter) []BookView {
	entries := s.catalog.Query(f, s.ledger.IsOnLoan)
	views := make([]BookView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newBookView(e))
	}
	return views
}

// Genres returns the distinct catalog genres
func (s *Service) Genres() []string {
	return s.catalog.Genres()
}

// Stats returns catalog-wide availability counters
func (s *Service) Stats() catalog.Stats {
	return s.catalog.Stats(s.ledger.IsOnLoan)
}

// BorrowBook lends a book to a borrower
func (s *Service) BorrowBook(ctx context.Context, bookID, borrowerID string) (LoanView, error) {
	bookID = strings.TrimSpace(bookID)
	borrowerID = strings.TrimSpace(borrowerID)
	if bookID == "" {
		return LoanView{}, fmt.Errorf("%w: book id is required", ErrValidation)
	}
	if borrowerID == "" {
		return LoanView{}, fmt.Errorf("%w: borrower id is required", ErrValidation)
	}
	if s.allowedBorrowers != nil && !s.allowedBorrowers[borrowerID] {
		return LoanView{}, fmt.Errorf("%w: unknown borrower %s", ErrValidation, borrowerID)
	}

	book, ok := s.catalog.Get(bookID)
	if !ok {
		return LoanView{}, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
	}

	unlock, err := s.lockBook(ctx, bookID)
	if err != nil {
		return LoanView{}, err
	}

	if s.ledger.IsOnLoan(bookID) {
		unlock()
		s.logger.Debug("Borrow rejected, book on loan",
			zap.String("book_id", bookID),
			zap.String("borrower_id", borrowerID),
		)
		return LoanView{}, fmt.Errorf("%w: %s", ErrAlreadyBorrowed, bookID)
	}

	now := s.clock.Now()
	p := s.ledger.Policy()
	loan := models.Loan{
		ID:          uuid.NewString(),
		BookID:      bookID,
		BorrowerID:  borrowerID,
		BorrowDate:  now,
		DueDate:     p.DueDate(now, 0),
		MaxRenewals: p.MaxRenewals,
	}
	err = s.ledger.Record(loan)
	unlock()
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return LoanView{}, fmt.Errorf("%w: %s", ErrAlreadyBorrowed, bookID)
		}
		return LoanView{}, err
	}

	s.persistLoan(ctx, loan)
	s.logger.Info("Book borrowed",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", bookID),
		zap.String("borrower_id", borrowerID),
		zap.Time("due_date", loan.DueDate),
	)
	return newLoanView(loan, book, now), nil
}

// ReturnBook closes a loan and makes the book available again
func (s *Service) ReturnBook(ctx context.Context, loanID string) (LoanView, error) {
	loan, err := s.mutate(ctx, loanID, func(now time.Time) ledger.Mutation { return ledger.Return(now) })
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyTerminal) {
			return LoanView{}, fmt.Errorf("%w: %s", ErrDuplicateReturn, loanID)
		}
		return LoanView{}, err
	}

	s.logger.Info("Book returned",
		zap.String("loan_id", loan.ID),
		zap.String("book_id", loan.BookID),
		zap.String("borrower_id", loan.BorrowerID),
	)
	return s.view(loan), nil
}

// RenewLoan extends the due date of an active loan by one renewal
func (s *Service) RenewLoan(ctx context.Context, loanID string) (LoanView, error) {
	loan, err := s.mutate(ctx, loanID, func(time.Time) ledger.Mutation { return ledger.Renew() })
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyTerminal):
			return LoanView{}, fmt.Errorf("%w: loan %s is returned", ErrInvalidState, loanID)
		case errors.Is(err, ledger.ErrRenewalLimit):
			return LoanView{}, fmt.Errorf("%w: loan %s", ErrRenewalLimitExceeded, loanID)
		}
		return LoanView{}, err
	}

	s.logger.Info("Loan renewed",
		zap.String("loan_id", loan.ID),
		zap.Int("renewal_count", loan.RenewalCount),
		zap.Time("due_date", loan.DueDate),
	)
	return s.view(loan), nil
}

// GetLoan returns a single loan
func (s *Service) GetLoan(loanID string) (LoanView, error) {
	loan, err := s.ledger.Get(strings.TrimSpace(loanID))
	if err != nil {
		return LoanView{}, fmt.Errorf("%w: %s", ErrLoanNotFound, loanID)
	}
	return s.view(loan), nil
}

// GetLoansForBorrower returns the borrower's loans matching the filter,
// newest borrow first
func (s *Service) GetLoansForBorrower(borrowerID string, filter StatusFilter) []LoanView {
	now := s.clock.Now()
	loans := s.ledger.LoansForBorrower(strings.TrimSpace(borrowerID))
	views := make([]LoanView, 0, len(loans))
	for _, loan := range loans {
		if !filter.matches(loan.StatusAt(now)) {
			continue
		}
		book, _ := s.catalog.Get(loan.BookID)
		views = append(views, newLoanView(loan, book, now))
	}
	sortLoanViews(views)
	return views
}

// BorrowerSummary counts the borrower's active, returned and overdue loans
func (s *Service) BorrowerSummary(borrowerID string) BorrowerSummary {
	now := s.clock.Now()
	var summary BorrowerSummary
	for _, loan := range s.ledger.LoansForBorrower(strings.TrimSpace(borrowerID)) {
		switch loan.StatusAt(now) {
		case models.StatusReturned:
			summary.Returned++
		case models.StatusOverdue:
			summary.Overdue++
			summary.Active++
		default:
			summary.Active++
		}
	}
	return summary
}

// mutate applies a ledger mutation to a loan while holding its book's lock
func (s *Service) mutate(ctx context.Context, loanID string, build func(now time.Time) ledger.Mutation) (models.Loan, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return models.Loan{}, fmt.Errorf("%w: loan id is required", ErrValidation)
	}
	current, err := s.ledger.Get(loanID)
	if err != nil {
		return models.Loan{}, fmt.Errorf("%w: %s", ErrLoanNotFound, loanID)
	}

	unlock, err := s.lockBook(ctx, current.BookID)
	if err != nil {
		return models.Loan{}, err
	}
	updated, err := s.ledger.Update(loanID, build(s.clock.Now()))
	unlock()
	if err != nil {
		s.logger.Debug("Loan mutation rejected", zap.String("loan_id", loanID), zap.Error(err))
		return models.Loan{}, err
	}

	s.persistLoan(ctx, updated)
	return updated, nil
}

// lockBook acquires the per-book lock, waiting at most lockTimeout
func (s *Service) lockBook(ctx context.Context, bookID string) (func(), error) {
	v, ok := s.locks.Load(bookID)
	if !ok {
		v, _ = s.locks.LoadOrStore(bookID, semaphore.NewWeighted(1))
	}
	sem := v.(*semaphore.Weighted)

	waitCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for book %s: %w", bookID, ctxErr)
		}
		s.logger.Warn("Book lock wait exceeded",
			zap.String("book_id", bookID),
			zap.Duration("timeout", s.lockTimeout),
		)
		return nil, fmt.Errorf("%w: book %s", ErrBusy, bookID)
	}
	return func() { sem.Release(1) }, nil
}

func (s *Service) persistLoan(ctx context.Context, loan models.Loan) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveLoan(ctx, loan); err != nil {
		s.logger.Error("Failed to persist loan",
			zap.Error(err),
			zap.String("loan_id", loan.ID),
			zap.String("book_id", loan.BookID),
		)
	}
}

func (s *Service) view(loan models.Loan) LoanView {
	book, _ := s.catalog.Get(loan.BookID)
	return newLoanView(loan, book, s.clock.Now())
}
