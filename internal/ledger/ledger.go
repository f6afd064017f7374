package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"library-circulation/internal/models"
	"library-circulation/internal/policy"
)

var (
	// ErrConflict indicates the book already has an active loan, or the loan id is taken.
	ErrConflict = errors.New("active loan already exists")
	// ErrNotFound indicates an unknown loan identifier.
	ErrNotFound = errors.New("loan not found")
	// ErrAlreadyTerminal indicates the loan has already been returned.
	ErrAlreadyTerminal = errors.New("loan already returned")
	// ErrRenewalLimit indicates the loan reached its renewal cap.
	ErrRenewalLimit = errors.New("renewal limit reached")
)

// Mutation changes a non-terminal loan in place
type Mutation func(loan *models.Loan, p policy.Policy) error

// Renew extends the due date by one renewal
func Renew() Mutation {
	return func(loan *models.Loan, p policy.Policy) error {
		if loan.RenewalCount >= loan.MaxRenewals {
			return ErrRenewalLimit
		}
		loan.RenewalCount++
		loan.DueDate = p.DueDate(loan.BorrowDate, loan.RenewalCount)
		return nil
	}
}

// Return closes the loan at the given instant
func Return(at time.Time) Mutation {
	return func(loan *models.Loan, _ policy.Policy) error {
		loan.ReturnDate = &at
		return nil
	}
}

// Ledger stores every loan ever made, keyed by loan id, plus an index
// from book id to the book's active loan.
//
// Stored *models.Loan values are never modified after publication; updates
// swap in a fresh copy, so readers see either the old or the new record.
type Ledger struct {
	policy policy.Policy
	loans  sync.Map // loan id -> *models.Loan
	active sync.Map // book id -> *models.Loan
}

// New creates an empty ledger
func New(p policy.Policy) *Ledger {
	return &Ledger{policy: p}
}

// Policy returns the due date policy used by the ledger
func (l *Ledger) Policy() policy.Policy {
	return l.policy
}

// ActiveLoanFor returns the book's current non-returned loan, if any
func (l *Ledger) ActiveLoanFor(bookID string) (models.Loan, bool) {
	v, ok := l.active.Load(bookID)
	if !ok {
		return models.Loan{}, false
	}
	loan := v.(*models.Loan)
	if loan.IsReturned() {
		return models.Loan{}, false
	}
	return loan.Clone(), true
}

// IsOnLoan reports whether the book has an active loan
func (l *Ledger) IsOnLoan(bookID string) bool {
	_, ok := l.ActiveLoanFor(bookID)
	return ok
}

// Record inserts a new active loan.
// The book's active slot is claimed atomically, so two concurrent
// Records for the same book cannot both succeed.
func (l *Ledger) Record(loan models.Loan) error {
	if loan.IsReturned() {
		return fmt.Errorf("record loan %s: %w", loan.ID, ErrAlreadyTerminal)
	}
	stored := loan.Clone()
	if _, loaded := l.active.LoadOrStore(loan.BookID, &stored); loaded {
		return fmt.Errorf("record loan for book %s: %w", loan.BookID, ErrConflict)
	}
	if _, loaded := l.loans.LoadOrStore(loan.ID, &stored); loaded {
		l.active.CompareAndDelete(loan.BookID, &stored)
		return fmt.Errorf("record loan %s: duplicate id: %w", loan.ID, ErrConflict)
	}
	return nil
}

// Restore loads historical loans, returned or not, into an empty ledger
func (l *Ledger) Restore(loans []models.Loan) error {
	for _, loan := range loans {
		if loan.RenewalCount < 0 || loan.RenewalCount > loan.MaxRenewals {
			return fmt.Errorf("restore loan %s: renewal count %d out of range", loan.ID, loan.RenewalCount)
		}
		if !loan.IsReturned() {
			if err := l.Record(loan); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			continue
		}
		stored := loan.Clone()
		if _, loaded := l.loans.LoadOrStore(loan.ID, &stored); loaded {
			return fmt.Errorf("restore loan %s: duplicate id: %w", loan.ID, ErrConflict)
		}
	}
	return nil
}

// Get returns the loan with the given identifier
func (l *Ledger) Get(loanID string) (models.Loan, error) {
	v, ok := l.loans.Load(loanID)
	if !ok {
		return models.Loan{}, fmt.Errorf("%w: %s", ErrNotFound, loanID)
	}
	return v.(*models.Loan).Clone(), nil
}

// Update applies a mutation to a non-terminal loan and returns the new record.
// A failed mutation leaves the stored loan untouched.
func (l *Ledger) Update(loanID string, mutate Mutation) (models.Loan, error) {
	for {
		v, ok := l.loans.Load(loanID)
		if !ok {
			return models.Loan{}, fmt.Errorf("%w: %s", ErrNotFound, loanID)
		}
		current := v.(*models.Loan)
		if current.IsReturned() {
			return current.Clone(), fmt.Errorf("update loan %s: %w", loanID, ErrAlreadyTerminal)
		}

		next := current.Clone()
		if err := mutate(&next, l.policy); err != nil {
			return current.Clone(), fmt.Errorf("update loan %s: %w", loanID, err)
		}
		if !l.loans.CompareAndSwap(loanID, current, &next) {
			continue
		}

		if next.IsReturned() {
			l.active.CompareAndDelete(next.BookID, current)
		} else {
			l.active.CompareAndSwap(next.BookID, current, &next)
		}
		return next.Clone(), nil
	}
}

// LoansForBorrower returns every loan of the borrower, in no particular order
func (l *Ledger) LoansForBorrower(borrowerID string) []models.Loan {
	res := make([]models.Loan, 0)
	l.loans.Range(func(_, v any) bool {
		loan := v.(*models.Loan)
		if loan.BorrowerID == borrowerID {
			res = append(res, loan.Clone())
		}
		return true
	})
	return res
}

// All returns every loan in the ledger, in no particular order
func (l *Ledger) All() []models.Loan {
	res := make([]models.Loan, 0)
	l.loans.Range(func(_, v any) bool {
		res = append(res, v.(*models.Loan).Clone())
		return true
	})
	return res
}
