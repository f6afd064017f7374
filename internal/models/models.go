package models

import "time"

// Book represents a catalog entry
type Book struct {
	ID              string
	Title           string
	Author          string
	ISBN            string
	PublicationYear int
	Genre           string // optional
}

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	StatusBorrowed LoanStatus = "borrowed"
	StatusOverdue  LoanStatus = "overdue"
	StatusReturned LoanStatus = "returned"
)

// Loan represents one book lent to one borrower.
//
// Status is not stored: it is derived from ReturnDate and DueDate with StatusAt.
type Loan struct {
	ID           string
	BookID       string
	BorrowerID   string
	BorrowDate   time.Time
	DueDate      time.Time
	ReturnDate   *time.Time
	RenewalCount int
	MaxRenewals  int
}

// IsReturned reports whether the loan reached its terminal state
func (l Loan) IsReturned() bool {
	return l.ReturnDate != nil
}

// StatusAt derives the loan status at the given instant
func (l Loan) StatusAt(now time.Time) LoanStatus {
	if l.ReturnDate != nil {
		return StatusReturned
	}
	if now.After(l.DueDate) {
		return StatusOverdue
	}
	return StatusBorrowed
}

// Revision orders the versions of one loan record.
// Loans only move forward: each renewal raises it, and returning raises it past any renewal.
func (l Loan) Revision() uint64 {
	rev := uint64(l.RenewalCount)
	if l.ReturnDate != nil {
		rev += 1 << 16
	}
	return rev
}

// Clone returns a copy that shares no pointers with l
func (l Loan) Clone() Loan {
	if l.ReturnDate != nil {
		rd := *l.ReturnDate
		l.ReturnDate = &rd
	}
	return l
}
