package circulation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"library-circulation/internal/catalog"
	"library-circulation/internal/models"
)

const dueSoonDays = 3

// BookView is a catalog book with its derived availability
type BookView struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	PublicationYear int    `json:"publication_year"`
	Genre           string `json:"genre,omitempty"`
	Available       bool   `json:"available"`
}

// LoanView is a loan as seen at response time
type LoanView struct {
	ID           string            `json:"id"`
	BookID       string            `json:"book_id"`
	BookTitle    string            `json:"book_title,omitempty"`
	BookAuthor   string            `json:"book_author,omitempty"`
	BookISBN     string            `json:"book_isbn,omitempty"`
	BorrowerID   string            `json:"borrower_id"`
	BorrowDate   time.Time         `json:"borrow_date"`
	DueDate      time.Time         `json:"due_date"`
	ReturnDate   *time.Time        `json:"return_date"`
	Status       models.LoanStatus `json:"status"`
	RenewalCount int               `json:"renewal_count"`
	MaxRenewals  int               `json:"max_renewals"`
	DaysUntilDue int               `json:"days_until_due"`
	DueSoon      bool              `json:"due_soon"`
}

// BorrowerSummary counts a borrower's loans by status
type BorrowerSummary struct {
	Active   int `json:"active"`
	Returned int `json:"returned"`
	Overdue  int `json:"overdue"`
}

// StatusFilter selects loans by derived status
type StatusFilter string

const (
	FilterAll      StatusFilter = ""
	FilterActive   StatusFilter = "active"
	FilterBorrowed StatusFilter = "borrowed"
	FilterOverdue  StatusFilter = "overdue"
	FilterReturned StatusFilter = "returned"
)

// ParseStatusFilter validates a status filter string
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterActive, FilterBorrowed, FilterOverdue, FilterReturned:
		return f, nil
	case "all":
		return FilterAll, nil
	default:
		return FilterAll, fmt.Errorf("%w: unknown status filter %q", ErrValidation, s)
	}
}

func (f StatusFilter) matches(status models.LoanStatus) bool {
	switch f {
	case FilterActive:
		return status != models.StatusReturned
	case FilterBorrowed:
		return status == models.StatusBorrowed
	case FilterOverdue:
		return status == models.StatusOverdue
	case FilterReturned:
		return status == models.StatusReturned
	default:
		return true
	}
}

func newBookView(e catalog.Entry) BookView {
	return BookView{
		ID:              e.Book.ID,
		Title:           e.Book.Title,
		Author:          e.Book.Author,
		ISBN:            e.Book.ISBN,
		PublicationYear: e.Book.PublicationYear,
		Genre:           e.Book.Genre,
		Available:       e.Available,
	}
}

// newLoanView derives status and due-date hints at now
func newLoanView(loan models.Loan, book models.Book, now time.Time) LoanView {
	status := loan.StatusAt(now)
	v := LoanView{
		ID:           loan.ID,
		BookID:       loan.BookID,
		BookTitle:    book.Title,
		BookAuthor:   book.Author,
		BookISBN:     book.ISBN,
		BorrowerID:   loan.BorrowerID,
		BorrowDate:   loan.BorrowDate,
		DueDate:      loan.DueDate,
		ReturnDate:   loan.Clone().ReturnDate,
		Status:       status,
		RenewalCount: loan.RenewalCount,
		MaxRenewals:  loan.MaxRenewals,
	}
	if status != models.StatusReturned {
		v.DaysUntilDue = daysUntil(loan.DueDate, now)
		v.DueSoon = status == models.StatusBorrowed && v.DaysUntilDue <= dueSoonDays
	}
	return v
}

func daysUntil(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

// sortLoanViews orders by borrow date, newest first, then by id
func sortLoanViews(views []LoanView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].BorrowDate.Equal(views[j].BorrowDate) {
			return views[i].BorrowDate.After(views[j].BorrowDate)
		}
		return views[i].ID < views[j].ID
	})
}
