package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"library-circulation/internal/models"
)

var (
	// ErrDuplicateBook is returned by Add when the identifier is already registered.
	ErrDuplicateBook = errors.New("book already in catalog")
)

// Availability selects books by whether they are currently on loan
type Availability int

const (
	AvailabilityAny Availability = iota
	AvailabilityAvailable
	AvailabilityBorrowed
)

// ParseAvailability accepts "", "all", "any", "available", "borrowed" and "unavailable"
func ParseAvailability(s string) (Availability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "any":
		return AvailabilityAny, nil
	case "available":
		return AvailabilityAvailable, nil
	case "borrowed", "unavailable":
		return AvailabilityBorrowed, nil
	default:
		return AvailabilityAny, fmt.Errorf("unknown availability filter %q", s)
	}
}

// Filter narrows a catalog query. Zero value matches everything.
type Filter struct {
	Text         string // substring of title, author or ISBN, case-insensitive
	Genre        string // exact match; empty or "all" matches any genre
	Availability Availability
}

// Entry is a book together with its derived availability
type Entry struct {
	Book      models.Book
	Available bool
}

// OnLoanFunc reports whether a book currently has an active loan
type OnLoanFunc func(bookID string) bool

// Stats are catalog-wide counters
type Stats struct {
	Total     int
	Available int
	Borrowed  int
}

type snapshot struct {
	books []models.Book
	index map[string]int
}

// Index is an insertion-ordered registry of books.
// Readers never take a lock: they work on an immutable snapshot published by writers.
type Index struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewIndex creates an empty catalog
func NewIndex() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{index: make(map[string]int)})
	return idx
}

// Add registers a new book at the end of the catalog
func (idx *Index) Add(book models.Book) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	old := idx.current.Load()
	if _, exists := old.index[book.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBook, book.ID)
	}

	next := &snapshot{
		books: make([]models.Book, len(old.books), len(old.books)+1),
		index: make(map[string]int, len(old.index)+1),
	}
	copy(next.books, old.books)
	for id, pos := range old.index {
		next.index[id] = pos
	}
	next.index[book.ID] = len(next.books)
	next.books = append(next.books, book)

	idx.current.Store(next)
	return nil
}

// Get returns the book with the given identifier
func (idx *Index) Get(bookID string) (models.Book, bool) {
	snap := idx.current.Load()
	pos, ok := snap.index[bookID]
	if !ok {
		return models.Book{}, false
	}
	return snap.books[pos], true
}

// Len returns the number of books in the catalog
func (idx *Index) Len() int {
	return len(idx.current.Load().books)
}

// Query returns the books matching f in insertion order.
// onLoan may be nil, in which case every book is considered available.
func (idx *Index) Query(f Filter, onLoan OnLoanFunc) []Entry {
	snap := idx.current.Load()
	text := strings.ToLower(strings.TrimSpace(f.Text))
	genre := strings.TrimSpace(f.Genre)
	if strings.EqualFold(genre, "all") {
		genre = ""
	}

	res := make([]Entry, 0, len(snap.books))
	for _, book := range snap.books {
		if text != "" && !matchesText(book, text) {
			continue
		}
		if genre != "" && book.Genre != genre {
			continue
		}

		available := onLoan == nil || !onLoan(book.ID)
		switch f.Availability {
		case AvailabilityAvailable:
			if !available {
				continue
			}
		case AvailabilityBorrowed:
			if available {
				continue
			}
		}

		res = append(res, Entry{Book: book, Available: available})
	}
	return res
}

// Genres returns the distinct non-empty genres in first-seen order
func (idx *Index) Genres() []string {
	snap := idx.current.Load()
	seen := make(map[string]bool)
	genres := make([]string, 0)
	for _, book := range snap.books {
		if book.Genre == "" || seen[book.Genre] {
			continue
		}
		seen[book.Genre] = true
		genres = append(genres, book.Genre)
	}
	return genres
}

// Stats counts available and borrowed books
func (idx *Index) Stats(onLoan OnLoanFunc) Stats {
	snap := idx.current.Load()
	stats := Stats{Total: len(snap.books)}
	for _, book := range snap.books {
		if onLoan != nil && onLoan(book.ID) {
			stats.Borrowed++
		} else {
			stats.Available++
		}
	}
	return stats
}

func matchesText(book models.Book, lowered string) bool {
	return strings.Contains(strings.ToLower(book.Title), lowered) ||
		strings.Contains(strings.ToLower(book.Author), lowered) ||
		strings.Contains(strings.ToLower(book.ISBN), lowered)
}
