package catalog

import (
	"sync"
	"testing"

	"library-circulation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex()
	books := []models.Book{
		{ID: "1", Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", ISBN: "978-0-7432-7356-5", PublicationYear: 1925, Genre: "Classic Literature"},
		{ID: "2", Title: "To Kill a Mockingbird", Author: "Harper Lee", ISBN: "978-0-06-112008-4", PublicationYear: 1960, Genre: "Fiction"},
		{ID: "3", Title: "1984", Author: "George Orwell", ISBN: "978-0-452-28423-4", PublicationYear: 1949, Genre: "Dystopian Fiction"},
		{ID: "6", Title: "Harry Potter and the Sorcerer's Stone", Author: "J.K. Rowling", ISBN: "978-0-439-70818-8", PublicationYear: 1997, Genre: "Fantasy"},
		{ID: "9", Title: "The Hobbit", Author: "J.R.R. Tolkien", ISBN: "978-0-547-92822-7", PublicationYear: 1937, Genre: "Fantasy"},
		{ID: "10", Title: "Untitled Notes", Author: "Anonymous", ISBN: "000-0"},
	}
	for _, b := range books {
		require.NoError(t, idx.Add(b))
	}
	return idx
}

func ids(entries []Entry) []string {
	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.Book.ID)
	}
	return res
}

func TestIndex_Query(t *testing.T) {
	idx := newTestIndex(t)
	onLoan := func(id string) bool { return id == "2" || id == "9" }

	testCases := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{name: "empty filter matches all in insertion order", filter: Filter{}, expected: []string{"1", "2", "3", "6", "9", "10"}},
		{name: "title substring case-insensitive", filter: Filter{Text: "THE"}, expected: []string{"1", "6", "9"}},
		{name: "author substring", filter: Filter{Text: "tolkien"}, expected: []string{"9"}},
		{name: "isbn substring", filter: Filter{Text: "0-452"}, expected: []string{"3"}},
		{name: "genre exact", filter: Filter{Genre: "Fantasy"}, expected: []string{"6", "9"}},
		{name: "genre is not substring", filter: Filter{Genre: "Fiction"}, expected: []string{"2"}},
		{name: "genre all", filter: Filter{Genre: "all"}, expected: []string{"1", "2", "3", "6", "9", "10"}},
		{name: "available only", filter: Filter{Availability: AvailabilityAvailable}, expected: []string{"1", "3", "6", "10"}},
		{name: "borrowed only", filter: Filter{Availability: AvailabilityBorrowed}, expected: []string{"2", "9"}},
		{name: "combined", filter: Filter{Genre: "Fantasy", Availability: AvailabilityAvailable}, expected: []string{"6"}},
		{name: "no match", filter: Filter{Text: "nonexistent"}, expected: []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ids(idx.Query(tc.filter, onLoan)))
		})
	}
}

func TestIndex_QueryAvailabilityFlag(t *testing.T) {
	idx := newTestIndex(t)
	entries := idx.Query(Filter{Text: "mockingbird"}, func(id string) bool { return id == "2" })
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Available)

	entries = idx.Query(Filter{Text: "mockingbird"}, nil)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Available)
}

func TestIndex_AddDuplicate(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Add(models.Book{ID: "1", Title: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateBook)
	assert.Equal(t, 6, idx.Len())

	book, ok := idx.Get("1")
	require.True(t, ok)
	assert.Equal(t, "The Great Gatsby", book.Title)
}

func TestIndex_GenresAndStats(t *testing.T) {
	idx := newTestIndex(t)
	assert.Equal(t, []string{"Classic Literature", "Fiction", "Dystopian Fiction", "Fantasy"}, idx.Genres())

	stats := idx.Stats(func(id string) bool { return id == "3" })
	assert.Equal(t, Stats{Total: 6, Available: 5, Borrowed: 1}, stats)
}

func TestParseAvailability(t *testing.T) {
	testCases := []struct {
		in       string
		expected Availability
		wantErr  bool
	}{
		{in: "", expected: AvailabilityAny},
		{in: "all", expected: AvailabilityAny},
		{in: "Available", expected: AvailabilityAvailable},
		{in: "borrowed", expected: AvailabilityBorrowed},
		{in: "unavailable", expected: AvailabilityBorrowed},
		{in: "maybe", wantErr: true},
	}
	for _, tc := range testCases {
		got, err := ParseAvailability(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.expected, got, tc.in)
	}
}

func TestIndex_ConcurrentReadsDuringAdds(t *testing.T) {
	idx := NewIndex()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = idx.Add(models.Book{ID: string(rune('a'+i%26)) + string(rune('0'+i/26)), Title: "Book"})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, e := range idx.Query(Filter{}, nil) {
					if e.Book.Title != "Book" {
						t.Errorf("torn read: %+v", e.Book)
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, idx.Len())
}
