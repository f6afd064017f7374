package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"library-circulation/internal/catalog"
	"library-circulation/internal/circulation"
	"library-circulation/internal/models"
)

// Circulation is the service surface exposed over HTTP
type Circulation interface {
	ListBooks(f catalog.Filter) []circulation.BookView
	Genres() []string
	Stats() catalog.Stats
	AddBook(ctx context.Context, book models.Book) (circulation.BookView, error)
	BorrowBook(ctx context.Context, bookID, borrowerID string) (circulation.LoanView, error)
	ReturnBook(ctx context.Context, loanID string) (circulation.LoanView, error)
	RenewLoan(ctx context.Context, loanID string) (circulation.LoanView, error)
	GetLoan(loanID string) (circulation.LoanView, error)
	GetLoansForBorrower(borrowerID string, filter circulation.StatusFilter) []circulation.LoanView
	BorrowerSummary(borrowerID string) circulation.BorrowerSummary
}

// HTTPServer handles the JSON API
type HTTPServer struct {
	svc    Circulation
	logger *zap.Logger

	busyRetries uint64
	busyBackoff time.Duration
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(svc Circulation, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		svc:         svc,
		logger:      logger,
		busyRetries: 3,
		busyBackoff: 20 * time.Millisecond,
	}
}

// RegisterRoutes registers API routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	mux.HandleFunc("GET /api/books", hs.handleListBooks)
	mux.HandleFunc("POST /api/books", hs.handleAddBook)
	mux.HandleFunc("GET /api/books/stats", hs.handleStats)
	mux.HandleFunc("GET /api/genres", hs.handleGenres)

	mux.HandleFunc("POST /api/loans", hs.handleBorrow)
	mux.HandleFunc("GET /api/loans/{id}", hs.handleGetLoan)
	mux.HandleFunc("POST /api/loans/{id}/return", hs.handleReturn)
	mux.HandleFunc("POST /api/loans/{id}/renew", hs.handleRenew)

	mux.HandleFunc("GET /api/borrowers/{id}/loans", hs.handleBorrowerLoans)
	mux.HandleFunc("GET /api/borrowers/{id}/summary", hs.handleBorrowerSummary)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps circulation errors to HTTP status codes
func (hs *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, circulation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, circulation.ErrAlreadyBorrowed),
		errors.Is(err, circulation.ErrDuplicateReturn),
		errors.Is(err, circulation.ErrRenewalLimitExceeded),
		errors.Is(err, circulation.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, circulation.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, circulation.ErrBusy):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	if status == http.StatusInternalServerError {
		hs.logger.Error("Request failed", zap.Error(err), zap.String("path", r.URL.Path))
	} else {
		hs.logger.Debug("Request rejected",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: circulation.Code(err)})
}

// retryBusy runs op again with exponential backoff while it fails with ErrBusy.
// Every other error is returned on the first attempt.
func (hs *HTTPServer) retryBusy(ctx context.Context, op func(ctx context.Context) (circulation.LoanView, error)) (circulation.LoanView, error) {
	var view circulation.LoanView
	backoff := retry.WithMaxRetries(hs.busyRetries, retry.NewExponential(hs.busyBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			if circulation.IsRetryable(err) {
				hs.logger.Debug("Book busy, retrying", zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		view = v
		return nil
	})
	return view, err
}

// handleListBooks returns the filtered catalog
func (hs *HTTPServer) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	availability, err := catalog.ParseAvailability(q.Get("availability"))
	if err != nil {
		hs.writeError(w, r, fmt.Errorf("%w: %v", circulation.ErrValidation, err))
		return
	}

	books := hs.svc.ListBooks(catalog.Filter{
		Text:         q.Get("q"),
		Genre:        q.Get("genre"),
		Availability: availability,
	})
	writeJSON(w, http.StatusOK, books)
}

type statsResponse struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Borrowed  int `json:"borrowed"`
}

func (hs *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	s := hs.svc.Stats()
	writeJSON(w, http.StatusOK, statsResponse{Total: s.Total, Available: s.Available, Borrowed: s.Borrowed})
}

func (hs *HTTPServer) handleGenres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hs.svc.Genres())
}

// AddBookRequest represents the request body for adding a book
type AddBookRequest struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	PublicationYear int    `json:"publication_year"`
	Genre           string `json:"genre"`
}

func (hs *HTTPServer) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req AddBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		hs.logger.Warn("Failed to decode request body", zap.Error(err))
		hs.writeError(w, r, fmt.Errorf("%w: invalid request body", circulation.ErrValidation))
		return
	}

	view, err := hs.svc.AddBook(r.Context(), models.Book{
		ID:              req.ID,
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		PublicationYear: req.PublicationYear,
		Genre:           req.Genre,
	})
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// BorrowRequest represents the request body for borrowing a book
type BorrowRequest struct {
	BookID     string `json:"book_id"`
	BorrowerID string `json:"borrower_id"`
}

func (hs *HTTPServer) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		hs.logger.Warn("Failed to decode request body", zap.Error(err))
		hs.writeError(w, r, fmt.Errorf("%w: invalid request body", circulation.ErrValidation))
		return
	}

	loan, err := hs.retryBusy(r.Context(), func(ctx context.Context) (circulation.LoanView, error) {
		return hs.svc.BorrowBook(ctx, req.BookID, req.BorrowerID)
	})
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (hs *HTTPServer) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := hs.svc.GetLoan(r.PathValue("id"))
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (hs *HTTPServer) handleReturn(w http.ResponseWriter, r *http.Request) {
	loanID := r.PathValue("id")
	loan, err := hs.retryBusy(r.Context(), func(ctx context.Context) (circulation.LoanView, error) {
		return hs.svc.ReturnBook(ctx, loanID)
	})
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (hs *HTTPServer) handleRenew(w http.ResponseWriter, r *http.Request) {
	loanID := r.PathValue("id")
	loan, err := hs.retryBusy(r.Context(), func(ctx context.Context) (circulation.LoanView, error) {
		return hs.svc.RenewLoan(ctx, loanID)
	})
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (hs *HTTPServer) handleBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	filter, err := circulation.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		hs.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hs.svc.GetLoansForBorrower(r.PathValue("id"), filter))
}

func (hs *HTTPServer) handleBorrowerSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hs.svc.BorrowerSummary(r.PathValue("id")))
}

