// internal/circulation/handler.go
package circulation

import (
	"libraryhub/internal/httpx"
	"libraryhub/internal/liberr"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	statusLoaned   = "Book loaned successfully."
	statusReturned = "Book returned successfully."
)

// LoanResponse is returned when a book is lent through its loan action.
type LoanResponse struct {
	Status string `json:"status"`
	Loan   *Loan  `json:"loan"`
}

type memberRequest struct {
	MemberID uuid.UUID `json:"member_id"`
}

type createLoanRequest struct {
	BookID   uuid.UUID `json:"book_id"`
	MemberID uuid.UUID `json:"member_id"`
}

type extendRequest struct {
	AdditionalDays *int `json:"additional_days"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the book loan actions and the loan routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/books/{id}/loan", h.handleLoanBook)
	r.Post("/books/{id}/return_book", h.handleReturnBook)

	r.Get("/loans", h.handleListLoans)
	r.Post("/loans", h.handleCreateLoan)
	r.Get("/loans/{id}", h.handleGetLoan)
	r.Delete("/loans/{id}", h.handleDeleteLoan)
	r.Patch("/loans/{id}/extend_due_date", h.handleExtendDueDate)
	r.Get("/loans/{id}/history", h.handleLoanHistory)
}

func (h *Handler) handleLoanBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpx.URLParamID(r, "id", "book")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), bookID, req.MemberID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, LoanResponse{Status: statusLoaned, Loan: loan})
}

func (h *Handler) handleReturnBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpx.URLParamID(r, "id", "book")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if _, err := h.service.ReturnBook(r.Context(), bookID, req.MemberID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.StatusResponse{Status: statusReturned})
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter LoanFilter

	v := liberr.NewValidator()
	if raw := q.Get("member_id"); raw != "" {
		id, err := uuid.Parse(raw)
		v.Check(err == nil, "member_id", "invalid member ID")
		filter.MemberID = id
	}
	if raw := q.Get("book_id"); raw != "" {
		id, err := uuid.Parse(raw)
		v.Check(err == nil, "book_id", "invalid book ID")
		filter.BookID = id
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		v.Check(err == nil, "active", "must be true or false")
		filter.ActiveOnly = active
	}
	if raw := q.Get("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		v.Check(err == nil, "overdue", "must be true or false")
		filter.OverdueOnly = overdue
	}
	if err := v.Err(); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loans, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

// handleCreateLoan goes through the same path as the book loan action; loans are
// never written directly.
func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if req.BookID == uuid.Nil {
		httpx.WriteError(w, r, h.logger, liberr.Invalid("book_id", "this field is required"))
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "loan")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "loan")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteLoan(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExtendDueDate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "loan")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req extendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.ExtendDueDate(r.Context(), id, req.AdditionalDays)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleLoanHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "loan")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	events, err := h.service.LoanHistory(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}
