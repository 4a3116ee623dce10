// internal/catalog/handler.go
package catalog

import (
	"libraryhub/internal/httpx"
	"libraryhub/internal/liberr"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the author and book CRUD routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/authors", h.handleListAuthors)
	r.Post("/authors", h.handleCreateAuthor)
	r.Get("/authors/{id}", h.handleGetAuthor)
	r.Put("/authors/{id}", h.handleUpdateAuthor)
	r.Delete("/authors/{id}", h.handleDeleteAuthor)

	r.Get("/books", h.handleListBooks)
	r.Post("/books", h.handleCreateBook)
	r.Get("/books/{id}", h.handleGetBook)
	r.Put("/books/{id}", h.handleUpdateBook)
	r.Delete("/books/{id}", h.handleDeleteBook)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, h.logger, err)
}

func (h *Handler) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authors)
}

func (h *Handler) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req AuthorInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	author, err := h.service.CreateAuthor(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, author)
}

func (h *Handler) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "author")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "author")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req AuthorInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	author, err := h.service.UpdateAuthor(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "author")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := BookFilter{Query: q.Get("q")}

	if raw := q.Get("author_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, liberr.Invalid("author_id", "invalid author ID"))
			return
		}
		filter.AuthorID = id
	}
	if raw := q.Get("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, liberr.Invalid("available", "must be true or false"))
			return
		}
		filter.AvailableOnly = available
	}

	books, err := h.service.ListBooks(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "book")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "book")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var req BookInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "book")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
