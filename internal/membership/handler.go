// internal/membership/handler.go
package membership

import (
	"libraryhub/internal/httpx"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the member routes. /members/top_active is a static segment
// and wins over /members/{id}.
func (h *Handler) Register(r chi.Router) {
	r.Get("/members", h.handleListMembers)
	r.Post("/members", h.handleCreateMember)
	r.Get("/members/top_active", h.handleTopActive)
	r.Get("/members/{id}", h.handleGetMember)
	r.Put("/members/{id}", h.handleUpdateMember)
	r.Delete("/members/{id}", h.handleDeleteMember)
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req MemberInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.CreateMember(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, member)
}

func (h *Handler) handleTopActive(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListTopActiveMembers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "member")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "member")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req MemberInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamID(r, "id", "member")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
