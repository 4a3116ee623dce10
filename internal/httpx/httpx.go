// Package httpx holds the JSON codec and error mapping shared by the HTTP handlers.
package httpx

import (
	"fmt"
	"io"
	"libraryhub/internal/liberr"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusResponse is the body of action endpoints that only report an outcome.
type StatusResponse struct {
	Status string `json:"status"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON body into dst. Malformed bodies become validation errors.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if err == io.EOF {
			return liberr.Invalid("body", "request body must not be empty")
		}
		return liberr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// URLParamID parses the named chi URL parameter as a UUID.
func URLParamID(r *http.Request, name, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, liberr.Invalid(name, fmt.Sprintf("invalid %s ID", entity))
	}
	return id, nil
}

// WriteError maps err to a status code and body. Unclassified errors are logged
// and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e, ok := liberr.As(err)
	if !ok {
		logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	WriteJSON(w, StatusFor(e.Kind), ErrorResponse{Error: e.Message, Fields: e.Fields})
}

// StatusFor returns the HTTP status used for an error kind.
func StatusFor(kind liberr.Kind) int {
	switch kind {
	case liberr.KindValidation, liberr.KindBusinessRule:
		return http.StatusBadRequest
	case liberr.KindNotFound:
		return http.StatusNotFound
	case liberr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
