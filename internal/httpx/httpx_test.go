package httpx

import (
	"errors"
	"fmt"
	"io"
	"libraryhub/internal/liberr"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"business rule", fmt.Errorf("wrap: %w", liberr.ErrBookUnavailable), http.StatusBadRequest, `{"error":"No available copies."}`},
		{"validation", liberr.Invalid("additional_days", "must be a positive integer"), http.StatusBadRequest, `{"error":"validation failed","fields":{"additional_days":"must be a positive integer"}}`},
		{"not found", liberr.NotFound("loan", "x"), http.StatusNotFound, `{"error":"loan with ID x not found"}`},
		{"conflict", liberr.Conflict("isbn already exists"), http.StatusConflict, `{"error":"isbn already exists"}`},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			WriteError(rec, req, discardLogger(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		MemberID string `json:"member_id"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"member_id":"abc"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "abc", dst.MemberID)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.Equal(t, liberr.KindValidation, liberr.KindOf(DecodeJSON(req, &dst)))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"member_id":`))
	assert.Equal(t, liberr.KindValidation, liberr.KindOf(DecodeJSON(req, &dst)))
}

func TestURLParamID(t *testing.T) {
	router := chi.NewRouter()
	var gotErr error
	router.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, gotErr = URLParamID(r, "id", "book")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/not-a-uuid", nil))
	e, ok := liberr.As(gotErr)
	require.True(t, ok)
	assert.Equal(t, "invalid book ID", e.Fields["id"])
}
