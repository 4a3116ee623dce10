package circulation

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(svc, discardLogger()).Register(r)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func memberBody(id uuid.UUID) string {
	return `{"member_id":"` + id.String() + `"}`
}

func TestHandlerLoanAndReturn(t *testing.T) {
	repo := newMemRepo()
	bookID := repo.addBook(1, 1)
	memberID := repo.addMember()
	h := newTestRouter(newTestService(repo, nil, &clock{testNow}))

	rec := serve(h, http.MethodPost, "/books/"+bookID.String()+"/loan", memberBody(memberID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created LoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Book loaned successfully.", created.Status)
	require.NotNil(t, created.Loan)
	assert.Equal(t, "2024-05-15", created.Loan.DueDate.String())

	rec = serve(h, http.MethodPost, "/books/"+bookID.String()+"/loan", memberBody(repo.addMember()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"No available copies."}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/books/"+bookID.String()+"/return_book", memberBody(memberID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Book returned successfully."}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/books/"+bookID.String()+"/return_book", memberBody(memberID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Active loan does not exist."}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/books/"+uuid.New().String()+"/return_book", memberBody(memberID))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/loans/"+created.Loan.ID.String()+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), EventLoanReturned)
}

func TestHandlerLoanErrors(t *testing.T) {
	repo := newMemRepo()
	bookID := repo.addBook(1, 1)
	h := newTestRouter(newTestService(repo, nil, &clock{testNow}))

	rec := serve(h, http.MethodPost, "/books/"+bookID.String()+"/loan", memberBody(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Member does not exist."}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/books/"+uuid.New().String()+"/loan", memberBody(uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/books/nope/loan", memberBody(uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerExtendDueDate(t *testing.T) {
	repo := newMemRepo()
	bookID := repo.addBook(1, 1)
	memberID := repo.addMember()
	c := &clock{testNow}
	svc := newTestService(repo, nil, c)
	h := newTestRouter(svc)

	rec := serve(h, http.MethodPost, "/loans", `{"book_id":"`+bookID.String()+`","member_id":"`+memberID.String()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loan Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	path := "/loans/" + loan.ID.String() + "/extend_due_date"

	rec = serve(h, http.MethodPatch, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"additional_days"`)

	rec = serve(h, http.MethodPatch, path, `{"additional_days":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPatch, path, `{"additional_days":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"due_date":"2024-05-20"`)

	c.t = testNow.AddDate(0, 2, 0)
	rec = serve(h, http.MethodPatch, path, `{"additional_days":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Loan is already overdue"}`, rec.Body.String())

	rec = serve(h, http.MethodPatch, "/loans/"+uuid.New().String()+"/extend_due_date", `{"additional_days":5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListAndDeleteLoans(t *testing.T) {
	repo := newMemRepo()
	bookID := repo.addBook(2, 2)
	memberID := repo.addMember()
	svc := newTestService(repo, nil, &clock{testNow})
	h := newTestRouter(svc)

	rec := serve(h, http.MethodPost, "/books/"+bookID.String()+"/loan", memberBody(memberID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created LoanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(h, http.MethodGet, "/loans?active=true&member_id="+memberID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var loans []Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loans))
	assert.Len(t, loans, 1)

	rec = serve(h, http.MethodGet, "/loans?overdue=perhaps", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodDelete, "/loans/"+created.Loan.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 2, repo.book(bookID).AvailableCopies)

	rec = serve(h, http.MethodGet, "/loans/"+created.Loan.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
