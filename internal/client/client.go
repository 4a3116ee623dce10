// internal/client/client.go
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"libraryhub/internal/catalog"
	"libraryhub/internal/circulation"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/membership"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Message    string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("api error %d: %s %v", e.StatusCode, e.Message, e.Fields)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the library HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) CreateAuthor(ctx context.Context, in catalog.AuthorInput) (*catalog.Author, error) {
	var author catalog.Author
	if err := c.do(ctx, http.MethodPost, "/authors", in, &author); err != nil {
		return nil, err
	}
	return &author, nil
}

func (c *Client) CreateBook(ctx context.Context, in catalog.BookInput) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/books", in, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books/"+id.String(), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) SearchBooks(ctx context.Context, query string) ([]*catalog.Book, error) {
	var books []*catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books?q="+url.QueryEscape(query), nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) CreateMember(ctx context.Context, in membership.MemberInput) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodPost, "/members", in, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) TopActiveMembers(ctx context.Context) ([]*membership.MemberActivity, error) {
	var members []*membership.MemberActivity
	if err := c.do(ctx, http.MethodGet, "/members/top_active", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

type memberRequest struct {
	MemberID uuid.UUID `json:"member_id"`
}

// LoanBook lends one copy of bookID to memberID.
func (c *Client) LoanBook(ctx context.Context, bookID, memberID uuid.UUID) (*circulation.Loan, error) {
	var resp circulation.LoanResponse
	path := "/books/" + bookID.String() + "/loan"
	if err := c.do(ctx, http.MethodPost, path, memberRequest{MemberID: memberID}, &resp); err != nil {
		return nil, err
	}
	return resp.Loan, nil
}

func (c *Client) ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) error {
	path := "/books/" + bookID.String() + "/return_book"
	return c.do(ctx, http.MethodPost, path, memberRequest{MemberID: memberID}, nil)
}

func (c *Client) GetLoan(ctx context.Context, id uuid.UUID) (*circulation.Loan, error) {
	var loan circulation.Loan
	if err := c.do(ctx, http.MethodGet, "/loans/"+id.String(), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) ExtendDueDate(ctx context.Context, loanID uuid.UUID, additionalDays int) (*circulation.Loan, error) {
	req := struct {
		AdditionalDays int `json:"additional_days"`
	}{AdditionalDays: additionalDays}

	var loan circulation.Loan
	path := "/loans/" + loanID.String() + "/extend_due_date"
	if err := c.do(ctx, http.MethodPatch, path, req, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) LoanHistory(ctx context.Context, loanID uuid.UUID) ([]eventstore.Event, error) {
	var events []eventstore.Event
	if err := c.do(ctx, http.MethodGet, "/loans/"+loanID.String()+"/history", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
