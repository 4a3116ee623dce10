package catalog

import (
	"context"
	"libraryhub/internal/liberr"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, *memRepo, *Author) {
	t.Helper()
	repo := newMemRepo()
	svc := NewService(repo)

	author, err := svc.CreateAuthor(context.Background(), AuthorInput{Name: "Ursula K. Le Guin"})
	require.NoError(t, err)
	return svc, repo, author
}

func intPtr(n int) *int { return &n }

func TestCreateAuthorValidation(t *testing.T) {
	svc := NewService(newMemRepo())

	_, err := svc.CreateAuthor(context.Background(), AuthorInput{Name: "   "})
	require.Error(t, err)

	e, ok := liberr.As(err)
	require.True(t, ok)
	assert.Equal(t, liberr.KindValidation, e.Kind)
	assert.Equal(t, "must be provided", e.Fields["name"])
}

func TestCreateBookDefaultsAvailableToTotal(t *testing.T) {
	svc, _, author := newTestService(t)

	book, err := svc.CreateBook(context.Background(), BookInput{
		Title:       "The Dispossessed",
		AuthorID:    author.ID,
		ISBN:        "9780060512750",
		TotalCopies: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, book.TotalCopies)
	assert.Equal(t, 3, book.AvailableCopies)
	assert.Equal(t, author.Name, book.AuthorName)
	assert.Equal(t, 1, book.Version)
}

func TestCreateBookRejectsInvalidCopies(t *testing.T) {
	svc, _, author := newTestService(t)

	tests := []struct {
		name  string
		in    BookInput
		field string
	}{
		{"negative total", BookInput{Title: "t", ISBN: "1", AuthorID: author.ID, TotalCopies: -1}, "total_copies"},
		{"available above total", BookInput{Title: "t", ISBN: "1", AuthorID: author.ID, TotalCopies: 1, AvailableCopies: intPtr(2)}, "available_copies"},
		{"negative available", BookInput{Title: "t", ISBN: "1", AuthorID: author.ID, TotalCopies: 1, AvailableCopies: intPtr(-1)}, "available_copies"},
		{"missing author", BookInput{Title: "t", ISBN: "1", TotalCopies: 1}, "author_id"},
		{"missing title", BookInput{ISBN: "1", AuthorID: author.ID, TotalCopies: 1}, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBook(context.Background(), tt.in)
			e, ok := liberr.As(err)
			require.True(t, ok, "expected classified error, got %v", err)
			assert.Equal(t, liberr.KindValidation, e.Kind)
			assert.Contains(t, e.Fields, tt.field)
		})
	}
}

func TestCreateBookUnknownAuthorIsFieldError(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateBook(context.Background(), BookInput{Title: "t", ISBN: "1", AuthorID: uuid.New(), TotalCopies: 1})

	e, ok := liberr.As(err)
	require.True(t, ok)
	assert.Equal(t, liberr.KindValidation, e.Kind)
	assert.Equal(t, "author does not exist", e.Fields["author_id"])
}

func TestUpdateBookShiftsAvailableCopies(t *testing.T) {
	svc, repo, author := newTestService(t)
	ctx := context.Background()

	book, err := svc.CreateBook(ctx, BookInput{Title: "Lathe", ISBN: "42", AuthorID: author.ID, TotalCopies: 4, AvailableCopies: intPtr(1)})
	require.NoError(t, err)

	updated, err := svc.UpdateBook(ctx, book.ID, BookInput{Title: "The Lathe of Heaven", ISBN: "42", AuthorID: author.ID, TotalCopies: 6})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)
	assert.Equal(t, 3, updated.OnLoan())
	assert.Equal(t, 2, updated.Version)

	_, err = svc.UpdateBook(ctx, book.ID, BookInput{Title: "The Lathe of Heaven", ISBN: "42", AuthorID: author.ID, TotalCopies: 2})
	e, ok := liberr.As(err)
	require.True(t, ok)
	assert.Equal(t, liberr.KindValidation, e.Kind)
	assert.Contains(t, e.Fields["total_copies"], "3 copies on loan")

	stored, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.TotalCopies)
	assert.Equal(t, 3, stored.AvailableCopies)
}

func TestUpdateBookNotFound(t *testing.T) {
	svc, _, author := newTestService(t)

	_, err := svc.UpdateBook(context.Background(), uuid.New(), BookInput{Title: "t", ISBN: "1", AuthorID: author.ID})
	assert.Equal(t, liberr.KindNotFound, liberr.KindOf(err))
}

func TestDeleteAuthorWithBooksConflicts(t *testing.T) {
	svc, _, author := newTestService(t)
	ctx := context.Background()

	book, err := svc.CreateBook(ctx, BookInput{Title: "Earthsea", ISBN: "7", AuthorID: author.ID, TotalCopies: 1})
	require.NoError(t, err)

	assert.Equal(t, liberr.KindConflict, liberr.KindOf(svc.DeleteAuthor(ctx, author.ID)))

	require.NoError(t, svc.DeleteBook(ctx, book.ID))
	require.NoError(t, svc.DeleteAuthor(ctx, author.ID))
	assert.Equal(t, liberr.KindNotFound, liberr.KindOf(svc.DeleteAuthor(ctx, author.ID)))
}

func TestUpdateAuthor(t *testing.T) {
	svc, _, author := newTestService(t)

	updated, err := svc.UpdateAuthor(context.Background(), author.ID, AuthorInput{Name: "Ursula Le Guin", Biography: "Wrote Earthsea."})
	require.NoError(t, err)
	assert.Equal(t, "Ursula Le Guin", updated.Name)
	assert.Equal(t, "Wrote Earthsea.", updated.Biography)
}
