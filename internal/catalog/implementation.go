// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"libraryhub/internal/liberr"
	"strings"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	repo Repository
}

// NewService creates a new catalog service instance.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validateAuthor(in AuthorInput) error {
	v := liberr.NewValidator()
	v.Check(strings.TrimSpace(in.Name) != "", "name", "must be provided")
	v.Check(len(in.Name) <= 255, "name", "must not be more than 255 characters")
	return v.Err()
}

// CreateAuthor adds a new author.
func (s *service) CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	if err := validateAuthor(in); err != nil {
		return nil, err
	}

	author := &Author{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Biography: in.Biography,
		BirthDate: in.BirthDate,
	}
	if err := s.repo.InsertAuthor(ctx, author); err != nil {
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	return author, nil
}

// GetAuthor retrieves an author by ID.
func (s *service) GetAuthor(ctx context.Context, id uuid.UUID) (*Author, error) {
	return s.repo.GetAuthor(ctx, id)
}

func (s *service) ListAuthors(ctx context.Context) ([]*Author, error) {
	return s.repo.ListAuthors(ctx)
}

// UpdateAuthor replaces the writable fields of an author.
func (s *service) UpdateAuthor(ctx context.Context, id uuid.UUID, in AuthorInput) (*Author, error) {
	if err := validateAuthor(in); err != nil {
		return nil, err
	}

	author, err := s.repo.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	author.Name = strings.TrimSpace(in.Name)
	author.Biography = in.Biography
	author.BirthDate = in.BirthDate

	if err := s.repo.UpdateAuthor(ctx, author); err != nil {
		return nil, fmt.Errorf("failed to update author: %w", err)
	}
	return author, nil
}

// DeleteAuthor removes an author that no book references.
func (s *service) DeleteAuthor(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteAuthor(ctx, id)
}

func validateBook(v *liberr.Validator, in BookInput) {
	v.Check(strings.TrimSpace(in.Title) != "", "title", "must be provided")
	v.Check(strings.TrimSpace(in.ISBN) != "", "isbn", "must be provided")
	v.Check(len(in.ISBN) <= 17, "isbn", "must not be more than 17 characters")
	v.Check(in.AuthorID != uuid.Nil, "author_id", "must be provided")
	v.Check(in.TotalCopies >= 0, "total_copies", "must not be negative")
}

// resolveAuthor turns a missing author into a field error rather than a 404 on the book.
func (s *service) resolveAuthor(ctx context.Context, id uuid.UUID) (*Author, error) {
	author, err := s.repo.GetAuthor(ctx, id)
	if err != nil {
		if liberr.KindOf(err) == liberr.KindNotFound {
			return nil, liberr.Invalid("author_id", "author does not exist")
		}
		return nil, err
	}
	return author, nil
}

// CreateBook adds a book. Available copies default to the total.
func (s *service) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	available := in.TotalCopies
	if in.AvailableCopies != nil {
		available = *in.AvailableCopies
	}

	v := liberr.NewValidator()
	validateBook(v, in)
	v.Check(available >= 0, "available_copies", "must not be negative")
	v.Check(available <= in.TotalCopies, "available_copies", "must not exceed total_copies")
	if err := v.Err(); err != nil {
		return nil, err
	}

	author, err := s.resolveAuthor(ctx, in.AuthorID)
	if err != nil {
		return nil, err
	}

	book := &Book{
		ID:              uuid.New(),
		Title:           strings.TrimSpace(in.Title),
		AuthorID:        author.ID,
		AuthorName:      author.Name,
		ISBN:            strings.TrimSpace(in.ISBN),
		Genre:           in.Genre,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: available,
		Version:         1,
	}
	if err := s.repo.InsertBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book by ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *service) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	return s.repo.ListBooks(ctx, filter)
}

// UpdateBook replaces the writable fields of a book. A change to the total
// shifts the available count by the same amount; the total may not drop below
// the copies currently on loan.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error) {
	v := liberr.NewValidator()
	validateBook(v, in)
	if err := v.Err(); err != nil {
		return nil, err
	}

	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.TotalCopies < book.OnLoan() {
		return nil, liberr.Invalid("total_copies", fmt.Sprintf("must not be less than the %d copies on loan", book.OnLoan()))
	}

	if in.AuthorID != book.AuthorID {
		author, err := s.resolveAuthor(ctx, in.AuthorID)
		if err != nil {
			return nil, err
		}
		book.AuthorID = author.ID
		book.AuthorName = author.Name
	}

	book.AvailableCopies += in.TotalCopies - book.TotalCopies
	book.TotalCopies = in.TotalCopies
	book.Title = strings.TrimSpace(in.Title)
	book.ISBN = strings.TrimSpace(in.ISBN)
	book.Genre = in.Genre

	if err := s.repo.UpdateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book that has never been lent.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteBook(ctx, id)
}
