// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error)
	GetAuthor(ctx context.Context, id uuid.UUID) (*Author, error)
	ListAuthors(ctx context.Context) ([]*Author, error)
	UpdateAuthor(ctx context.Context, id uuid.UUID, in AuthorInput) (*Author, error)
	DeleteAuthor(ctx context.Context, id uuid.UUID) error

	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

// Repository is the persistence the catalog service needs.
type Repository interface {
	InsertAuthor(ctx context.Context, author *Author) error
	GetAuthor(ctx context.Context, id uuid.UUID) (*Author, error)
	ListAuthors(ctx context.Context) ([]*Author, error)
	UpdateAuthor(ctx context.Context, author *Author) error
	DeleteAuthor(ctx context.Context, id uuid.UUID) error

	InsertBook(ctx context.Context, book *Book) error
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error)
	// UpdateBook writes book if its stored version still equals book.Version.
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, id uuid.UUID) error
}
