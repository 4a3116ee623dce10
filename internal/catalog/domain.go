// internal/catalog/domain.go
package catalog

import (
	"libraryhub/internal/calendar"
	"time"

	"github.com/google/uuid"
)

// Author wrote one or more books in the catalog.
type Author struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Biography string         `json:"biography" db:"biography"`
	BirthDate *calendar.Date `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Book is a title held in one or more physical copies.
// AvailableCopies is always within [0, TotalCopies].
type Book struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	AuthorID        uuid.UUID `json:"author_id" db:"author_id"`
	AuthorName      string    `json:"author_name,omitempty" db:"author_name"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Genre           string    `json:"genre" db:"genre"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	Version         int       `json:"version" db:"version"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// OnLoan is the number of copies currently lent out.
func (b *Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// AuthorInput carries the writable author fields.
type AuthorInput struct {
	Name      string         `json:"name"`
	Biography string         `json:"biography"`
	BirthDate *calendar.Date `json:"birth_date"`
}

// BookInput carries the writable book fields. AvailableCopies is only honoured
// on create; afterwards it moves with loans and with changes to TotalCopies.
type BookInput struct {
	Title           string    `json:"title"`
	AuthorID        uuid.UUID `json:"author_id"`
	ISBN            string    `json:"isbn"`
	Genre           string    `json:"genre"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies *int      `json:"available_copies,omitempty"`
}

// BookFilter narrows ListBooks. Zero values mean "no restriction".
type BookFilter struct {
	AuthorID      uuid.UUID
	AvailableOnly bool
	Query         string
}
