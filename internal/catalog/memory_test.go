package catalog

import (
	"context"
	"libraryhub/internal/liberr"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for service and handler tests.
type memRepo struct {
	mu      sync.Mutex
	authors map[uuid.UUID]Author
	books   map[uuid.UUID]Book
	// loaned holds book IDs that have loan rows and therefore cannot be deleted.
	loaned map[uuid.UUID]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		authors: map[uuid.UUID]Author{},
		books:   map[uuid.UUID]Book{},
		loaned:  map[uuid.UUID]bool{},
	}
}

func (m *memRepo) InsertAuthor(_ context.Context, author *Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authors[author.ID] = *author
	return nil
}

func (m *memRepo) GetAuthor(_ context.Context, id uuid.UUID) (*Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.authors[id]
	if !ok {
		return nil, liberr.NotFound("author", id)
	}
	return &a, nil
}

func (m *memRepo) ListAuthors(_ context.Context) ([]*Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	authors := []*Author{}
	for _, a := range m.authors {
		a := a
		authors = append(authors, &a)
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].Name < authors[j].Name })
	return authors, nil
}

func (m *memRepo) UpdateAuthor(_ context.Context, author *Author) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.authors[author.ID]; !ok {
		return liberr.NotFound("author", author.ID)
	}
	m.authors[author.ID] = *author
	return nil
}

func (m *memRepo) DeleteAuthor(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.authors[id]; !ok {
		return liberr.NotFound("author", id)
	}
	for _, b := range m.books {
		if b.AuthorID == id {
			return liberr.Conflict("author still has books in the catalog")
		}
	}
	delete(m.authors, id)
	return nil
}

func (m *memRepo) InsertBook(_ context.Context, book *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ISBN == book.ISBN {
			return liberr.Conflict("a book with ISBN " + book.ISBN + " already exists")
		}
	}
	m.books[book.ID] = *book
	return nil
}

func (m *memRepo) GetBook(_ context.Context, id uuid.UUID) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, liberr.NotFound("book", id)
	}
	return &b, nil
}

func (m *memRepo) ListBooks(_ context.Context, filter BookFilter) ([]*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := []*Book{}
	for _, b := range m.books {
		b := b
		if filter.AuthorID != uuid.Nil && b.AuthorID != filter.AuthorID {
			continue
		}
		if filter.AvailableOnly && b.AvailableCopies == 0 {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(filter.Query)) {
			continue
		}
		books = append(books, &b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	return books, nil
}

func (m *memRepo) UpdateBook(_ context.Context, book *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.books[book.ID]
	if !ok {
		return liberr.NotFound("book", book.ID)
	}
	if stored.Version != book.Version {
		return liberr.Conflict("book was modified concurrently, reload and retry")
	}
	book.Version++
	m.books[book.ID] = *book
	return nil
}

func (m *memRepo) DeleteBook(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return liberr.NotFound("book", id)
	}
	if m.loaned[id] {
		return liberr.Conflict("book has loan records")
	}
	delete(m.books, id)
	return nil
}
