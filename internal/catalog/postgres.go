// internal/catalog/postgres.go
package catalog

import (
	"context"
	"fmt"
	"libraryhub/internal/calendar"
	"libraryhub/internal/liberr"
	"libraryhub/internal/postgres"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	tableAuthors = "authors"
	tableBooks   = "books"
)

// PostgresRepository stores the catalog in PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertAuthor(ctx context.Context, author *Author) error {
	query, args, err := postgres.Dialect.Insert(tableAuthors).Prepared(true).
		Rows(goqu.Record{
			"id":         author.ID,
			"name":       author.Name,
			"biography":  author.Biography,
			"birth_date": calendar.Nullable(author.BirthDate),
		}).
		Returning("created_at", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert author: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&author.CreatedAt, &author.UpdatedAt); err != nil {
		return postgres.MapError(err, "author already exists")
	}
	return nil
}

func (r *PostgresRepository) GetAuthor(ctx context.Context, id uuid.UUID) (*Author, error) {
	query, args, err := postgres.Dialect.From(tableAuthors).Prepared(true).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get author: %w", err)
	}

	author := &Author{}
	if err := r.db.GetContext(ctx, author, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("author", id)
		}
		return nil, fmt.Errorf("failed to get author: %w", err)
	}
	return author, nil
}

func (r *PostgresRepository) ListAuthors(ctx context.Context) ([]*Author, error) {
	query, args, err := postgres.Dialect.From(tableAuthors).Prepared(true).
		Order(goqu.C("name").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list authors: %w", err)
	}

	authors := []*Author{}
	if err := r.db.SelectContext(ctx, &authors, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	return authors, nil
}

func (r *PostgresRepository) UpdateAuthor(ctx context.Context, author *Author) error {
	query, args, err := postgres.Dialect.Update(tableAuthors).Prepared(true).
		Set(goqu.Record{
			"name":       author.Name,
			"biography":  author.Biography,
			"birth_date": calendar.Nullable(author.BirthDate),
			"updated_at": goqu.L("NOW()"),
		}).
		Where(goqu.Ex{"id": author.ID}).
		Returning("updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update author: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&author.UpdatedAt); err != nil {
		if postgres.IsNoRows(err) {
			return liberr.NotFound("author", author.ID)
		}
		return postgres.MapError(err, "author could not be updated")
	}
	return nil
}

func (r *PostgresRepository) DeleteAuthor(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, tableAuthors, "author", id, "author still has books in the catalog")
}

func (r *PostgresRepository) InsertBook(ctx context.Context, book *Book) error {
	query, args, err := postgres.Dialect.Insert(tableBooks).Prepared(true).
		Rows(goqu.Record{
			"id":               book.ID,
			"title":            book.Title,
			"author_id":        book.AuthorID,
			"isbn":             book.ISBN,
			"genre":            book.Genre,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
			"version":          book.Version,
		}).
		Returning("created_at", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert book: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&book.CreatedAt, &book.UpdatedAt); err != nil {
		return postgres.MapError(err, fmt.Sprintf("a book with ISBN %s already exists", book.ISBN))
	}
	return nil
}

// booksWithAuthor selects book columns plus the author's name.
func booksWithAuthor() *goqu.SelectDataset {
	return postgres.Dialect.From(goqu.T(tableBooks).As("b")).Prepared(true).
		Join(goqu.T(tableAuthors).As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("b.author_id")))).
		Select(
			"b.id", "b.title", "b.author_id", "b.isbn", "b.genre",
			"b.total_copies", "b.available_copies", "b.version", "b.created_at", "b.updated_at",
			goqu.I("a.name").As("author_name"),
		)
}

func (r *PostgresRepository) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	query, args, err := booksWithAuthor().Where(goqu.I("b.id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get book: %w", err)
	}

	book := &Book{}
	if err := r.db.GetContext(ctx, book, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("book", id)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// listBooksQuery is split out so the generated SQL can be checked without a database.
func listBooksQuery(filter BookFilter) (string, []interface{}, error) {
	ds := booksWithAuthor()
	if filter.AuthorID != uuid.Nil {
		ds = ds.Where(goqu.I("b.author_id").Eq(filter.AuthorID))
	}
	if filter.AvailableOnly {
		ds = ds.Where(goqu.I("b.available_copies").Gt(0))
	}
	if filter.Query != "" {
		pattern := "%" + likeEscaper.Replace(filter.Query) + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("b.title").ILike(pattern),
			goqu.I("a.name").ILike(pattern),
		))
	}
	return ds.Order(goqu.I("b.title").Asc(), goqu.I("b.id").Asc()).ToSQL()
}

func (r *PostgresRepository) ListBooks(ctx context.Context, filter BookFilter) ([]*Book, error) {
	query, args, err := listBooksQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build list books: %w", err)
	}

	books := []*Book{}
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

func (r *PostgresRepository) UpdateBook(ctx context.Context, book *Book) error {
	query, args, err := postgres.Dialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{
			"title":            book.Title,
			"author_id":        book.AuthorID,
			"isbn":             book.ISBN,
			"genre":            book.Genre,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
			"version":          goqu.L("version + 1"),
			"updated_at":       goqu.L("NOW()"),
		}).
		Where(goqu.Ex{"id": book.ID, "version": book.Version}).
		Returning("version", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update book: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&book.Version, &book.UpdatedAt); err != nil {
		if postgres.IsNoRows(err) {
			return liberr.Conflict("book was modified concurrently, reload and retry")
		}
		return postgres.MapError(err, fmt.Sprintf("a book with ISBN %s already exists", book.ISBN))
	}
	return nil
}

func (r *PostgresRepository) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, tableBooks, "book", id, "book has loan records")
}

func (r *PostgresRepository) delete(ctx context.Context, table, entity string, id uuid.UUID, conflictMessage string) error {
	query, args, err := postgres.Dialect.Delete(table).Prepared(true).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", entity, err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, conflictMessage)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", entity, err)
	}
	if n == 0 {
		return liberr.NotFound(entity, id)
	}
	return nil
}
