// internal/circulation/postgres.go
package circulation

import (
	"context"
	"fmt"
	"libraryhub/internal/calendar"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/liberr"
	"libraryhub/internal/postgres"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	tableLoans    = "loans"
	tableBooks    = "books"
	tableMembers  = "members"
	tableAccounts = "accounts"
)

// PostgresRepository stores loans in PostgreSQL and their history in the event store.
type PostgresRepository struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

func NewPostgresRepository(db *sqlx.DB, events *eventstore.EventStore) *PostgresRepository {
	return &PostgresRepository{db: db, events: events}
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return postgres.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx, events: r.events})
	})
}

func (r *PostgresRepository) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return getLoan(ctx, r.db, id, false)
}

// listLoansQuery is split out so the generated SQL can be checked without a database.
func listLoansQuery(filter LoanFilter, today calendar.Date) (string, []interface{}, error) {
	ds := postgres.Dialect.From(tableLoans).Prepared(true)
	if filter.MemberID != uuid.Nil {
		ds = ds.Where(goqu.C("member_id").Eq(filter.MemberID))
	}
	if filter.BookID != uuid.Nil {
		ds = ds.Where(goqu.C("book_id").Eq(filter.BookID))
	}
	if filter.ActiveOnly || filter.OverdueOnly {
		ds = ds.Where(goqu.C("is_returned").IsFalse())
	}
	if filter.OverdueOnly {
		ds = ds.Where(goqu.C("due_date").Lt(today))
	}
	return ds.Order(goqu.C("loan_date").Desc(), goqu.C("id").Asc()).ToSQL()
}

func (r *PostgresRepository) ListLoans(ctx context.Context, filter LoanFilter, today calendar.Date) ([]*Loan, error) {
	query, args, err := listLoansQuery(filter, today)
	if err != nil {
		return nil, fmt.Errorf("build list loans: %w", err)
	}

	loans := []*Loan{}
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

func (r *PostgresRepository) LoadHistory(ctx context.Context, loanID uuid.UUID) ([]eventstore.Event, error) {
	return r.events.LoadEvents(ctx, loanID, 0, 0)
}

// noticesQuery joins loans with the recipient and the book title.
func noticesQuery() *goqu.SelectDataset {
	return postgres.Dialect.From(goqu.T(tableLoans).As("l")).Prepared(true).
		Join(goqu.T(tableMembers).As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Join(goqu.T(tableAccounts).As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("m.account_id")))).
		Join(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Select(
			goqu.I("l.id").As("loan_id"),
			goqu.I("l.member_id").As("member_id"),
			goqu.I("a.username").As("username"),
			goqu.I("a.email").As("email"),
			goqu.I("b.title").As("book_title"),
			goqu.I("l.due_date").As("due_date"),
		)
}

// LoanNotice returns what a confirmation email needs for one loan.
func (r *PostgresRepository) LoanNotice(ctx context.Context, loanID uuid.UUID) (*LoanNotice, error) {
	query, args, err := noticesQuery().Where(goqu.I("l.id").Eq(loanID)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan notice: %w", err)
	}

	notice := &LoanNotice{}
	if err := r.db.GetContext(ctx, notice, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("loan", loanID)
		}
		return nil, fmt.Errorf("failed to get loan notice: %w", err)
	}
	return notice, nil
}

// overdueNoticesQuery is split out so the generated SQL can be checked without a database.
func overdueNoticesQuery(today calendar.Date) (string, []interface{}, error) {
	return noticesQuery().
		Where(
			goqu.I("l.is_returned").IsFalse(),
			goqu.I("l.due_date").Lt(today),
		).
		Order(goqu.I("l.member_id").Asc(), goqu.I("l.due_date").Asc(), goqu.I("l.id").Asc()).
		ToSQL()
}

// OverdueNotices returns every active loan due before today, grouped by member.
func (r *PostgresRepository) OverdueNotices(ctx context.Context, today calendar.Date) ([]*LoanNotice, error) {
	query, args, err := overdueNoticesQuery(today)
	if err != nil {
		return nil, fmt.Errorf("build overdue notices: %w", err)
	}

	notices := []*LoanNotice{}
	if err := r.db.SelectContext(ctx, &notices, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query overdue loans: %w", err)
	}
	return notices, nil
}

func getLoan(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock bool) (*Loan, error) {
	ds := postgres.Dialect.From(tableLoans).Prepared(true).Where(goqu.Ex{"id": id})
	if lock {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get loan: %w", err)
	}

	loan := &Loan{}
	if err := sqlx.GetContext(ctx, q, loan, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("loan", id)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// pgTx implements Tx on one database transaction.
type pgTx struct {
	tx     *sqlx.Tx
	events *eventstore.EventStore
}

func (t *pgTx) LockBook(ctx context.Context, bookID uuid.UUID) (*BookStock, error) {
	query, args, err := postgres.Dialect.From(tableBooks).Prepared(true).
		Select("id", "total_copies", "available_copies").
		Where(goqu.Ex{"id": bookID}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build lock book: %w", err)
	}

	book := &BookStock{}
	if err := t.tx.GetContext(ctx, book, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("book", bookID)
		}
		return nil, fmt.Errorf("failed to lock book: %w", err)
	}
	return book, nil
}

func (t *pgTx) MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error) {
	query, args, err := postgres.Dialect.From(tableMembers).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Ex{"id": memberID}).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build member exists: %w", err)
	}

	var n int
	if err := t.tx.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("failed to look up member: %w", err)
	}
	return n > 0, nil
}

// adjustCopies applies set to the book when guard holds. Stock changes bump the
// book version so concurrent catalog edits are detected.
func (t *pgTx) adjustCopies(ctx context.Context, bookID uuid.UUID, set exp.LiteralExpression, guard ...exp.Expression) (int64, error) {
	where := append([]exp.Expression{goqu.C("id").Eq(bookID)}, guard...)
	query, args, err := postgres.Dialect.Update(tableBooks).Prepared(true).
		Set(goqu.Record{
			"available_copies": set,
			"version":          goqu.L("version + 1"),
			"updated_at":       goqu.L("NOW()"),
		}).
		Where(where...).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build adjust copies: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, postgres.MapError(err, "book stock could not be updated")
	}
	return result.RowsAffected()
}

func (t *pgTx) TakeCopy(ctx context.Context, bookID uuid.UUID) error {
	n, err := t.adjustCopies(ctx, bookID, goqu.L("available_copies - 1"), goqu.C("available_copies").Gt(0))
	if err != nil {
		return err
	}
	if n == 0 {
		return liberr.ErrBookUnavailable
	}
	return nil
}

func (t *pgTx) ReturnCopy(ctx context.Context, bookID uuid.UUID) error {
	n, err := t.adjustCopies(ctx, bookID, goqu.L("LEAST(available_copies + 1, total_copies)"))
	if err != nil {
		return err
	}
	if n == 0 {
		return liberr.NotFound("book", bookID)
	}
	return nil
}

func (t *pgTx) InsertLoan(ctx context.Context, loan *Loan) error {
	query, args, err := postgres.Dialect.Insert(tableLoans).Prepared(true).
		Rows(goqu.Record{
			"id":          loan.ID,
			"book_id":     loan.BookID,
			"member_id":   loan.MemberID,
			"loan_date":   loan.LoanDate,
			"due_date":    loan.DueDate,
			"is_returned": loan.IsReturned,
			"return_date": calendar.Nullable(loan.ReturnDate),
			"version":     loan.Version,
		}).
		Returning("created_at", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert loan: %w", err)
	}

	if err := t.tx.QueryRowxContext(ctx, query, args...).Scan(&loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return postgres.MapError(err, "loan references a missing book or member")
	}
	return nil
}

func (t *pgTx) FindActiveLoan(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error) {
	query, args, err := postgres.Dialect.From(tableLoans).Prepared(true).
		Where(goqu.Ex{"book_id": bookID, "member_id": memberID, "is_returned": false}).
		Order(goqu.C("loan_date").Asc(), goqu.C("id").Asc()).
		Limit(1).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find active loan: %w", err)
	}

	loan := &Loan{}
	if err := t.tx.GetContext(ctx, loan, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.ErrActiveLoanNotFound
		}
		return nil, fmt.Errorf("failed to find active loan: %w", err)
	}
	return loan, nil
}

func (t *pgTx) LockLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return getLoan(ctx, t.tx, id, true)
}

func (t *pgTx) updateLoan(ctx context.Context, loan *Loan, fields goqu.Record) error {
	fields["version"] = goqu.L("version + 1")
	fields["updated_at"] = goqu.L("NOW()")

	query, args, err := postgres.Dialect.Update(tableLoans).Prepared(true).
		Set(fields).
		Where(goqu.Ex{"id": loan.ID, "version": loan.Version}).
		Returning("version", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update loan: %w", err)
	}

	if err := t.tx.QueryRowxContext(ctx, query, args...).Scan(&loan.Version, &loan.UpdatedAt); err != nil {
		if postgres.IsNoRows(err) {
			return errStaleLoan
		}
		return postgres.MapError(err, "loan could not be updated")
	}
	return nil
}

func (t *pgTx) MarkReturned(ctx context.Context, loan *Loan) error {
	return t.updateLoan(ctx, loan, goqu.Record{
		"is_returned": loan.IsReturned,
		"return_date": calendar.Nullable(loan.ReturnDate),
	})
}

func (t *pgTx) UpdateDueDate(ctx context.Context, loan *Loan) error {
	return t.updateLoan(ctx, loan, goqu.Record{"due_date": loan.DueDate})
}

func (t *pgTx) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	query, args, err := postgres.Dialect.Delete(tableLoans).Prepared(true).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete loan: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if n == 0 {
		return liberr.NotFound("loan", id)
	}
	return nil
}

func (t *pgTx) AppendEvents(ctx context.Context, loanID uuid.UUID, expectedVersion int, events ...eventstore.Event) error {
	return t.events.Append(ctx, t.tx, loanID, AggregateType, expectedVersion, events)
}
