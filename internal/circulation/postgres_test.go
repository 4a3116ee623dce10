package circulation

import (
	"context"
	"libraryhub/internal/calendar"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/liberr"
	"libraryhub/internal/postgres/pgtest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverdueNoticesQuery(t *testing.T) {
	query, args, err := overdueNoticesQuery(calendar.New(2024, time.June, 1))
	require.NoError(t, err)

	assert.Contains(t, query, `INNER JOIN "accounts" AS "a" ON ("a"."id" = "m"."account_id")`)
	assert.Contains(t, query, `"l"."is_returned" IS`)
	assert.Contains(t, query, `("l"."due_date" < $`)
	assert.Contains(t, query, `ORDER BY "l"."member_id" ASC, "l"."due_date" ASC`)
	assert.NotEmpty(t, args)
}

func TestListLoansQuery(t *testing.T) {
	memberID := uuid.New()
	query, _, err := listLoansQuery(LoanFilter{MemberID: memberID, OverdueOnly: true}, calendar.New(2024, time.June, 1))
	require.NoError(t, err)

	assert.Contains(t, query, `"member_id" = $1`)
	assert.Contains(t, query, `"is_returned" IS`)
	assert.Contains(t, query, `"due_date" <`)
	assert.NotContains(t, query, `"book_id"`)
}

type fixture struct {
	db       *sqlx.DB
	repo     *PostgresRepository
	bookID   uuid.UUID
	memberID uuid.UUID
}

func setupFixture(t *testing.T, copies int) *fixture {
	t.Helper()
	db := pgtest.Open(t)
	ctx := context.Background()

	events, err := eventstore.NewEventStore(db)
	require.NoError(t, err)

	f := &fixture{db: db, repo: NewPostgresRepository(db, events), bookID: uuid.New(), memberID: uuid.New()}
	authorID, accountID := uuid.New(), uuid.New()

	_, err = db.ExecContext(ctx, `INSERT INTO authors (id, name) VALUES ($1, 'Italo Calvino')`, authorID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO books (id, title, author_id, isbn, total_copies, available_copies) VALUES ($1, 'Invisible Cities', $2, '9780156453806', $3, $3)`,
		f.bookID, authorID, copies)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO accounts (id, username, email) VALUES ($1, 'marco', 'marco@example.com')`, accountID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO members (id, account_id, membership_date) VALUES ($1, $2, '2024-01-01')`, f.memberID, accountID)
	require.NoError(t, err)

	return f
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.GetContext(context.Background(), &n, `SELECT available_copies FROM books WHERE id = $1`, f.bookID))
	return n
}

func TestPostgresLoanLifecycle(t *testing.T) {
	f := setupFixture(t, 1)
	ctx := context.Background()
	c := &clock{testNow}
	svc := newPostgresService(f, c)

	loan, err := svc.CreateLoan(ctx, f.bookID, f.memberID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t))

	_, err = svc.CreateLoan(ctx, f.bookID, f.memberID)
	assert.ErrorIs(t, err, liberr.ErrBookUnavailable)

	extended, err := svc.ExtendDueDate(ctx, loan.ID, intPtr(3))
	require.NoError(t, err)
	assert.Equal(t, calendar.New(2024, time.May, 18), extended.DueDate)

	c.t = testNow.AddDate(0, 1, 0)
	notices, err := f.repo.OverdueNotices(ctx, calendar.Of(c.t))
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "marco@example.com", notices[0].Email)
	assert.Equal(t, "Invisible Cities", notices[0].BookTitle)
	assert.Equal(t, calendar.New(2024, time.May, 18), notices[0].DueDate)

	returned, err := svc.ReturnBook(ctx, f.bookID, f.memberID)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, 1, f.available(t))

	stored, err := svc.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsReturned)
	assert.Equal(t, calendar.New(2024, time.June, 1), *stored.ReturnDate)

	history, err := svc.LoanHistory(ctx, loan.ID)
	require.NoError(t, err)
	var types []string
	for _, e := range history {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{EventLoanCreated, EventLoanDueDateExtended, EventLoanReturned}, types)

	notice, err := f.repo.LoanNotice(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "marco", notice.Username)
}

func TestPostgresDeleteActiveLoanRestoresCopy(t *testing.T) {
	f := setupFixture(t, 2)
	ctx := context.Background()
	svc := newPostgresService(f, &clock{testNow})

	loan, err := svc.CreateLoan(ctx, f.bookID, f.memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t))

	require.NoError(t, svc.DeleteLoan(ctx, loan.ID))
	assert.Equal(t, 2, f.available(t))

	_, err = f.repo.LoanNotice(ctx, loan.ID)
	assert.Equal(t, liberr.KindNotFound, liberr.KindOf(err))
}

func TestPostgresConcurrentLoansNeverOversell(t *testing.T) {
	const copies, borrowers = 3, 10
	f := setupFixture(t, copies)
	ctx := context.Background()
	svc := newPostgresService(f, &clock{testNow})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateLoan(ctx, f.bookID, f.memberID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, copies, succeeded)
	assert.Equal(t, 0, f.available(t))
}

func newPostgresService(f *fixture, c *clock) Service {
	return NewService(f.repo, nil, discardLogger(), WithClock(c.now))
}
