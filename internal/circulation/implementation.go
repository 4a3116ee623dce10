// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"libraryhub/internal/calendar"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/liberr"
	"libraryhub/internal/telemetry"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLoanPeriodDays = 14
	defaultExtendTries    = 5
)

// errStaleLoan reports that a loan changed between read and write.
var errStaleLoan = errors.New("loan was modified concurrently")

// service implements the Service interface.
type service struct {
	repo           Repository
	notifier       Notifier
	logger         *slog.Logger
	now            func() time.Time
	loanPeriodDays int
	extendTries    uint
	newBackOff     func() backoff.BackOff

	tracer       trace.Tracer
	loansCreated metric.Int64Counter
	loansClosed  metric.Int64Counter
}

// Option configures the circulation service.
type Option func(*service)

// WithClock replaces the time source used for loan, due and return dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLoanPeriod sets the number of days a new loan runs for.
func WithLoanPeriod(days int) Option {
	return func(s *service) { s.loanPeriodDays = days }
}

// WithExtendRetry bounds how often a due-date extension is retried after a
// concurrent modification, and with which back-off.
func WithExtendRetry(tries uint, newBackOff func() backoff.BackOff) Option {
	return func(s *service) {
		s.extendTries = tries
		s.newBackOff = newBackOff
	}
}

// NewService creates a new circulation service instance. notifier may be nil.
func NewService(repo Repository, notifier Notifier, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		repo:           repo,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
		loanPeriodDays: defaultLoanPeriodDays,
		extendTries:    defaultExtendTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
		tracer: otel.Tracer("libraryhub/circulation"),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("libraryhub/circulation")
	s.loansCreated = telemetry.Int64Counter(meter, logger, "circulation.loans.created", "Loans created")
	s.loansClosed = telemetry.Int64Counter(meter, logger, "circulation.loans.returned", "Loans returned")

	return s
}

func (s *service) today() calendar.Date {
	return calendar.Of(s.now().UTC())
}

func (s *service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "circulation."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateLoan lends one copy of a book to a member. The book is checked before
// the member, so an unavailable book wins over an unknown member.
func (s *service) CreateLoan(ctx context.Context, bookID, memberID uuid.UUID) (loan *Loan, err error) {
	ctx, span := s.startSpan(ctx, "CreateLoan",
		attribute.String("book.id", bookID.String()),
		attribute.String("member.id", memberID.String()),
	)
	defer func() { endSpan(span, err) }()

	today := s.today()
	loan = &Loan{
		ID:       uuid.New(),
		BookID:   bookID,
		MemberID: memberID,
		LoanDate: today,
		DueDate:  today.AddDays(s.loanPeriodDays),
		Version:  1,
	}

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies < 1 {
			return liberr.ErrBookUnavailable
		}

		exists, err := tx.MemberExists(ctx, memberID)
		if err != nil {
			return err
		}
		if !exists {
			return liberr.ErrMemberNotFound
		}

		if err := tx.TakeCopy(ctx, bookID); err != nil {
			return err
		}
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return err
		}

		event, err := eventstore.NewEvent(EventLoanCreated, LoanCreatedEvent{
			LoanID:   loan.ID,
			BookID:   bookID,
			MemberID: memberID,
			LoanDate: loan.LoanDate,
			DueDate:  loan.DueDate,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvents(ctx, loan.ID, 0, event)
	})
	if err != nil {
		return nil, err
	}

	s.loansCreated.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))

	if s.notifier != nil {
		if nerr := s.notifier.NotifyLoanCreated(ctx, loan.ID); nerr != nil {
			s.logger.WarnContext(ctx, "failed to schedule loan notification",
				"loan_id", loan.ID,
				"error", nerr,
			)
		}
	}

	return loan, nil
}

// ReturnBook closes the member's active loan of the book and restores the copy.
// An unknown book is NotFound, as for CreateLoan.
func (s *service) ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) (loan *Loan, err error) {
	ctx, span := s.startSpan(ctx, "ReturnBook",
		attribute.String("book.id", bookID.String()),
		attribute.String("member.id", memberID.String()),
	)
	defer func() { endSpan(span, err) }()

	today := s.today()
	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.LockBook(ctx, bookID); err != nil {
			return err
		}
		found, err := tx.FindActiveLoan(ctx, bookID, memberID)
		if err != nil {
			return err
		}
		expected := found.Version

		found.IsReturned = true
		found.ReturnDate = &today
		if err := tx.MarkReturned(ctx, found); err != nil {
			return err
		}
		if err := tx.ReturnCopy(ctx, bookID); err != nil {
			return err
		}

		event, err := eventstore.NewEvent(EventLoanReturned, LoanReturnedEvent{
			LoanID:     found.ID,
			BookID:     bookID,
			MemberID:   memberID,
			ReturnDate: today,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, found.ID, expected, event); err != nil {
			return err
		}

		loan = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.loansClosed.Add(ctx, 1)
	return loan, nil
}

// ExtendDueDate moves a loan's due date forward. Concurrent writers are resolved
// optimistically: the write is retried with back-off while the version is stale.
func (s *service) ExtendDueDate(ctx context.Context, loanID uuid.UUID, additionalDays *int) (loan *Loan, err error) {
	ctx, span := s.startSpan(ctx, "ExtendDueDate", attribute.String("loan.id", loanID.String()))
	defer func() { endSpan(span, err) }()

	v := liberr.NewValidator()
	v.Check(additionalDays != nil, "additional_days", "this field is required")
	if additionalDays != nil {
		v.Check(*additionalDays > 0, "additional_days", "must be a positive integer")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	days := *additionalDays

	attempt := 0
	loan, err = backoff.Retry(ctx, func() (*Loan, error) {
		attempt++
		extended, err := s.extendOnce(ctx, loanID, days)
		if err == nil {
			return extended, nil
		}
		if errors.Is(err, errStaleLoan) || errors.Is(err, eventstore.ErrConcurrencyConflict) {
			span.AddEvent("extend.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.extendTries))
	if err != nil {
		if errors.Is(err, errStaleLoan) || errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return nil, liberr.Conflict("loan is being modified concurrently, retry later")
		}
		return nil, err
	}
	return loan, nil
}

func (s *service) extendOnce(ctx context.Context, loanID uuid.UUID, days int) (*Loan, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.IsReturned {
		return nil, liberr.ErrLoanAlreadyReturned
	}
	if loan.IsOverdue(s.today()) {
		return nil, liberr.ErrLoanAlreadyOverdue
	}

	expected := loan.Version
	previous := loan.DueDate
	loan.DueDate = loan.DueDate.AddDays(days)

	err = s.repo.WithinTx(ctx, func(tx Tx) error {
		if err := tx.UpdateDueDate(ctx, loan); err != nil {
			return err
		}
		event, err := eventstore.NewEvent(EventLoanDueDateExtended, LoanDueDateExtendedEvent{
			LoanID:          loan.ID,
			PreviousDueDate: previous,
			DueDate:         loan.DueDate,
			AdditionalDays:  days,
		})
		if err != nil {
			return err
		}
		return tx.AppendEvents(ctx, loan.ID, expected, event)
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// GetLoan retrieves a loan by ID.
func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return s.repo.GetLoan(ctx, id)
}

func (s *service) ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error) {
	loans, err := s.repo.ListLoans(ctx, filter, s.today())
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// DeleteLoan removes a loan. An active loan gives its copy back first.
func (s *service) DeleteLoan(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteLoan", attribute.String("loan.id", id.String()))
	defer func() { endSpan(span, err) }()

	return s.repo.WithinTx(ctx, func(tx Tx) error {
		loan, err := tx.LockLoan(ctx, id)
		if err != nil {
			return err
		}

		restore := !loan.IsReturned
		if restore {
			if err := tx.ReturnCopy(ctx, loan.BookID); err != nil {
				return err
			}
		}

		event, err := eventstore.NewEvent(EventLoanDeleted, LoanDeletedEvent{
			LoanID:       loan.ID,
			BookID:       loan.BookID,
			CopyRestored: restore,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, loan.ID, loan.Version, event); err != nil {
			return err
		}
		return tx.DeleteLoan(ctx, id)
	})
}

// LoanHistory returns every recorded event of a loan, oldest first. It outlives
// the loan itself.
func (s *service) LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	events, err := s.repo.LoadHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load loan history: %w", err)
	}
	if len(events) == 0 {
		return nil, liberr.NotFound("loan", id)
	}
	return events, nil
}
