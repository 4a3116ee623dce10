// internal/circulation/service.go
package circulation

import (
	"context"
	"libraryhub/internal/calendar"
	"libraryhub/internal/eventstore"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	CreateLoan(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error)
	ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error)
	// ExtendDueDate moves the due date of a loan that is neither returned nor
	// overdue. A nil additionalDays is reported as a missing field.
	ExtendDueDate(ctx context.Context, loanID uuid.UUID, additionalDays *int) (*Loan, error)

	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error)
	DeleteLoan(ctx context.Context, id uuid.UUID) error
	LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
}

// Notifier is told about new loans after they commit.
type Notifier interface {
	NotifyLoanCreated(ctx context.Context, loanID uuid.UUID) error
}

// Repository is the persistence the circulation service needs.
type Repository interface {
	// WithinTx runs fn in a single transaction, rolling back if fn fails.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter, today calendar.Date) ([]*Loan, error)
	LoadHistory(ctx context.Context, loanID uuid.UUID) ([]eventstore.Event, error)
}

// Tx is the transactional half of Repository.
type Tx interface {
	// LockBook reads a book's stock and holds it until the transaction ends.
	LockBook(ctx context.Context, bookID uuid.UUID) (*BookStock, error)
	MemberExists(ctx context.Context, memberID uuid.UUID) (bool, error)
	// TakeCopy decrements available copies, failing with ErrBookUnavailable at zero.
	TakeCopy(ctx context.Context, bookID uuid.UUID) error
	// ReturnCopy increments available copies without exceeding the total.
	ReturnCopy(ctx context.Context, bookID uuid.UUID) error

	InsertLoan(ctx context.Context, loan *Loan) error
	// FindActiveLoan locks the oldest unreturned loan for the pair.
	FindActiveLoan(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error)
	LockLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	// MarkReturned and UpdateDueDate write loan if its stored version still equals
	// loan.Version and bump the version on success.
	MarkReturned(ctx context.Context, loan *Loan) error
	UpdateDueDate(ctx context.Context, loan *Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error

	AppendEvents(ctx context.Context, loanID uuid.UUID, expectedVersion int, events ...eventstore.Event) error
}
