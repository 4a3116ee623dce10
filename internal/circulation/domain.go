// internal/circulation/domain.go
package circulation

import (
	"libraryhub/internal/calendar"
	"time"

	"github.com/google/uuid"
)

// AggregateType names loans in the event store.
const AggregateType = "loan"

// Event types recorded for every loan mutation.
const (
	EventLoanCreated         = "LoanCreated"
	EventLoanDueDateExtended = "LoanDueDateExtended"
	EventLoanReturned        = "LoanReturned"
	EventLoanDeleted         = "LoanDeleted"
)

// Loan records one book borrowed by one member.
// ReturnDate is set exactly when IsReturned is true.
type Loan struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	BookID     uuid.UUID      `json:"book_id" db:"book_id"`
	MemberID   uuid.UUID      `json:"member_id" db:"member_id"`
	LoanDate   calendar.Date  `json:"loan_date" db:"loan_date"`
	DueDate    calendar.Date  `json:"due_date" db:"due_date"`
	IsReturned bool           `json:"is_returned" db:"is_returned"`
	ReturnDate *calendar.Date `json:"return_date" db:"return_date"`
	Version    int            `json:"version" db:"version"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// IsOverdue reports whether the loan is still out after its due date.
func (l *Loan) IsOverdue(today calendar.Date) bool {
	return !l.IsReturned && today.After(l.DueDate)
}

// LoanFilter narrows ListLoans. Zero values mean "no restriction".
type LoanFilter struct {
	MemberID    uuid.UUID
	BookID      uuid.UUID
	ActiveOnly  bool
	OverdueOnly bool
}

// BookStock is the part of a book the loan lifecycle reads and writes.
type BookStock struct {
	ID              uuid.UUID `db:"id"`
	TotalCopies     int       `db:"total_copies"`
	AvailableCopies int       `db:"available_copies"`
}

// LoanNotice joins a loan with what a reminder email needs.
type LoanNotice struct {
	LoanID    uuid.UUID     `db:"loan_id"`
	MemberID  uuid.UUID     `db:"member_id"`
	Username  string        `db:"username"`
	Email     string        `db:"email"`
	BookTitle string        `db:"book_title"`
	DueDate   calendar.Date `db:"due_date"`
}

// LoanCreatedEvent is recorded when a book is lent.
type LoanCreatedEvent struct {
	LoanID   uuid.UUID     `json:"loan_id"`
	BookID   uuid.UUID     `json:"book_id"`
	MemberID uuid.UUID     `json:"member_id"`
	LoanDate calendar.Date `json:"loan_date"`
	DueDate  calendar.Date `json:"due_date"`
}

// LoanDueDateExtendedEvent is recorded when a due date moves.
type LoanDueDateExtendedEvent struct {
	LoanID          uuid.UUID     `json:"loan_id"`
	PreviousDueDate calendar.Date `json:"previous_due_date"`
	DueDate         calendar.Date `json:"due_date"`
	AdditionalDays  int           `json:"additional_days"`
}

// LoanReturnedEvent is recorded when a book comes back.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID     `json:"loan_id"`
	BookID     uuid.UUID     `json:"book_id"`
	MemberID   uuid.UUID     `json:"member_id"`
	ReturnDate calendar.Date `json:"return_date"`
}

// LoanDeletedEvent is recorded when a loan is removed administratively.
type LoanDeletedEvent struct {
	LoanID       uuid.UUID `json:"loan_id"`
	BookID       uuid.UUID `json:"book_id"`
	CopyRestored bool      `json:"copy_restored"`
}
