// Package liberr defines the error taxonomy shared by the library services.
//
// Every error that should reach a client carries a Kind. The HTTP layer maps
// kinds to status codes; anything without a kind is treated as internal.
package liberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the outer layers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindBusinessRule
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified, client-facing error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Fields)
}

// Is matches errors of the same code, so copies of a sentinel compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

var (
	// ErrBookUnavailable is returned when a book has no copies left to lend.
	ErrBookUnavailable = &Error{Kind: KindBusinessRule, Code: "book_unavailable", Message: "No available copies."}

	// ErrMemberNotFound is returned when a loan names a member that does not exist.
	ErrMemberNotFound = &Error{Kind: KindBusinessRule, Code: "member_not_found", Message: "Member does not exist."}

	// ErrActiveLoanNotFound is returned when there is no unreturned loan for a book and member.
	ErrActiveLoanNotFound = &Error{Kind: KindBusinessRule, Code: "active_loan_not_found", Message: "Active loan does not exist."}

	// ErrLoanAlreadyOverdue is returned when extending a loan whose due date has passed.
	ErrLoanAlreadyOverdue = &Error{Kind: KindBusinessRule, Code: "loan_already_overdue", Message: "Loan is already overdue"}

	// ErrLoanAlreadyReturned is returned when extending a loan that has been closed.
	ErrLoanAlreadyReturned = &Error{Kind: KindBusinessRule, Code: "loan_already_returned", Message: "Loan is already returned"}
)

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    entity + "_not_found",
		Message: fmt.Sprintf("%s with ID %v not found", entity, id),
	}
}

// Conflict reports a state clash such as a duplicate key or a dangling reference.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: "conflict", Message: message}
}

// Invalid reports a single invalid field.
func Invalid(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "validation failed",
		Fields:  map[string]string{field: message},
	}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first classified error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
