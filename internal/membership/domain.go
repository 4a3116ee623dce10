// internal/membership/domain.go
package membership

import (
	"libraryhub/internal/calendar"
	"time"

	"github.com/google/uuid"
)

// Member is a library patron. Username and Email come from the linked account
// and are where loan notifications are sent.
type Member struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	AccountID      uuid.UUID     `json:"account_id" db:"account_id"`
	Username       string        `json:"username" db:"username"`
	Email          string        `json:"email" db:"email"`
	MembershipDate calendar.Date `json:"membership_date" db:"membership_date"`
	Version        int           `json:"version" db:"version"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// Account holds the login identity behind a member.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Salt         string    `json:"-" db:"salt"`
}

// MemberInput carries the writable member fields. An empty Password leaves
// the stored credential untouched.
type MemberInput struct {
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	Password       string         `json:"password,omitempty"`
	MembershipDate *calendar.Date `json:"membership_date,omitempty"`
}

// MemberActivity summarises a member for the top-active ranking.
type MemberActivity struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	Email       string    `json:"email" db:"email"`
	ActiveLoans int       `json:"active_loans" db:"active_loans"`
}
