// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"libraryhub/internal/calendar"
	"libraryhub/internal/liberr"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var emailRX = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// service implements the Service interface.
type service struct {
	repo Repository
	now  func() time.Time
}

// Option configures the membership service.
type Option func(*service)

// WithClock replaces the time source used for default membership dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new membership service instance.
func NewService(repo Repository, opts ...Option) Service {
	s := &service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateMember(in MemberInput) error {
	v := liberr.NewValidator()
	v.Check(strings.TrimSpace(in.Username) != "", "username", "must be provided")
	v.Check(len(in.Username) <= 150, "username", "must not be more than 150 characters")
	v.Check(in.Email != "", "email", "must be provided")
	v.Check(emailRX.MatchString(in.Email), "email", "must be a valid email address")
	if in.Password != "" {
		v.Check(len(in.Password) >= 8, "password", "must be at least 8 characters long")
		v.Check(len(in.Password) <= 72, "password", "must not be more than 72 characters long")
	}
	return v.Err()
}

// CreateMember registers a member together with its account.
func (s *service) CreateMember(ctx context.Context, in MemberInput) (*Member, error) {
	if err := validateMember(in); err != nil {
		return nil, err
	}

	account := &Account{
		ID:       uuid.New(),
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(in.Email),
	}
	if in.Password != "" {
		if err := credentialFor(account, in.Password); err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	membershipDate := calendar.Of(s.now().UTC())
	if in.MembershipDate != nil {
		membershipDate = *in.MembershipDate
	}

	member := &Member{
		ID:             uuid.New(),
		AccountID:      account.ID,
		Username:       account.Username,
		Email:          account.Email,
		MembershipDate: membershipDate,
		Version:        1,
	}
	if err := s.repo.InsertMember(ctx, account, member); err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	return member, nil
}

// GetMember retrieves a member by ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	return s.repo.GetMember(ctx, id)
}

func (s *service) ListMembers(ctx context.Context) ([]*Member, error) {
	return s.repo.ListMembers(ctx)
}

// UpdateMember changes the account identity and, when given, the password.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, in MemberInput) (*Member, error) {
	if err := validateMember(in); err != nil {
		return nil, err
	}

	member, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	member.Username = strings.TrimSpace(in.Username)
	member.Email = strings.ToLower(in.Email)
	if in.MembershipDate != nil {
		member.MembershipDate = *in.MembershipDate
	}

	var credential *Account
	if in.Password != "" {
		credential = &Account{ID: member.AccountID}
		if err := credentialFor(credential, in.Password); err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	if err := s.repo.UpdateMember(ctx, member, credential); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}
	return member, nil
}

// DeleteMember removes a member and its account. Members with loan records are kept.
func (s *service) DeleteMember(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteMember(ctx, id)
}

// ListTopActiveMembers ranks members by unreturned loans, most first. Ties go to
// the earlier membership date, then the lower ID.
func (s *service) ListTopActiveMembers(ctx context.Context) ([]*MemberActivity, error) {
	members, err := s.repo.TopActive(ctx, TopActiveLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank members: %w", err)
	}
	return members, nil
}
