// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// TopActiveLimit is the size of the top-active ranking.
const TopActiveLimit = 5

// Service defines the interface for the membership service.
type Service interface {
	CreateMember(ctx context.Context, in MemberInput) (*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context) ([]*Member, error)
	UpdateMember(ctx context.Context, id uuid.UUID, in MemberInput) (*Member, error)
	DeleteMember(ctx context.Context, id uuid.UUID) error
	ListTopActiveMembers(ctx context.Context) ([]*MemberActivity, error)
}

// Repository is the persistence the membership service needs.
type Repository interface {
	// InsertMember stores the account and the member together.
	InsertMember(ctx context.Context, account *Account, member *Member) error
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context) ([]*Member, error)
	// UpdateMember writes member if its stored version still equals member.Version.
	// A nil credential keeps the current password.
	UpdateMember(ctx context.Context, member *Member, credential *Account) error
	DeleteMember(ctx context.Context, id uuid.UUID) error
	TopActive(ctx context.Context, limit int) ([]*MemberActivity, error)
}
