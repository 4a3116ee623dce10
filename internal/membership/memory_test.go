package membership

import (
	"bytes"
	"context"
	"libraryhub/internal/liberr"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository. active holds unreturned loan counts per member.
type memRepo struct {
	mu       sync.Mutex
	members  map[uuid.UUID]Member
	accounts map[uuid.UUID]Account
	active   map[uuid.UUID]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		members:  map[uuid.UUID]Member{},
		accounts: map[uuid.UUID]Account{},
		active:   map[uuid.UUID]int{},
	}
}

func (m *memRepo) taken(username, email string, except uuid.UUID) bool {
	for id, a := range m.accounts {
		if id != except && (a.Username == username || a.Email == email) {
			return true
		}
	}
	return false
}

func (m *memRepo) InsertMember(_ context.Context, account *Account, member *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken(account.Username, account.Email, uuid.Nil) {
		return liberr.Conflict(duplicateAccount)
	}
	m.accounts[account.ID] = *account
	m.members[member.ID] = *member
	return nil
}

func (m *memRepo) GetMember(_ context.Context, id uuid.UUID) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, liberr.NotFound("member", id)
	}
	return &member, nil
}

func (m *memRepo) ListMembers(_ context.Context) ([]*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := []*Member{}
	for _, member := range m.members {
		member := member
		members = append(members, &member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (m *memRepo) UpdateMember(_ context.Context, member *Member, credential *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.members[member.ID]
	if !ok {
		return liberr.NotFound("member", member.ID)
	}
	if stored.Version != member.Version {
		return liberr.Conflict("member was modified concurrently, reload and retry")
	}
	if m.taken(member.Username, member.Email, member.AccountID) {
		return liberr.Conflict(duplicateAccount)
	}

	account := m.accounts[member.AccountID]
	account.Username = member.Username
	account.Email = member.Email
	if credential != nil {
		account.PasswordHash = credential.PasswordHash
		account.Salt = credential.Salt
	}
	m.accounts[account.ID] = account

	member.Version++
	m.members[member.ID] = *member
	return nil
}

func (m *memRepo) DeleteMember(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return liberr.NotFound("member", id)
	}
	if m.active[id] > 0 {
		return liberr.Conflict("member has loan records")
	}
	delete(m.members, id)
	delete(m.accounts, member.AccountID)
	return nil
}

func (m *memRepo) TopActive(_ context.Context, limit int) ([]*MemberActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]Member, 0, len(m.members))
	for _, member := range m.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if m.active[a.ID] != m.active[b.ID] {
			return m.active[a.ID] > m.active[b.ID]
		}
		if !a.MembershipDate.Equal(b.MembershipDate) {
			return a.MembershipDate.Before(b.MembershipDate)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})

	result := []*MemberActivity{}
	for i := 0; i < len(members) && i < limit; i++ {
		result = append(result, &MemberActivity{
			ID:          members[i].ID,
			Username:    members[i].Username,
			Email:       members[i].Email,
			ActiveLoans: m.active[members[i].ID],
		})
	}
	return result, nil
}
