package circulation

import (
	"context"
	"libraryhub/internal/calendar"
	"libraryhub/internal/eventstore"
	"libraryhub/internal/liberr"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// memState is everything memRepo keeps, copied whole so a failed
// transaction can be rolled back.
type memState struct {
	books   map[uuid.UUID]BookStock
	members map[uuid.UUID]bool
	loans   map[uuid.UUID]Loan
	events  map[uuid.UUID][]eventstore.Event
}

func (s memState) clone() memState {
	c := memState{
		books:   make(map[uuid.UUID]BookStock, len(s.books)),
		members: make(map[uuid.UUID]bool, len(s.members)),
		loans:   make(map[uuid.UUID]Loan, len(s.loans)),
		events:  make(map[uuid.UUID][]eventstore.Event, len(s.events)),
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]eventstore.Event(nil), v...)
	}
	return c
}

// memRepo is an in-memory Repository. Transactions are serialised by mu.
type memRepo struct {
	mu    sync.Mutex
	state memState

	// afterGet, when set, runs after GetLoan has read a loan, outside any
	// transaction. Tests use it to commit a concurrent change.
	afterGet func(id uuid.UUID)
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{
		books:   map[uuid.UUID]BookStock{},
		members: map[uuid.UUID]bool{},
		loans:   map[uuid.UUID]Loan{},
		events:  map[uuid.UUID][]eventstore.Event{},
	}}
}

func (m *memRepo) addBook(total, available int) uuid.UUID {
	id := uuid.New()
	m.state.books[id] = BookStock{ID: id, TotalCopies: total, AvailableCopies: available}
	return id
}

func (m *memRepo) addMember() uuid.UUID {
	id := uuid.New()
	m.state.members[id] = true
	return id
}

func (m *memRepo) book(id uuid.UUID) BookStock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[id]
}

func (m *memRepo) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.clone()
	if err := fn(&memTx{repo: m}); err != nil {
		m.state = saved
		return err
	}
	return nil
}

func (m *memRepo) GetLoan(_ context.Context, id uuid.UUID) (*Loan, error) {
	m.mu.Lock()
	loan, ok := m.state.loans[id]
	m.mu.Unlock()
	if !ok {
		return nil, liberr.NotFound("loan", id)
	}
	if m.afterGet != nil {
		m.afterGet(id)
	}
	return &loan, nil
}

func (m *memRepo) ListLoans(_ context.Context, filter LoanFilter, today calendar.Date) ([]*Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loans := []*Loan{}
	for _, loan := range m.state.loans {
		loan := loan
		switch {
		case filter.MemberID != uuid.Nil && loan.MemberID != filter.MemberID:
			continue
		case filter.BookID != uuid.Nil && loan.BookID != filter.BookID:
			continue
		case filter.ActiveOnly && loan.IsReturned:
			continue
		case filter.OverdueOnly && !loan.IsOverdue(today):
			continue
		}
		loans = append(loans, &loan)
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].LoanDate.After(loans[j].LoanDate) })
	return loans, nil
}

func (m *memRepo) LoadHistory(_ context.Context, loanID uuid.UUID) ([]eventstore.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]eventstore.Event(nil), m.state.events[loanID]...), nil
}

type memTx struct {
	repo *memRepo
}

func (t *memTx) LockBook(_ context.Context, bookID uuid.UUID) (*BookStock, error) {
	book, ok := t.repo.state.books[bookID]
	if !ok {
		return nil, liberr.NotFound("book", bookID)
	}
	return &book, nil
}

func (t *memTx) MemberExists(_ context.Context, memberID uuid.UUID) (bool, error) {
	return t.repo.state.members[memberID], nil
}

func (t *memTx) TakeCopy(_ context.Context, bookID uuid.UUID) error {
	book := t.repo.state.books[bookID]
	if book.AvailableCopies <= 0 {
		return liberr.ErrBookUnavailable
	}
	book.AvailableCopies--
	t.repo.state.books[bookID] = book
	return nil
}

func (t *memTx) ReturnCopy(_ context.Context, bookID uuid.UUID) error {
	book, ok := t.repo.state.books[bookID]
	if !ok {
		return liberr.NotFound("book", bookID)
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	t.repo.state.books[bookID] = book
	return nil
}

func (t *memTx) InsertLoan(_ context.Context, loan *Loan) error {
	t.repo.state.loans[loan.ID] = *loan
	return nil
}

func (t *memTx) FindActiveLoan(_ context.Context, bookID, memberID uuid.UUID) (*Loan, error) {
	var found *Loan
	for _, loan := range t.repo.state.loans {
		loan := loan
		if loan.BookID != bookID || loan.MemberID != memberID || loan.IsReturned {
			continue
		}
		if found == nil || loan.LoanDate.Before(found.LoanDate) {
			found = &loan
		}
	}
	if found == nil {
		return nil, liberr.ErrActiveLoanNotFound
	}
	return found, nil
}

func (t *memTx) LockLoan(_ context.Context, id uuid.UUID) (*Loan, error) {
	loan, ok := t.repo.state.loans[id]
	if !ok {
		return nil, liberr.NotFound("loan", id)
	}
	return &loan, nil
}

func (t *memTx) write(loan *Loan) error {
	stored, ok := t.repo.state.loans[loan.ID]
	if !ok || stored.Version != loan.Version {
		return errStaleLoan
	}
	loan.Version++
	t.repo.state.loans[loan.ID] = *loan
	return nil
}

func (t *memTx) MarkReturned(_ context.Context, loan *Loan) error {
	return t.write(loan)
}

func (t *memTx) UpdateDueDate(_ context.Context, loan *Loan) error {
	return t.write(loan)
}

func (t *memTx) DeleteLoan(_ context.Context, id uuid.UUID) error {
	if _, ok := t.repo.state.loans[id]; !ok {
		return liberr.NotFound("loan", id)
	}
	delete(t.repo.state.loans, id)
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, loanID uuid.UUID, expectedVersion int, events ...eventstore.Event) error {
	history := t.repo.state.events[loanID]
	if len(history) != expectedVersion {
		return eventstore.ErrConcurrencyConflict
	}
	for i, event := range events {
		event.AggregateID = loanID
		event.AggregateType = AggregateType
		event.Version = expectedVersion + i + 1
		history = append(history, event)
	}
	t.repo.state.events[loanID] = history
	return nil
}
