// internal/notification/jobs.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"libraryhub/internal/calendar"
	"libraryhub/internal/circulation"
	"libraryhub/internal/jobs"
	"libraryhub/internal/liberr"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	loanSubject    = "Book Loaned Successfully"
	overdueSubject = "Overdue Book Reminder"
)

// Notifier is what the jobs need from a Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// LoanReader loads the recipient data for loan emails.
type LoanReader interface {
	LoanNotice(ctx context.Context, loanID uuid.UUID) (*circulation.LoanNotice, error)
	OverdueNotices(ctx context.Context, today calendar.Date) ([]*circulation.LoanNotice, error)
}

// SendLoanNotification confirms a new loan to its member. Delivery is best
// effort: a vanished loan or a failed send is logged and dropped.
type SendLoanNotification struct {
	LoanID   uuid.UUID
	loans    LoanReader
	notifier Notifier
	logger   *slog.Logger
}

func NewSendLoanNotification(loanID uuid.UUID, loans LoanReader, notifier Notifier, logger *slog.Logger) *SendLoanNotification {
	return &SendLoanNotification{LoanID: loanID, loans: loans, notifier: notifier, logger: logger}
}

func (j *SendLoanNotification) Name() string { return "send_loan_notification" }

func (j *SendLoanNotification) Execute(ctx context.Context) error {
	notice, err := j.loans.LoanNotice(ctx, j.LoanID)
	if err != nil {
		if liberr.KindOf(err) == liberr.KindNotFound {
			j.logger.DebugContext(ctx, "loan gone before confirmation was sent", "loan_id", j.LoanID)
			return nil
		}
		return err
	}

	if err := j.notifier.Notify(ctx, notice.Email, loanSubject, loanBody(notice)); err != nil {
		j.logger.WarnContext(ctx, "failed to send loan confirmation",
			"loan_id", j.LoanID,
			"error", err,
		)
	}
	return nil
}

func loanBody(n *circulation.LoanNotice) string {
	return fmt.Sprintf("Hello %s,\n\nYou have successfully loaned \"%s\".\nPlease return it by the due date.",
		n.Username, n.BookTitle)
}

// CheckOverdueLoans reminds members of loans past their due date. Every
// reminder is attempted; failures are joined and returned. A retried run
// skips reminders an earlier attempt already delivered.
type CheckOverdueLoans struct {
	loans     LoanReader
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	aggregate bool

	mu        sync.Mutex
	delivered map[uuid.UUID]bool
}

// OverdueOption configures CheckOverdueLoans.
type OverdueOption func(*CheckOverdueLoans)

// WithClock replaces the time source that decides what "today" is.
func WithClock(now func() time.Time) OverdueOption {
	return func(j *CheckOverdueLoans) { j.now = now }
}

// WithAggregation sends one reminder per member listing all their overdue books.
func WithAggregation(enabled bool) OverdueOption {
	return func(j *CheckOverdueLoans) { j.aggregate = enabled }
}

func NewCheckOverdueLoans(loans LoanReader, notifier Notifier, logger *slog.Logger, opts ...OverdueOption) *CheckOverdueLoans {
	j := &CheckOverdueLoans{
		loans:     loans,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		delivered: map[uuid.UUID]bool{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *CheckOverdueLoans) Name() string { return "check_overdue_loans" }

func (j *CheckOverdueLoans) Execute(ctx context.Context) error {
	today := calendar.Of(j.now().UTC())
	notices, err := j.loans.OverdueNotices(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to load overdue loans: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var errs []error
	sent, skipped := 0, 0
	for _, reminder := range j.reminders(notices) {
		if j.delivered[reminder.key] {
			skipped++
			continue
		}
		if err := j.notifier.Notify(ctx, reminder.to, overdueSubject, reminder.body); err != nil {
			errs = append(errs, err)
			continue
		}
		j.delivered[reminder.key] = true
		sent++
	}

	j.logger.InfoContext(ctx, "overdue sweep finished",
		"overdue_loans", len(notices),
		"sent", sent,
		"already_sent", skipped,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

// reminder is one email; key is the loan ID, or the member ID when aggregating.
type reminder struct {
	key  uuid.UUID
	to   string
	body string
}

func (j *CheckOverdueLoans) reminders(notices []*circulation.LoanNotice) []reminder {
	if !j.aggregate {
		out := make([]reminder, 0, len(notices))
		for _, n := range notices {
			out = append(out, reminder{key: n.LoanID, to: n.Email, body: overdueBody(n)})
		}
		return out
	}

	var order []uuid.UUID
	byMember := map[uuid.UUID][]*circulation.LoanNotice{}
	for _, n := range notices {
		if _, seen := byMember[n.MemberID]; !seen {
			order = append(order, n.MemberID)
		}
		byMember[n.MemberID] = append(byMember[n.MemberID], n)
	}

	out := make([]reminder, 0, len(order))
	for _, id := range order {
		group := byMember[id]
		if len(group) == 1 {
			out = append(out, reminder{key: id, to: group[0].Email, body: overdueBody(group[0])})
			continue
		}
		out = append(out, reminder{key: id, to: group[0].Email, body: aggregateOverdueBody(group)})
	}
	return out
}

func overdueBody(n *circulation.LoanNotice) string {
	return fmt.Sprintf("Hello %s,\n\nYou have an overdue book \"%s\" to return since %s.\nPlease return it as soon as possible.",
		n.Username, n.BookTitle, n.DueDate)
}

func aggregateOverdueBody(group []*circulation.LoanNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nYou have overdue books to return:\n", group[0].Username)
	for _, n := range group {
		fmt.Fprintf(&b, "- \"%s\" since %s\n", n.BookTitle, n.DueDate)
	}
	b.WriteString("Please return them as soon as possible.")
	return b.String()
}

// QueueNotifier schedules loan confirmations on a job queue.
type QueueNotifier struct {
	queue    jobs.Enqueuer
	loans    LoanReader
	notifier Notifier
	logger   *slog.Logger
}

func NewQueueNotifier(queue jobs.Enqueuer, loans LoanReader, notifier Notifier, logger *slog.Logger) *QueueNotifier {
	return &QueueNotifier{queue: queue, loans: loans, notifier: notifier, logger: logger}
}

func (n *QueueNotifier) NotifyLoanCreated(_ context.Context, loanID uuid.UUID) error {
	return n.queue.Enqueue(NewSendLoanNotification(loanID, n.loans, n.notifier, n.logger))
}

var _ circulation.Notifier = (*QueueNotifier)(nil)
