// internal/membership/postgres.go
package membership

import (
	"context"
	"fmt"
	"libraryhub/internal/liberr"
	"libraryhub/internal/postgres"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	tableMembers  = "members"
	tableAccounts = "accounts"
	tableLoans    = "loans"

	duplicateAccount = "username or email is already taken"
)

// PostgresRepository stores members and their accounts in PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) InsertMember(ctx context.Context, account *Account, member *Member) error {
	insertAccount, accountArgs, err := postgres.Dialect.Insert(tableAccounts).Prepared(true).
		Rows(goqu.Record{
			"id":            account.ID,
			"username":      account.Username,
			"email":         account.Email,
			"password_hash": account.PasswordHash,
			"salt":          account.Salt,
		}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert account: %w", err)
	}

	insertMember, memberArgs, err := postgres.Dialect.Insert(tableMembers).Prepared(true).
		Rows(goqu.Record{
			"id":              member.ID,
			"account_id":      member.AccountID,
			"membership_date": member.MembershipDate,
			"version":         member.Version,
		}).
		Returning("created_at", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert member: %w", err)
	}

	return postgres.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, insertAccount, accountArgs...); err != nil {
			return postgres.MapError(err, duplicateAccount)
		}
		if err := tx.QueryRowxContext(ctx, insertMember, memberArgs...).Scan(&member.CreatedAt, &member.UpdatedAt); err != nil {
			return postgres.MapError(err, duplicateAccount)
		}
		return nil
	})
}

// membersWithAccount selects member columns with the account identity inlined.
func membersWithAccount() *goqu.SelectDataset {
	return postgres.Dialect.From(goqu.T(tableMembers).As("m")).Prepared(true).
		Join(goqu.T(tableAccounts).As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("m.account_id")))).
		Select(
			"m.id", "m.account_id", "a.username", "a.email",
			"m.membership_date", "m.version", "m.created_at", "m.updated_at",
		)
}

func (r *PostgresRepository) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	query, args, err := membersWithAccount().Where(goqu.I("m.id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get member: %w", err)
	}

	member := &Member{}
	if err := r.db.GetContext(ctx, member, query, args...); err != nil {
		if postgres.IsNoRows(err) {
			return nil, liberr.NotFound("member", id)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context) ([]*Member, error) {
	query, args, err := membersWithAccount().
		Order(goqu.I("a.username").Asc(), goqu.I("m.id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list members: %w", err)
	}

	members := []*Member{}
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (r *PostgresRepository) UpdateMember(ctx context.Context, member *Member, credential *Account) error {
	accountFields := goqu.Record{
		"username": member.Username,
		"email":    member.Email,
	}
	if credential != nil {
		accountFields["password_hash"] = credential.PasswordHash
		accountFields["salt"] = credential.Salt
	}

	updateAccount, accountArgs, err := postgres.Dialect.Update(tableAccounts).Prepared(true).
		Set(accountFields).
		Where(goqu.Ex{"id": member.AccountID}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update account: %w", err)
	}

	updateMember, memberArgs, err := postgres.Dialect.Update(tableMembers).Prepared(true).
		Set(goqu.Record{
			"membership_date": member.MembershipDate,
			"version":         goqu.L("version + 1"),
			"updated_at":      goqu.L("NOW()"),
		}).
		Where(goqu.Ex{"id": member.ID, "version": member.Version}).
		Returning("version", "updated_at").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update member: %w", err)
	}

	return postgres.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, updateAccount, accountArgs...); err != nil {
			return postgres.MapError(err, duplicateAccount)
		}
		if err := tx.QueryRowxContext(ctx, updateMember, memberArgs...).Scan(&member.Version, &member.UpdatedAt); err != nil {
			if postgres.IsNoRows(err) {
				return liberr.Conflict("member was modified concurrently, reload and retry")
			}
			return fmt.Errorf("failed to update member: %w", err)
		}
		return nil
	})
}

// DeleteMember deletes the member's account; the member row follows by cascade.
func (r *PostgresRepository) DeleteMember(ctx context.Context, id uuid.UUID) error {
	query, args, err := postgres.Dialect.Delete(tableAccounts).Prepared(true).
		Where(goqu.I("id").In(
			postgres.Dialect.From(tableMembers).Select("account_id").Where(goqu.Ex{"id": id}),
		)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete member: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, "member has loan records")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if n == 0 {
		return liberr.NotFound("member", id)
	}
	return nil
}

// topActiveQuery is split out so the generated SQL can be checked without a database.
func topActiveQuery(limit int) (string, []interface{}, error) {
	return postgres.Dialect.From(goqu.T(tableMembers).As("m")).Prepared(true).
		Join(goqu.T(tableAccounts).As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("m.account_id")))).
		LeftJoin(goqu.T(tableLoans).As("l"), goqu.On(
			goqu.I("l.member_id").Eq(goqu.I("m.id")),
			goqu.I("l.is_returned").IsFalse(),
		)).
		Select("m.id", "a.username", "a.email", goqu.COUNT("l.id").As("active_loans")).
		GroupBy("m.id", "a.username", "a.email", "m.membership_date").
		Order(goqu.I("active_loans").Desc(), goqu.I("m.membership_date").Asc(), goqu.I("m.id").Asc()).
		Limit(uint(limit)).
		ToSQL()
}

func (r *PostgresRepository) TopActive(ctx context.Context, limit int) ([]*MemberActivity, error) {
	query, args, err := topActiveQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("build top active: %w", err)
	}

	members := []*MemberActivity{}
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query top active members: %w", err)
	}
	return members, nil
}
