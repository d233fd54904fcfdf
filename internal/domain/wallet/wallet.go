package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/infra/db"
)

type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// Transaction is the audit row written alongside every balance mutation.
type Transaction struct {
	ID          int64
	OwnerKind   users.OwnerKind
	OwnerID     int64
	Type        TxType
	Amount      money.Amount
	Description string
	GatewayRef  string
	CreatedAt   time.Time
}

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func balanceTable(kind users.OwnerKind) string {
	if kind == users.OwnerGuest {
		return "guests"
	}
	return "users"
}

// Debit atomically checks and lowers the balance in one guarded UPDATE; it
// runs on the caller's Querier so the charge commits or rolls back together
// with whatever the charge paid for. Zero affected rows means either the
// account is missing or the balance is short.
func (r *Repo) Debit(ctx context.Context, q db.Querier, ref users.AccountRef, amount money.Amount, description string) (money.Amount, error) {
	if amount.IsNegative() {
		return 0, apperr.Validation("debit amount must not be negative")
	}
	var balance money.Amount
	err := q.QueryRow(ctx, `
		UPDATE `+balanceTable(ref.Kind)+`
		SET wallet_balance = wallet_balance - $2, updated_at = now()
		WHERE id = $1 AND wallet_balance >= $2
		RETURNING wallet_balance
	`, ref.ID, amount).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			if exists, eerr := r.exists(ctx, q, ref); eerr == nil && !exists {
				return 0, apperr.NotFound("%s %d not found", ref.Kind, ref.ID)
			}
			return 0, apperr.InsufficientFunds("wallet balance is below %s, please recharge", amount)
		}
		return 0, err
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO wallet_transactions (owner_kind, owner_id, type, amount, description)
		VALUES ($1,$2,'debit',$3,$4)
	`, ref.Kind, ref.ID, amount, description); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit always succeeds for a non-negative amount. gatewayRef, when set,
// dedupes replayed payment notifications via the unique index on it.
func (r *Repo) Credit(ctx context.Context, q db.Querier, ref users.AccountRef, amount money.Amount, description, gatewayRef string) (money.Amount, error) {
	if amount.IsNegative() {
		return 0, apperr.Validation("credit amount must not be negative")
	}
	var ga any
	if gatewayRef != "" {
		ga = gatewayRef
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO wallet_transactions (owner_kind, owner_id, type, amount, description, gateway_ref)
		VALUES ($1,$2,'credit',$3,$4,$5)
	`, ref.Kind, ref.ID, amount, description, ga); err != nil {
		if db.IsUniqueViolation(err) {
			return 0, apperr.Conflict("payment %s already credited", gatewayRef)
		}
		return 0, err
	}
	var balance money.Amount
	err := q.QueryRow(ctx, `
		UPDATE `+balanceTable(ref.Kind)+`
		SET wallet_balance = wallet_balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING wallet_balance
	`, ref.ID, amount).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return 0, apperr.NotFound("%s %d not found", ref.Kind, ref.ID)
		}
		return 0, err
	}
	return balance, nil
}

// CreditDirect is Credit in its own short transaction, for callers that have
// nothing else to commit (admin recharge).
func (r *Repo) CreditDirect(ctx context.Context, ref users.AccountRef, amount money.Amount, description, gatewayRef string) (money.Amount, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	balance, err := r.Credit(ctx, tx, ref, amount, description, gatewayRef)
	if err != nil {
		return 0, err
	}
	return balance, tx.Commit(ctx)
}

func (r *Repo) Balance(ctx context.Context, ref users.AccountRef) (money.Amount, error) {
	var balance money.Amount
	err := r.pool.QueryRow(ctx,
		`SELECT wallet_balance FROM `+balanceTable(ref.Kind)+` WHERE id=$1`, ref.ID).Scan(&balance)
	if err != nil {
		if isNoRows(err) {
			return 0, apperr.NotFound("%s %d not found", ref.Kind, ref.ID)
		}
		return 0, err
	}
	return balance, nil
}

func (r *Repo) Transactions(ctx context.Context, ref users.AccountRef, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_kind, owner_id, type, amount, description, COALESCE(gateway_ref,''), created_at
		FROM wallet_transactions
		WHERE owner_kind=$1 AND owner_id=$2
		ORDER BY created_at DESC
		LIMIT $3
	`, ref.Kind, ref.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OwnerKind, &t.OwnerID, &t.Type, &t.Amount,
			&t.Description, &t.GatewayRef, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) exists(ctx context.Context, q db.Querier, ref users.AccountRef) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+balanceTable(ref.Kind)+` WHERE id=$1)`, ref.ID).Scan(&ok)
	return ok, err
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
