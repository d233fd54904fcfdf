package token

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/infra/db"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const tokenCols = `id, token_id, owner_kind, owner_id, meal_date, meal_type, payload, total_cost, is_valid, issued_at, scanned_at`

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.TokenID, &t.OwnerKind, &t.OwnerID, &t.MealDate, &t.MealType,
		&t.Payload, &t.TotalCost, &t.IsValid, &t.IssuedAt, &t.ScannedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// InsertOrGet relies on the partial unique index over valid tokens: a
// concurrent duplicate insert loses the race and falls through to fetching
// the winner, so issuance is idempotent per (owner, date, meal).
func (r *Repo) InsertOrGet(ctx context.Context, q db.Querier, t *Token) (*Token, bool, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO redemption_tokens (token_id, owner_kind, owner_id, meal_date, meal_type, payload, total_cost, is_valid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
		ON CONFLICT (owner_kind, owner_id, meal_date, meal_type) WHERE is_valid
		DO NOTHING
		RETURNING `+tokenCols,
		t.TokenID, t.OwnerKind, t.OwnerID, t.MealDate, t.MealType, t.Payload, t.TotalCost)
	created, err := scanToken(row)
	if err != nil {
		return nil, false, err
	}
	if created != nil {
		return created, true, nil
	}
	existing, err := r.findValid(ctx, q, t.OwnerKind, t.OwnerID, t.MealDate, t.MealType)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, apperr.Conflict("token for %s %s was already redeemed", t.MealDate.Format("2006-01-02"), t.MealType)
	}
	return existing, false, nil
}

func (r *Repo) findValid(ctx context.Context, q db.Querier, kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) (*Token, error) {
	return scanToken(q.QueryRow(ctx, `
		SELECT `+tokenCols+` FROM redemption_tokens
		WHERE owner_kind=$1 AND owner_id=$2 AND meal_date=$3 AND meal_type=$4 AND is_valid
	`, kind, ownerID, date, meal))
}

// FindValid returns the valid token for the slot, or nil when none exists.
func (r *Repo) FindValid(ctx context.Context, kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) (*Token, error) {
	return r.findValid(ctx, r.pool, kind, ownerID, date, meal)
}

// Redeem flips the single valid token for the slot and records one
// consumption row per line item, all in one transaction. The guarded UPDATE
// is the only state change: no token ever returns to valid.
func (r *Repo) Redeem(ctx context.Context, kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) (*Token, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanToken(tx.QueryRow(ctx, `
		UPDATE redemption_tokens
		SET is_valid = FALSE, scanned_at = now()
		WHERE owner_kind=$1 AND owner_id=$2 AND meal_date=$3 AND meal_type=$4 AND is_valid
		RETURNING `+tokenCols,
		kind, ownerID, date, meal))
	if err != nil {
		return nil, err
	}
	if t == nil {
		// Absent and already-used are deliberately indistinguishable here.
		return nil, apperr.Conflict("meal QR is invalid or already redeemed")
	}

	var c Claim
	if err := json.Unmarshal(t.Payload, &c); err != nil {
		return nil, apperr.Validation("stored claim payload is malformed")
	}
	for _, item := range c.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO consumptions (owner_kind, owner_id, menu_item_id, meal_date, meal_type, token_id)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, kind, ownerID, item.ID, date, meal, t.TokenID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repo) TodayStats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var s DashboardStats
	rows, err := r.pool.Query(ctx, `
		SELECT meal_type, COUNT(*)
		FROM redemption_tokens
		WHERE scanned_at >= $1 AND scanned_at < $2
		GROUP BY meal_type
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var meal menu.MealType
		var n int
		if err := rows.Scan(&meal, &n); err != nil {
			return nil, err
		}
		switch meal {
		case menu.MealBreakfast:
			s.BreakfastCount = n
		case menu.MealLunch:
			s.LunchCount = n
		case menu.MealDinner:
			s.DinnerCount = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM redemption_tokens
		WHERE owner_kind='guest' AND scanned_at >= $1 AND scanned_at < $2
	`, dayStart, dayEnd).Scan(&s.TotalGuestRevenue)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

/* Issue queue */

// Enqueue adds pending issuances inside the caller's transaction, so the
// queue rows commit together with the selections they belong to.
func (r *Repo) Enqueue(ctx context.Context, q db.Querier, entries []QueueEntry) error {
	for _, e := range entries {
		if _, err := q.Exec(ctx, `
			INSERT INTO token_issue_queue (owner_kind, owner_id, meal_date, meal_type, menu_item_id)
			VALUES ($1,$2,$3,$4,$5)
		`, e.OwnerKind, e.OwnerID, e.MealDate, e.MealType, e.MenuItemID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) DuePending(ctx context.Context, limit int) ([]QueueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_kind, owner_id, meal_date, meal_type, menu_item_id, attempts, COALESCE(last_error,'')
		FROM token_issue_queue
		WHERE done_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.ID, &e.OwnerKind, &e.OwnerID, &e.MealDate, &e.MealType,
			&e.MenuItemID, &e.Attempts, &e.LastError); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE token_issue_queue SET done_at=now() WHERE id=$1`, id)
	return err
}

func (r *Repo) MarkFailed(ctx context.Context, id int64, reason string, dead bool) error {
	if dead {
		_, err := r.pool.Exec(ctx, `
			UPDATE token_issue_queue
			SET attempts = attempts + 1, last_error = $2, done_at = now()
			WHERE id=$1
		`, id, reason)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE token_issue_queue
		SET attempts = attempts + 1, last_error = $2
		WHERE id=$1
	`, id, reason)
	return err
}
