package selection

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/domain/wallet"
	"github.com/messmate/messmate/internal/infra/db"
)

// Repo is the Postgres Store. Cross-domain writes (wallet debit, token
// queue) run through the sibling repos on a shared transaction.
type Repo struct {
	pool    *pgxpool.Pool
	items   *menu.Repo
	ent     *entitlement.Repo
	wallets *wallet.Repo
	tokens  *token.Repo
}

func NewRepo(pool *pgxpool.Pool, items *menu.Repo, ent *entitlement.Repo, wallets *wallet.Repo, tokens *token.Repo) *Repo {
	return &Repo{pool: pool, items: items, ent: ent, wallets: wallets, tokens: tokens}
}

func (r *Repo) ListWeek(ctx context.Context, userID int64, weekStart time.Time) ([]Selection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.meal_date, s.meal_type, s.menu_item_id, s.is_default,
		       s.created_at, s.updated_at,
		       m.id, m.name, m.description, m.image_url, m.prep_minutes,
		       m.weekly_limit, m.monthly_limit, m.extra_price
		FROM weekly_selections s
		JOIN menu_items m ON m.id = s.menu_item_id
		WHERE s.user_id=$1 AND s.meal_date BETWEEN $2 AND $3
		ORDER BY s.meal_date, s.meal_type
	`, userID, weekStart, weekStart.AddDate(0, 0, 6))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var s Selection
		var it menu.Item
		if err := rows.Scan(&s.ID, &s.UserID, &s.MealDate, &s.MealType, &s.MenuItemID, &s.IsDefault,
			&s.CreatedAt, &s.UpdatedAt,
			&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PrepMinutes,
			&it.WeeklyLimit, &it.MonthlyLimit, &it.ExtraPrice); err != nil {
			return nil, err
		}
		s.Item = &it
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) ValidTokenSlots(ctx context.Context, userID int64, weekStart time.Time) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT meal_date, meal_type
		FROM redemption_tokens
		WHERE owner_kind='user' AND owner_id=$1 AND meal_date BETWEEN $2 AND $3 AND is_valid
	`, userID, weekStart, weekStart.AddDate(0, 0, 6))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var date time.Time
		var meal menu.MealType
		if err := rows.Scan(&date, &meal); err != nil {
			return nil, err
		}
		out[entitlement.Slot{MealDate: date, MealType: meal}.Key()] = true
	}
	return out, rows.Err()
}

func (r *Repo) ItemsByID(ctx context.Context, ids []int64) (map[int64]menu.Item, error) {
	return r.items.ItemsByID(ctx, ids)
}

func (r *Repo) OnWeekMenu(ctx context.Context, weekStart time.Time, itemID int64) (bool, error) {
	return r.items.IsOnWeekMenu(ctx, weekStart, itemID)
}

func (r *Repo) PriorUsage(ctx context.Context, userID int64, itemIDs []int64, now time.Time, exclude []entitlement.Slot) (map[int64]entitlement.Usage, error) {
	return r.ent.PriorSelectionUsage(ctx, r.pool, userID, itemIDs, now, exclude)
}

// Apply commits the whole submission atomically: charge first, then the row
// changes, then the queue entries. A unique-index violation on insert means
// a concurrent submission won the slot; the loser gets a conflict, never a
// second row.
func (r *Repo) Apply(ctx context.Context, userID int64, ch Changeset, res entitlement.Result) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if res.Total > 0 {
		ref := users.AccountRef{Kind: users.OwnerUser, ID: userID}
		if _, err := r.wallets.Debit(ctx, tx, ref, res.Total, "weekly selection extra charge"); err != nil {
			return err
		}
	}

	for _, slot := range ch.Delete {
		if _, err := tx.Exec(ctx, `
			DELETE FROM weekly_selections WHERE user_id=$1 AND meal_date=$2 AND meal_type=$3
		`, userID, slot.MealDate, slot.MealType); err != nil {
			return err
		}
	}
	for _, in := range ch.Update {
		if _, err := tx.Exec(ctx, `
			UPDATE weekly_selections
			SET menu_item_id=$4, is_default=FALSE, updated_at=now()
			WHERE user_id=$1 AND meal_date=$2 AND meal_type=$3
		`, userID, in.MealDate, in.MealType, in.MenuItemID); err != nil {
			return err
		}
	}
	for _, in := range ch.Insert {
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_selections (user_id, meal_date, meal_type, menu_item_id, is_default)
			VALUES ($1,$2,$3,$4,FALSE)
		`, userID, in.MealDate, in.MealType, in.MenuItemID); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("a selection for %s %s already exists", in.MealDate.Format("2006-01-02"), in.MealType)
			}
			if db.IsForeignKeyViolation(err) {
				return apperr.Validation("menu item %d does not exist", in.MenuItemID)
			}
			return err
		}
	}

	if err := r.tokens.Enqueue(ctx, tx, ch.Enqueue); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertDefaults backfills the default thali for students who skipped the
// week and queues token issuance for the slots actually inserted, in one
// transaction. ON CONFLICT DO NOTHING keeps races with late submissions
// harmless: an occupied slot is neither overwritten nor tokenized here.
func (r *Repo) InsertDefaults(ctx context.Context, userID int64, entries []SlotInput) ([]SlotInput, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted []SlotInput
	for _, in := range entries {
		tag, err := tx.Exec(ctx, `
			INSERT INTO weekly_selections (user_id, meal_date, meal_type, menu_item_id, is_default)
			VALUES ($1,$2,$3,$4,TRUE)
			ON CONFLICT (user_id, meal_date, meal_type) DO NOTHING
		`, userID, in.MealDate, in.MealType, in.MenuItemID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, in)
		}
	}

	entriesQ := make([]token.QueueEntry, 0, len(inserted))
	for _, in := range inserted {
		entriesQ = append(entriesQ, token.QueueEntry{
			OwnerKind:  users.OwnerUser,
			OwnerID:    userID,
			MealDate:   in.MealDate,
			MealType:   in.MealType,
			MenuItemID: in.MenuItemID,
		})
	}
	if err := r.tokens.Enqueue(ctx, tx, entriesQ); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inserted, nil
}

// UsersWithoutSelections returns student ids having no selection in the
// given week, for the default-menu job.
func (r *Repo) UsersWithoutSelections(ctx context.Context, weekStart time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id
		FROM users u
		WHERE u.role = 'student'
		  AND NOT EXISTS (
			SELECT 1 FROM weekly_selections s
			WHERE s.user_id = u.id AND s.meal_date BETWEEN $1 AND $2
		  )
		ORDER BY u.id
	`, weekStart, weekStart.AddDate(0, 0, 6))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
