package order

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/domain/wallet"
)

// Repo implements Store. Unlike student selections, guest tokens are minted
// synchronously inside the order transaction: the guest pays up front and
// walks away with a scannable QR.
type Repo struct {
	pool    *pgxpool.Pool
	guests  *users.Repo
	items   *menu.Repo
	wallets *wallet.Repo
	issuer  *token.Issuer
}

func NewRepo(pool *pgxpool.Pool, guests *users.Repo, items *menu.Repo, wallets *wallet.Repo, issuer *token.Issuer) *Repo {
	return &Repo{pool: pool, guests: guests, items: items, wallets: wallets, issuer: issuer}
}

func (r *Repo) GuestByID(ctx context.Context, id int64) (*users.Guest, error) {
	return r.guests.GetGuestByID(ctx, id)
}

func (r *Repo) ItemsByID(ctx context.Context, ids []int64) (map[int64]menu.Item, error) {
	return r.items.ItemsByID(ctx, ids)
}

// Place debits the wallet, writes the order with its lines and mints the
// redemption token in a single transaction. If the guest already holds a
// valid token for the slot, the whole transaction rolls back: an order whose
// items cannot land on a redeemable token must not be charged.
func (r *Repo) Place(ctx context.Context, o *Order, claim *token.Claim) (*Order, *token.Token, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ref := users.AccountRef{Kind: users.OwnerGuest, ID: o.GuestID}
	if o.Amount > 0 {
		if _, err := r.wallets.Debit(ctx, tx, ref, o.Amount, "guest meal order"); err != nil {
			return nil, nil, err
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO guest_orders (guest_id, order_date, meal_date, meal_type, status, prep_text, amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, o.GuestID, o.OrderDate, o.MealDate, o.MealType, o.Status, o.PrepText, o.Amount).Scan(&o.ID)
	if err != nil {
		return nil, nil, err
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO guest_order_items (order_id, menu_item_id, quantity)
			VALUES ($1,$2,$3)
			RETURNING id
		`, it.OrderID, it.MenuItemID, it.Quantity).Scan(&it.ID)
		if err != nil {
			return nil, nil, err
		}
	}

	tok, created, err := r.issuer.Issue(ctx, tx, claim, o.Amount)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return nil, nil, apperr.Conflict("an order for %s %s already exists", o.MealDate.Format("2006-01-02"), o.MealType)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return o, tok, nil
}

func (r *Repo) ListByGuest(ctx context.Context, guestID int64) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.guest_id, o.order_date, o.meal_date, o.meal_type, o.status, o.prep_text, o.amount,
		       i.id, i.menu_item_id, i.quantity,
		       m.id, m.name, m.description, m.image_url, m.prep_minutes,
		       m.weekly_limit, m.monthly_limit, m.extra_price
		FROM guest_orders o
		JOIN guest_order_items i ON i.order_id = o.id
		JOIN menu_items m ON m.id = i.menu_item_id
		WHERE o.guest_id = $1
		ORDER BY o.order_date DESC, o.id DESC, i.id
	`, guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	byID := map[int64]int{}
	for rows.Next() {
		var o Order
		var it Item
		var m menu.Item
		if err := rows.Scan(&o.ID, &o.GuestID, &o.OrderDate, &o.MealDate, &o.MealType, &o.Status, &o.PrepText, &o.Amount,
			&it.ID, &it.MenuItemID, &it.Quantity,
			&m.ID, &m.Name, &m.Description, &m.ImageURL, &m.PrepMinutes,
			&m.WeeklyLimit, &m.MonthlyLimit, &m.ExtraPrice); err != nil {
			return nil, err
		}
		it.OrderID = o.ID
		it.MenuItem = &m
		idx, ok := byID[o.ID]
		if !ok {
			out = append(out, o)
			idx = len(out) - 1
			byID[o.ID] = idx
		}
		out[idx].Items = append(out[idx].Items, it)
	}
	return out, rows.Err()
}
