package menu

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/infra/db"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const itemCols = `id, name, description, image_url, prep_minutes, weekly_limit, monthly_limit, extra_price`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PrepMinutes,
		&it.WeeklyLimit, &it.MonthlyLimit, &it.ExtraPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repo) CreateItem(ctx context.Context, it *Item) (*Item, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO menu_items (name, description, image_url, prep_minutes, weekly_limit, monthly_limit, extra_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+itemCols,
		it.Name, it.Description, it.ImageURL, it.PrepMinutes, it.WeeklyLimit, it.MonthlyLimit, it.ExtraPrice)
	out, err := scanItem(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("menu item %q already exists", it.Name)
		}
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateItem(ctx context.Context, it *Item) (*Item, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE menu_items
		SET name=$2, description=$3, image_url=$4, prep_minutes=$5,
		    weekly_limit=$6, monthly_limit=$7, extra_price=$8
		WHERE id=$1
		RETURNING `+itemCols,
		it.ID, it.Name, it.Description, it.ImageURL, it.PrepMinutes,
		it.WeeklyLimit, it.MonthlyLimit, it.ExtraPrice)
	out, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, apperr.NotFound("menu item %d not found", it.ID)
	}
	return out, nil
}

func (r *Repo) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM menu_items WHERE id=$1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.Integrity("menu item %d is referenced by menus, selections or history", id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("menu item %d not found", id)
	}
	return nil
}

func (r *Repo) GetItem(ctx context.Context, id int64) (*Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM menu_items WHERE id=$1`, id))
}

func (r *Repo) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemCols+` FROM menu_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// ItemsByID loads the referenced items keyed by id. Missing ids are simply
// absent from the map; callers decide whether that is an error.
func (r *Repo) ItemsByID(ctx context.Context, ids []int64) (map[int64]Item, error) {
	if len(ids) == 0 {
		return map[int64]Item{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemCols+` FROM menu_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PrepMinutes,
			&it.WeeklyLimit, &it.MonthlyLimit, &it.ExtraPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

/* Weekly menu */

// ReplaceWeek clears and republishes the menu for one week in a single
// transaction, the way the admin "set weekly menu" screen works.
func (r *Repo) ReplaceWeek(ctx context.Context, weekStart time.Time, entries []WeekEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM weekly_menus WHERE week_start_date=$1`, weekStart); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err = tx.Exec(ctx, `
			INSERT INTO weekly_menus (week_start_date, day_of_week, meal_type, menu_item_id)
			VALUES ($1,$2,$3,$4)
		`, weekStart, e.DayOfWeek, e.MealType, e.MenuItemID); err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Conflict("duplicate menu entry for %s %s", e.DayOfWeek, e.MealType)
			}
			if db.IsForeignKeyViolation(err) {
				return apperr.Validation("menu item %d does not exist", e.MenuItemID)
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ListWeek(ctx context.Context, weekStart time.Time) ([]WeekEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.week_start_date, w.day_of_week, w.meal_type, w.menu_item_id,
		       m.id, m.name, m.description, m.image_url, m.prep_minutes,
		       m.weekly_limit, m.monthly_limit, m.extra_price
		FROM weekly_menus w
		JOIN menu_items m ON m.id = w.menu_item_id
		WHERE w.week_start_date=$1
		ORDER BY w.day_of_week, w.meal_type, m.name
	`, weekStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeekEntry
	for rows.Next() {
		var e WeekEntry
		var it Item
		if err := rows.Scan(&e.ID, &e.WeekStartDate, &e.DayOfWeek, &e.MealType, &e.MenuItemID,
			&it.ID, &it.Name, &it.Description, &it.ImageURL, &it.PrepMinutes,
			&it.WeeklyLimit, &it.MonthlyLimit, &it.ExtraPrice); err != nil {
			return nil, err
		}
		e.Item = &it
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsOnWeekMenu reports whether the item is published for the given slot's
// week; selections may only reference orderable items.
func (r *Repo) IsOnWeekMenu(ctx context.Context, weekStart time.Time, itemID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM weekly_menus WHERE week_start_date=$1 AND menu_item_id=$2
		)`, weekStart, itemID).Scan(&ok)
	return ok, err
}
