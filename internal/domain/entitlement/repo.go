package entitlement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/infra/db"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// PriorSelectionUsage counts the user's existing selections per item inside
// the month and week windows around now. Slots in exclude (the ones being
// replaced by the current submission) do not count — their replacement is
// what gets priced.
func (r *Repo) PriorSelectionUsage(ctx context.Context, q db.Querier, userID int64, itemIDs []int64, now time.Time, exclude []Slot) (map[int64]Usage, error) {
	out := make(map[int64]Usage, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	monthFrom, monthTo := MonthWindow(now)
	weekFrom, weekTo := WeekWindow(now)

	excl := make([]string, 0, len(exclude))
	for _, s := range exclude {
		excl = append(excl, s.Key())
	}

	rows, err := q.Query(ctx, `
		SELECT menu_item_id,
		       COUNT(*) FILTER (WHERE meal_date BETWEEN $3 AND $4),
		       COUNT(*) FILTER (WHERE meal_date BETWEEN $5 AND $6)
		FROM weekly_selections
		WHERE user_id = $1
		  AND menu_item_id = ANY($2)
		  AND meal_date BETWEEN LEAST($3::date,$5::date) AND GREATEST($4::date,$6::date)
		  AND NOT (to_char(meal_date,'YYYY-MM-DD') || '|' || meal_type = ANY($7))
		GROUP BY menu_item_id
	`, userID, itemIDs, monthFrom, monthTo, weekFrom, weekTo, excl)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var u Usage
		if err := rows.Scan(&id, &u.Month, &u.Week); err != nil {
			return nil, err
		}
		out[id] = u
	}
	return out, rows.Err()
}

// MonthlyUsageStats aggregates this month's redeemed consumptions per item,
// for the student dashboard. An indexed GROUP BY instead of re-parsing QR
// payload JSON out of history rows.
func (r *Repo) MonthlyUsageStats(ctx context.Context, owner users.AccountRef, now time.Time) ([]UsageStat, error) {
	from, to := MonthWindow(now)
	rows, err := r.pool.Query(ctx, `
		SELECT c.menu_item_id, m.name, COUNT(*)
		FROM consumptions c
		JOIN menu_items m ON m.id = c.menu_item_id
		WHERE c.owner_kind=$1 AND c.owner_id=$2 AND c.meal_date BETWEEN $3 AND $4
		GROUP BY c.menu_item_id, m.name
		ORDER BY m.name
	`, owner.Kind, owner.ID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UsageStat
	for rows.Next() {
		var s UsageStat
		if err := rows.Scan(&s.MenuItemID, &s.Name, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReportRow is one line of the admin usage export.
type ReportRow struct {
	OwnerKind users.OwnerKind
	OwnerName string
	ItemName  string
	Count     int
}

// UsageReportRows feeds the admin xlsx export: per-account, per-item counts
// for the month containing now.
func (r *Repo) UsageReportRows(ctx context.Context, now time.Time) ([]ReportRow, error) {
	from, to := MonthWindow(now)
	rows, err := r.pool.Query(ctx, `
		SELECT c.owner_kind,
		       COALESCE(u.name, g.name, '?'),
		       m.name,
		       COUNT(*)
		FROM consumptions c
		JOIN menu_items m ON m.id = c.menu_item_id
		LEFT JOIN users u  ON c.owner_kind='user'  AND u.id = c.owner_id
		LEFT JOIN guests g ON c.owner_kind='guest' AND g.id = c.owner_id
		WHERE c.meal_date BETWEEN $1 AND $2
		GROUP BY c.owner_kind, COALESCE(u.name, g.name, '?'), m.name
		ORDER BY 2, 3
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.OwnerKind, &row.OwnerName, &row.ItemName, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
