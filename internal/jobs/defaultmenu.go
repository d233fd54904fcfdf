package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/selection"
)

type SelectionDefaults interface {
	UsersWithoutSelections(ctx context.Context, weekStart time.Time) ([]int64, error)
	InsertDefaults(ctx context.Context, userID int64, entries []selection.SlotInput) ([]selection.SlotInput, error)
}

// DefaultMenu assigns the default thali for lunch and dinner of the coming
// week to every student who submitted nothing by Saturday night.
type DefaultMenu struct {
	sel        SelectionDefaults
	defaultID  int64
	log        *slog.Logger
	now        func() time.Time
	lastRunFor time.Time
}

func NewDefaultMenu(sel SelectionDefaults, defaultItemID int64, log *slog.Logger) *DefaultMenu {
	return &DefaultMenu{sel: sel, defaultID: defaultItemID, log: log, now: time.Now}
}

// Run fires the backfill once per week, on Saturday at or after 23:00. A
// coarse ticker is enough; RunOnce is idempotent via the selection unique
// index so a double fire changes nothing.
func (d *DefaultMenu) Run(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := d.now()
			if now.Weekday() != time.Saturday || now.Hour() < 23 {
				continue
			}
			nextWeek := selection.WeekStart(now).AddDate(0, 0, 7)
			if d.lastRunFor.Equal(nextWeek) {
				continue
			}
			if err := d.RunOnce(ctx, nextWeek); err != nil {
				d.log.Error("default menu backfill failed", "err", err)
				continue
			}
			d.lastRunFor = nextWeek
		}
	}
}

// RunOnce backfills the given week for everyone without selections in it.
func (d *DefaultMenu) RunOnce(ctx context.Context, weekStart time.Time) error {
	if d.defaultID == 0 {
		d.log.Warn("default menu job enabled but no default item configured")
		return nil
	}
	userIDs, err := d.sel.UsersWithoutSelections(ctx, weekStart)
	if err != nil {
		return err
	}

	entries := make([]selection.SlotInput, 0, 14)
	for day := 0; day < 7; day++ {
		date := weekStart.AddDate(0, 0, day)
		for _, meal := range []menu.MealType{menu.MealLunch, menu.MealDinner} {
			entries = append(entries, selection.SlotInput{
				MealDate:   date,
				MealType:   meal,
				MenuItemID: d.defaultID,
			})
		}
	}

	total := 0
	for _, uid := range userIDs {
		inserted, err := d.sel.InsertDefaults(ctx, uid, entries)
		if err != nil {
			d.log.Error("insert default selections", "user_id", uid, "err", err)
			continue
		}
		total += len(inserted)
	}
	d.log.Info("default menu backfill done",
		"week_start", weekStart.Format("2006-01-02"), "users", len(userIDs), "slots", total)
	return nil
}
