package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/selection"
)

type fakeDefaults struct {
	skipped  []int64
	occupied map[string]bool // user|date|meal already selected
	inserted map[int64][]selection.SlotInput
}

func (f *fakeDefaults) UsersWithoutSelections(_ context.Context, _ time.Time) ([]int64, error) {
	return f.skipped, nil
}

func (f *fakeDefaults) InsertDefaults(_ context.Context, userID int64, entries []selection.SlotInput) ([]selection.SlotInput, error) {
	if f.inserted == nil {
		f.inserted = map[int64][]selection.SlotInput{}
	}
	var ins []selection.SlotInput
	for _, e := range entries {
		key := e.MealDate.Format("2006-01-02") + "|" + string(e.MealType)
		if f.occupied[key] {
			continue
		}
		ins = append(ins, e)
	}
	f.inserted[userID] = append(f.inserted[userID], ins...)
	return ins, nil
}

func TestRunOnceFillsLunchAndDinner(t *testing.T) {
	store := &fakeDefaults{skipped: []int64{42, 43}}
	job := NewDefaultMenu(store, 7, testLog)

	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC) // next Monday
	if err := job.RunOnce(context.Background(), weekStart); err != nil {
		t.Fatal(err)
	}
	for _, uid := range []int64{42, 43} {
		got := store.inserted[uid]
		if len(got) != 14 {
			t.Fatalf("user %d got %d default slots, want 14", uid, len(got))
		}
		meals := map[menu.MealType]int{}
		for _, e := range got {
			meals[e.MealType]++
			if e.MenuItemID != 7 {
				t.Errorf("slot item = %d, want the default thali", e.MenuItemID)
			}
			if e.MealDate.Before(weekStart) || e.MealDate.After(weekStart.AddDate(0, 0, 6)) {
				t.Errorf("slot %s outside the target week", e.MealDate.Format("2006-01-02"))
			}
		}
		if meals[menu.MealLunch] != 7 || meals[menu.MealDinner] != 7 || meals[menu.MealBreakfast] != 0 {
			t.Errorf("meal spread = %v, want 7 lunches and 7 dinners", meals)
		}
	}
}

func TestRunOnceSkipsOccupiedSlots(t *testing.T) {
	store := &fakeDefaults{
		skipped:  []int64{42},
		occupied: map[string]bool{"2026-08-31|lunch": true},
	}
	job := NewDefaultMenu(store, 7, testLog)

	if err := job.RunOnce(context.Background(), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted[42]) != 13 {
		t.Errorf("inserted %d slots, want 13 with one occupied", len(store.inserted[42]))
	}
}

func TestRunOnceWithoutConfiguredItemIsANoop(t *testing.T) {
	store := &fakeDefaults{skipped: []int64{42}}
	job := NewDefaultMenu(store, 0, testLog)

	if err := job.RunOnce(context.Background(), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted despite missing default item config")
	}
}
