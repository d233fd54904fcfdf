package selection

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
)

type fakeStore struct {
	existing   []Selection
	tokenSlots map[string]bool
	items      map[int64]menu.Item
	offMenu    map[int64]bool // items not published this week
	prior      map[int64]entitlement.Usage

	applied    *Changeset
	appliedRes *entitlement.Result
	applyErr   error
}

func (f *fakeStore) ListWeek(_ context.Context, _ int64, _ time.Time) ([]Selection, error) {
	return f.existing, nil
}

func (f *fakeStore) ValidTokenSlots(_ context.Context, _ int64, _ time.Time) (map[string]bool, error) {
	if f.tokenSlots == nil {
		return map[string]bool{}, nil
	}
	return f.tokenSlots, nil
}

func (f *fakeStore) ItemsByID(_ context.Context, ids []int64) (map[int64]menu.Item, error) {
	out := map[int64]menu.Item{}
	for _, id := range ids {
		if it, ok := f.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (f *fakeStore) OnWeekMenu(_ context.Context, _ time.Time, itemID int64) (bool, error) {
	return !f.offMenu[itemID], nil
}

func (f *fakeStore) PriorUsage(_ context.Context, _ int64, _ []int64, _ time.Time, _ []entitlement.Slot) (map[int64]entitlement.Usage, error) {
	if f.prior == nil {
		return map[int64]entitlement.Usage{}, nil
	}
	return f.prior, nil
}

func (f *fakeStore) Apply(_ context.Context, _ int64, ch Changeset, res entitlement.Result) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = &ch
	f.appliedRes = &res
	return nil
}

var testLog = slog.New(slog.DiscardHandler)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

var weekStart = date("2026-08-24") // a Monday

func newTestService(store *fakeStore) *Service {
	svc := NewService(store, entitlement.NewCalculator(entitlement.PolicyBoth), testLog, nil)
	svc.now = func() time.Time { return date("2026-08-26") }
	return svc
}

func defaultItems() map[int64]menu.Item {
	return map[int64]menu.Item{
		1: {ID: 1, Name: "Veg Thali", WeeklyLimit: 7, MonthlyLimit: 31},
		7: {ID: 7, Name: "Special Thali", WeeklyLimit: 1, MonthlyLimit: 2, ExtraPrice: 6000},
	}
}

func TestSubmitInsertsNewSlots(t *testing.T) {
	store := &fakeStore{items: defaultItems()}
	svc := newTestService(store)

	res, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1},
		{MealDate: date("2026-08-24"), MealType: menu.MealDinner, MenuItemID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 2 || res.Updated != 0 || res.Removed != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/0/0", res.Added, res.Updated, res.Removed)
	}
	if res.Charge != 0 {
		t.Errorf("Charge = %s, want 0.00", res.Charge)
	}
	if len(store.applied.Enqueue) != 2 {
		t.Errorf("enqueued %d token entries, want 2", len(store.applied.Enqueue))
	}
}

func TestSubmitFiresCallbackOnlyOnSuccess(t *testing.T) {
	store := &fakeStore{items: defaultItems()}
	submits := 0
	svc := NewService(store, entitlement.NewCalculator(entitlement.PolicyBoth), testLog, func() { submits++ })
	svc.now = func() time.Time { return date("2026-08-26") }

	inputs := []SlotInput{{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1}}
	if _, err := svc.Submit(context.Background(), 42, weekStart, inputs); err != nil {
		t.Fatal(err)
	}
	if submits != 1 {
		t.Errorf("callback fired %d times, want 1", submits)
	}

	store.applyErr = apperr.Conflict("a selection for 2026-08-25 lunch already exists")
	inputs = []SlotInput{{MealDate: date("2026-08-25"), MealType: menu.MealLunch, MenuItemID: 1}}
	if _, err := svc.Submit(context.Background(), 42, weekStart, inputs); err == nil {
		t.Fatal("expected apply error")
	}
	if submits != 1 {
		t.Errorf("callback fired on failed submit: %d", submits)
	}
}

func TestSubmitUnchangedSlotIsNotRepriced(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		existing: []Selection{
			{UserID: 42, MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
		},
	}
	svc := newTestService(store)

	// Resubmitting the identical slot: no writes, no charge, no new token.
	res, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added+res.Updated+res.Removed != 0 {
		t.Errorf("counts = %d/%d/%d, want all zero", res.Added, res.Updated, res.Removed)
	}
	if res.Charge != 0 {
		t.Errorf("Charge = %s, want 0.00", res.Charge)
	}
	if len(store.applied.Enqueue) != 0 {
		t.Errorf("enqueued %d entries for an unchanged slot", len(store.applied.Enqueue))
	}
}

func TestSubmitChangeRemoveAndAdd(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		existing: []Selection{
			{UserID: 42, MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1},
			{UserID: 42, MealDate: date("2026-08-25"), MealType: menu.MealLunch, MenuItemID: 1},
		},
	}
	svc := newTestService(store)

	// Monday lunch changes item, Tuesday lunch is dropped, Wednesday dinner is new.
	res, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
		{MealDate: date("2026-08-26"), MealType: menu.MealDinner, MenuItemID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.Updated != 1 || res.Removed != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", res.Added, res.Updated, res.Removed)
	}
}

func TestSubmitRejectsDuplicateSlots(t *testing.T) {
	svc := newTestService(&fakeStore{items: defaultItems()})
	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1},
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestSubmitRejectsDateOutsideWeek(t *testing.T) {
	svc := newTestService(&fakeStore{items: defaultItems()})
	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-09-01"), MealType: menu.MealLunch, MenuItemID: 1},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestSubmitTokenBackedSlotCannotChange(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		existing: []Selection{
			{UserID: 42, MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1},
		},
		tokenSlots: map[string]bool{"2026-08-24|lunch": true},
	}
	svc := newTestService(store)

	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
	if store.applied != nil {
		t.Error("Apply ran despite the conflict")
	}
}

func TestSubmitTokenBackedSlotSilentlyKeptWhenDropped(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		existing: []Selection{
			{UserID: 42, MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 1},
		},
		tokenSlots: map[string]bool{"2026-08-24|lunch": true},
	}
	svc := newTestService(store)

	// The submission omits the token-backed slot and adds another one.
	res, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-25"), MealType: menu.MealDinner, MenuItemID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 0 {
		t.Errorf("Removed = %d, the tokenized meal must stay", res.Removed)
	}
	if res.Added != 1 {
		t.Errorf("Added = %d, want 1", res.Added)
	}
}

func TestSubmitChargesPastLimit(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		prior: map[int64]entitlement.Usage{7: {Month: 2, Week: 0}},
	}
	svc := newTestService(store)

	res, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-27"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Charge != 6000 {
		t.Errorf("Charge = %s, want 60.00", res.Charge)
	}
	if store.appliedRes.Total != 6000 {
		t.Errorf("Apply got Total %s, want 60.00", store.appliedRes.Total)
	}
}

func TestSubmitInsufficientFundsNothingPersists(t *testing.T) {
	store := &fakeStore{
		items:    defaultItems(),
		prior:    map[int64]entitlement.Usage{7: {Month: 2, Week: 0}},
		applyErr: apperr.InsufficientFunds("wallet balance is below 60.00, please recharge"),
	}
	svc := newTestService(store)

	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-27"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if !apperr.IsKind(err, apperr.KindInsufficientFunds) {
		t.Errorf("err = %v, want insufficient funds", err)
	}
	if store.applied != nil {
		t.Error("changes recorded despite failed debit")
	}
}

func TestSubmitRejectsUnpublishedItem(t *testing.T) {
	svc := newTestService(&fakeStore{items: defaultItems(), offMenu: map[int64]bool{7: true}})
	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestSubmitUnknownItem(t *testing.T) {
	svc := newTestService(&fakeStore{items: defaultItems()})
	_, err := svc.Submit(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 99},
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestPreviewDoesNotApply(t *testing.T) {
	store := &fakeStore{
		items: defaultItems(),
		prior: map[int64]entitlement.Usage{7: {Month: 2, Week: 0}},
	}
	svc := newTestService(store)

	res, err := svc.Preview(context.Background(), 42, weekStart, []SlotInput{
		{MealDate: date("2026-08-27"), MealType: menu.MealLunch, MenuItemID: 7},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Charge != 6000 {
		t.Errorf("Charge = %s, want 60.00", res.Charge)
	}
	if store.applied != nil {
		t.Error("preview must not persist anything")
	}
}

func TestPreviewMatchesSubmitPricing(t *testing.T) {
	inputs := []SlotInput{
		{MealDate: date("2026-08-24"), MealType: menu.MealLunch, MenuItemID: 7},
		{MealDate: date("2026-08-26"), MealType: menu.MealDinner, MenuItemID: 7},
	}
	mk := func() *fakeStore { return &fakeStore{items: defaultItems()} }

	preview, err := newTestService(mk()).Preview(context.Background(), 42, weekStart, inputs)
	if err != nil {
		t.Fatal(err)
	}
	submit, err := newTestService(mk()).Submit(context.Background(), 42, weekStart, inputs)
	if err != nil {
		t.Fatal(err)
	}
	if preview.Charge != submit.Charge {
		t.Errorf("preview %s != submit %s", preview.Charge, submit.Charge)
	}
}

func TestWeekStart(t *testing.T) {
	if got := WeekStart(date("2026-08-30")); !got.Equal(date("2026-08-24")) {
		t.Errorf("WeekStart(sunday) = %s", got.Format("2006-01-02"))
	}
	if got := WeekStart(date("2026-08-24")); !got.Equal(date("2026-08-24")) {
		t.Errorf("WeekStart(monday) = %s", got.Format("2006-01-02"))
	}
}
