package selection

import (
	"context"
	"log/slog"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
)

// Store is the storage contract behind the service. *Repo implements it
// against Postgres; tests inject an in-memory fake.
type Store interface {
	ListWeek(ctx context.Context, userID int64, weekStart time.Time) ([]Selection, error)
	// ValidTokenSlots returns, keyed by Slot.Key(), the slots in the week
	// that already have a valid redemption token.
	ValidTokenSlots(ctx context.Context, userID int64, weekStart time.Time) (map[string]bool, error)
	ItemsByID(ctx context.Context, ids []int64) (map[int64]menu.Item, error)
	// OnWeekMenu reports whether the item is on the published menu for the
	// week; selections may only reference published items.
	OnWeekMenu(ctx context.Context, weekStart time.Time, itemID int64) (bool, error)
	PriorUsage(ctx context.Context, userID int64, itemIDs []int64, now time.Time, exclude []entitlement.Slot) (map[int64]entitlement.Usage, error)
	// Apply commits the reconciliation and the wallet debit atomically.
	Apply(ctx context.Context, userID int64, ch Changeset, res entitlement.Result) error
}

type Service struct {
	store    Store
	calc     entitlement.Calculator
	log      *slog.Logger
	now      func() time.Time
	onSubmit func()
}

func NewService(store Store, calc entitlement.Calculator, log *slog.Logger, onSubmit func()) *Service {
	return &Service{store: store, calc: calc, log: log, now: time.Now, onSubmit: onSubmit}
}

// reconcile diffs the submitted week against the persisted one.
type reconciliation struct {
	change  Changeset
	batch   []entitlement.SelectionInput // priced slots, in submission order
	exclude []entitlement.Slot           // replaced slots, excluded from prior usage
}

func (s *Service) reconcile(ctx context.Context, userID int64, weekStart time.Time, inputs []SlotInput) (*reconciliation, error) {
	weekEnd := weekStart.AddDate(0, 0, 6)
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if !in.MealType.Valid() {
			return nil, apperr.Validation("unknown meal type %q", in.MealType)
		}
		if in.MealDate.Before(weekStart) || in.MealDate.After(weekEnd) {
			return nil, apperr.Validation("meal date %s is outside the submitted week", in.MealDate.Format("2006-01-02"))
		}
		key := in.Slot().Key()
		if seen[key] {
			return nil, apperr.Validation("only one thali per meal: duplicate selection for %s", key)
		}
		seen[key] = true
	}

	existing, err := s.store.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}
	tokenSlots, err := s.store.ValidTokenSlots(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}

	existingBySlot := make(map[string]Selection, len(existing))
	for _, sel := range existing {
		existingBySlot[sel.Slot().Key()] = sel
	}

	rec := &reconciliation{}
	for _, in := range inputs {
		key := in.Slot().Key()
		prev, ok := existingBySlot[key]
		switch {
		case ok && prev.MenuItemID == in.MenuItemID:
			// unchanged, nothing to price or write
		case ok:
			if tokenSlots[key] {
				return nil, apperr.Conflict("selection for %s already has a meal QR issued and cannot be changed", key)
			}
			rec.change.Update = append(rec.change.Update, in)
			rec.batch = append(rec.batch, entitlement.SelectionInput{Slot: in.Slot(), MenuItemID: in.MenuItemID})
			rec.exclude = append(rec.exclude, in.Slot())
		default:
			rec.change.Insert = append(rec.change.Insert, in)
			rec.batch = append(rec.batch, entitlement.SelectionInput{Slot: in.Slot(), MenuItemID: in.MenuItemID})
		}
	}
	// Slots dropped from the submission are removed, except ones already
	// backed by a token: those meals are committed and stay.
	for _, sel := range existing {
		key := sel.Slot().Key()
		if seen[key] || tokenSlots[key] {
			continue
		}
		rec.change.Delete = append(rec.change.Delete, sel.Slot())
	}

	for _, in := range append(rec.change.Insert, rec.change.Update...) {
		rec.change.Enqueue = append(rec.change.Enqueue, token.QueueEntry{
			OwnerKind:  users.OwnerUser,
			OwnerID:    userID,
			MealDate:   in.MealDate,
			MealType:   in.MealType,
			MenuItemID: in.MenuItemID,
		})
	}
	return rec, nil
}

func (s *Service) price(ctx context.Context, userID int64, weekStart time.Time, rec *reconciliation) (entitlement.Result, error) {
	ids := make([]int64, 0, len(rec.batch))
	idSet := make(map[int64]bool)
	for _, b := range rec.batch {
		if !idSet[b.MenuItemID] {
			idSet[b.MenuItemID] = true
			ids = append(ids, b.MenuItemID)
		}
	}
	items, err := s.store.ItemsByID(ctx, ids)
	if err != nil {
		return entitlement.Result{}, err
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return entitlement.Result{}, apperr.Validation("menu item %d does not exist", id)
		}
		published, err := s.store.OnWeekMenu(ctx, weekStart, id)
		if err != nil {
			return entitlement.Result{}, err
		}
		if !published {
			return entitlement.Result{}, apperr.Validation("menu item %d is not on the menu for this week", id)
		}
	}
	prior, err := s.store.PriorUsage(ctx, userID, ids, s.now(), rec.exclude)
	if err != nil {
		return entitlement.Result{}, err
	}
	return s.calc.Price(items, prior, rec.batch), nil
}

// Submit reconciles the submitted week with the stored one (diff-based
// upsert), prices the new and changed slots, and commits everything with the
// wallet debit in one transaction. Token issuance is queued, not awaited.
func (s *Service) Submit(ctx context.Context, userID int64, weekStart time.Time, inputs []SlotInput) (*SubmitResult, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("please provide selections and the week start date")
	}
	rec, err := s.reconcile(ctx, userID, weekStart, inputs)
	if err != nil {
		return nil, err
	}
	res, err := s.price(ctx, userID, weekStart, rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Apply(ctx, userID, rec.change, res); err != nil {
		return nil, err
	}
	if s.onSubmit != nil {
		s.onSubmit()
	}
	s.log.Info("weekly selection saved",
		"user_id", userID, "week_start", weekStart.Format("2006-01-02"),
		"added", len(rec.change.Insert), "updated", len(rec.change.Update),
		"removed", len(rec.change.Delete), "charge", res.Total)
	return &SubmitResult{
		Added:   len(rec.change.Insert),
		Updated: len(rec.change.Update),
		Removed: len(rec.change.Delete),
		Charge:  res.Total,
		Charged: res.Charged,
	}, nil
}

// Preview runs the same reconciliation and pricing with no persistence and
// no wallet movement.
func (s *Service) Preview(ctx context.Context, userID int64, weekStart time.Time, inputs []SlotInput) (*PreviewResult, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation("please provide selections to preview")
	}
	rec, err := s.reconcile(ctx, userID, weekStart, inputs)
	if err != nil {
		return nil, err
	}
	res, err := s.price(ctx, userID, weekStart, rec)
	if err != nil {
		return nil, err
	}
	out := &PreviewResult{Charge: res.Total, Charged: res.Charged}
	if out.Charged == nil {
		out.Charged = []entitlement.ChargedItem{}
	}
	return out, nil
}

// WeekStart returns the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	from, _ := entitlement.WeekWindow(t)
	return from
}

// Current lists the selections of the week containing now.
func (s *Service) Current(ctx context.Context, userID int64) ([]Selection, time.Time, error) {
	weekStart := WeekStart(s.now())
	sels, err := s.store.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, time.Time{}, err
	}
	return sels, weekStart, nil
}
