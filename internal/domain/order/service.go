package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
)

// Store is the storage contract; *Repo implements it against Postgres.
// Place must debit, persist and mint the token atomically.
type Store interface {
	GuestByID(ctx context.Context, id int64) (*users.Guest, error)
	ItemsByID(ctx context.Context, ids []int64) (map[int64]menu.Item, error)
	Place(ctx context.Context, o *Order, claim *token.Claim) (*Order, *token.Token, error)
	ListByGuest(ctx context.Context, guestID int64) ([]Order, error)
}

type Service struct {
	store   Store
	log     *slog.Logger
	now     func() time.Time
	onOrder func()
}

func NewService(store Store, log *slog.Logger, onOrder func()) *Service {
	return &Service{store: store, log: log, now: time.Now, onOrder: onOrder}
}

type PlaceResult struct {
	Order *Order
	Token *token.Token
}

// Place prices the items at extra_price × qty, debits the guest wallet and
// persists order, lines and the redemption token in one transaction. Guests
// have no free entitlement: every line is chargeable.
func (s *Service) Place(ctx context.Context, guestID int64, mealType menu.MealType, lines []LineInput) (*PlaceResult, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("at least one menu item is required")
	}
	if !mealType.Valid() {
		return nil, apperr.Validation("unknown meal type %q", mealType)
	}
	guest, err := s.store.GuestByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, apperr.NotFound("guest profile not found")
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.MenuItemID)
	}
	items, err := s.store.ItemsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	o := &Order{
		GuestID:   guestID,
		OrderDate: s.now(),
		MealType:  mealType,
		Status:    StatusConfirmed,
	}
	o.MealDate = time.Date(o.OrderDate.Year(), o.OrderDate.Month(), o.OrderDate.Day(), 0, 0, 0, 0, o.OrderDate.Location())

	claim := &token.Claim{
		OwnerKind:   users.OwnerGuest,
		OwnerID:     guestID,
		DisplayName: guest.Name,
		MealDate:    o.MealDate.Format("2006-01-02"),
		MealType:    mealType,
	}
	var prep []string
	for _, l := range lines {
		it, ok := items[l.MenuItemID]
		if !ok {
			return nil, apperr.Validation("one or more selected menu items are invalid")
		}
		qty := l.Quantity
		if qty <= 0 {
			qty = 1
		}
		o.Amount += it.ExtraPrice.Mul(qty)
		o.Items = append(o.Items, Item{MenuItemID: it.ID, Quantity: qty})
		claim.Items = append(claim.Items, token.ClaimItem{
			ID: it.ID, Name: it.Name, Description: it.Description, ImageURL: it.ImageURL,
		})
		p := fmt.Sprintf("%d min", it.PrepMinutes)
		if !contains(prep, p) {
			prep = append(prep, p)
		}
	}
	o.PrepText = strings.Join(prep, ", ")

	placed, tok, err := s.store.Place(ctx, o, claim)
	if err != nil {
		return nil, err
	}
	if s.onOrder != nil {
		s.onOrder()
	}
	s.log.Info("guest order placed",
		"guest_id", guestID, "order_id", placed.ID, "amount", placed.Amount, "items", len(placed.Items))
	return &PlaceResult{Order: placed, Token: tok}, nil
}

func (s *Service) ListByGuest(ctx context.Context, guestID int64) ([]Order, error) {
	guest, err := s.store.GuestByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, apperr.NotFound("guest not found")
	}
	return s.store.ListByGuest(ctx, guestID)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
