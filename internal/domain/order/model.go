package order

import (
	"time"

	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusPrepared  Status = "prepared"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
)

// Order is a guest's paid meal order. The wallet is debited when the order
// is created, not when the QR is scanned.
type Order struct {
	ID        int64
	GuestID   int64
	OrderDate time.Time
	MealDate  time.Time
	MealType  menu.MealType
	Status    Status
	PrepText  string
	Amount    money.Amount
	Items     []Item
}

type Item struct {
	ID         int64
	OrderID    int64
	MenuItemID int64
	Quantity   int
	MenuItem   *menu.Item
}

type LineInput struct {
	MenuItemID int64 `json:"menuItemId"`
	Quantity   int   `json:"quantity"`
}
