package menu

import (
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/money"
)

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner:
		return true
	}
	return false
}

var daysOfWeek = map[string]bool{
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

func ValidDay(d string) bool { return daysOfWeek[d] }

// Item is a complete thali offered by the mess. Limits are the free-usage
// caps for students; extra_price is what guests pay, and what students pay
// past their limit.
type Item struct {
	ID           int64
	Name         string
	Description  string
	ImageURL     string
	PrepMinutes  int
	WeeklyLimit  int
	MonthlyLimit int
	ExtraPrice   money.Amount
}

func (i *Item) Validate() error {
	if i.Name == "" {
		return apperr.Validation("menu item name is required")
	}
	if i.WeeklyLimit < 0 || i.MonthlyLimit < 0 {
		return apperr.Validation("limits must not be negative")
	}
	if i.ExtraPrice.IsNegative() {
		return apperr.Validation("extra price must not be negative")
	}
	return nil
}

// WeekEntry pins an item to a (week, day, meal) slot of the published menu.
type WeekEntry struct {
	ID            int64
	WeekStartDate time.Time
	DayOfWeek     string
	MealType      MealType
	MenuItemID    int64
	Item          *Item
}
