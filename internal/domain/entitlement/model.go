package entitlement

import (
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
)

// Policy picks which free-usage window(s) gate a selection. "both" is the
// strictest: exceeding either window makes the selection chargeable.
type Policy string

const (
	PolicyMonthly Policy = "monthly"
	PolicyWeekly  Policy = "weekly"
	PolicyBoth    Policy = "both"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyMonthly, PolicyWeekly, PolicyBoth:
		return Policy(s), nil
	case "":
		return PolicyBoth, nil
	}
	return "", apperr.Validation("unknown limit policy %q", s)
}

// Slot is one (meal_date, meal_type) pair, the unit of selection.
type Slot struct {
	MealDate time.Time
	MealType menu.MealType
}

func (s Slot) Key() string {
	return s.MealDate.Format("2006-01-02") + "|" + string(s.MealType)
}

// Usage holds how many times an item was already taken inside the current
// calendar-month and Monday–Sunday windows.
type Usage struct {
	Month int
	Week  int
}

type SelectionInput struct {
	Slot
	MenuItemID int64
}

type ChargedItem struct {
	MenuItemID int64        `json:"menu_item_id"`
	Name       string       `json:"name"`
	Price      money.Amount `json:"price"`
	MealDate   string       `json:"meal_date"`
	MealType   string       `json:"meal_type"`
}

type Result struct {
	Total   money.Amount
	Charged []ChargedItem
}

type UsageStat struct {
	MenuItemID int64  `json:"menu_item_id"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
}

// MonthWindow is the calendar month containing now.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, -1)
	return from, to
}

// WeekWindow is the Monday–Sunday week containing now.
func WeekWindow(now time.Time) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday belongs to the week that started six days earlier
	}
	from := day.AddDate(0, 0, -offset)
	return from, from.AddDate(0, 0, 6)
}
