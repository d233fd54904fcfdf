package entitlement

import (
	"testing"
	"time"

	"github.com/messmate/messmate/internal/domain/menu"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func slot(day string, meal menu.MealType) Slot {
	return Slot{MealDate: date(day), MealType: meal}
}

func specialThali() map[int64]menu.Item {
	return map[int64]menu.Item{
		7: {ID: 7, Name: "Special Thali", WeeklyLimit: 1, MonthlyLimit: 2, ExtraPrice: 6000},
	}
}

func TestPriceWithinLimitsIsFree(t *testing.T) {
	calc := NewCalculator(PolicyBoth)
	res := calc.Price(specialThali(), nil, []SelectionInput{
		{Slot: slot("2026-08-03", menu.MealLunch), MenuItemID: 7},
	})
	if res.Total != 0 {
		t.Errorf("Total = %s, want 0.00", res.Total)
	}
	if len(res.Charged) != 0 {
		t.Errorf("Charged = %v, want none", res.Charged)
	}
}

func TestPriceChargesPastWeeklyLimit(t *testing.T) {
	calc := NewCalculator(PolicyBoth)
	// Two picks of a weekly_limit=1 item in one batch: second one costs.
	res := calc.Price(specialThali(), nil, []SelectionInput{
		{Slot: slot("2026-08-03", menu.MealLunch), MenuItemID: 7},
		{Slot: slot("2026-08-05", menu.MealDinner), MenuItemID: 7},
	})
	if res.Total != 6000 {
		t.Errorf("Total = %s, want 60.00", res.Total)
	}
	if len(res.Charged) != 1 || res.Charged[0].MealDate != "2026-08-05" {
		t.Errorf("Charged = %+v, want the second slot only", res.Charged)
	}
}

func TestPriceCountsPriorUsageAcrossSubmissions(t *testing.T) {
	// monthly_limit=2, already selected twice this month: the next pick is
	// chargeable even though this batch holds only one.
	calc := NewCalculator(PolicyMonthly)
	prior := map[int64]Usage{7: {Month: 2, Week: 0}}
	res := calc.Price(specialThali(), prior, []SelectionInput{
		{Slot: slot("2026-08-20", menu.MealLunch), MenuItemID: 7},
	})
	if res.Total != 6000 {
		t.Errorf("Total = %s, want 60.00", res.Total)
	}
}

func TestPriceIsOrderDependent(t *testing.T) {
	calc := NewCalculator(PolicyBoth)
	items := map[int64]menu.Item{
		1: {ID: 1, Name: "Veg Thali", WeeklyLimit: 2, MonthlyLimit: 8, ExtraPrice: 4000},
	}
	batch := []SelectionInput{
		{Slot: slot("2026-08-03", menu.MealLunch), MenuItemID: 1},
		{Slot: slot("2026-08-04", menu.MealLunch), MenuItemID: 1},
		{Slot: slot("2026-08-05", menu.MealLunch), MenuItemID: 1},
	}
	res := calc.Price(items, nil, batch)
	if res.Total != 4000 {
		t.Fatalf("Total = %s, want 40.00", res.Total)
	}
	// The charged slot is the third in input order, deterministically.
	if res.Charged[0].MealDate != "2026-08-05" {
		t.Errorf("charged %s, want 2026-08-05", res.Charged[0].MealDate)
	}
}

func TestPricePolicyVariants(t *testing.T) {
	items := map[int64]menu.Item{
		7: {ID: 7, Name: "Special Thali", WeeklyLimit: 1, MonthlyLimit: 4, ExtraPrice: 6000},
	}
	// Over the weekly limit, within the monthly one.
	prior := map[int64]Usage{7: {Month: 1, Week: 1}}
	batch := []SelectionInput{{Slot: slot("2026-08-06", menu.MealDinner), MenuItemID: 7}}

	if res := NewCalculator(PolicyMonthly).Price(items, prior, batch); res.Total != 0 {
		t.Errorf("monthly policy: Total = %s, want 0.00", res.Total)
	}
	if res := NewCalculator(PolicyWeekly).Price(items, prior, batch); res.Total != 6000 {
		t.Errorf("weekly policy: Total = %s, want 60.00", res.Total)
	}
	if res := NewCalculator(PolicyBoth).Price(items, prior, batch); res.Total != 6000 {
		t.Errorf("both policy: Total = %s, want 60.00", res.Total)
	}
}

func TestPriceIsPure(t *testing.T) {
	calc := NewCalculator(PolicyBoth)
	prior := map[int64]Usage{7: {Month: 1, Week: 0}}
	batch := []SelectionInput{{Slot: slot("2026-08-10", menu.MealLunch), MenuItemID: 7}}

	first := calc.Price(specialThali(), prior, batch)
	second := calc.Price(specialThali(), prior, batch)
	if first.Total != second.Total {
		t.Errorf("same inputs priced differently: %s vs %s", first.Total, second.Total)
	}
	if prior[7].Month != 1 {
		t.Errorf("Price mutated the prior usage map")
	}
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(date("2026-08-29"))
	if from.Format("2006-01-02") != "2026-08-01" || to.Format("2006-01-02") != "2026-08-31" {
		t.Errorf("MonthWindow = %s..%s", from, to)
	}
}

func TestWeekWindow(t *testing.T) {
	// 2026-08-26 is a Wednesday; its week is Mon 24th .. Sun 30th.
	from, to := WeekWindow(date("2026-08-26"))
	if from.Format("2006-01-02") != "2026-08-24" || to.Format("2006-01-02") != "2026-08-30" {
		t.Errorf("WeekWindow(wed) = %s..%s", from, to)
	}
	// Sunday belongs to the week that started the previous Monday.
	from, _ = WeekWindow(date("2026-08-30"))
	if from.Format("2006-01-02") != "2026-08-24" {
		t.Errorf("WeekWindow(sun) starts %s, want 2026-08-24", from)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyBoth {
		t.Errorf("ParsePolicy(\"\") = %v, %v", p, err)
	}
	if _, err := ParsePolicy("daily"); err == nil {
		t.Error("ParsePolicy(\"daily\") should fail")
	}
}
