package entitlement

import (
	"github.com/messmate/messmate/internal/domain/menu"
)

// Calculator prices a batch of selections against free-usage limits. It is
// pure: the same inputs always produce the same charges, so it serves both
// the preview (dry run) and the commit path.
type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) Calculator { return Calculator{policy: policy} }

// Price walks the batch in input order, simulating usage as it goes: the
// first selections of an item ride out the remaining free allowance, the rest
// are charged at the item's extra price. Order matters and is preserved.
func (c Calculator) Price(items map[int64]menu.Item, prior map[int64]Usage, batch []SelectionInput) Result {
	var res Result
	used := make(map[int64]Usage, len(prior))
	for id, u := range prior {
		used[id] = u
	}

	for _, sel := range batch {
		item, ok := items[sel.MenuItemID]
		if !ok {
			continue
		}
		u := used[sel.MenuItemID]
		if c.chargeable(item, u) {
			res.Total += item.ExtraPrice
			res.Charged = append(res.Charged, ChargedItem{
				MenuItemID: item.ID,
				Name:       item.Name,
				Price:      item.ExtraPrice,
				MealDate:   sel.MealDate.Format("2006-01-02"),
				MealType:   string(sel.MealType),
			})
		}
		u.Month++
		u.Week++
		used[sel.MenuItemID] = u
	}
	return res
}

func (c Calculator) chargeable(item menu.Item, u Usage) bool {
	overMonthly := u.Month >= item.MonthlyLimit
	overWeekly := u.Week >= item.WeeklyLimit
	switch c.policy {
	case PolicyMonthly:
		return overMonthly
	case PolicyWeekly:
		return overWeekly
	default:
		return overMonthly || overWeekly
	}
}
