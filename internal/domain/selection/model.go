package selection

import (
	"time"

	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/token"
)

// Selection is a student's chosen thali for one slot. At most one row exists
// per (user, meal_date, meal_type) — guaranteed by a unique index, not just
// by the pre-checks in the service.
type Selection struct {
	ID         int64
	UserID     int64
	MealDate   time.Time
	MealType   menu.MealType
	MenuItemID int64
	IsDefault  bool
	Item       *menu.Item
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s *Selection) Slot() entitlement.Slot {
	return entitlement.Slot{MealDate: s.MealDate, MealType: s.MealType}
}

type SlotInput struct {
	MealDate   time.Time
	MealType   menu.MealType
	MenuItemID int64
}

func (s SlotInput) Slot() entitlement.Slot {
	return entitlement.Slot{MealDate: s.MealDate, MealType: s.MealType}
}

// Changeset is the reconciliation outcome of one submission: what to insert,
// update and delete, plus the queue entries to mint tokens for.
type Changeset struct {
	Insert  []SlotInput
	Update  []SlotInput
	Delete  []entitlement.Slot
	Enqueue []token.QueueEntry
}

type SubmitResult struct {
	Added   int                       `json:"added"`
	Updated int                       `json:"updated"`
	Removed int                       `json:"removed"`
	Charge  money.Amount              `json:"total_extra_charge"`
	Charged []entitlement.ChargedItem `json:"charged_items,omitempty"`
}

type PreviewResult struct {
	Charge  money.Amount              `json:"total_extra_cost"`
	Charged []entitlement.ChargedItem `json:"charged_items"`
}
