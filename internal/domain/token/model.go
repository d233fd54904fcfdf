package token

import (
	"encoding/json"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/domain/users"
)

// ClaimVersion is embedded in every payload; issued QR codes outlive format
// changes, so readers must be able to tell versions apart.
const ClaimVersion = 1

type ClaimItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Claim is the structured payload encoded into a redemption QR: who may
// redeem what, when. One claim covers a student's single thali or a guest
// order with several line items.
type Claim struct {
	Version     int             `json:"v"`
	OwnerKind   users.OwnerKind `json:"owner_kind"`
	OwnerID     int64           `json:"owner_id"`
	DisplayName string          `json:"name"`
	MealDate    string          `json:"meal_date"`
	MealType    menu.MealType   `json:"meal_type"`
	Items       []ClaimItem     `json:"items"`
}

func (c *Claim) Date() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.MealDate)
	if err != nil {
		return time.Time{}, apperr.Validation("bad meal_date %q in claim", c.MealDate)
	}
	return t, nil
}

func (c *Claim) Validate() error {
	if c.OwnerID == 0 || (c.OwnerKind != users.OwnerUser && c.OwnerKind != users.OwnerGuest) {
		return apperr.Validation("claim has no user or guest reference")
	}
	if !c.MealType.Valid() {
		return apperr.Validation("claim has no valid meal_type")
	}
	if _, err := c.Date(); err != nil {
		return err
	}
	return nil
}

// ParseClaim normalizes the shapes scanners actually send: the claim flat,
// the claim nested under "qr_data"/"claim" (possibly double-encoded as a
// string), and the legacy form with userId/guestId instead of owner fields.
func ParseClaim(raw []byte) (*Claim, error) {
	var envelope struct {
		QRData json.RawMessage `json:"qr_data"`
		Claim  json.RawMessage `json:"claim"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.Validation("invalid QR code format")
	}
	inner := raw
	if len(envelope.QRData) > 0 {
		inner = envelope.QRData
	} else if len(envelope.Claim) > 0 {
		inner = envelope.Claim
	}
	if len(inner) > 0 && inner[0] == '"' {
		var s string
		if err := json.Unmarshal(inner, &s); err != nil {
			return nil, apperr.Validation("invalid QR code format")
		}
		inner = []byte(s)
	}

	var c struct {
		Claim
		UserID   int64  `json:"userId"`
		GuestID  int64  `json:"guestId"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(inner, &c); err != nil {
		return nil, apperr.Validation("invalid QR code format")
	}
	out := c.Claim
	if out.OwnerID == 0 {
		switch {
		case c.UserID != 0:
			out.OwnerKind, out.OwnerID = users.OwnerUser, c.UserID
		case c.GuestID != 0:
			out.OwnerKind, out.OwnerID = users.OwnerGuest, c.GuestID
		}
	}
	if out.DisplayName == "" {
		out.DisplayName = c.UserName
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Token is one issued, scannable redemption proof. is_valid=false is
// terminal; rows are kept forever as the audit trail.
type Token struct {
	ID        int64
	TokenID   string
	OwnerKind users.OwnerKind
	OwnerID   int64
	MealDate  time.Time
	MealType  menu.MealType
	Payload   []byte
	TotalCost money.Amount
	IsValid   bool
	IssuedAt  time.Time
	ScannedAt *time.Time
}

func (t *Token) Claim() (*Claim, error) {
	var c Claim
	if err := json.Unmarshal(t.Payload, &c); err != nil {
		return nil, apperr.Validation("stored claim payload is malformed")
	}
	return &c, nil
}

// QueueEntry is one pending asynchronous issuance. The queue is durable so a
// crash between selection commit and token mint loses nothing.
type QueueEntry struct {
	ID         int64
	OwnerKind  users.OwnerKind
	OwnerID    int64
	MealDate   time.Time
	MealType   menu.MealType
	MenuItemID int64
	Attempts   int
	LastError  string
}

// DashboardStats is the admin "today" view.
type DashboardStats struct {
	BreakfastCount    int          `json:"breakfast_count"`
	LunchCount        int          `json:"lunch_count"`
	DinnerCount       int          `json:"dinner_count"`
	TotalGuestRevenue money.Amount `json:"total_guest_revenue"`
}
