package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/users"
)

// RedeemStore is the storage contract the verifier needs; *Repo implements
// it. Redeem must be the atomic VALID -> REDEEMED transition.
type RedeemStore interface {
	Redeem(ctx context.Context, kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) (*Token, error)
}

type RedemptionResult struct {
	TokenID   string `json:"token_id"`
	Claim     *Claim `json:"claim"`
	ScannedAt string `json:"scanned_at"`
}

type Verifier struct {
	store  RedeemStore
	log    *slog.Logger
	onScan func()
}

func NewVerifier(store RedeemStore, log *slog.Logger, onScan func()) *Verifier {
	return &Verifier{store: store, log: log, onScan: onScan}
}

// Redeem consumes a claim exactly once. The mutation lives entirely in the
// store; for students no wallet movement happens here — charging was done at
// selection time.
func (v *Verifier) Redeem(ctx context.Context, claim *Claim) (*RedemptionResult, error) {
	if err := claim.Validate(); err != nil {
		return nil, err
	}
	date, err := claim.Date()
	if err != nil {
		return nil, err
	}
	t, err := v.store.Redeem(ctx, claim.OwnerKind, claim.OwnerID, date, claim.MealType)
	if err != nil {
		return nil, err
	}
	stored, err := t.Claim()
	if err != nil {
		return nil, err
	}
	if v.onScan != nil {
		v.onScan()
	}
	v.log.Info("meal redeemed",
		"owner_kind", t.OwnerKind, "owner_id", t.OwnerID,
		"meal_date", claim.MealDate, "meal_type", t.MealType)

	scanned := ""
	if t.ScannedAt != nil {
		scanned = t.ScannedAt.Format(time.RFC3339)
	}
	return &RedemptionResult{TokenID: t.TokenID, Claim: stored, ScannedAt: scanned}, nil
}
