package token

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/messmate/messmate/internal/domain/money"
	"github.com/messmate/messmate/internal/infra/db"
)

// IssueStore is the storage contract the issuer needs; *Repo implements it.
type IssueStore interface {
	InsertOrGet(ctx context.Context, q db.Querier, t *Token) (*Token, bool, error)
}

type Issuer struct {
	store IssueStore
	log   *slog.Logger
}

func NewIssuer(store IssueStore, log *slog.Logger) *Issuer {
	return &Issuer{store: store, log: log}
}

// Issue mints at most one valid token per (owner, meal_date, meal_type).
// A second call for the same slot returns the first token untouched with
// created=false; callers that charge per issuance must check the flag.
func (i *Issuer) Issue(ctx context.Context, q db.Querier, claim *Claim, totalCost money.Amount) (*Token, bool, error) {
	if err := claim.Validate(); err != nil {
		return nil, false, err
	}
	date, err := claim.Date()
	if err != nil {
		return nil, false, err
	}
	claim.Version = ClaimVersion
	payload, err := json.Marshal(claim)
	if err != nil {
		return nil, false, err
	}

	t := &Token{
		TokenID:   uuid.NewString(),
		OwnerKind: claim.OwnerKind,
		OwnerID:   claim.OwnerID,
		MealDate:  date,
		MealType:  claim.MealType,
		Payload:   payload,
		TotalCost: totalCost,
	}
	out, created, err := i.store.InsertOrGet(ctx, q, t)
	if err != nil {
		return nil, false, err
	}
	if !created {
		i.log.Debug("token already issued",
			"owner_kind", claim.OwnerKind, "owner_id", claim.OwnerID,
			"meal_date", claim.MealDate, "meal_type", claim.MealType)
	}
	return out, created, nil
}
