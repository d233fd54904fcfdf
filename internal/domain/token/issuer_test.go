package token

import (
	"context"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/infra/db"
)

var testLog = slog.New(slog.DiscardHandler)

// fakeTokenStore keys valid tokens by slot, mimicking the partial unique
// index semantics of the real table.
type fakeTokenStore struct {
	valid    map[string]*Token
	redeemed map[string]bool
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{valid: map[string]*Token{}, redeemed: map[string]bool{}}
}

func slotKey(kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) string {
	return string(kind) + "|" + strconv.FormatInt(ownerID, 10) + "|" + date.Format("2006-01-02") + "|" + string(meal)
}

func (f *fakeTokenStore) InsertOrGet(_ context.Context, _ db.Querier, t *Token) (*Token, bool, error) {
	key := slotKey(t.OwnerKind, t.OwnerID, t.MealDate, t.MealType)
	if existing, ok := f.valid[key]; ok {
		return existing, false, nil
	}
	if f.redeemed[key] {
		return nil, false, apperr.Conflict("token for %s was already redeemed", key)
	}
	t.IsValid = true
	f.valid[key] = t
	return t, true, nil
}

func (f *fakeTokenStore) Redeem(_ context.Context, kind users.OwnerKind, ownerID int64, date time.Time, meal menu.MealType) (*Token, error) {
	key := slotKey(kind, ownerID, date, meal)
	t, ok := f.valid[key]
	if !ok {
		return nil, apperr.Conflict("meal QR is invalid or already redeemed")
	}
	delete(f.valid, key)
	f.redeemed[key] = true
	now := time.Now()
	t.IsValid = false
	t.ScannedAt = &now
	return t, nil
}

func testClaim() *Claim {
	return &Claim{
		OwnerKind:   users.OwnerUser,
		OwnerID:     42,
		DisplayName: "Asha",
		MealDate:    "2026-08-24",
		MealType:    menu.MealLunch,
		Items:       []ClaimItem{{ID: 7, Name: "Special Thali"}},
	}
}

func TestIssueCreatesToken(t *testing.T) {
	issuer := NewIssuer(newFakeTokenStore(), testLog)

	tok, created, err := issuer.Issue(context.Background(), nil, testClaim(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("created = false on first issue")
	}
	if tok.TokenID == "" {
		t.Error("token id is empty")
	}
	claim, err := tok.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if claim.Version != ClaimVersion {
		t.Errorf("payload version = %d, want %d", claim.Version, ClaimVersion)
	}
	if claim.OwnerID != 42 || len(claim.Items) != 1 {
		t.Errorf("payload = %+v", claim)
	}
}

func TestIssueIsIdempotentPerSlot(t *testing.T) {
	issuer := NewIssuer(newFakeTokenStore(), testLog)

	first, created, err := issuer.Issue(context.Background(), nil, testClaim(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("created = false on first issue")
	}

	// Second issue for the slot carries different items; it must report
	// created=false and leave the first token's payload untouched, so callers
	// know the new items never made it onto a redeemable token.
	c := testClaim()
	c.Items = []ClaimItem{{ID: 11, Name: "Masala Dosa"}}
	second, created, err := issuer.Issue(context.Background(), nil, c, 0)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("created = true on second issue for the same slot")
	}
	if first.TokenID != second.TokenID {
		t.Errorf("two tokens for one slot: %s and %s", first.TokenID, second.TokenID)
	}
	claim, err := second.Claim()
	if err != nil {
		t.Fatal(err)
	}
	if len(claim.Items) != 1 || claim.Items[0].ID != 7 {
		t.Errorf("stored items = %+v, want the first issue's", claim.Items)
	}
}

func TestIssueKeysTokensByOwner(t *testing.T) {
	issuer := NewIssuer(newFakeTokenStore(), testLog)

	first, created, err := issuer.Issue(context.Background(), nil, testClaim(), 0)
	if err != nil || !created {
		t.Fatalf("first issue: created=%v err=%v", created, err)
	}
	c := testClaim()
	c.OwnerID = 43
	second, created, err := issuer.Issue(context.Background(), nil, c, 0)
	if err != nil || !created {
		t.Fatalf("other owner, same slot: created=%v err=%v", created, err)
	}
	if first.TokenID == second.TokenID {
		t.Error("different owners shared one token")
	}
}

func TestIssueRejectsBadClaim(t *testing.T) {
	issuer := NewIssuer(newFakeTokenStore(), testLog)

	c := testClaim()
	c.OwnerID = 0
	if _, _, err := issuer.Issue(context.Background(), nil, c, 0); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}

	c = testClaim()
	c.MealDate = "24/08/2026"
	if _, _, err := issuer.Issue(context.Background(), nil, c, 0); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}
