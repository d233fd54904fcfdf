package token

import (
	"context"
	"testing"

	"github.com/messmate/messmate/internal/domain/apperr"
)

func TestRedeemHappyPath(t *testing.T) {
	store := newFakeTokenStore()
	issuer := NewIssuer(store, testLog)
	scans := 0
	verifier := NewVerifier(store, testLog, func() { scans++ })

	if _, _, err := issuer.Issue(context.Background(), nil, testClaim(), 0); err != nil {
		t.Fatal(err)
	}
	res, err := verifier.Redeem(context.Background(), testClaim())
	if err != nil {
		t.Fatal(err)
	}
	if res.TokenID == "" || res.ScannedAt == "" {
		t.Errorf("result = %+v", res)
	}
	// The stored claim comes back, not the scanned one.
	if res.Claim.DisplayName != "Asha" || len(res.Claim.Items) != 1 {
		t.Errorf("claim = %+v", res.Claim)
	}
	if scans != 1 {
		t.Errorf("scan callback fired %d times", scans)
	}
}

func TestRedeemIsOneShot(t *testing.T) {
	store := newFakeTokenStore()
	issuer := NewIssuer(store, testLog)
	verifier := NewVerifier(store, testLog, nil)

	if _, _, err := issuer.Issue(context.Background(), nil, testClaim(), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Redeem(context.Background(), testClaim()); err != nil {
		t.Fatal(err)
	}
	_, err := verifier.Redeem(context.Background(), testClaim())
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("second redeem err = %v, want conflict", err)
	}
}

func TestRedeemWithoutTokenConflicts(t *testing.T) {
	verifier := NewVerifier(newFakeTokenStore(), testLog, nil)
	// Absent and already-used claims get the same answer.
	_, err := verifier.Redeem(context.Background(), testClaim())
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestReissueAfterRedeemConflicts(t *testing.T) {
	store := newFakeTokenStore()
	issuer := NewIssuer(store, testLog)
	verifier := NewVerifier(store, testLog, nil)

	if _, _, err := issuer.Issue(context.Background(), nil, testClaim(), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Redeem(context.Background(), testClaim()); err != nil {
		t.Fatal(err)
	}
	// A spent slot never gets a second token.
	_, _, err := issuer.Issue(context.Background(), nil, testClaim(), 0)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("reissue err = %v, want conflict", err)
	}
}
