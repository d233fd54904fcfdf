package auth

import (
	"testing"
	"time"

	"github.com/messmate/messmate/internal/domain/users"
)

func TestIssueAndValidate(t *testing.T) {
	m := NewManager("secret", time.Hour)

	raw, err := m.Issue(42, users.OwnerUser, users.RoleStudent, "Asha")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.AccountID != 42 || claims.Kind != users.OwnerUser || claims.Role != users.RoleStudent || claims.Name != "Asha" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	raw, err := NewManager("secret", time.Hour).Issue(42, users.OwnerUser, users.RoleStudent, "Asha")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager("other", time.Hour).Validate(raw); err == nil {
		t.Error("token signed with another secret accepted")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	raw, err := NewManager("secret", -time.Minute).Issue(42, users.OwnerUser, users.RoleStudent, "Asha")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager("secret", time.Hour).Validate(raw); err == nil {
		t.Error("expired token accepted")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := NewManager("secret", time.Hour).Validate("not.a.jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}
