package token

import (
	"encoding/json"
	"testing"

	"github.com/messmate/messmate/internal/domain/apperr"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/users"
)

func TestParseClaimFlat(t *testing.T) {
	raw := []byte(`{"v":1,"owner_kind":"user","owner_id":42,"name":"Asha","meal_date":"2026-08-24","meal_type":"lunch","items":[{"id":7,"name":"Special Thali"}]}`)
	c, err := ParseClaim(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.OwnerKind != users.OwnerUser || c.OwnerID != 42 {
		t.Errorf("owner = %s/%d", c.OwnerKind, c.OwnerID)
	}
	if c.MealType != menu.MealLunch || len(c.Items) != 1 {
		t.Errorf("claim = %+v", c)
	}
}

func TestParseClaimNestedUnderQRData(t *testing.T) {
	inner := `{"owner_kind":"guest","owner_id":9,"name":"Walk In","meal_date":"2026-08-24","meal_type":"dinner","items":[]}`

	t.Run("raw object", func(t *testing.T) {
		c, err := ParseClaim([]byte(`{"qr_data":` + inner + `}`))
		if err != nil {
			t.Fatal(err)
		}
		if c.OwnerKind != users.OwnerGuest || c.OwnerID != 9 {
			t.Errorf("owner = %s/%d", c.OwnerKind, c.OwnerID)
		}
	})

	t.Run("double-encoded string", func(t *testing.T) {
		quoted, _ := json.Marshal(inner)
		c, err := ParseClaim([]byte(`{"qr_data":` + string(quoted) + `}`))
		if err != nil {
			t.Fatal(err)
		}
		if c.OwnerID != 9 {
			t.Errorf("owner_id = %d, want 9", c.OwnerID)
		}
	})

	t.Run("under claim key", func(t *testing.T) {
		c, err := ParseClaim([]byte(`{"claim":` + inner + `}`))
		if err != nil {
			t.Fatal(err)
		}
		if c.OwnerID != 9 {
			t.Errorf("owner_id = %d, want 9", c.OwnerID)
		}
	})
}

func TestParseClaimLegacyShape(t *testing.T) {
	raw := []byte(`{"userId":42,"userName":"Asha","meal_date":"2026-08-24","meal_type":"lunch","items":[{"id":7,"name":"Special Thali"}]}`)
	c, err := ParseClaim(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.OwnerKind != users.OwnerUser || c.OwnerID != 42 || c.DisplayName != "Asha" {
		t.Errorf("claim = %+v", c)
	}

	raw = []byte(`{"guestId":9,"userName":"Walk In","meal_date":"2026-08-24","meal_type":"dinner","items":[]}`)
	c, err = ParseClaim(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.OwnerKind != users.OwnerGuest || c.OwnerID != 9 {
		t.Errorf("claim = %+v", c)
	}
}

func TestParseClaimRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{}`),
		[]byte(`{"owner_kind":"user","owner_id":1,"meal_date":"24-08-2026","meal_type":"lunch"}`),
		[]byte(`{"owner_kind":"user","owner_id":1,"meal_date":"2026-08-24","meal_type":"brunch"}`),
	}
	for _, raw := range cases {
		if _, err := ParseClaim(raw); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("ParseClaim(%s) err = %v, want validation", raw, err)
		}
	}
}
