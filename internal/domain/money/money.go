package money

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a currency value in minor units (paise). Wallet balances and
// prices never pass through binary floating point.
type Amount int64

func FromMinor(v int64) Amount { return Amount(v) }

// Parse accepts "60", "60.5" or "60.50" and returns the amount in paise.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, "00"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if whole == "" {
			whole = "0"
		}
		switch len(frac) {
		case 1:
			frac += "0"
		case 2:
		default:
			return 0, fmt.Errorf("money: %q has more than two fraction digits", s)
		}
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: bad amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: bad amount %q", s)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Amount(v), nil
}

func (a Amount) Minor() int64 { return int64(a) }

func (a Amount) IsNegative() bool { return a < 0 }

func (a Amount) Mul(n int) Amount { return a * Amount(n) }

// String renders with two fraction digits, e.g. 6050 -> "60.50".
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON accepts both `"60.50"` and `60.5`; recharge payloads arrive
// in either form.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
