package money

import (
	"encoding/json"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
		ok   bool
	}{
		{"60", 6000, true},
		{"60.5", 6050, true},
		{"60.50", 6050, true},
		{"0.05", 5, true},
		{"-12.30", -1230, true},
		{".50", 50, true},
		{"", 0, false},
		{"12.345", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.ok && err != nil {
			t.Errorf("Parse(%q): unexpected error %v", c.in, err)
			continue
		}
		if !c.ok {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestString(t *testing.T) {
	if got := Amount(6050).String(); got != "60.50" {
		t.Errorf("String() = %q, want 60.50", got)
	}
	if got := Amount(5).String(); got != "0.05" {
		t.Errorf("String() = %q, want 0.05", got)
	}
	if got := Amount(-1230).String(); got != "-12.30" {
		t.Errorf("String() = %q, want -12.30", got)
	}
}

func TestMul(t *testing.T) {
	if got := Amount(6000).Mul(3); got != 18000 {
		t.Errorf("Mul(3) = %d, want 18000", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Amount(6050))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"60.50"` {
		t.Errorf("marshal = %s, want \"60.50\"", b)
	}

	var a Amount
	if err := json.Unmarshal([]byte(`"60.50"`), &a); err != nil || a != 6050 {
		t.Errorf("unmarshal string = %d, %v", a, err)
	}
	if err := json.Unmarshal([]byte(`60.5`), &a); err != nil || a != 6050 {
		t.Errorf("unmarshal number = %d, %v", a, err)
	}
}
