package catalog

import "testing"

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", " \t\n ", ""},
		{"lowercase", "Chicken", "chicken"},
		{"trim", "  menu  ", "menu"},
		{"inner whitespace", "fried \t  chicken", "fried chicken"},
		{"full width", "ＭＥＮＵ", "menu"},
		{"full width space", "order　now", "order now"},
		{"german sharp s", "STRASSE", "strasse"},
		{"punctuation kept", "order.qty", "order.qty"},
		{"non latin", "雞排", "雞排"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeKey_Idempotent(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"Fried  Chicken", "ＰＯＰ meals", "Help"} {
		once := NormalizeKey(in)
		if twice := NormalizeKey(once); twice != once {
			t.Errorf("NormalizeKey not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
