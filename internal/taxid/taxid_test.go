package taxid

import "testing"

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		nif  string
		want bool
	}{
		{"valid check digit", "123456789", true},
		{"valid with remainder zero", "111111110", true},
		{"valid with surrounding spaces", " 123456789 ", true},
		{"wrong check digit", "123456781", false},
		{"too short", "12345678", false},
		{"too long", "1234567890", false},
		{"non-digit in body", "12345678X", false},
		{"non-digit check position", "12345678x", false},
		{"empty", "", false},
		{"all spaces", "         ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.nif); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.nif, got, tt.want)
			}
		})
	}
}
