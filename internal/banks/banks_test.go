package banks

import (
	"regexp"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "Cofidis", "cofidis"},
		{"full legal name", "Banco Santander Totta, SA", "santander"},
		{"bnp by paribas pattern", "BNP Paribas Personal Finance", "bnp"},
		{"millennium brand", "Millennium BCP", "millennium"},
		{"bcp abbreviation", "BCP, S.A.", "millennium"},
		{"wizink with punctuation", "WiZink Bank, S.A.U.", "wizink"},
		{"bankinter consumer finance", "Bankinter Consumer Finance, E.F.C., S.A.", "bankinter"},
		{"accented input", "Crédibom", "credibom"},
		{"unregistered bank", "Caixa Geral de Depósitos", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalizeIgnoresLongFormName(t *testing.T) {
	r := DefaultRegistry()

	// The registry keys on brand patterns, not the grouping names used by the
	// institution normalizer. A long-form legal name without the brand word
	// stays out of the pari/persi track.
	if got := r.Canonicalize("Banco Comercial Português, SA"); got != "" {
		t.Errorf("Canonicalize(long-form BCP) = %q, want empty", got)
	}
}

func TestMinimum(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"cofidis", 5000.0, true},
		{"wizink", 3000.0, true},
		{"millennium", 10500.0, true},
		{"bankinter", 13000.0, true},
		{"", 0, false},
		{"unknown", 0, false},
	}

	for _, tt := range tests {
		got, ok := r.Minimum(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Minimum(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestKeysAndThresholds(t *testing.T) {
	r := DefaultRegistry()

	keys := r.Keys()
	if len(keys) != 10 {
		t.Errorf("Keys() length = %d, want 10", len(keys))
	}

	thresholds := r.Thresholds()
	if len(thresholds) != len(keys) {
		t.Errorf("Thresholds() length = %d, want %d", len(thresholds), len(keys))
	}
	for _, k := range keys {
		if _, ok := thresholds[k]; !ok {
			t.Errorf("Thresholds() missing key %q", k)
		}
	}
}

func TestCustomRegistry(t *testing.T) {
	r := NewRegistry([]Bank{
		{Key: "acme", Patterns: []*regexp.Regexp{regexp.MustCompile(`\bacme\b`)}, Minimum: 1500.0},
	})

	if got := r.Canonicalize("Banco ACME, S.A."); got != "acme" {
		t.Errorf("Canonicalize = %q, want acme", got)
	}
	if min, ok := r.Minimum("acme"); !ok || min != 1500.0 {
		t.Errorf("Minimum = (%v, %v), want (1500, true)", min, ok)
	}
}
