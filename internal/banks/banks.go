// Package banks holds the bank registry used by the pari/persi track: the
// canonical bank keys, the name-matching patterns and the per-bank minimum
// aggregate-debt thresholds.
package banks

import (
	"regexp"
	"strings"

	"github.com/senna-project/senninha/internal/normalize"
)

// Bank is one registry entry: a canonical key, the patterns that recognize it
// in free-text institution names, and its minimum aggregate-debt threshold.
type Bank struct {
	Key      string
	Patterns []*regexp.Regexp
	Minimum  float64
}

// Registry is the fixed set of banks participating in the pari/persi track.
// Patterns are evaluated first-match-wins over the cleaned institution name.
type Registry struct {
	banks []Bank
}

// NewRegistry builds a registry from explicit entries. Tests use this to
// substitute fixtures.
func NewRegistry(entries []Bank) *Registry {
	return &Registry{banks: entries}
}

// DefaultRegistry returns the production bank registry. Both the pattern list
// and the minima are fixed domain knowledge and must not be derived.
func DefaultRegistry() *Registry {
	mk := func(key string, minimum float64, patterns ...string) Bank {
		b := Bank{Key: key, Minimum: minimum}
		for _, p := range patterns {
			b.Patterns = append(b.Patterns, regexp.MustCompile(p))
		}
		return b
	}

	return NewRegistry([]Bank{
		mk("credibom", 10000.0, `\bcredibom\b`),
		mk("cofidis", 5000.0, `\bcofidis\b`),
		mk("santander", 10000.0, `\bsantander\b`),
		mk("bnp", 4000.0, `\bbnp\b`, `paribas`),
		mk("millennium", 10500.0, `\bmillennium\b`, `\bbcp\b`),
		mk("wizink", 3000.0, `\bwizink\b`),
		mk("hefesto", 5500.0, `\bhefesto\b`),
		mk("bankinter", 13000.0, `\bbankinter\b`, `consumer\s*finance`),
		mk("younited", 3700.0, `\byounited\b`),
		mk("unicre", 3500.0, `\bunicre\b`),
	})
}

// punctToSpace collapses the punctuation that separates name parts on the
// printed reports.
var punctToSpace = regexp.MustCompile(`[,.;:()\-\n]+`)

// spaces collapses runs of whitespace.
var spaces = regexp.MustCompile(`\s+`)

// clean prepares a printed institution name for pattern matching: accents and
// case folded, punctuation collapsed to single spaces.
func clean(name string) string {
	base := normalize.StripAccentsLower(name)
	base = punctToSpace.ReplaceAllString(base, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(base, " "))
}

// Canonicalize maps a free-text institution name to a canonical bank key, or
// "" when no registered bank matches.
func (r *Registry) Canonicalize(institution string) string {
	base := clean(institution)
	for _, b := range r.banks {
		for _, p := range b.Patterns {
			if p.MatchString(base) {
				return b.Key
			}
		}
	}
	return ""
}

// Minimum returns the aggregate-debt threshold for a canonical bank key. The
// second result is false for "" or keys absent from the registry; such rows
// never pass the pari/persi track.
func (r *Registry) Minimum(key string) (float64, bool) {
	if key == "" {
		return 0, false
	}
	for _, b := range r.banks {
		if b.Key == key {
			return b.Minimum, true
		}
	}
	return 0, false
}

// Keys returns the canonical bank keys in registry order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.banks))
	for _, b := range r.banks {
		keys = append(keys, b.Key)
	}
	return keys
}

// Thresholds returns a key -> minimum view of the registry, used by the API
// to expose the registry read-only.
func (r *Registry) Thresholds() map[string]float64 {
	out := make(map[string]float64, len(r.banks))
	for _, b := range r.banks {
		out[b.Key] = b.Minimum
	}
	return out
}
