package normalize

import "strings"

// InstitutionEntry maps a lookup key (substring, accent-folded) to the
// standard institution name used for cross-page grouping.
type InstitutionEntry struct {
	Key  string
	Name string
}

// InstitutionNormalizer canonicalizes printed institution names so rows from
// different pages of the same report group together. First matching entry
// wins; unknown names pass through unchanged.
type InstitutionNormalizer struct {
	entries []InstitutionEntry
}

// NewInstitutionNormalizer builds a normalizer from a lookup table.
func NewInstitutionNormalizer(entries []InstitutionEntry) *InstitutionNormalizer {
	return &InstitutionNormalizer{entries: entries}
}

// DefaultInstitutionNormalizer returns the normalizer with the standard
// lookup table for Portuguese credit institutions.
func DefaultInstitutionNormalizer() *InstitutionNormalizer {
	return NewInstitutionNormalizer([]InstitutionEntry{
		{Key: "banco credibom", Name: "banco credibom sa"},
		{Key: "credibom", Name: "banco credibom sa"},
		{Key: "cofidis", Name: "cofidis"},
		{Key: "banco santander consumer", Name: "banco santander consumer portugal sa"},
		{Key: "santander", Name: "banco santander totta sa"},
		{Key: "bnp paribas", Name: "bnp paribas personal finance"},
		{Key: "banco bpi", Name: "banco bpi sa"},
		{Key: "banco comercial portugues", Name: "banco comercial portugues sa"},
		{Key: "millennium", Name: "banco comercial portugues sa"},
		{Key: "wizink", Name: "wizink bank sau"},
		{Key: "hefesto", Name: "hefesto stc sa"},
		{Key: "bankinter consumer finance", Name: "bankinter consumer finance efc sa"},
		{Key: "bankinter", Name: "bankinter sa"},
		{Key: "younited", Name: "younited sa"},
		{Key: "unicre", Name: "unicre instituicao financeira de credito sa"},
		{Key: "caixa geral de depositos", Name: "caixa geral de depositos sa"},
		{Key: "novo banco", Name: "novo banco sa"},
	})
}

// cleanName folds accents and case and strips branch-suffix noise and the
// punctuation that varies between report layouts.
func cleanName(s string) string {
	s = StripAccentsLower(s)
	s = strings.ReplaceAll(s, "sucursal em portugal", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	return strings.TrimSpace(s)
}

// Normalize returns the standard name for a printed institution name, or the
// input unchanged when no table entry matches.
func (n *InstitutionNormalizer) Normalize(raw string) string {
	cleaned := cleanName(raw)
	for _, e := range n.entries {
		if strings.Contains(cleaned, cleanName(e.Key)) {
			return e.Name
		}
	}
	return raw
}
