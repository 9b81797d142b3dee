// Package normalize provides the text and numeric sanitization used by the
// profiling engine: European currency parsing, product-name slugs, accent
// folding and the litigation-flag comparison.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents decomposes to NFD and drops combining marks.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripAccentsLower returns s lower-cased with diacritics removed.
// "Crédito à Habitação" -> "credito a habitacao".
func StripAccentsLower(s string) string {
	out, _, err := transform.String(foldAccents, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// ParseAmount parses a European-format currency string into a float64.
// Thousands separator "." and decimal separator ",": if both appear the dots
// are dropped and the comma becomes the decimal point; a lone comma is the
// decimal point. Currency symbols, spaces and non-breaking spaces are
// stripped. Any failure resolves to 0.0, never an error.
func ParseAmount(raw string) float64 {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || cleaned == "-" || cleaned == "N/A" {
		return 0.0
	}

	var b strings.Builder
	for _, r := range cleaned {
		switch {
		case unicode.IsSpace(r):
			// drop all spacing, including NBSP artifacts from PDF text
		case r == '€' || r == '$' || r == '£' || r == '¥':
			// drop currency symbols
		default:
			b.WriteRune(r)
		}
	}
	cleaned = b.String()

	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0.0
	}
	return v
}

// Amount sanitizes a monetary field that may arrive already parsed or as raw
// text. Raw text wins when present; the result is clamped to >= 0 so
// downstream aggregation never sees negative values.
func Amount(parsed float64, raw string) float64 {
	v := parsed
	if raw != "" {
		v = ParseAmount(raw)
	}
	if v < 0 {
		return 0.0
	}
	return v
}

// Slugify folds case and accents and removes whitespace and punctuation,
// producing the compact key used by the product-category table.
// "Crédito pessoal" -> "creditopessoal".
func Slugify(s string) string {
	folded := StripAccentsLower(s)
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldFlag normalizes a printed yes/no flag: all spacing, including NBSP
// artifacts from PDF text, stripped; case and accents folded.
func foldFlag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return StripAccentsLower(b.String())
}

// IsNo reports whether a litigation flag reads "Não" (any casing, with or
// without the accent or NBSP padding).
func IsNo(litigation string) bool {
	return foldFlag(litigation) == "nao"
}

// IsYes reports whether a litigation flag reads "Sim".
func IsYes(litigation string) bool {
	return foldFlag(litigation) == "sim"
}
