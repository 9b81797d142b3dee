// Package taxid validates Portuguese tax identifiers (NIF).
package taxid

import "strings"

// Valid reports whether nif is a well-formed 9-digit Portuguese tax
// identifier with a correct check digit. The check digit is a weighted sum
// mod 11 over the first eight digits, weights 9 down to 2; remainders 0 and 1
// map to check digit 0.
func Valid(nif string) bool {
	nif = strings.TrimSpace(nif)
	if len(nif) != 9 {
		return false
	}

	total := 0
	for i := 0; i < 8; i++ {
		c := nif[i]
		if c < '0' || c > '9' {
			return false
		}
		total += (9 - i) * int(c-'0')
	}

	last := nif[8]
	if last < '0' || last > '9' {
		return false
	}

	expected := 0
	if r := total % 11; r > 1 {
		expected = 11 - r
	}

	return int(last-'0') == expected
}
