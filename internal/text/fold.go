package text

import (
	"fmt"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldASCII strips diacritics ("café" -> "cafe") by NFKD-decomposing s and
// dropping combining marks. Runes that still fall outside ASCII after
// folding are reported as ErrNonASCII.
func FoldASCII(s string) (string, error) {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		return "", fmt.Errorf("text: fold: %w", err)
	}

	for i, r := range folded {
		if r == 0 || r > unicode.MaxASCII {
			return "", fmt.Errorf("%w: %q at byte %d", ErrNonASCII, r, i)
		}
	}

	return folded, nil
}
