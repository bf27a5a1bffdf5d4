package text

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text: text is empty")

// Normalize turns a raw transcript into a single encodable line: line
// endings and tabs become spaces, runs of whitespace collapse to one space
// and the ends are trimmed.
func Normalize(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// PrepareOptions selects the rewrites Prepare applies before encoding.
// The zero value keeps every transcript byte for byte.
type PrepareOptions struct {
	// Fold runs FoldASCII on each transcript.
	Fold bool
	// Normalize runs Normalize after folding; empty transcripts then fail
	// with ErrEmptyText.
	Normalize bool
}

// Prepare applies opts to every transcript and returns new strings in the
// same order. Without options the input is copied unchanged, empty
// strings included.
func Prepare(strs []string, opts PrepareOptions) ([]string, error) {
	out := make([]string, len(strs))

	for i, s := range strs {
		if opts.Fold {
			var err error
			if s, err = FoldASCII(s); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}

		if opts.Normalize {
			var err error
			if s, err = Normalize(s); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}

		out[i] = s
	}

	return out, nil
}
