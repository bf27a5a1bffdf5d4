// Package checkpoint locates epoch checkpoints written during training.
// Checkpoints live under a "checkpoints" directory and are named
// epoch_<N>[_<tag>].<ext>, e.g. checkpoints/epoch_12_ema.safetensors.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoEpoch is returned when a path does not name an epoch checkpoint, or
// a directory holds none.
var ErrNoEpoch = errors.New("checkpoint: no epoch checkpoint")

var (
	pathPattern = regexp.MustCompile(`^.*checkpoints/epoch_(\d+)(_\w+)?\.\w+`)
	namePattern = regexp.MustCompile(`^epoch_(\d+)(_\w+)?\.\w+$`)
)

// Checkpoint is one parsed checkpoint file.
type Checkpoint struct {
	Path  string
	Epoch int
	Tag   string
}

// EpochFromPath extracts N from a path of the form .../checkpoints/epoch_N[_tag].ext.
func EpochFromPath(path string) (int, error) {
	m := pathPattern.FindStringSubmatch(filepath.ToSlash(path))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoEpoch, path)
	}

	return parseEpoch(m[1], path)
}

// List returns the checkpoints in dir ordered by epoch, then name.
// Other files are skipped.
func List(dir string) ([]Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list %s: %w", dir, err)
	}

	var out []Checkpoint

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		m := namePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}

		path := filepath.Join(dir, e.Name())

		epoch, err := parseEpoch(m[1], path)
		if err != nil {
			return nil, err
		}

		out = append(out, Checkpoint{
			Path:  path,
			Epoch: epoch,
			Tag:   strings.TrimPrefix(m[2], "_"),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Epoch != out[j].Epoch {
			return out[i].Epoch < out[j].Epoch
		}

		return out[i].Path < out[j].Path
	})

	return out, nil
}

// Latest returns the highest-epoch checkpoint in dir carrying tag; an empty
// tag selects untagged checkpoints.
func Latest(dir, tag string) (Checkpoint, error) {
	all, err := List(dir)
	if err != nil {
		return Checkpoint{}, err
	}

	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Tag == tag {
			slog.Debug("checkpoint selected", "path", all[i].Path, "epoch", all[i].Epoch)
			return all[i], nil
		}
	}

	if tag != "" {
		return Checkpoint{}, fmt.Errorf("%w in %s with tag %q", ErrNoEpoch, dir, tag)
	}

	return Checkpoint{}, fmt.Errorf("%w in %s", ErrNoEpoch, dir)
}

func parseEpoch(digits, path string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: epoch in %q: %w", path, err)
	}

	return n, nil
}
