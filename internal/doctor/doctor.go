// Package doctor provides preflight checks for a training run directory.
package doctor

import (
	"fmt"
	"io"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// LatestFunc returns the newest checkpoint path and its epoch in dir.
type LatestFunc func(dir string) (path string, epoch int, err error)

// ListFunc returns the tensor names stored in a weights file.
type ListFunc func(path string) ([]string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// CheckpointDir is searched for epoch checkpoints. Empty skips the check.
	CheckpointDir string
	Latest        LatestFunc
	// WeightFiles are each required to hold every name in RequiredParams.
	WeightFiles    []string
	RequiredParams []string
	List           ListFunc
	// Workers is the resolved tensor worker pool size, reported only.
	Workers int
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	fmt.Fprintf(w, "%s tensor workers: %d\n", PassMark, cfg.Workers)

	// ---- checkpoints ------------------------------------------------------
	switch {
	case cfg.CheckpointDir == "":
		fmt.Fprintf(w, "%s checkpoints: skipped\n", PassMark)
	case cfg.Latest == nil:
		res.fail("checkpoints: no lookup configured")
		fmt.Fprintf(w, "%s checkpoints: no lookup configured\n", FailMark)
	default:
		path, epoch, err := cfg.Latest(cfg.CheckpointDir)
		if err != nil {
			res.fail(fmt.Sprintf("checkpoints in %s: %v", cfg.CheckpointDir, err))
			fmt.Fprintf(w, "%s checkpoints in %s: %v\n", FailMark, cfg.CheckpointDir, err)
		} else {
			fmt.Fprintf(w, "%s latest checkpoint: %s (epoch %d)\n", PassMark, path, epoch)
		}
	}

	// ---- weight files -----------------------------------------------------
	for _, path := range cfg.WeightFiles {
		if cfg.List == nil {
			res.fail(fmt.Sprintf("weights %q: no reader configured", path))
			fmt.Fprintf(w, "%s weights %s: no reader configured\n", FailMark, path)

			continue
		}

		names, err := cfg.List(path)
		if err != nil {
			res.fail(fmt.Sprintf("weights %q: %v", path, err))
			fmt.Fprintf(w, "%s weights %s: unreadable (%v)\n", FailMark, path, err)

			continue
		}

		if missing := missingParams(names, cfg.RequiredParams); len(missing) > 0 {
			res.fail(fmt.Sprintf("weights %q: missing %s", path, strings.Join(missing, ", ")))
			fmt.Fprintf(w, "%s weights %s: missing %d of %d required parameters\n",
				FailMark, path, len(missing), len(cfg.RequiredParams))

			continue
		}

		fmt.Fprintf(w, "%s weights: %s (%d tensors)\n", PassMark, path, len(names))
	}

	return res
}

// missingParams returns the required names absent from have, in order.
func missingParams(have, required []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, name := range have {
		present[name] = struct{}{}
	}

	var missing []string

	for _, name := range required {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}

	return missing
}
