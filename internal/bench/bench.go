// Package bench provides timing primitives for the ttstrain bench command.
package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and output size of a single run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run
	Duration time.Duration
	Frames   int64 // output rows produced, e.g. upsampled frames
	FPS      float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	mn, mx := durations[0], durations[0]

	var sum time.Duration

	for _, d := range durations {
		mn = min(mn, d)
		mx = max(mx, d)
		sum += d
	}

	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the per-run durations.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Op is one benchmarked operation. It returns the number of frames it
// produced.
type Op func() (frames int64, err error)

// Clock returns the current time; tests substitute a fake.
type Clock func() time.Time

// Run executes op runs times and records each run. The first run is marked
// cold.
func Run(runs int, op Op, now Clock) ([]RunResult, error) {
	if runs < 1 {
		return nil, errors.New("runs must be at least 1")
	}

	if now == nil {
		now = time.Now
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		start := now()

		frames, err := op()
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}

		d := now().Sub(start)
		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: d,
			Frames:   frames,
			FPS:      CalcFPS(frames, d),
		})
	}

	return results, nil
}

// CalcFPS returns frames per second. Returns 0 if d is zero to avoid
// division by zero.
func CalcFPS(frames int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}

	return float64(frames) / d.Seconds()
}

// ---------------------------------------------------------------------------
// Latency threshold gate
// ---------------------------------------------------------------------------

// CheckThreshold returns an error if the mean run exceeds threshold.
// A threshold of 0 disables the gate.
func CheckThreshold(mean, threshold time.Duration) error {
	if threshold <= 0 {
		return nil
	}

	if mean > threshold {
		return fmt.Errorf("mean %s exceeds threshold %s", mean, threshold)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %12s\n", "Run", "Cold", "MS", "Frames", "Frames/s")
	fmt.Fprintln(sb, strings.Repeat("-", 50))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %10d  %12.0f\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			r.Frames,
			r.FPS,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 50))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (min)\n", "", "", ms(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (mean)\n", "", "", ms(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (max)\n", "", "", ms(stats.Max))

	fmt.Fprint(w, sb.String())
}

// report is the structure emitted by FormatJSON and FormatYAML.
type report struct {
	Runs  []reportRun `json:"runs"  yaml:"runs"`
	Stats reportStats `json:"stats" yaml:"stats"`
}

type reportRun struct {
	Index      int     `json:"index"             yaml:"index"`
	Cold       bool    `json:"cold"              yaml:"cold"`
	DurationMS float64 `json:"duration_ms"       yaml:"duration_ms"`
	Frames     int64   `json:"frames"            yaml:"frames"`
	FPS        float64 `json:"frames_per_second" yaml:"frames_per_second"`
}

type reportStats struct {
	MinMS  float64 `json:"min_ms"  yaml:"min_ms"`
	MeanMS float64 `json:"mean_ms" yaml:"mean_ms"`
	MaxMS  float64 `json:"max_ms"  yaml:"max_ms"`
}

func newReport(runs []RunResult, stats Stats) report {
	r := report{
		Runs: make([]reportRun, len(runs)),
		Stats: reportStats{
			MinMS:  ms(stats.Min),
			MeanMS: ms(stats.Mean),
			MaxMS:  ms(stats.Max),
		},
	}

	for i, run := range runs {
		r.Runs[i] = reportRun{
			Index:      run.Index,
			Cold:       run.Cold,
			DurationMS: ms(run.Duration),
			Frames:     run.Frames,
			FPS:        run.FPS,
		}
	}

	return r
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(newReport(runs, stats))
}

// FormatYAML writes the same report as FormatJSON in YAML.
func FormatYAML(runs []RunResult, stats Stats, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(newReport(runs, stats)); err != nil {
		return err
	}

	return enc.Close()
}
