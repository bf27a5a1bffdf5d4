package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/bench"
	"github.com/example/go-ttstrain/internal/recurrent"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

type benchOptions struct {
	Op     string
	Mode   string
	Batch  int64
	Steps  int64
	Feat   int64
	Hidden int64
	Repeat int64
	Seed   uint64
}

func newBenchCmd() *cobra.Command {
	var (
		opts       benchOptions
		runs       int
		format     string
		maxMS      float64
		metricsOut string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the upsample and recurrent kernels on random batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := requireConfig(); err != nil {
				return err
			}

			switch format {
			case "table", "json", "yaml":
			default:
				return errors.New("--format must be 'table', 'json' or 'yaml'")
			}

			op, err := buildBenchOp(opts)
			if err != nil {
				return err
			}

			results, err := bench.Run(runs, op, nil)
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))
			slog.Info("bench done", "op", opts.Op, "runs", runs, "workers", tensor.Workers(),
				"mean", stats.Mean)

			if metricsOut != "" {
				m := bench.NewMetrics()
				m.Observe(opts.Op, results)

				if err := m.WriteTextfile(metricsOut); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()

			switch format {
			case "json":
				err = bench.FormatJSON(results, stats, w)
			case "yaml":
				err = bench.FormatYAML(results, stats, w)
			default:
				bench.FormatTable(results, stats, w)
			}

			if err != nil {
				return err
			}

			threshold := time.Duration(maxMS * float64(time.Millisecond))

			return bench.CheckThreshold(stats.Mean, threshold)
		},
	}

	cmd.Flags().StringVar(&opts.Op, "op", "upsample", "Kernel to time: upsample|rnn")
	cmd.Flags().StringVar(&opts.Mode, "mode", "gru", "Cell type for --op rnn (rnn|rnn_relu|gru|lstm)")
	cmd.Flags().Int64Var(&opts.Batch, "batch", 8, "Batch size")
	cmd.Flags().Int64Var(&opts.Steps, "steps", 64, "Steps per sequence")
	cmd.Flags().Int64Var(&opts.Feat, "feat", 80, "Feature size")
	cmd.Flags().Int64Var(&opts.Hidden, "hidden", 128, "Hidden size for --op rnn")
	cmd.Flags().Int64Var(&opts.Repeat, "repeat", 4, "Maximum repeat count per step for --op upsample")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "Random seed for inputs and weights")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of timed runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json|yaml")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Also write Prometheus text-format metrics to this file")
	cmd.Flags().Float64Var(&maxMS, "max-ms", 0, "Exit non-zero if the mean run exceeds this many milliseconds (0 = disabled)")

	return cmd
}

// buildBenchOp prepares inputs once and returns the timed closure.
func buildBenchOp(opts benchOptions) (bench.Op, error) {
	if opts.Batch < 1 || opts.Steps < 1 || opts.Feat < 1 {
		return nil, errors.New("--batch, --steps and --feat must be positive")
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	x, err := randomTensor(rng, opts.Batch, opts.Steps, opts.Feat)
	if err != nil {
		return nil, err
	}

	switch opts.Op {
	case "upsample":
		return upsampleOp(rng, x, opts)
	case "rnn":
		return rnnOp(rng, x, opts)
	default:
		return nil, fmt.Errorf("--op must be 'upsample' or 'rnn', got %q", opts.Op)
	}
}

func upsampleOp(rng *rand.Rand, x *tensor.Tensor, opts benchOptions) (bench.Op, error) {
	if opts.Repeat < 0 {
		return nil, errors.New("--repeat must not be negative")
	}

	counts := make([]float32, opts.Batch*opts.Steps)
	for i := range counts {
		counts[i] = float32(rng.Int64N(opts.Repeat + 1))
	}

	repeats, err := tensor.New(counts, []int64{opts.Batch, opts.Steps})
	if err != nil {
		return nil, err
	}

	return func() (int64, error) {
		up, err := tensor.UpsampleToRepetitions(x, repeats)
		if err != nil {
			return 0, err
		}

		return up.Shape()[0] * up.Shape()[1], nil
	}, nil
}

func rnnOp(rng *rand.Rand, x *tensor.Tensor, opts benchOptions) (bench.Op, error) {
	mode, err := recurrent.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}

	layer, err := recurrent.New(recurrent.Config{
		Mode:       mode,
		InputSize:  opts.Feat,
		HiddenSize: opts.Hidden,
		NumLayers:  1,
		Bias:       true,
	}, rng)
	if err != nil {
		return nil, err
	}

	// Lengths span 1..steps so the packed batch sizes shrink over time.
	seqLen := make([]int64, opts.Batch)
	for i := range seqLen {
		seqLen[i] = 1 + rng.Int64N(opts.Steps)
	}

	wrapper := recurrent.NewWrapper(layer)

	return func() (int64, error) {
		if _, _, err := wrapper.Forward(x, nil, seqLen); err != nil {
			return 0, err
		}

		var frames int64
		for _, n := range seqLen {
			frames += n
		}

		return frames, nil
	}, nil
}

func randomTensor(rng *rand.Rand, shape ...int64) (*tensor.Tensor, error) {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	data := make([]float32, n)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}

	return tensor.New(data, shape)
}
