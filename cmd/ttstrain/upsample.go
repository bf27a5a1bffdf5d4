package main

import (
	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

func newUpsampleCmd() *cobra.Command {
	var (
		inPath   string
		features string
		repeats  string
		outPath  string
		outName  string
	)

	cmd := &cobra.Command{
		Use:   "upsample",
		Short: "Repeat each step of a [batch, steps, feat] tensor by per-step counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := requireFlag("in", inPath)
			if err != nil {
				return err
			}

			out, err := requireFlag("out", outPath)
			if err != nil {
				return err
			}

			batch, err := loadBatch(in, features, repeats)
			if err != nil {
				return err
			}

			up, err := tensor.UpsampleToRepetitions(batch[features], batch[repeats])
			if err != nil {
				return err
			}

			name := outName
			if name == "" {
				name = features + "_upsampled"
			}

			return writeResults(cmd.OutOrStdout(), out, map[string]*tensor.Tensor{name: up})
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Input batch (.safetensors)")
	cmd.Flags().StringVar(&features, "features", "features", "Name of the [batch, steps, feat] tensor")
	cmd.Flags().StringVar(&repeats, "repeats", "durations", "Name of the [batch, steps] repeat counts")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (.safetensors)")
	cmd.Flags().StringVar(&outName, "name", "", "Output tensor name (default <features>_upsampled)")

	return cmd
}
