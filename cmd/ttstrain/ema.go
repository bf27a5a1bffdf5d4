package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/checkpoint"
	"github.com/example/go-ttstrain/internal/params"
	"github.com/example/go-ttstrain/internal/safetensors"
	"github.com/example/go-ttstrain/internal/train"
)

func newEMACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ema",
		Short: "Maintain exponential moving averages of model parameters",
	}

	cmd.AddCommand(newEMAUpdateCmd())

	return cmd
}

func newEMAUpdateCmd() *cobra.Command {
	var (
		shadowPath string
		paramsPath string
		decay      float64
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Move the averaged parameters toward a model's current parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			shadow, err := requireFlag("shadow", shadowPath)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("decay") {
				decay = cfg.EMA.Decay
			}

			source := paramsPath
			if source == "" {
				latest, err := checkpoint.Latest(cfg.Paths.CheckpointDir, "")
				if err != nil {
					return err
				}

				source = latest.Path
			}

			ema, err := train.LoadEMA(shadow, float32(decay))
			if err != nil {
				return err
			}

			model, err := params.Load(source, safetensors.StoreOptions{})
			if err != nil {
				return err
			}

			if err := ema.UpdateParams(model); err != nil {
				return err
			}

			out := outPath
			if out == "" {
				out = shadow
			}

			if err := ema.Save(out); err != nil {
				return err
			}

			slog.Info("ema updated", "source", source, "out", out, "decay", decay, "params", len(ema.Names()))

			return printSummaries(cmd.OutOrStdout(), ema.Shadow().Tensors())
		},
	}

	cmd.Flags().StringVar(&shadowPath, "shadow", "", "Averaged parameters (.safetensors)")
	cmd.Flags().StringVar(&paramsPath, "params", "", "Current model parameters (default: latest checkpoint in paths.checkpoint_dir)")
	cmd.Flags().Float64Var(&decay, "decay", 0, "Decay rate (default from ema.decay)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default: overwrite --shadow)")

	return cmd
}
