package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/checkpoint"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect epoch checkpoints",
	}

	cmd.AddCommand(newCheckpointEpochCmd())
	cmd.AddCommand(newCheckpointLatestCmd())

	return cmd
}

func newCheckpointEpochCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "epoch PATH...",
		Short: "Print the epoch number encoded in checkpoint paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				epoch, err := checkpoint.EpochFromPath(path)
				if err != nil {
					return err
				}

				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", path, epoch); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func newCheckpointLatestCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "latest [DIR]",
		Short: "Print the highest-epoch checkpoint (default DIR: paths.checkpoint_dir)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dir := cfg.Paths.CheckpointDir
			if len(args) == 1 {
				dir = args[0]
			}

			latest, err := checkpoint.Latest(dir, tag)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", latest.Path, latest.Epoch)

			return err
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Only consider checkpoints with this tag (e.g. ema)")

	return cmd
}
