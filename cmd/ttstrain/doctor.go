package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/checkpoint"
	"github.com/example/go-ttstrain/internal/doctor"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

func newDoctorCmd() *cobra.Command {
	var (
		weights  []string
		required []string
		tag      string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the checkpoint directory and weight files before a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			result := doctor.Run(doctor.Config{
				CheckpointDir: cfg.Paths.CheckpointDir,
				Latest: func(dir string) (string, int, error) {
					c, err := checkpoint.Latest(dir, tag)
					return c.Path, c.Epoch, err
				},
				WeightFiles:    weights,
				RequiredParams: required,
				List:           listTensorNames,
				Workers:        tensor.Workers(),
			}, w)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(w, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&weights, "weights", nil, "Weight files (.safetensors) to open")
	cmd.Flags().StringSliceVar(&required, "require", nil, "Tensor names every --weights file must hold")
	cmd.Flags().StringVar(&tag, "tag", "", "Checkpoint tag to look for (e.g. ema)")

	return cmd
}

func listTensorNames(path string) ([]string, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Names(), nil
}
