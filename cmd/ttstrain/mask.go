package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

func newMaskCmd() *cobra.Command {
	var (
		inPath  string
		lengths string
		voiced  []string
		maxLen  int64
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "mask",
		Short: "Build a sequence mask from lengths and optionally a both-voiced mask",
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

			if lengths == "" && len(voiced) == 0 {
				return errors.New("at least one of --lengths or --voiced is required")
			}

			names := append([]string(nil), voiced...)
			if lengths != "" {
				names = append(names, lengths)
			}

			batch, err := loadBatch(in, names...)
			if err != nil {
				return err
			}

			results := make(map[string]*tensor.Tensor)

			if lengths != "" {
				seqLen, err := batch[lengths].Int64s()
				if err != nil {
					return err
				}

				mask, err := tensor.SequenceMask(seqLen, maxLen)
				if err != nil {
					return err
				}

				results["mask"] = mask
			}

			if len(voiced) > 0 {
				features := make([]*tensor.Tensor, len(voiced))
				for i, name := range voiced {
					features[i] = batch[name]
				}

				both, err := tensor.BothVoicedMask(features...)
				if err != nil {
					return err
				}

				results["voiced_mask"] = both
			}

			return writeResults(cmd.OutOrStdout(), out, results)
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Input batch (.safetensors)")
	cmd.Flags().StringVar(&lengths, "lengths", "", "Name of the [batch] sequence lengths tensor")
	cmd.Flags().StringSliceVar(&voiced, "voiced", nil, "Names of 0/1 voicing tensors to combine")
	cmd.Flags().Int64Var(&maxLen, "max-len", 0, "Mask width (0 = longest sequence)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (.safetensors)")

	return cmd
}
