package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/params"
	"github.com/example/go-ttstrain/internal/recurrent"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

func newRNNCmd() *cobra.Command {
	var (
		weightsPath string
		prefix      string
		mode        string
		hidden      int64
		layers      int
		inPath      string
		inputs      string
		lengths     string
		outPath     string
	)

	cmd := &cobra.Command{
		Use:   "rnn",
		Short: "Run a recurrent layer over a padded batch with per-row lengths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			weights, err := requireFlag("weights", weightsPath)
			if err != nil {
				return err
			}

			in, err := requireFlag("in", inPath)
			if err != nil {
				return err
			}

			out, err := requireFlag("out", outPath)
			if err != nil {
				return err
			}

			m, err := recurrent.ParseMode(mode)
			if err != nil {
				return err
			}

			batch, err := loadBatch(in, inputs, lengths)
			if err != nil {
				return err
			}

			x := batch[inputs]
			if x.Rank() != 3 {
				return fmt.Errorf("%s must be [batch, steps, feat], got shape %v", inputs, x.Shape())
			}

			seqLen, err := batch[lengths].Int64s()
			if err != nil {
				return err
			}

			set, err := params.Load(weights, safetensors.StoreOptions{})
			if err != nil {
				return err
			}

			view := set.Path(prefix)
			rnnCfg := recurrent.Config{
				Mode:       m,
				InputSize:  x.Shape()[2],
				HiddenSize: hidden,
				NumLayers:  layers,
				Bias:       view.Has("bias_ih_l0"),
			}

			layer, err := recurrent.Load(view, rnnCfg)
			if err != nil {
				return err
			}

			outputs, state, err := recurrent.NewWrapper(layer).Forward(x, nil, seqLen)
			if err != nil {
				return err
			}

			results := map[string]*tensor.Tensor{"outputs": outputs, "h_n": state.H}
			if state.C != nil {
				results["c_n"] = state.C
			}

			return writeResults(cmd.OutOrStdout(), out, results)
		},
	}

	cmd.Flags().StringVar(&weightsPath, "weights", "", "Weights file (.safetensors) holding weight_ih_l{k} etc.")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Dotted prefix of the layer inside --weights")
	cmd.Flags().StringVar(&mode, "mode", "gru", "Cell type (rnn|rnn_relu|gru|lstm)")
	cmd.Flags().Int64Var(&hidden, "hidden", 0, "Hidden size")
	cmd.Flags().IntVar(&layers, "layers", 1, "Number of stacked layers")
	cmd.Flags().StringVar(&inPath, "in", "", "Input batch (.safetensors)")
	cmd.Flags().StringVar(&inputs, "inputs", "features", "Name of the [batch, steps, feat] input tensor")
	cmd.Flags().StringVar(&lengths, "lengths", "lengths", "Name of the [batch] lengths tensor")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (.safetensors)")

	return cmd
}
