package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/safetensors"
)

func newInspectCmd() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the tensors of a .safetensors file with dtypes, shapes and values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := safetensors.StoreOptions{}
			if prefix != "" {
				opts.KeyMapper = safetensors.TrimPrefixMapper(prefix)
			}

			store, err := safetensors.OpenStore(args[0], opts)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			for _, name := range store.Names() {
				t, err := store.Tensor(name)
				if err != nil {
					return err
				}

				dt, _ := store.DType(name)

				if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", name, dt, t.Summary()); err != nil {
					return err
				}
			}

			if err := tw.Flush(); err != nil {
				return err
			}

			meta := store.Metadata()
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}

			sort.Strings(keys)

			for _, k := range keys {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "# %s: %s\n", k, meta[k]); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Strip this prefix from tensor names (e.g. module.)")

	return cmd
}
