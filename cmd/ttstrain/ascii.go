package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/text"
)

func newASCIICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ascii",
		Short: "Encode transcripts to ASCII code rows and back",
	}

	cmd.AddCommand(newASCIIEncodeCmd())
	cmd.AddCommand(newASCIIDecodeCmd())

	return cmd
}

func newASCIIEncodeCmd() *cobra.Command {
	var (
		maxLen    int
		fold      bool
		normalize bool
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "encode [TEXT...]",
		Short: "Encode each argument (or stdin line) as one zero-padded row of codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("max-len") {
				maxLen = cfg.Text.MaxLen
			}

			if !cmd.Flags().Changed("fold") {
				fold = cfg.Text.Fold
			}

			if !cmd.Flags().Changed("normalize") {
				normalize = cfg.Text.Normalize
			}

			inputs := args
			if len(inputs) == 0 {
				if inputs, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			lines, err := text.Prepare(inputs, text.PrepareOptions{Fold: fold, Normalize: normalize})
			if err != nil {
				return err
			}

			codes, err := text.StringToASCII(lines, maxLen)
			if err != nil {
				return err
			}

			if outPath != "" {
				t, err := codes.ToTensor()
				if err != nil {
					return err
				}

				return writeResults(cmd.OutOrStdout(), outPath, map[string]*tensor.Tensor{"codes": t})
			}

			return printCodes(cmd.OutOrStdout(), codes)
		},
	}

	cmd.Flags().IntVar(&maxLen, "max-len", 0, "Row width (0 = longest input; default from text.max_len)")
	cmd.Flags().BoolVar(&fold, "fold", false, "Fold accented characters to ASCII (default from text.fold)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "Collapse whitespace and trim each input (default from text.normalize)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the codes tensor to this .safetensors file instead of stdout")

	return cmd
}

func newASCIIDecodeCmd() *cobra.Command {
	var (
		inPath string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode rows of codes (stdin, or a tensor in --in) into strings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				codes text.Codes
				err   error
			)

			if inPath != "" {
				batch, err := loadBatch(inPath, name)
				if err != nil {
					return err
				}

				codes, err = text.CodesFromTensor(batch[name])
				if err != nil {
					return err
				}
			} else {
				codes, err = parseCodes(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			for _, s := range text.ASCIIToString(codes) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), s); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&inPath, "in", "", "Read codes from this .safetensors file")
	cmd.Flags().StringVar(&name, "name", "codes", "Tensor name inside --in")

	return cmd
}

// readLines returns every line of r, blank ones included.
func readLines(r io.Reader) ([]string, error) {
	var lines []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	return lines, nil
}

func printCodes(w io.Writer, codes text.Codes) error {
	for i := range codes.Rows {
		row := codes.Row(i)
		fields := make([]string, len(row))

		for j, c := range row {
			fields[j] = strconv.Itoa(int(c))
		}

		if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
			return err
		}
	}

	return nil
}

// parseCodes reads whitespace-separated code rows; short rows are padded.
func parseCodes(r io.Reader) (text.Codes, error) {
	lines, err := readLines(r)
	if err != nil {
		return text.Codes{}, err
	}

	rows := make([][]int8, len(lines))
	width := 0

	for i, line := range lines {
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseInt(field, 10, 8)
			if err != nil || v < 0 {
				return text.Codes{}, fmt.Errorf("row %d: invalid code %q", i, field)
			}

			rows[i] = append(rows[i], int8(v))
		}

		width = max(width, len(rows[i]))
	}

	codes := text.Codes{Data: make([]int8, len(rows)*width), Rows: len(rows), Width: width}
	for i, row := range rows {
		copy(codes.Row(i), row)
	}

	return codes, nil
}
