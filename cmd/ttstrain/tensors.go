package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

func requireFlag(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("--%s is required", name)
	}

	return value, nil
}

// loadBatch reads the named tensors from a safetensors batch file.
func loadBatch(path string, names ...string) (map[string]*tensor.Tensor, error) {
	if len(names) == 0 {
		return nil, errors.New("no tensor names given")
	}

	tensors, err := safetensors.LoadNamed(path, names...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return tensors, nil
}

// writeResults stores tensors in out and prints one summary line per
// tensor.
func writeResults(w io.Writer, out string, tensors map[string]*tensor.Tensor) error {
	if err := safetensors.SaveTensors(out, tensors); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	slog.Debug("tensors written", "path", out, "count", len(tensors))

	return printSummaries(w, tensors)
}

func printSummaries(w io.Writer, tensors map[string]*tensor.Tensor) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", name, tensors[name].Summary()); err != nil {
			return err
		}
	}

	return nil
}
