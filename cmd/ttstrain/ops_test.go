package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/testutil"
)

func TestBenchCmd_Table(t *testing.T) {
	isolate(t)

	stdout, err := runRoot(t, nil, "bench", "--op", "upsample", "--batch", "2", "--steps", "4", "--feat", "3", "--runs", "2")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	for _, want := range []string{"Frames/s", "(mean)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("table missing %q:\n%s", want, stdout)
		}
	}
}

func TestBenchCmd_RNNJSON(t *testing.T) {
	isolate(t)

	stdout, err := runRoot(t, nil, "bench", "--op", "rnn", "--mode", "lstm", "--batch", "3", "--steps", "5",
		"--feat", "2", "--hidden", "4", "--runs", "3", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var report struct {
		Runs []struct {
			Frames int64 `json:"frames"`
		} `json:"runs"`
	}

	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}

	if len(report.Runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(report.Runs))
	}

	for _, r := range report.Runs {
		if r.Frames < 3 || r.Frames > 15 {
			t.Errorf("frames = %d, want within [3, 15]", r.Frames)
		}
	}
}

func TestBenchCmd_Errors(t *testing.T) {
	isolate(t)

	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"--op", "conv"}, want: "--op must be"},
		{args: []string{"--format", "csv"}, want: "--format must be"},
		{args: []string{"--runs", "0"}, want: "runs must be at least 1"},
		{args: []string{"--batch", "0"}, want: "must be positive"},
		{args: []string{"--op", "rnn", "--mode", "conv"}, want: "unknown mode"},
		{args: []string{"--max-ms", "0.000001", "--steps", "256", "--runs", "1"}, want: "exceeds threshold"},
	}

	for _, tt := range tests {
		_, err := runRoot(t, nil, append([]string{"bench"}, tt.args...)...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("bench %v: got %v, want error containing %q", tt.args, err, tt.want)
		}
	}
}

func TestDoctorCmd_Passes(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	ckpt := filepath.Join(dir, "checkpoints")

	if err := os.Mkdir(ckpt, 0o755); err != nil {
		t.Fatal(err)
	}

	testutil.WriteBatch(t, ckpt, "epoch_5.safetensors", map[string]*tensor.Tensor{"w": testutil.MustTensor(t, []float32{1}, 1)})
	weights := testutil.WriteBatch(t, dir, "ema.safetensors", map[string]*tensor.Tensor{
		"rnn.weight_ih_l0": testutil.MustTensor(t, []float32{1, 2}, 2),
		"rnn.weight_hh_l0": testutil.MustTensor(t, []float32{3, 4}, 2),
	})

	stdout, err := runRoot(t, nil, "--paths-checkpoint-dir", ckpt, "--runtime-workers", "3",
		"doctor", "--weights", weights, "--require", "rnn.weight_ih_l0,rnn.weight_hh_l0")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, stdout)
	}

	for _, want := range []string{"tensor workers: 3", "(epoch 5)", "(2 tensors)", "doctor checks passed"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestDoctorCmd_Fails(t *testing.T) {
	isolate(t)

	dir := t.TempDir()
	weights := testutil.WriteBatch(t, dir, "ema.safetensors", map[string]*tensor.Tensor{
		"rnn.weight_ih_l0": testutil.MustTensor(t, []float32{1}, 1),
	})

	stdout, err := runRoot(t, nil, "--paths-checkpoint-dir", filepath.Join(dir, "missing"),
		"doctor", "--weights", weights, "--require", "rnn.bias_ih_l0")
	if err == nil || err.Error() != "doctor checks failed" {
		t.Fatalf("expected doctor failure, got %v", err)
	}

	if !strings.Contains(stdout, "missing 1 of 1 required parameters") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestBenchCmd_YAMLAndMetrics(t *testing.T) {
	isolate(t)

	metrics := filepath.Join(t.TempDir(), "bench.prom")

	stdout, err := runRoot(t, nil, "bench", "--batch", "2", "--steps", "3", "--feat", "2", "--runs", "2",
		"--format", "yaml", "--metrics-out", metrics)
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	if !strings.Contains(stdout, "mean_ms:") {
		t.Errorf("stdout = %q, want a yaml report", stdout)
	}

	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}

	if !strings.Contains(string(data), `ttstrain_bench_run_duration_seconds_count{cold="false",op="upsample"} 1`) {
		t.Errorf("metrics file:\n%s", data)
	}
}
