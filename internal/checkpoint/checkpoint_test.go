package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochFromPath(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{path: "experiments/run1/checkpoints/epoch_7.pt", want: 7},
		{path: "checkpoints/epoch_12_ema.safetensors", want: 12},
		{path: "/abs/checkpoints/epoch_003_best.safetensors", want: 3},
		{path: "a/checkpoints/epoch_1/checkpoints/epoch_40.pt", want: 40},
	}

	for _, tt := range tests {
		got, err := EpochFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestEpochFromPathRejects(t *testing.T) {
	for _, path := range []string{
		"checkpoints/latest.pt",
		"epoch_3.pt",
		"checkpoints/epoch_.pt",
		"checkpoints/epoch_3",
	} {
		_, err := EpochFromPath(path)
		assert.ErrorIs(t, err, ErrNoEpoch, path)
	}
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
}

func TestListAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "epoch_99.d"), 0o755))

	touch(t, dir,
		"epoch_2.safetensors",
		"epoch_10.safetensors",
		"epoch_10_ema.safetensors",
		"epoch_11_ema.safetensors",
		"notes.txt",
	)

	all, err := List(dir)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 2, all[0].Epoch)
	assert.Equal(t, "ema", all[3].Tag)

	latest, err := Latest(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 10, latest.Epoch)
	assert.Equal(t, filepath.Join(dir, "epoch_10.safetensors"), latest.Path)

	ema, err := Latest(dir, "ema")
	require.NoError(t, err)
	assert.Equal(t, 11, ema.Epoch)

	// Parsed directory entries agree with the path parser.
	epoch, err := EpochFromPath(ema.Path)
	require.NoError(t, err)
	assert.Equal(t, ema.Epoch, epoch)

	_, err = Latest(dir, "best")
	assert.ErrorIs(t, err, ErrNoEpoch)
}

func TestLatestEmptyDir(t *testing.T) {
	_, err := Latest(t.TempDir(), "")
	assert.ErrorIs(t, err, ErrNoEpoch)

	_, err = Latest(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoEpoch)
}
