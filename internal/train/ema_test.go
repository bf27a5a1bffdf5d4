package train

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-ttstrain/internal/params"
	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

func newSet(t *testing.T, entries map[string][]float32, frozen ...string) *params.Set {
	t.Helper()

	isFrozen := make(map[string]bool)
	for _, name := range frozen {
		isFrozen[name] = true
	}

	set := params.NewSet()

	for _, name := range []string{"rnn.weight", "rnn.bias", "proj.weight"} {
		data, ok := entries[name]
		if !ok {
			continue
		}

		x, err := tensor.New(data, []int64{int64(len(data))})
		require.NoError(t, err)
		require.NoError(t, set.Add(name, x, !isFrozen[name]))
	}

	return set
}

func TestEMAUpdateFormula(t *testing.T) {
	avg := newSet(t, map[string][]float32{
		"rnn.weight": {1, 2},
		"rnn.bias":   {0},
	})
	live := newSet(t, map[string][]float32{
		"rnn.weight":  {3, 0},
		"rnn.bias":    {1},
		"proj.weight": {9},
	})

	ema, err := NewEMA(avg, 0.9)
	require.NoError(t, err)
	require.NoError(t, ema.UpdateParams(live))

	// shadow = 0.9*shadow + 0.1*x, written through to the averaged model.
	w, _ := avg.Get("rnn.weight")
	assert.InDeltaSlice(t, []float32{1.2, 1.8}, w.Data(), 1e-6)

	b, _ := avg.Get("rnn.bias")
	assert.InDeltaSlice(t, []float32{0.1}, b.Data(), 1e-6)

	assert.Equal(t, 1, ema.Updates())
	assert.False(t, avg.Has("proj.weight"))
}

func TestEMADecayBounds(t *testing.T) {
	for _, decay := range []float32{0, 1} {
		avg := newSet(t, map[string][]float32{"rnn.weight": {4}})
		live := newSet(t, map[string][]float32{"rnn.weight": {8}})

		ema, err := NewEMA(avg, decay)
		require.NoError(t, err)
		require.NoError(t, ema.UpdateParams(live))

		w, _ := avg.Get("rnn.weight")
		if decay == 0 {
			assert.Equal(t, []float32{8}, w.Data())
		} else {
			assert.Equal(t, []float32{4}, w.Data())
		}
	}

	_, err := NewEMA(params.NewSet(), 1.5)
	assert.ErrorContains(t, err, "out of range")

	_, err = NewEMA(params.NewSet(), -0.1)
	assert.ErrorContains(t, err, "out of range")
}

func TestEMASkipsFrozenParameters(t *testing.T) {
	avg := newSet(t, map[string][]float32{
		"rnn.weight": {1},
		"rnn.bias":   {1},
	}, "rnn.bias")

	ema, err := NewEMA(avg, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"rnn.weight"}, ema.Names())

	live := newSet(t, map[string][]float32{"rnn.weight": {3}, "rnn.bias": {3}})
	require.NoError(t, ema.UpdateParams(live))

	b, _ := avg.Get("rnn.bias")
	assert.Equal(t, []float32{1}, b.Data())
}

func TestEMARejectsSameModel(t *testing.T) {
	avg := newSet(t, map[string][]float32{"rnn.weight": {1}})

	ema, err := NewEMA(avg, 0.9)
	require.NoError(t, err)
	assert.ErrorIs(t, ema.UpdateParams(avg), ErrSameModel)
	assert.Equal(t, 0, ema.Updates())
}

func TestEMAShapeMismatchLeavesShadowUntouched(t *testing.T) {
	avg := newSet(t, map[string][]float32{
		"rnn.weight": {1},
		"rnn.bias":   {1, 1},
	})
	live := newSet(t, map[string][]float32{
		"rnn.weight": {5},
		"rnn.bias":   {5},
	})

	ema, err := NewEMA(avg, 0.5)
	require.NoError(t, err)

	err = ema.UpdateParams(live)
	assert.ErrorContains(t, err, `"rnn.bias"`)

	w, _ := avg.Get("rnn.weight")
	assert.Equal(t, []float32{1}, w.Data())
}

func TestEMASaveLoad(t *testing.T) {
	avg := newSet(t, map[string][]float32{"rnn.weight": {1, 2}, "rnn.bias": {3}})

	ema, err := NewEMA(avg, 0.99)
	require.NoError(t, err)

	shadow := ema.Shadow()
	w, _ := shadow.Get("rnn.weight")
	w.RawData()[0] = 100

	orig, _ := avg.Get("rnn.weight")
	assert.Equal(t, float32(1), orig.Data()[0], "Shadow must copy")

	path := filepath.Join(t.TempDir(), "ema.safetensors")
	require.NoError(t, ema.Save(path))

	loaded, err := LoadEMA(path, 0.99)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rnn.weight", "rnn.bias"}, loaded.Names())
	assert.Equal(t, float32(0.99), loaded.Decay())

	got := loaded.Shadow()
	lw, _ := got.Get("rnn.weight")
	assert.Equal(t, []float32{1, 2}, lw.Data())

	_, err = LoadEMA(filepath.Join(t.TempDir(), "missing.safetensors"), 0.9)
	assert.Error(t, err)
}

func TestLoadEMAFromHalfPrecisionCheckpoint(t *testing.T) {
	// bf16 1.5, -0.25 then f16 2, 0.5, with PyTorch-style metadata.
	header := `{"__metadata__":{"format":"pt"},` +
		`"proj.weight":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]},` +
		`"rnn.weight":{"dtype":"F16","shape":[2],"data_offsets":[4,8]}}`

	body := make([]byte, 8)
	binary.LittleEndian.PutUint16(body[0:], uint16(math.Float32bits(1.5)>>16))
	binary.LittleEndian.PutUint16(body[2:], uint16(math.Float32bits(-0.25)>>16))
	binary.LittleEndian.PutUint16(body[4:], 0x4000)
	binary.LittleEndian.PutUint16(body[6:], 0x3800)

	file := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	file = append(file, header...)
	file = append(file, body...)

	path := filepath.Join(t.TempDir(), "ema.safetensors")
	require.NoError(t, os.WriteFile(path, file, 0o644))

	ema, err := LoadEMA(path, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"proj.weight", "rnn.weight"}, ema.Names())

	shadow := ema.Shadow()

	proj, ok := shadow.Get("proj.weight")
	require.True(t, ok)
	assert.Equal(t, []float32{1.5, -0.25}, proj.Data())

	rnn, ok := shadow.Get("rnn.weight")
	require.True(t, ok)
	assert.Equal(t, []float32{2, 0.5}, rnn.Data())

	// The widened tensors take part in averaging like any float32 parameter.
	require.NoError(t, ema.UpdateParams(newSet(t, map[string][]float32{
		"proj.weight": {0.5, 0.25},
		"rnn.weight":  {0, 0.5},
	})))

	rnn, _ = ema.Shadow().Get("rnn.weight")
	assert.InDeltaSlice(t, []float32{1, 0.5}, rnn.Data(), 1e-6)
}
