// Package text turns transcripts into fixed-width ASCII code batches and
// back.
package text

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

var (
	// ErrTooLong is returned when a string does not fit the requested width.
	ErrTooLong = errors.New("text: string longer than max length")
	// ErrNonASCII is returned for bytes outside 1..127. Zero is reserved
	// for padding.
	ErrNonASCII = errors.New("text: non-ASCII character")
)

// Codes is a zero-padded [Rows, Width] matrix of ASCII codes, row-major.
type Codes struct {
	Data  []int8
	Rows  int
	Width int
}

// Row returns the codes of row i, padding included. The slice aliases Data.
func (c Codes) Row(i int) []int8 {
	return c.Data[i*c.Width : (i+1)*c.Width]
}

// ToTensor converts the codes to a float32 [Rows, Width] tensor.
func (c Codes) ToTensor() (*tensor.Tensor, error) {
	data := make([]float32, len(c.Data))
	for i, v := range c.Data {
		data[i] = float32(v)
	}

	return tensor.New(data, []int64{int64(c.Rows), int64(c.Width)})
}

// CodesFromTensor reads a rank-2 tensor of integral codes in [0, 127].
func CodesFromTensor(t *tensor.Tensor) (Codes, error) {
	if t == nil {
		return Codes{}, errors.New("text: nil code tensor")
	}

	shape := t.Shape()
	if len(shape) != 2 {
		return Codes{}, fmt.Errorf("text: code tensor must be rank 2, got shape %v", shape)
	}

	values, err := t.Int64s()
	if err != nil {
		return Codes{}, fmt.Errorf("text: %w", err)
	}

	data := make([]int8, len(values))

	for i, v := range values {
		if v < 0 || v > 127 {
			return Codes{}, fmt.Errorf("%w: code %d at index %d", ErrNonASCII, v, i)
		}

		data[i] = int8(v)
	}

	return Codes{Data: data, Rows: int(shape[0]), Width: int(shape[1])}, nil
}

// StringToASCII encodes each string as one row of ASCII codes. The width is
// maxLen when positive, otherwise the longest string; shorter rows are
// padded with zeros.
func StringToASCII(strs []string, maxLen int) (Codes, error) {
	width := maxLen
	if width <= 0 {
		width = 0
		for _, s := range strs {
			width = max(width, len(s))
		}
	}

	codes := Codes{Data: make([]int8, len(strs)*width), Rows: len(strs), Width: width}

	for i, s := range strs {
		if len(s) > width {
			return Codes{}, fmt.Errorf("%w: row %d has %d characters, max %d", ErrTooLong, i, len(s), width)
		}

		row := codes.Row(i)

		for j := range len(s) {
			b := s[j]
			if b == 0 || b > 127 {
				return Codes{}, fmt.Errorf("%w: byte 0x%02x at row %d position %d", ErrNonASCII, b, i, j)
			}

			row[j] = int8(b)
		}
	}

	return codes, nil
}

// ASCIIToString decodes every row, dropping zero padding.
func ASCIIToString(codes Codes) []string {
	out := make([]string, codes.Rows)

	var b strings.Builder

	for i := range codes.Rows {
		b.Reset()

		for _, c := range codes.Row(i) {
			if c > 0 {
				b.WriteByte(byte(c))
			}
		}

		out[i] = b.String()
	}

	return out
}
