// Package safetensors reads and writes checkpoint tensors in the
// safetensors format: an 8-byte little-endian header length, a JSON header
// naming each tensor's dtype, shape and byte range, then the raw data.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

const metadataKey = "__metadata__"

// dtype describes one stored element type and how to widen it to float32.
type dtype struct {
	size   int
	decode func(raw []byte, out []float32)
}

var dtypes = map[string]dtype{
	"F64":  {size: 8, decode: decodeF64},
	"F32":  {size: 4, decode: decodeF32},
	"F16":  {size: 2, decode: decodeF16},
	"BF16": {size: 2, decode: decodeBF16},
}

// KeyMapper renames tensors while a store is opened.
type KeyMapper func(name string) string

// TrimPrefixMapper strips prefix from tensor names, e.g. the "module." prefix
// data-parallel training wrappers add. Names without the prefix are kept.
func TrimPrefixMapper(prefix string) KeyMapper {
	return func(name string) string {
		return strings.TrimPrefix(name, prefix)
	}
}

type StoreOptions struct {
	KeyMapper KeyMapper
}

// Store is an opened safetensors file. Tensors are decoded to float32 on
// each Tensor call; the file bytes stay referenced until Close.
type Store struct {
	entries  map[string]entry
	names    []string
	metadata map[string]string
}

type entry struct {
	source string
	dtype  string
	shape  []int64
	data   []byte
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return NewStore(data, opts)
}

// NewStore parses an in-memory safetensors file. Two tensors mapping to the
// same name is an error.
func NewStore(data []byte, opts StoreOptions) (*Store, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	s := &Store{entries: make(map[string]entry, len(header))}

	if raw, ok := header[metadataKey]; ok {
		if err := json.Unmarshal(raw, &s.metadata); err != nil {
			return nil, fmt.Errorf("safetensors: decode %s: %w", metadataKey, err)
		}

		delete(header, metadataKey)
	}

	sources := make([]string, 0, len(header))
	for name := range header {
		sources = append(sources, name)
	}

	sort.Strings(sources)

	for _, source := range sources {
		var h headerEntry
		if err := json.Unmarshal(header[source], &h); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", source, err)
		}

		e, err := newEntry(source, h, data[headerEnd:])
		if err != nil {
			return nil, err
		}

		name := source
		if opts.KeyMapper != nil {
			name = strings.TrimSpace(opts.KeyMapper(source))
		}

		if name == "" {
			return nil, fmt.Errorf("safetensors: tensor %q maps to an empty name", source)
		}

		if prev, dup := s.entries[name]; dup {
			return nil, fmt.Errorf("safetensors: tensors %q and %q both map to %q", prev.source, source, name)
		}

		s.entries[name] = e
		s.names = append(s.names, name)
	}

	if len(s.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	sort.Strings(s.names)

	return s, nil
}

// newEntry validates one header entry against the data section.
func newEntry(source string, h headerEntry, body []byte) (entry, error) {
	dt := strings.ToUpper(h.DType)

	info, ok := dtypes[dt]
	if !ok {
		return entry{}, fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", source, h.DType)
	}

	count, err := elementCount(h.Shape)
	if err != nil {
		return entry{}, fmt.Errorf("safetensors: tensor %q: %w", source, err)
	}

	start, end := h.Offsets[0], h.Offsets[1]
	if start < 0 || end < start || end > len(body) {
		return entry{}, fmt.Errorf("safetensors: tensor %q data offsets %v outside data section of %d bytes", source, h.Offsets, len(body))
	}

	if want := int(count) * info.size; end-start != want {
		return entry{}, fmt.Errorf("safetensors: tensor %q holds %d bytes, shape %v of %s needs %d", source, end-start, h.Shape, dt, want)
	}

	return entry{
		source: source,
		dtype:  dt,
		shape:  append([]int64(nil), h.Shape...),
		data:   body[start:end],
	}, nil
}

func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// DType returns the stored element type of name, e.g. "BF16".
func (s *Store) DType(name string) (string, bool) {
	e, ok := s.entries[name]
	return e.dtype, ok
}

// Metadata returns the free-form string map stored under __metadata__,
// or nil when the file has none.
func (s *Store) Metadata() map[string]string {
	if s.metadata == nil {
		return nil
	}

	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}

	return out
}

// Tensor decodes name into a float32 runtime tensor. When wantShape is
// given the stored shape must match it exactly.
func (s *Store) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	if len(wantShape) > 0 && !tensor.SameShape(e.shape, wantShape) {
		return nil, fmt.Errorf("safetensors: tensor %q shape %v does not match expected %v", name, e.shape, wantShape)
	}

	values := make([]float32, len(e.data)/dtypes[e.dtype].size)
	dtypes[e.dtype].decode(e.data, values)

	t, err := tensor.New(values, e.shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	return t, nil
}

// Close drops the decoded header and the file bytes it references.
func (s *Store) Close() {
	s.entries = nil
	s.names = nil
	s.metadata = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func elementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}

		if d != 0 && total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func decodeF64(raw []byte, out []float32) {
	for i := range out {
		out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
	}
}

func decodeF32(raw []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
}

func decodeF16(raw []byte, out []float32) {
	for i := range out {
		out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
	}
}

// decodeBF16 widens bfloat16, the upper half of a float32.
func decodeBF16(raw []byte, out []float32) {
	for i := range out {
		out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
	}
}

// float16ToFloat32 widens an IEEE 754 half-precision value.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal half values are normal in float32.
		e := uint32(127 - 14)
		for frac&0x0400 == 0 {
			frac <<= 1
			e--
		}

		return math.Float32frombits(sign | e<<23 | (frac&0x03ff)<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
