package wasm

import (
	"fmt"
	"sort"

	"github.com/wippyai/wasm-backend/wasm/internal/binary"
)

// SectionWriter builds the payload of a custom section.
type SectionWriter struct {
	w *binary.Writer
}

// NewSectionWriter returns an empty payload writer.
func NewSectionWriter() *SectionWriter {
	return &SectionWriter{w: binary.NewWriter()}
}

func (s *SectionWriter) U32(v uint32) { s.w.WriteU32(v) }
func (s *SectionWriter) Byte(b byte) { s.w.Byte(b) }
func (s *SectionWriter) Name(v string) { s.w.WriteName(v) }
func (s *SectionWriter) Raw(data []byte) { s.w.WriteBytes(data) }
func (s *SectionWriter) Bytes() []byte { return s.w.Bytes() }
func (s *SectionWriter) Len() int { return s.w.Len() }

// SectionReader reads a custom section payload written by SectionWriter.
type SectionReader struct {
	r *binary.Reader
}

// NewSectionReader returns a reader over data.
func NewSectionReader(data []byte) *SectionReader {
	return &SectionReader{r: binary.NewReader(data)}
}

func (s *SectionReader) U32() (uint32, error) { return s.r.ReadU32() }
func (s *SectionReader) Byte() (byte, error) { return s.r.ReadByte() }
func (s *SectionReader) Name() (string, error) { return s.r.ReadName() }
func (s *SectionReader) Raw(n int) ([]byte, error) { return s.r.ReadBytes(n) }
func (s *SectionReader) Len() int { return s.r.Len() }

// EncodeNameSection builds a "name" custom section payload holding the
// module name and the function name map.
func EncodeNameSection(module string, funcs map[uint32]string) []byte {
	out := NewSectionWriter()

	if module != "" {
		sub := NewSectionWriter()
		sub.Name(module)
		out.Byte(NameSubModule)
		out.U32(uint32(sub.Len()))
		out.Raw(sub.Bytes())
	}

	if len(funcs) > 0 {
		idxs := make([]uint32, 0, len(funcs))
		for idx := range funcs {
			idxs = append(idxs, idx)
		}
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

		sub := NewSectionWriter()
		sub.U32(uint32(len(idxs)))
		for _, idx := range idxs {
			sub.U32(idx)
			sub.Name(funcs[idx])
		}
		out.Byte(NameSubFunction)
		out.U32(uint32(sub.Len()))
		out.Raw(sub.Bytes())
	}

	return out.Bytes()
}

// DecodeFunctionNames returns the function name map of a "name" section
// payload. Unknown subsections are skipped.
func DecodeFunctionNames(data []byte) (map[uint32]string, error) {
	r := NewSectionReader(data)
	names := make(map[uint32]string)
	for r.Len() > 0 {
		id, err := r.Byte()
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		payload, err := r.Raw(int(size))
		if err != nil {
			return nil, err
		}
		if id != NameSubFunction {
			continue
		}
		sub := NewSectionReader(payload)
		count, err := sub.U32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := sub.U32()
			if err != nil {
				return nil, fmt.Errorf("function name %d: %w", i, err)
			}
			name, err := sub.Name()
			if err != nil {
				return nil, fmt.Errorf("function name %d: %w", i, err)
			}
			names[idx] = name
		}
	}
	return names, nil
}

// FunctionName looks up idx in the module's "name" section.
func (m *Module) FunctionName(idx uint32) (string, bool) {
	data, ok := m.CustomSection(NameSectionName)
	if !ok {
		return "", false
	}
	names, err := DecodeFunctionNames(data)
	if err != nil {
		return "", false
	}
	name, ok := names[idx]
	return name, ok
}
