package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteU32(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.v)
		if !bytes.Equal(w.Bytes(), tt.want) {
			t.Errorf("WriteU32(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
		}
	}
}

func TestWriteS64(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteS64(tt.v)
		if !bytes.Equal(w.Bytes(), tt.want) {
			t.Errorf("WriteS64(%d) = %x, want %x", tt.v, w.Bytes(), tt.want)
		}
	}
}

func TestWriteFloats(t *testing.T) {
	w := NewWriter()
	w.WriteF32(1.0)
	w.WriteF64(1.0)
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got %x, want %x", w.Bytes(), want)
	}
}

func TestReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32(300)
	w.WriteName("hello")
	w.Byte(0x42)

	r := NewReader(w.Bytes())
	v, err := r.ReadU32()
	if err != nil || v != 300 {
		t.Fatalf("ReadU32 = %d, %v", v, err)
	}
	s, err := r.ReadName()
	if err != nil || s != "hello" {
		t.Fatalf("ReadName = %q, %v", s, err)
	}
	b, err := r.ReadByte()
	if err != nil || b != 0x42 {
		t.Fatalf("ReadByte = %x, %v", b, err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if _, err := r.ReadByte(); !errors.Is(err, ErrShort) {
		t.Errorf("expected ErrShort, got %v", err)
	}
}

func TestReaderOverflow(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	if _, err := r.ReadU32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}
