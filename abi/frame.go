package abi

import (
	"fmt"

	"github.com/wippyai/wasm-backend/wasm"
)

// Slot is the saved position of one flat local inside a suspended frame.
type Slot struct {
	Offset uint32
	Size   uint32
	Type   wasm.ValType
}

// FrameLayout describes how a worker function's locals are spilled when its
// continuation is captured.
type FrameLayout struct {
	Function string
	Worker   string
	Slots    []Slot
	Size     uint32
	Align    uint32
}

// AlignTo rounds offset up to align, which must be a power of two.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func sizeOf(t wasm.ValType) uint32 {
	switch t {
	case wasm.ValI64, wasm.ValF64:
		return 8
	default:
		return 4
	}
}

// LayoutFrame lays the given flat locals out with natural alignment.
func LayoutFrame(function, worker string, locals []wasm.ValType) FrameLayout {
	fl := FrameLayout{Function: function, Worker: worker, Align: 1}
	offset := uint32(0)
	for _, t := range locals {
		size := sizeOf(t)
		offset = AlignTo(offset, size)
		fl.Slots = append(fl.Slots, Slot{Offset: offset, Size: size, Type: t})
		if size > fl.Align {
			fl.Align = size
		}
		offset += size
	}
	fl.Size = AlignTo(offset, fl.Align)
	return fl
}

// EncodeFrames serializes layouts into the payload of the "frames" custom
// section.
func EncodeFrames(layouts []FrameLayout) []byte {
	w := wasm.NewSectionWriter()
	w.U32(uint32(len(layouts)))
	for _, fl := range layouts {
		w.Name(fl.Function)
		w.Name(fl.Worker)
		w.U32(fl.Size)
		w.U32(fl.Align)
		w.U32(uint32(len(fl.Slots)))
		for _, s := range fl.Slots {
			w.U32(s.Offset)
			w.Byte(byte(s.Type))
		}
	}
	return w.Bytes()
}

// DecodeFrames parses a "frames" custom section payload.
func DecodeFrames(data []byte) ([]FrameLayout, error) {
	r := wasm.NewSectionReader(data)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	layouts := make([]FrameLayout, 0, count)
	for i := uint32(0); i < count; i++ {
		var fl FrameLayout
		if fl.Function, err = r.Name(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if fl.Worker, err = r.Name(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if fl.Size, err = r.U32(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if fl.Align, err = r.U32(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		n, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		for j := uint32(0); j < n; j++ {
			off, err := r.U32()
			if err != nil {
				return nil, fmt.Errorf("frame %d slot %d: %w", i, j, err)
			}
			b, err := r.Byte()
			if err != nil {
				return nil, fmt.Errorf("frame %d slot %d: %w", i, j, err)
			}
			t := wasm.ValType(b)
			fl.Slots = append(fl.Slots, Slot{Offset: off, Size: sizeOf(t), Type: t})
		}
		layouts = append(layouts, fl)
	}
	return layouts, nil
}
