package loader

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Default base addresses for a flat (non-ELF) program image: the
// offline assembler this simulator's toolchain pairs with places
// machine code and data declarations at these fixed bases, with no
// alignment padding between instructions or data items.
const (
	DefaultTextBase = 0x04000000
	DefaultDataBase = 0x10000000
)

// Section is a contiguous byte range destined for one base address.
type Section struct {
	BaseAddr uint32
	Bytes    []byte
}

// Image is a flat program image: a text section of packed
// little-endian 32-bit instruction words and a data section of raw
// declared bytes, each loaded at its own fixed base.
type Image struct {
	Text       Section
	Data       Section
	EntryPoint uint32
}

// LoadFlat reads a raw little-endian word stream from textPath into the
// text section and, if dataPath is non-empty, raw bytes from dataPath
// into the data section. Both sections use the default bases; the
// entry point is the text base.
func LoadFlat(textPath, dataPath string) (*Image, error) {
	text, err := os.ReadFile(textPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text image: %w", err)
	}
	if len(text)%4 != 0 {
		return nil, fmt.Errorf("text image length %d is not word-aligned", len(text))
	}

	img := &Image{
		Text:       Section{BaseAddr: DefaultTextBase, Bytes: text},
		EntryPoint: DefaultTextBase,
	}

	if dataPath != "" {
		data, err := os.ReadFile(dataPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read data image: %w", err)
		}
		img.Data = Section{BaseAddr: DefaultDataBase, Bytes: data}
	}

	return img, nil
}

// FromELF adapts a parsed ELF Program into the flat Image shape used by
// the system wiring layer, concatenating loadable segments in file
// order onto a single text/data split based on execute permission.
func FromELF(prog *Program) *Image {
	img := &Image{EntryPoint: prog.EntryPoint}

	var text, data []byte
	textBase, dataBase := DefaultTextBase, DefaultDataBase
	haveText, haveData := false, false

	for _, seg := range prog.Segments {
		buf := make([]byte, seg.MemSize)
		copy(buf, seg.Data)

		if seg.Flags&SegmentFlagExecute != 0 {
			if !haveText {
				textBase = int(seg.VirtAddr)
				haveText = true
			}
			text = append(text, buf...)
		} else {
			if !haveData {
				dataBase = int(seg.VirtAddr)
				haveData = true
			}
			data = append(data, buf...)
		}
	}

	img.Text = Section{BaseAddr: uint32(textBase), Bytes: text}
	img.Data = Section{BaseAddr: uint32(dataBase), Bytes: data}
	return img
}

// ReadWord reads one little-endian 32-bit word from a section at a
// section-relative byte offset.
func (s Section) ReadWord(offset uint32) uint32 {
	if int(offset)+4 > len(s.Bytes) {
		return 0
	}
	return binary.LittleEndian.Uint32(s.Bytes[offset : offset+4])
}
