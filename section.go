// section.go
//
// Section chains of the FONM wrapper. Every section starts with a 32-byte
// header: a 4-byte signature, the section size (payload plus children),
// the payload offset from the section start, a fixed flags word, a depth
// field, the payload size, and 8 reserved bytes. Children follow the
// payload within the section size; a chain ends with an EOFC section.

package divapack

import (
	"encoding/binary"
	"fmt"
)

const sectionHeaderSize = 32

// sectionFlags is the flags word every section writer emits.
var sectionFlags = [4]byte{0x00, 0x00, 0x00, 0x10}

// Section is a parsed section header.
type Section struct {
	Signature   string
	Offset      int
	SectionSize uint32
	DataPointer uint32
	Flags       [4]byte
	Depth       uint32
	DataSize    uint32

	// Level is the nesting level found while walking, 0 for top level.
	Level int
}

// DataStart is the absolute offset of the section's payload.
func (s Section) DataStart() int { return s.Offset + int(s.DataPointer) }

// End is the absolute offset just past the section and its children.
func (s Section) End() int { return s.DataStart() + int(s.SectionSize) }

func readSectionHeader(b []byte, off int) (Section, error) {
	if off < 0 || off+sectionHeaderSize > len(b) {
		return Section{}, fmt.Errorf("%w: section header at %d past end %d", ErrCorruptFontmap, off, len(b))
	}
	le := binary.LittleEndian
	h := b[off : off+sectionHeaderSize]
	s := Section{
		Signature:   string(h[0:4]),
		Offset:      off,
		SectionSize: le.Uint32(h[4:]),
		DataPointer: le.Uint32(h[8:]),
		Flags:       [4]byte(h[12:16]),
		Depth:       le.Uint32(h[16:]),
		DataSize:    le.Uint32(h[20:]),
	}
	if s.DataPointer < sectionHeaderSize {
		return s, fmt.Errorf("%w: %s data pointer %d inside its header", ErrCorruptFontmap, s.Signature, s.DataPointer)
	}
	if s.DataSize > s.SectionSize || int64(s.Offset)+int64(s.DataPointer)+int64(s.SectionSize) > int64(len(b)) {
		return s, fmt.Errorf("%w: %s at %d overruns input", ErrCorruptFontmap, s.Signature, off)
	}
	return s, nil
}

// appendSectionHeader emits s with the data pointer fixed at 32.
func appendSectionHeader(dst []byte, s Section) []byte {
	var h [sectionHeaderSize]byte
	le := binary.LittleEndian
	copy(h[0:4], s.Signature)
	le.PutUint32(h[4:], s.SectionSize)
	le.PutUint32(h[8:], sectionHeaderSize)
	copy(h[12:16], sectionFlags[:])
	le.PutUint32(h[16:], s.Depth)
	le.PutUint32(h[20:], s.DataSize)
	return append(dst, h[:]...)
}

// ReadSections walks the section chain of a wrapped fontmap, descending into
// children, and returns every header in file order.
func ReadSections(b []byte) ([]Section, error) {
	return walkSections(b, 0, len(b), 0, nil)
}

func walkSections(b []byte, start, end, level int, out []Section) ([]Section, error) {
	for off := start; off+sectionHeaderSize <= end; {
		s, err := readSectionHeader(b, off)
		if err != nil {
			return out, err
		}
		s.Level = level
		out = append(out, s)
		if s.Signature == "EOFC" {
			return out, nil
		}
		if s.SectionSize > s.DataSize {
			childStart := s.DataStart() + int(s.DataSize)
			if out, err = walkSections(b, childStart, s.End(), level+1, out); err != nil {
				return out, err
			}
		}
		off = s.End()
	}
	return out, nil
}
