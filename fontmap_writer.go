package divapack

import (
	"encoding/binary"
	"fmt"
	"math"
)

// fontmapLayout holds the signature-relative offsets the encoder assigns.
// It depends only on the number of fonts, their glyph counts and the
// address width, never on field values.
type fontmapLayout struct {
	addr          int
	pointerArray  int
	fontPointers  []int
	glyphPointers []int
	size          int
}

// pointerArraySize is the font pointer array length rounded up to 16.
func pointerArraySize(n, addr int) int { return alignUp(n*addr, 16) }

// glyphArraySize is a font's glyph array length rounded up to 16.
func glyphArraySize(n int) int { return alignUp(n*glyphRecordSize, 16) }

func layoutFontmap(fonts []Font, addr int) fontmapLayout {
	l := fontmapLayout{
		addr:          addr,
		pointerArray:  fmh3HeaderSize,
		fontPointers:  make([]int, len(fonts)),
		glyphPointers: make([]int, len(fonts)),
	}
	pos := fmh3HeaderSize + pointerArraySize(len(fonts), addr)
	for i := range fonts {
		l.fontPointers[i] = pos
		pos += fontRecordSlot
	}
	for i, f := range fonts {
		l.glyphPointers[i] = pos
		pos += glyphArraySize(len(f.Chars))
	}
	l.size = pos
	return l
}

// relocations lists the signature-relative offsets of every pointer field
// a loader has to rebase: the pointer-array offset, each pointer-array
// slot, and each font's glyph-array pointer.
func (l fontmapLayout) relocations() []int {
	out := make([]int, 0, 1+2*len(l.fontPointers))
	out = append(out, 8+l.addr)
	for i := range l.fontPointers {
		out = append(out, l.pointerArray+i*l.addr)
	}
	for _, p := range l.fontPointers {
		out = append(out, p+fontCharsPointerOff)
	}
	return out
}

// EncodeFontmap serializes f in its Type's container form.
func EncodeFontmap(f *Fontmap) ([]byte, error) {
	switch f.Type {
	case FontmapBare:
		return encodeFMH3(f.Fonts, FontmapBare.addrSize())
	case FontmapWrapped:
		return encodeFONM(f.Fonts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFontmapType, f.Type)
	}
}

func encodeFMH3(fonts []Font, addr int) ([]byte, error) {
	b, _, err := buildFMH3(fonts, addr)
	return b, err
}

func buildFMH3(fonts []Font, addr int) ([]byte, fontmapLayout, error) {
	l := layoutFontmap(fonts, addr)
	if int64(l.size) > math.MaxUint32 {
		return nil, l, fmt.Errorf("fontmap of %d bytes exceeds 32-bit pointers", l.size)
	}
	le := binary.LittleEndian
	out := make([]byte, l.size)

	putWord := func(off int, v uint64) {
		if addr == 8 {
			le.PutUint64(out[off:], v)
			return
		}
		le.PutUint32(out[off:], uint32(v))
	}

	copy(out[0:4], sigFMH3[:])
	putWord(8, uint64(len(fonts)))
	putWord(8+addr, uint64(l.pointerArray))

	for i, f := range fonts {
		putWord(l.pointerArray+i*addr, uint64(l.fontPointers[i]))

		rec := out[l.fontPointers[i]:]
		le.PutUint32(rec[0:], f.ID)
		rec[4] = f.AdvanceWidth
		rec[5] = f.LineHeight
		rec[6] = f.BoxWidth
		rec[7] = f.BoxHeight
		rec[8] = f.LayoutParam1
		rec[9] = f.LayoutParam2Numerator
		rec[10] = f.LayoutParam2Denominator
		le.PutUint32(rec[12:], f.Reserved)
		le.PutUint32(rec[16:], f.TexSizeChars)
		le.PutUint32(rec[20:], uint32(len(f.Chars)))
		le.PutUint32(rec[fontCharsPointerOff:], uint32(l.glyphPointers[i]))

		for j, g := range f.Chars {
			p := out[l.glyphPointers[i]+j*glyphRecordSize:]
			le.PutUint16(p[0:], g.Codepoint)
			if g.Halfwidth {
				p[2] = 1
			}
			p[4] = g.TexCol
			p[5] = g.TexRow
			p[6] = g.GlyphX
			p[7] = g.GlyphWidth
		}
	}
	return out, l, nil
}

// encodeFONM wraps a 64-bit FMH3 block as:
//
//	FONM header | FMH3 | POF1 header | POF1 payload | EOFC | EOFC
//
// The first EOFC closes the FONM section's children and the second ends
// the top-level section chain.
func encodeFONM(fonts []Font) ([]byte, error) {
	inner, l, err := buildFMH3(fonts, FontmapWrapped.addrSize())
	if err != nil {
		return nil, err
	}
	pof, err := encodeRelocations(l.relocations())
	if err != nil {
		return nil, err
	}

	dataSize := len(inner)
	pofLen := sectionHeaderSize + len(pof)
	sectionSize := dataSize + pofLen + sectionHeaderSize

	out := make([]byte, 0, sectionHeaderSize+sectionSize+sectionHeaderSize)
	out = appendSectionHeader(out, Section{Signature: "FONM", SectionSize: uint32(sectionSize), DataSize: uint32(dataSize)})
	out = append(out, inner...)
	out = appendSectionHeader(out, Section{Signature: "POF1", SectionSize: uint32(len(pof)), DataSize: uint32(len(pof))})
	out = append(out, pof...)
	out = appendSectionHeader(out, Section{Signature: "EOFC"})
	out = appendSectionHeader(out, Section{Signature: "EOFC"})
	return out, nil
}
