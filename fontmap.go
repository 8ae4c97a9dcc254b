// fontmap.go
//
// FMH3 fontmap decoding. A fontmap lists bitmap fonts: per-font layout
// metrics plus, for every glyph, its codepoint and cell in the texture
// atlas. The bare form starts with the FMH3 signature and uses 32-bit
// count, offset and pointer fields. The wrapped form is a FONM section whose
// payload is an FMH3 block with 64-bit fields. Font and glyph records are
// identical in both, and every pointer is relative to the FMH3 signature.
//
// All multi-byte fields are little-endian.

package divapack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFontmapType = errors.New("unsupported fontmap type")
	ErrCorruptFontmap         = errors.New("corrupt fontmap structure")
)

var (
	sigFMH3 = [4]byte{'F', 'M', 'H', '3'}
	sigFONM = [4]byte{'F', 'O', 'N', 'M'}
)

// FontmapType is the container kind of a fontmap.
type FontmapType uint8

const (
	// FontmapBare is a standalone FMH3 block with 32-bit addresses.
	FontmapBare FontmapType = iota + 1

	// FontmapWrapped is a FONM section holding a 64-bit FMH3 block plus
	// relocation and terminator sections.
	FontmapWrapped
)

var fontmapTypeNames = map[FontmapType]string{
	FontmapBare:    "FMH3",
	FontmapWrapped: "FONM",
}

func (t FontmapType) String() string {
	if n, ok := fontmapTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("fontmap(%d)", uint8(t))
}

// ParseFontmapType maps "FMH3" and "FONM" to their FontmapType.
func ParseFontmapType(s string) (FontmapType, error) {
	for t, n := range fontmapTypeNames {
		if n == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFontmapType, s)
}

// addrSize is the width of count, offset and pointer-array fields.
func (t FontmapType) addrSize() int {
	if t == FontmapWrapped {
		return 8
	}
	return 4
}

// Glyph places one character in a font's texture atlas.
//
// Codepoint is a UTF-16 code unit. Surrogate values are kept as is even
// though producers should avoid them.
type Glyph struct {
	Codepoint  uint16 `json:"codepoint" yaml:"codepoint"`
	Halfwidth  bool   `json:"halfwidth" yaml:"halfwidth"`
	TexCol     uint8  `json:"tex_col" yaml:"tex_col"`
	TexRow     uint8  `json:"tex_row" yaml:"tex_row"`
	GlyphX     uint8  `json:"glyph_x" yaml:"glyph_x"`
	GlyphWidth uint8  `json:"glyph_width" yaml:"glyph_width"`
}

// Font is one font record and its glyph table.
type Font struct {
	ID                      uint32 `json:"id" yaml:"id"`
	AdvanceWidth            uint8  `json:"advance_width" yaml:"advance_width"`
	LineHeight              uint8  `json:"line_height" yaml:"line_height"`
	BoxWidth                uint8  `json:"box_width" yaml:"box_width"`
	BoxHeight               uint8  `json:"box_height" yaml:"box_height"`
	LayoutParam1            uint8  `json:"layout_param_1" yaml:"layout_param_1"`
	LayoutParam2Numerator   uint8  `json:"layout_param_2_numerator" yaml:"layout_param_2_numerator"`
	LayoutParam2Denominator uint8  `json:"layout_param_2_denominator" yaml:"layout_param_2_denominator"`

	// Reserved is an unidentified word carried through unchanged.
	Reserved uint32 `json:"other_params?" yaml:"other_params?"`

	// TexSizeChars is the number of glyph cells per texture row.
	TexSizeChars uint32  `json:"tex_size_chars" yaml:"tex_size_chars"`
	Chars        []Glyph `json:"chars" yaml:"chars"`
}

// Fontmap is a decoded fontmap.
type Fontmap struct {
	Type  FontmapType
	Fonts []Font
}

// Fixed record geometry shared by both container kinds.
const (
	fmh3HeaderSize  = 32 // also the lowest pointer-array offset the encoder uses
	fontRecordSize  = 28
	fontRecordSlot  = 32
	glyphRecordSize = 8

	fontCharsPointerOff = 24
)

// DecodeFontmap parses a bare or wrapped fontmap.
func DecodeFontmap(b []byte) (*Fontmap, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: %d-byte input", ErrUnsupportedFontmapType, len(b))
	}
	switch [4]byte(b[:4]) {
	case sigFMH3:
		fonts, err := decodeFMH3(b, 0, len(b), FontmapBare.addrSize())
		if err != nil {
			return nil, err
		}
		return &Fontmap{Type: FontmapBare, Fonts: fonts}, nil

	case sigFONM:
		s, err := readSectionHeader(b, 0)
		if err != nil {
			return nil, err
		}
		base := int(s.DataPointer)
		limit := base + int(s.DataSize)
		if limit > len(b) || limit < base {
			return nil, fmt.Errorf("%w: FONM data [%d,%d) outside %d bytes", ErrCorruptFontmap, base, limit, len(b))
		}
		if limit-base < 4 || [4]byte(b[base:base+4]) != sigFMH3 {
			return nil, fmt.Errorf("%w: FONM payload is not FMH3", ErrCorruptFontmap)
		}
		fonts, err := decodeFMH3(b, base, limit, FontmapWrapped.addrSize())
		if err != nil {
			return nil, err
		}
		return &Fontmap{Type: FontmapWrapped, Fonts: fonts}, nil

	default:
		return nil, fmt.Errorf("%w: signature %q", ErrUnsupportedFontmapType, b[:4])
	}
}

// fmh3Reader resolves signature-relative pointers within [base, limit).
type fmh3Reader struct {
	b           []byte
	base, limit int
	addr        int
}

// at returns n bytes at signature-relative offset rel.
func (r *fmh3Reader) at(rel uint64, n int, what string) ([]byte, error) {
	if rel > uint64(r.limit-r.base) || uint64(n) > uint64(r.limit-r.base)-rel {
		return nil, fmt.Errorf("%w: %s at +%d (%d bytes) outside %d-byte structure", ErrCorruptFontmap, what, rel, n, r.limit-r.base)
	}
	start := r.base + int(rel)
	return r.b[start : start+n], nil
}

func (r *fmh3Reader) word(p []byte) uint64 {
	if r.addr == 8 {
		return binary.LittleEndian.Uint64(p)
	}
	return uint64(binary.LittleEndian.Uint32(p))
}

func decodeFMH3(b []byte, base, limit, addr int) ([]Font, error) {
	r := &fmh3Reader{b: b, base: base, limit: limit, addr: addr}
	hdr, err := r.at(0, 8+2*addr, "header")
	if err != nil {
		return nil, err
	}
	count := r.word(hdr[8:])
	ptrOff := r.word(hdr[8+addr:])

	if count > uint64(limit-base)/uint64(addr) {
		return nil, fmt.Errorf("%w: font count %d cannot fit", ErrCorruptFontmap, count)
	}
	ptrs, err := r.at(ptrOff, int(count)*addr, "font pointer array")
	if err != nil {
		return nil, err
	}

	fonts := make([]Font, count)
	for i := range fonts {
		rel := r.word(ptrs[i*addr:])
		rec, err := r.at(rel, fontRecordSize, fmt.Sprintf("font %d", i))
		if err != nil {
			return nil, err
		}
		if err := r.decodeFont(&fonts[i], rec); err != nil {
			return nil, fmt.Errorf("font %d: %w", i, err)
		}
	}
	return fonts, nil
}

func (r *fmh3Reader) decodeFont(f *Font, rec []byte) error {
	le := binary.LittleEndian
	f.ID = le.Uint32(rec[0:])
	f.AdvanceWidth = rec[4]
	f.LineHeight = rec[5]
	f.BoxWidth = rec[6]
	f.BoxHeight = rec[7]
	f.LayoutParam1 = rec[8]
	f.LayoutParam2Numerator = rec[9]
	f.LayoutParam2Denominator = rec[10]
	f.Reserved = le.Uint32(rec[12:])
	f.TexSizeChars = le.Uint32(rec[16:])
	count := le.Uint32(rec[20:])
	charsPtr := le.Uint32(rec[fontCharsPointerOff:])

	if uint64(count)*glyphRecordSize > uint64(r.limit-r.base) {
		return fmt.Errorf("%w: glyph count %d cannot fit", ErrCorruptFontmap, count)
	}
	raw, err := r.at(uint64(charsPtr), int(count)*glyphRecordSize, "glyph array")
	if err != nil {
		return err
	}
	f.Chars = make([]Glyph, count)
	for i := range f.Chars {
		g := raw[i*glyphRecordSize:]
		f.Chars[i] = Glyph{
			Codepoint:  le.Uint16(g[0:]),
			Halfwidth:  g[2] != 0,
			TexCol:     g[4],
			TexRow:     g[5],
			GlyphX:     g[6],
			GlyphWidth: g[7],
		}
	}
	return nil
}
