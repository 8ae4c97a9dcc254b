package divapack

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFonts() []Font {
	return []Font{
		{
			ID: 0, AdvanceWidth: 36, LineHeight: 36, BoxWidth: 34, BoxHeight: 34,
			LayoutParam1: 1, LayoutParam2Numerator: 2, LayoutParam2Denominator: 3,
			Reserved: 0xDEADBEEF, TexSizeChars: 56,
			Chars: []Glyph{
				{Codepoint: 'A', Halfwidth: true, TexCol: 1, TexRow: 0, GlyphX: 2, GlyphWidth: 18},
				{Codepoint: 0x3042, TexCol: 2, TexRow: 0, GlyphX: 0, GlyphWidth: 34},
				{Codepoint: 0xFF01, TexCol: 3, TexRow: 1, GlyphX: 4, GlyphWidth: 20},
			},
		},
		{
			ID: 1, AdvanceWidth: 22, LineHeight: 24, BoxWidth: 22, BoxHeight: 22,
			TexSizeChars: 92,
			Chars: []Glyph{
				{Codepoint: ' ', Halfwidth: true, GlyphWidth: 6},
			},
		},
	}
}

func TestEncodeFontmapScenario(t *testing.T) {
	fm := &Fontmap{Type: FontmapBare, Fonts: []Font{{
		ID: 7, AdvanceWidth: 20, LineHeight: 22,
		Chars: []Glyph{{Codepoint: 0x41, Halfwidth: true, TexCol: 3, TexRow: 4, GlyphX: 1, GlyphWidth: 9}},
	}}}

	b, err := EncodeFontmap(fm)
	require.NoError(t, err)
	require.Len(t, b, 96)

	le := binary.LittleEndian
	assert.Equal(t, []byte("FMH3"), b[:4])
	assert.Equal(t, uint32(1), le.Uint32(b[8:]), "font count")
	assert.Equal(t, uint32(32), le.Uint32(b[12:]), "pointer array offset")
	assert.Equal(t, uint32(48), le.Uint32(b[32:]), "font pointer")

	rec := b[48:]
	assert.Equal(t, uint32(7), le.Uint32(rec[0:]))
	assert.Equal(t, byte(20), rec[4])
	assert.Equal(t, byte(22), rec[5])
	assert.Equal(t, uint32(1), le.Uint32(rec[20:]), "glyph count")
	assert.Equal(t, uint32(80), le.Uint32(rec[24:]), "glyph pointer")
	assert.Equal(t, []byte{0x41, 0x00, 0x01, 0x00, 3, 4, 1, 9}, b[80:88])

	got, err := DecodeFontmap(b)
	require.NoError(t, err)
	assert.Equal(t, fm, got)
}

func TestFontmapRoundTrip(t *testing.T) {
	for _, typ := range []FontmapType{FontmapBare, FontmapWrapped} {
		t.Run(typ.String(), func(t *testing.T) {
			fm := &Fontmap{Type: typ, Fonts: sampleFonts()}
			b, err := EncodeFontmap(fm)
			require.NoError(t, err)
			assert.Equal(t, []byte(typ.String()), b[:4])

			got, err := DecodeFontmap(b)
			require.NoError(t, err)
			assert.Equal(t, fm, got)
			assert.Equal(t, uint32(0xDEADBEEF), got.Fonts[0].Reserved)

			again, err := EncodeFontmap(got)
			require.NoError(t, err)
			assert.Equal(t, b, again)
		})
	}
}

func TestFontmapEmpty(t *testing.T) {
	for _, typ := range []FontmapType{FontmapBare, FontmapWrapped} {
		t.Run(typ.String(), func(t *testing.T) {
			b, err := EncodeFontmap(&Fontmap{Type: typ})
			require.NoError(t, err)

			got, err := DecodeFontmap(b)
			require.NoError(t, err)
			assert.Equal(t, typ, got.Type)
			assert.Empty(t, got.Fonts)
		})
	}
}

func TestFontmapWrappedLayout(t *testing.T) {
	b, err := EncodeFontmap(&Fontmap{Type: FontmapWrapped, Fonts: sampleFonts()})
	require.NoError(t, err)

	secs, err := ReadSections(b)
	require.NoError(t, err)
	require.Len(t, secs, 4)

	var sigs []string
	var levels []int
	for _, s := range secs {
		sigs = append(sigs, s.Signature)
		levels = append(levels, s.Level)
		assert.Equal(t, uint32(sectionHeaderSize), s.DataPointer)
		assert.Equal(t, sectionFlags, s.Flags)
	}
	assert.Equal(t, []string{"FONM", "POF1", "EOFC", "EOFC"}, sigs)
	assert.Equal(t, []int{0, 1, 1, 0}, levels)
	assert.Equal(t, len(b), secs[3].End())

	fonm, pof := secs[0], secs[1]
	inner := b[fonm.DataStart() : fonm.DataStart()+int(fonm.DataSize)]
	assert.Equal(t, []byte("FMH3"), inner[:4])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(inner[8:]), "64-bit font count")
	assert.Equal(t, uint64(32), binary.LittleEndian.Uint64(inner[16:]), "64-bit pointer array offset")
	assert.Equal(t, fonm.DataSize+uint32(2*sectionHeaderSize)+pof.SectionSize, fonm.SectionSize)

	offsets, err := DecodeRelocations(b[pof.DataStart() : pof.DataStart()+int(pof.DataSize)])
	require.NoError(t, err)
	l := layoutFontmap(sampleFonts(), 8)
	assert.Equal(t, l.relocations(), offsets)

	// Every relocated field holds a pointer inside the FMH3 block.
	for _, off := range offsets {
		p := binary.LittleEndian.Uint32(inner[off:])
		assert.Less(t, int(p), len(inner), "field at %d", off)
	}
}

func TestLayoutFontmap(t *testing.T) {
	fonts := []Font{
		{Chars: make([]Glyph, 3)},
		{Chars: nil},
		{Chars: make([]Glyph, 2)},
	}
	l := layoutFontmap(fonts, 4)
	assert.Equal(t, 32, l.pointerArray)
	assert.Equal(t, []int{48, 80, 112}, l.fontPointers)
	assert.Equal(t, []int{144, 176, 176}, l.glyphPointers)
	assert.Equal(t, 192, l.size)

	assert.Equal(t, []int{12, 32, 36, 40, 72, 104, 136}, l.relocations())
}

func TestDecodeFontmapErrors(t *testing.T) {
	valid, err := EncodeFontmap(&Fontmap{Type: FontmapBare, Fonts: sampleFonts()})
	require.NoError(t, err)
	patched := func(off int, v uint32) []byte {
		b := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(b[off:], v)
		return b
	}
	wrapped, err := EncodeFontmap(&Fontmap{Type: FontmapWrapped, Fonts: sampleFonts()})
	require.NoError(t, err)
	notFMH3 := append([]byte(nil), wrapped...)
	copy(notFMH3[sectionHeaderSize:], "FMH2")

	tests := []struct {
		name string
		in   []byte
		err  error
	}{
		{"empty input", nil, ErrUnsupportedFontmapType},
		{"unknown signature", []byte("FMH2\x00\x00\x00\x00"), ErrUnsupportedFontmapType},
		{"truncated header", []byte("FMH3\x00\x00\x00\x00\x01"), ErrCorruptFontmap},
		{"font count too large", patched(8, 0x10000000), ErrCorruptFontmap},
		{"pointer array out of range", patched(12, 0xFFFF), ErrCorruptFontmap},
		{"font pointer out of range", patched(32, uint32(len(valid))), ErrCorruptFontmap},
		{"glyph pointer out of range", patched(48+fontCharsPointerOff, uint32(len(valid)-8)), ErrCorruptFontmap},
		{"glyph count too large", patched(48+20, 0xFFFFFF), ErrCorruptFontmap},
		{"wrapped but truncated", wrapped[:40], ErrCorruptFontmap},
		{"wrapped payload not FMH3", notFMH3, ErrCorruptFontmap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFontmap(tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseFontmapType(t *testing.T) {
	for _, typ := range []FontmapType{FontmapBare, FontmapWrapped} {
		got, err := ParseFontmapType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseFontmapType("FMH2")
	assert.ErrorIs(t, err, ErrUnsupportedFontmapType)

	_, err = EncodeFontmap(&Fontmap{Type: FontmapType(9)})
	assert.ErrorIs(t, err, ErrUnsupportedFontmapType)
	assert.Equal(t, "fontmap(9)", FontmapType(9).String())
}
