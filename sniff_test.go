package divapack

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// farcHeader builds the first 40 bytes of a FARC header.
func farcHeader(flags, alignment, format uint32, probe []byte) []byte {
	h := make([]byte, 40)
	copy(h, "FARC")
	binary.BigEndian.PutUint32(h[4:], 64)
	binary.BigEndian.PutUint32(h[8:], flags)
	binary.BigEndian.PutUint32(h[16:], alignment)
	binary.BigEndian.PutUint32(h[20:], format)
	copy(h[24:], probe)
	return h
}

func TestClassify(t *testing.T) {
	tableStart := []byte("entry.bin\x00\x00\x00\x00\x40\x00\x00")

	tests := []struct {
		name   string
		header []byte
		want   VariantTag
	}{
		{"too short", []byte("FA"), TagUnknown},
		{"unknown magic", []byte("RIFF\x00\x00\x00\x00"), TagUnknown},
		{"basic", []byte("FArc\x00\x00\x00\x04\x00\x00\x00\x01"), TagBasic},
		{"compressed", []byte("FArC\x00\x00\x00\x04\x00\x00\x00\x01"), TagCompressed},
		{"truncated extended", []byte("FARC\x00\x00\x00\x14"), TagExtended},
		{"plain DT", farcHeader(0, 16, 0, tableStart), TagExtended},
		{"compressed DT", farcHeader(flagCompressed, 16, 0, tableStart), TagExtended},
		{"plain FT", farcHeader(0, 16, 1, tableStart), TagFutureTone},
		{"encrypted FT with readable format", farcHeader(flagEncrypted, 16, 1, tableStart), TagFutureTone},
		{"encrypted DT", farcHeader(flagEncrypted, 16, 0, tableStart), TagExtended},
		{"encrypted, alignment and format zero", farcHeader(flagEncrypted, 0, 0, tableStart), TagExtended},
		{"encrypted, dense alignment bits", farcHeader(flagEncrypted, 0x1FF, 0, tableStart), TagFutureToneEncrypted},
		{"encrypted, exactly 8 alignment bits", farcHeader(flagEncrypted, 0xFF, 0, tableStart), TagExtended},
		{"encrypted, high format byte set", farcHeader(flagEncrypted, 16, 0x00010000, tableStart), TagFutureToneEncrypted},
		{"encrypted, low format byte alone", farcHeader(flagEncrypted, 16, 0x00000002, tableStart), TagExtended},
		{"encrypted, zero probe", farcHeader(flagEncrypted, 16, 0, nil), TagFutureToneEncrypted},
		{"encrypted, zero probe but short header", farcHeader(flagEncrypted, 16, 0, nil)[:32], TagExtended},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.header))
		})
	}
}

func TestVariantTagVariant(t *testing.T) {
	assert.Nil(t, TagUnknown.Variant())
	assert.Same(t, VariantBasic, TagBasic.Variant())
	assert.Same(t, VariantCompressed, TagCompressed.Variant())
	assert.Same(t, VariantExtended, TagExtended.Variant())
	assert.Same(t, VariantFutureTone, TagFutureTone.Variant())
	assert.Same(t, VariantFutureTone, TagFutureToneEncrypted.Variant())
	assert.Equal(t, "FARC_FT", TagFutureTone.String())
}
