package divapack

import (
	"bytes"
	"encoding/binary"
	"math/bits"
)

// VariantTag names the archive layout a header belongs to, as decided by
// Classify before any per-variant parsing happens.
//
// The zero value, TagUnknown, denotes a header that matches no registered
// magic.
type VariantTag uint8

const (
	// TagUnknown is an unrecognized or truncated header.
	TagUnknown VariantTag = iota

	// TagBasic is a FArc archive.
	TagBasic

	// TagCompressed is a FArC archive.
	TagCompressed

	// TagExtended is a FARC archive in the DT layout. Its header is never
	// encrypted.
	TagExtended

	// TagFutureTone is a FARC_FT archive whose header is stored in the clear.
	TagFutureTone

	// TagFutureToneEncrypted is a FARC_FT archive whose header past byte 16
	// is an IV followed by AES-CBC ciphertext.
	TagFutureToneEncrypted
)

var tagNames = map[VariantTag]string{
	TagUnknown:             "unknown",
	TagBasic:               "FArc",
	TagCompressed:          "FArC",
	TagExtended:            "FARC",
	TagFutureTone:          "FARC_FT",
	TagFutureToneEncrypted: "FARC_FT (encrypted header)",
}

func (t VariantTag) String() string { return tagNames[t] }

// Variant returns the registry entry for t, or nil for TagUnknown.
func (t VariantTag) Variant() *Variant {
	switch t {
	case TagBasic:
		return VariantBasic
	case TagCompressed:
		return VariantCompressed
	case TagExtended:
		return VariantExtended
	case TagFutureTone, TagFutureToneEncrypted:
		return VariantFutureTone
	default:
		return nil
	}
}

// Header field offsets inspected by Classify.
const (
	sniffFlagsByte   = 11 // low byte of the big-endian flags word
	sniffAlignOff    = 16
	sniffFormatOff   = 20
	sniffProbeOff    = 24
	sniffProbeEnd    = 40
	sniffMinFARCSize = 24

	flagCompressed = 1 << 1
	flagEncrypted  = 1 << 2
)

// Classify decides which variant a header belongs to, reading only fixed
// header fields.
//
// FARC and FARC_FT share a magic. An unencrypted FARC header carries a
// readable format field, so the choice there is exact: a format of 1 is
// FARC_FT, anything else the DT layout. Once the encrypted flag is set the
// FT layout may have encrypted everything past byte 16, so the format field
// may be ciphertext. Classify then applies the following heuristic, in
// order:
//
//   - a format field reading exactly 1 is trusted and wins;
//   - more than 8 bits set in the alignment word, or a non-zero byte among
//     the top three format bytes, means ciphertext (FT, encrypted header);
//   - the 16 bytes after the format field all being zero also means FT,
//     since a DT table would start with a non-empty entry name there;
//   - otherwise the header is DT.
//
// A random IV and ciphertext pass all of these checks as DT with
// probability on the order of one in several hundred million. That false
// negative is accepted: the decoder then fails with ErrCorruptEntryTable
// rather than misreading data, and changing the test would break
// compatibility with files already in circulation.
func Classify(header []byte) VariantTag {
	if len(header) < 4 {
		return TagUnknown
	}
	switch Magic(header[:4]) {
	case MagicBasic:
		return TagBasic
	case MagicCompressed:
		return TagCompressed
	case MagicExtended:
	default:
		return TagUnknown
	}

	if len(header) < sniffMinFARCSize {
		return TagExtended
	}

	format := header[sniffFormatOff : sniffFormatOff+4]
	if binary.BigEndian.Uint32(format) == 1 {
		return TagFutureTone
	}
	if header[sniffFlagsByte]&flagEncrypted == 0 {
		return TagExtended
	}

	popcount := bits.OnesCount32(binary.BigEndian.Uint32(header[sniffAlignOff : sniffAlignOff+4]))
	if popcount > 8 || !bytes.Equal(format[:3], []byte{0, 0, 0}) {
		return TagFutureToneEncrypted
	}
	if len(header) >= sniffProbeEnd && allZero(header[sniffProbeOff:sniffProbeEnd]) {
		return TagFutureToneEncrypted
	}
	return TagExtended
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
