// reader.go
//
// Archive decoding. A FARC stream is read in two passes: the header region
// (magic, header size, fixed fields and the entry table) is loaded into
// memory and, for FARC_FT archives with an encrypted header, decrypted into
// a logical copy; then every entry payload is read from its pointer,
// decrypted, inflated and trimmed. Entries are materialized eagerly.

package divapack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrCorruptEntryTable reports a malformed header or entry table: an
// unterminated name, a truncated row, or a pointer outside the stream.
var ErrCorruptEntryTable = errors.New("corrupt entry table")

// TableEntry is one raw row of an archive's entry table.
type TableEntry struct {
	Name    string
	Pointer uint32

	// CompressedSize is the stored length before encryption padding. For
	// FArc, which has a single size field, it equals UncompressedSize.
	CompressedSize   uint32
	UncompressedSize uint32

	// Flags are the row's own flags for FARC_FT and the container flags
	// otherwise.
	Flags Flags
}

// Header is the parsed header region of an archive.
type Header struct {
	Tag     VariantTag
	Variant *Variant

	// HeaderSize is the header-size field as stored on disk. For an
	// encrypted FARC_FT header it covers the IV and padded ciphertext.
	HeaderSize uint32

	Flags     Flags
	Alignment int32
	Format    uint32

	// EntryCount is the declared row count of a FARC_FT table.
	EntryCount int

	Entries []TableEntry

	// Size is the length of the whole stream.
	Size int64
}

// PlainHeader reports a FARC_FT archive flagged encrypted whose header is
// nonetheless stored in the clear.
func (h *Header) PlainHeader() bool {
	return h.Tag == TagFutureTone && h.Flags.Encrypted
}

// ReadHeader parses the header region and entry table of the archive in r
// without reading any payload.
func ReadHeader(r io.ReaderAt, size int64, opts ...Option) (*Header, error) {
	return readHeader(r, size, newCodecConfig(opts))
}

func readHeader(r io.ReaderAt, size int64, cfg *codecConfig) (*Header, error) {
	if size < 4 {
		return nil, fmt.Errorf("%w: %d-byte stream", ErrUnsupportedVariant, size)
	}

	probe := make([]byte, min(size, sniffProbeEnd))
	if err := readFull(r, probe, 0); err != nil {
		return nil, err
	}
	if _, err := Lookup(Magic(probe[:4]), cfg.caps); err != nil {
		return nil, err
	}
	tag := Classify(probe)
	v := tag.Variant()

	if len(probe) < 8 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptEntryTable)
	}
	hs := binary.BigEndian.Uint32(probe[4:8])
	end := 8 + int64(hs)
	if end > size {
		return nil, fmt.Errorf("%w: header size %d exceeds stream length %d", ErrCorruptEntryTable, hs, size)
	}

	raw := make([]byte, end)
	if err := readFull(r, raw, 0); err != nil {
		return nil, err
	}

	logical := raw
	if tag == TagFutureToneEncrypted {
		if end < 32+blockSize {
			return nil, fmt.Errorf("%w: encrypted header too short", ErrCorruptEntryTable)
		}
		plain, err := decryptHeader(raw[16:end])
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt header: %v", ErrCorruptEntryTable, err)
		}
		logical = make([]byte, 16+len(plain))
		copy(logical, raw[:16])
		copy(logical[16:], plain)
		binary.BigEndian.PutUint32(logical[4:8], uint32(8+len(plain)))
	}

	if len(logical) < 8+v.FixedHeaderSize {
		return nil, fmt.Errorf("%w: header size %d below fixed size %d", ErrCorruptEntryTable, len(logical)-8, v.FixedHeaderSize)
	}

	h := &Header{Tag: tag, Variant: v, HeaderSize: hs, Size: size}
	if err := h.parseFixed(logical); err != nil {
		return nil, err
	}
	if err := h.parseTable(logical); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) parseFixed(b []byte) error {
	be := binary.BigEndian
	v := h.Variant
	if !v.HasFlags {
		h.Alignment = int32(be.Uint32(b[8:12]))
		h.Flags = Flags{Compressed: v.CompressionForced}
		return nil
	}

	h.Flags = flagsFromWord(be.Uint32(b[8:12]))
	h.Alignment = int32(be.Uint32(b[16:20]))
	h.Format = be.Uint32(b[20:24])
	sel, err := variantBySelector(v.Magic, h.Format)
	if err != nil {
		return err
	}
	if sel != v {
		return fmt.Errorf("%w: format %d under %s layout", ErrUnsupportedSubFormat, h.Format, v.Name)
	}
	if v.HasEntryFlags {
		count := int32(be.Uint32(b[24:28]))
		if count < 0 {
			return fmt.Errorf("%w: negative entry count %d", ErrCorruptEntryTable, count)
		}
		h.EntryCount = int(count)
	}
	return nil
}

// parseTable reads rows until the header region ends or, for FARC_FT, the
// declared count is reached.
func (h *Header) parseTable(b []byte) error {
	be := binary.BigEndian
	v := h.Variant
	pos := 8 + v.FixedHeaderSize
	for pos < len(b) {
		if v.HasEntryFlags && len(h.Entries) >= h.EntryCount {
			break
		}
		nul := bytes.IndexByte(b[pos:], 0)
		if nul < 0 {
			return fmt.Errorf("%w: name at %d not terminated", ErrCorruptEntryTable, pos)
		}
		if nul == 0 {
			return fmt.Errorf("%w: empty name at %d", ErrCorruptEntryTable, pos)
		}
		name := string(b[pos : pos+nul])
		pos += nul + 1
		if pos+v.EntryFieldsSize > len(b) {
			return fmt.Errorf("%w: row %q truncated", ErrCorruptEntryTable, name)
		}

		te := TableEntry{
			Name:           name,
			Pointer:        be.Uint32(b[pos:]),
			CompressedSize: be.Uint32(b[pos+4:]),
			Flags:          h.Flags,
		}
		te.UncompressedSize = te.CompressedSize
		if v.hasSizes() {
			te.UncompressedSize = be.Uint32(b[pos+8:])
		}
		if v.HasEntryFlags {
			te.Flags = flagsFromWord(be.Uint32(b[pos+12:]))
		}
		pos += v.EntryFieldsSize

		if int64(te.Pointer) > h.Size {
			return fmt.Errorf("%w: %q points to %d past end %d", ErrCorruptEntryTable, name, te.Pointer, h.Size)
		}
		h.Entries = append(h.Entries, te)
	}
	if v.HasEntryFlags && len(h.Entries) < h.EntryCount {
		return fmt.Errorf("%w: %d of %d declared entries present", ErrCorruptEntryTable, len(h.Entries), h.EntryCount)
	}
	return nil
}

// Decode reads a complete archive from r, whose total length is size.
func Decode(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	cfg := newCodecConfig(opts)
	h, err := readHeader(r, size, cfg)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Variant:     h.Variant,
		Flags:       h.Flags,
		Alignment:   int(h.Alignment),
		PlainHeader: h.PlainHeader(),
		index:       make(map[string]int, len(h.Entries)),
	}
	if a.Alignment < 1 {
		a.Alignment = 1
	}

	spans := h.spans()
	c := cfg.cipher()
	for i, te := range h.Entries {
		e, err := h.readEntry(r, c, te, spans[i])
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", te.Name, err)
		}
		if j, ok := a.index[e.Name]; ok {
			// Later rows win, matching how games resolve duplicate names.
			a.entries[j] = e
			continue
		}
		a.insert(e)
	}
	return a, nil
}

// DecodeBytes decodes an archive held in memory.
func DecodeBytes(b []byte, opts ...Option) (*Archive, error) {
	return Decode(bytes.NewReader(b), int64(len(b)), opts...)
}

// DecodeReader buffers r fully and decodes it.
func DecodeReader(r io.Reader, opts ...Option) (*Archive, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(b, opts...)
}

func (h *Header) readEntry(r io.ReaderAt, c blockCipher, te TableEntry, s span) (*Entry, error) {
	v := h.Variant
	if s.end > h.Size || s.end < s.start {
		return nil, fmt.Errorf("%w: span [%d,%d) outside stream of %d bytes", ErrCorruptEntryTable, s.start, s.end, h.Size)
	}
	data := make([]byte, s.end-s.start)
	if err := readFull(r, data, s.start); err != nil {
		return nil, err
	}

	encrypted := te.Flags.Encrypted && v.Encryption != SchemeNone
	if encrypted {
		var err error
		if data, err = c.decrypt(v.Encryption, data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptEntryTable, err)
		}
	}

	compressed := v.CompressionForced
	if v.HasEntryFlags {
		compressed = te.Flags.Compressed
	} else if v.CompressionSupported && te.Flags.Compressed && te.CompressedSize != te.UncompressedSize {
		compressed = true
	}

	// Compared as uint64; int may be 32 bits.
	usize := uint64(te.UncompressedSize)
	if compressed {
		out, err := inflate(data, sizeHint(usize))
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != usize {
			return nil, fmt.Errorf("%w: inflated %d bytes, table declares %d", ErrDecompression, len(out), te.UncompressedSize)
		}
		data = out
	} else if uint64(len(data)) > usize {
		data = data[:usize]
	}

	return &Entry{
		Name:     te.Name,
		Data:     data,
		Flags:    Flags{Compressed: compressed, Encrypted: encrypted},
		Override: v.HasEntryFlags,
	}, nil
}

// sizeHint converts a declared size to an allocation hint, dropping sizes
// that do not fit in an int32.
func sizeHint(n uint64) int {
	if n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read at %d", ErrCorruptEntryTable, off)
	}
	return err
}
