// writer.go
//
// Archive encoding. Payloads are compressed and encrypted first so that
// their final lengths are known, then pointers are assigned at aligned
// offsets after the header, and finally the header, table and payloads are
// serialized into one buffer. A FARC_FT archive with an encrypted header
// has its header region replaced by IV plus ciphertext as the last step.

package divapack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrEncryptionNotWritable = errors.New("variant cannot write encrypted entries")
	ErrHeaderSizeInvariant   = errors.New("header size invariant violated")
	ErrInvalidAlignment      = errors.New("alignment must be a positive power of two")
	ErrFlagNotRepresentable  = errors.New("flags not representable by variant")
	ErrArchiveTooLarge       = errors.New("archive exceeds 32-bit offsets")
)

// maxIVDraws bounds how often Encode redraws a header IV that would make
// the encrypted header classify as the DT layout.
const maxIVDraws = 8

// packedEntry is an entry after compression and encryption.
type packedEntry struct {
	name    string
	flags   Flags
	payload []byte
	csize   int
	usize   int
	pointer int
}

// Encode serializes a into a new buffer.
func Encode(a *Archive, opts ...Option) ([]byte, error) {
	return encode(a, newCodecConfig(opts))
}

// EncodeTo serializes a and writes it to w.
func EncodeTo(w io.Writer, a *Archive, opts ...Option) error {
	b, err := encode(a, newCodecConfig(opts))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func encode(a *Archive, cfg *codecConfig) ([]byte, error) {
	v := a.Variant
	if v == nil {
		return nil, fmt.Errorf("%w: archive has no variant", ErrUnsupportedVariant)
	}
	if !v.WriteSupported {
		return nil, fmt.Errorf("%w: %s is read-only", ErrUnsupportedSubFormat, v.Name)
	}

	align := a.Alignment
	if align == 0 {
		align = 1
	}
	if align < 0 || align&(align-1) != 0 || align > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, a.Alignment)
	}

	if err := a.checkFlags(cfg.caps); err != nil {
		return nil, err
	}

	entries, tableSize, err := a.pack(cfg)
	if err != nil {
		return nil, err
	}

	hs := v.FixedHeaderSize + tableSize
	headerEnd := 8 + hs
	encryptHeader := a.encryptsHeader()
	if encryptHeader {
		// Bytes 16..8+hs become IV plus PKCS#7 ciphertext.
		headerEnd = 16 + blockSize + pkcs7Len(hs-8)
	}

	pos := headerEnd
	for _, p := range entries {
		pos = alignUp(pos, align)
		p.pointer = pos
		pos += len(p.payload)
	}
	if int64(pos) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrArchiveTooLarge, pos)
	}

	out := make([]byte, pos)
	n := a.putHeader(out, hs, entries)
	if n != 8+hs {
		return nil, fmt.Errorf("%w: wrote %d header bytes, computed %d", ErrHeaderSizeInvariant, n, 8+hs)
	}
	for _, p := range entries {
		copy(out[p.pointer:], p.payload)
	}

	if encryptHeader {
		if err := sealHeader(out, hs, headerEnd, cfg.cipher()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// encryptsHeader reports whether Encode replaces the header with IV and
// ciphertext.
func (a *Archive) encryptsHeader() bool {
	return a.Variant.HasEntryFlags && a.Flags.Encrypted && !a.PlainHeader
}

// checkFlags rejects container or entry flags the variant cannot carry.
func (a *Archive) checkFlags(caps Capabilities) error {
	v := a.Variant
	c := a.Flags
	if c.Compressed && !v.CompressionSupported {
		return fmt.Errorf("%w: %s cannot compress", ErrFlagNotRepresentable, v.Name)
	}
	if c.Encrypted && v.Encryption == SchemeNone {
		return fmt.Errorf("%w: %s cannot encrypt", ErrFlagNotRepresentable, v.Name)
	}
	containerCompressed := c.Compressed || v.CompressionForced

	encrypted := c.Encrypted
	for _, e := range a.entries {
		if !e.Override {
			continue
		}
		f := e.Flags
		switch {
		case f.Compressed && !v.CompressionSupported:
			return fmt.Errorf("%w: %s cannot compress %q", ErrFlagNotRepresentable, v.Name, e.Name)
		case !f.Compressed && v.CompressionForced:
			return fmt.Errorf("%w: %s always compresses %q", ErrFlagNotRepresentable, v.Name, e.Name)
		case f.Encrypted && v.Encryption == SchemeNone:
			return fmt.Errorf("%w: %s cannot encrypt %q", ErrFlagNotRepresentable, v.Name, e.Name)
		}
		if !v.HasEntryFlags {
			if f.Encrypted != c.Encrypted {
				return fmt.Errorf("%w: %q encryption differs from container", ErrFlagNotRepresentable, e.Name)
			}
			if f.Compressed && !containerCompressed {
				return fmt.Errorf("%w: %q compressed in uncompressed container", ErrFlagNotRepresentable, e.Name)
			}
		}
		encrypted = encrypted || f.Encrypted
	}

	if encrypted {
		if !v.EncryptionWritable {
			return fmt.Errorf("%w: %s", ErrEncryptionNotWritable, v.Name)
		}
		if !caps.Crypto {
			return fmt.Errorf("%w: %s requires crypto support", ErrUnsupportedVariant, v.Name)
		}
	}
	return nil
}

// pack compresses and encrypts every entry and returns the table size.
func (a *Archive) pack(cfg *codecConfig) ([]*packedEntry, int, error) {
	v := a.Variant
	c := cfg.cipher()
	entries := make([]*packedEntry, 0, len(a.entries))
	tableSize := 0
	for _, e := range a.entries {
		f := a.effectiveFlags(e)
		if v.Encryption == SchemeNone {
			f.Encrypted = false
		}
		payload := e.Data
		if f.Compressed {
			z, err := deflate(e.Data, cfg)
			if err != nil {
				return nil, 0, fmt.Errorf("compress %q: %w", e.Name, err)
			}
			if v.CompressionForced || len(z) < len(e.Data) {
				payload = z
			} else {
				f.Compressed = false
			}
		}
		csize := len(payload)
		if f.Encrypted {
			enc, err := c.encrypt(v.Encryption, zeroPad(payload))
			if err != nil {
				return nil, 0, fmt.Errorf("encrypt %q: %w", e.Name, err)
			}
			payload = enc
		}
		if int64(len(e.Data)) > math.MaxUint32 || int64(csize) > math.MaxUint32 {
			return nil, 0, fmt.Errorf("%w: entry %q", ErrArchiveTooLarge, e.Name)
		}

		entries = append(entries, &packedEntry{
			name:    e.Name,
			flags:   f,
			payload: payload,
			csize:   csize,
			usize:   len(e.Data),
		})
		tableSize += len(e.Name) + 1 + v.EntryFieldsSize
	}
	return entries, tableSize, nil
}

// putHeader writes the plaintext header and table into out and returns the
// number of bytes written.
func (a *Archive) putHeader(out []byte, hs int, entries []*packedEntry) int {
	be := binary.BigEndian
	v := a.Variant

	copy(out[0:4], v.Magic[:])
	be.PutUint32(out[4:8], uint32(hs))
	align := max(a.Alignment, 1)
	if v.HasFlags {
		be.PutUint32(out[8:12], a.Flags.word())
		be.PutUint32(out[16:20], uint32(int32(align)))
		be.PutUint32(out[20:24], uint32(v.FormatSelector))
		if v.HasEntryFlags {
			be.PutUint32(out[24:28], uint32(len(entries)))
		}
	} else {
		be.PutUint32(out[8:12], uint32(int32(align)))
	}

	off := 8 + v.FixedHeaderSize
	for _, p := range entries {
		off += copy(out[off:], p.name)
		out[off] = 0
		off++
		be.PutUint32(out[off:], uint32(p.pointer))
		be.PutUint32(out[off+4:], uint32(p.csize))
		if v.hasSizes() {
			be.PutUint32(out[off+8:], uint32(p.usize))
		}
		if v.HasEntryFlags {
			be.PutUint32(out[off+12:], p.flags.word())
		}
		off += v.EntryFieldsSize
	}
	return off
}

// sealHeader encrypts out[16:8+hs] in place as IV plus ciphertext ending at
// headerEnd, and rewrites the header-size field to match.
//
// An IV whose bytes happen to pass every DT check in Classify would make the
// archive unreadable, so such IVs are redrawn.
func sealHeader(out []byte, hs, headerEnd int, c blockCipher) error {
	plain := bytes.Clone(out[16 : 8+hs])
	for range maxIVDraws {
		sealed, err := c.encryptHeader(plain)
		if err != nil {
			return fmt.Errorf("encrypt header: %w", err)
		}
		if 16+len(sealed) != headerEnd {
			return fmt.Errorf("%w: sealed header ends at %d, computed %d", ErrHeaderSizeInvariant, 16+len(sealed), headerEnd)
		}
		copy(out[16:], sealed)
		binary.BigEndian.PutUint32(out[4:8], uint32(headerEnd-8))
		if Classify(out[:min(len(out), sniffProbeEnd)]) == TagFutureToneEncrypted {
			return nil
		}
	}
	return errors.New("encrypt header: IV source keeps producing ambiguous headers")
}
