// registry.go
//
// Static capability table for the FARC family of archive containers.
// Every supported on-disk variant is described by one immutable Variant
// value: its magic, the shape of its fixed header and entry table, and the
// compression and encryption features it can carry. Decoders resolve a
// Variant from the leading magic; encoders look one up by name.

package divapack

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVariant is returned for an unrecognized magic, or for a
	// recognized one whose cipher the caller declared unavailable.
	ErrUnsupportedVariant = errors.New("unsupported archive variant")

	// ErrUnsupportedSubFormat is returned when a FARC format selector names
	// no known sub-format.
	ErrUnsupportedSubFormat = errors.New("unsupported archive sub-format")
)

// Magic is the four-byte tag that opens every archive.
type Magic [4]byte

func (m Magic) String() string { return string(m[:]) }

var (
	MagicBasic      = Magic{'F', 'A', 'r', 'c'}
	MagicCompressed = Magic{'F', 'A', 'r', 'C'}
	MagicExtended   = Magic{'F', 'A', 'R', 'C'}
)

// Scheme enumerates the block cipher framings an archive may use.
//
// The zero value, SchemeNone, means the variant never encrypts.
type Scheme uint8

const (
	// SchemeNone marks a variant without encryption.
	SchemeNone Scheme = iota

	// SchemeECB is AES-128-ECB with a static key and no IV. Used by the
	// FARC (DT) variant on whole entry payloads.
	SchemeECB

	// SchemeCBC is AES-128-CBC with a fresh IV prepended to every
	// ciphertext. Used by the FARC_FT variant.
	SchemeCBC
)

var schemeNames = map[Scheme]string{
	SchemeNone: "none",
	SchemeECB:  "ecb",
	SchemeCBC:  "cbc",
}

func (s Scheme) String() string {
	if n, ok := schemeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("scheme(%d)", uint8(s))
}

// Variant describes one archive layout.
//
// Variant values are package-level data and must be treated as read-only.
type Variant struct {
	// Name is the registry key ("FArc", "FArC", "FARC", "FARC_FT").
	Name string

	// Magic is the on-disk tag. FARC and FARC_FT share one.
	Magic Magic

	Remarks string

	// FixedHeaderSize counts the bytes between the header-size field and the
	// first entry row.
	FixedHeaderSize int

	// EntryFieldsSize is the width of the numeric fields that follow each
	// entry name in the table.
	EntryFieldsSize int

	CompressionSupported bool

	// CompressionForced means every entry is compressed regardless of
	// whether compression shrinks it.
	CompressionForced bool

	// HasFlags reports a container-level flags word.
	HasFlags bool

	// HasEntryFlags reports a flags word on every table row.
	HasEntryFlags bool

	Encryption         Scheme
	WriteSupported     bool
	EncryptionWritable bool

	// FormatSelector is the value of the format field that selects this
	// variant among those sharing its magic, or -1 when there is none.
	FormatSelector int
}

// NeedsCrypto reports whether reading this variant may require a cipher.
func (v *Variant) NeedsCrypto() bool { return v.Encryption != SchemeNone }

// hasSizes reports whether table rows carry separate compressed and
// uncompressed sizes.
func (v *Variant) hasSizes() bool { return v.CompressionSupported }

func (v *Variant) String() string { return v.Name }

var (
	VariantBasic = &Variant{
		Name:            "FArc",
		Magic:           MagicBasic,
		Remarks:         "basic archive without compression",
		FixedHeaderSize: 4,
		EntryFieldsSize: 8,
		WriteSupported:  true,
		FormatSelector:  -1,
	}

	VariantCompressed = &Variant{
		Name:                 "FArC",
		Magic:                MagicCompressed,
		Remarks:              "archive with gzip compression on every entry",
		FixedHeaderSize:      4,
		EntryFieldsSize:      12,
		CompressionSupported: true,
		CompressionForced:    true,
		WriteSupported:       true,
		FormatSelector:       -1,
	}

	VariantExtended = &Variant{
		Name:                 "FARC",
		Magic:                MagicExtended,
		Remarks:              "extended archive with optional compression and AES-ECB encryption (DT)",
		FixedHeaderSize:      20,
		EntryFieldsSize:      12,
		CompressionSupported: true,
		HasFlags:             true,
		Encryption:           SchemeECB,
		WriteSupported:       true,
		EncryptionWritable:   true,
		FormatSelector:       0,
	}

	VariantFutureTone = &Variant{
		Name:                 "FARC_FT",
		Magic:                MagicExtended,
		Remarks:              "extended archive with per-entry flags and AES-CBC encryption (FT)",
		FixedHeaderSize:      24,
		EntryFieldsSize:      16,
		CompressionSupported: true,
		HasFlags:             true,
		HasEntryFlags:        true,
		Encryption:           SchemeCBC,
		WriteSupported:       true,
		EncryptionWritable:   true,
		FormatSelector:       1,
	}
)

var registry = []*Variant{VariantBasic, VariantCompressed, VariantExtended, VariantFutureTone}

// Capabilities declares which optional primitives the caller has available.
type Capabilities struct {
	// Crypto reports that AES may be used to read or write encrypted
	// variants.
	Crypto bool
}

// DefaultCapabilities enables every primitive this package can provide.
var DefaultCapabilities = Capabilities{Crypto: true}

// Variants returns every registered variant in table order.
func Variants() []*Variant {
	out := make([]*Variant, len(registry))
	copy(out, registry)
	return out
}

// Lookup resolves the base variant for magic.
//
// For the shared FARC magic Lookup returns VariantExtended; the caller is
// expected to run Classify on the header to pick the sub-variant. A variant
// that needs a cipher is rejected when caps.Crypto is false, even though the
// magic itself is valid.
func Lookup(magic Magic, caps Capabilities) (*Variant, error) {
	for _, v := range registry {
		if v.Magic != magic {
			continue
		}
		if v.NeedsCrypto() && !caps.Crypto {
			return nil, fmt.Errorf("%w: %s requires crypto support", ErrUnsupportedVariant, v.Name)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: magic %q", ErrUnsupportedVariant, magic[:])
}

// VariantByName returns the variant registered under name.
func VariantByName(name string) (*Variant, error) {
	for _, v := range registry {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedVariant, name)
}

// variantBySelector resolves a sub-format of magic from its format field.
func variantBySelector(magic Magic, format uint32) (*Variant, error) {
	for _, v := range registry {
		if v.Magic == magic && v.FormatSelector >= 0 && uint32(v.FormatSelector) == format {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s format %d", ErrUnsupportedSubFormat, magic, format)
}
