package divapack

import (
	"errors"
	"fmt"
	"io"
)

// ErrFontmapNotFound is returned by LoadFontmap when neither the stream nor
// any known archive member decodes as a fontmap.
var ErrFontmapNotFound = errors.New("no fontmap found")

// Payload is a blob returned by LoadNamed. Name is empty when the stream was
// not an archive; archive entries always have a non-empty name.
type Payload struct {
	Name string
	Data []byte
}

// LoadNamed reads r and returns the entries named in names.
//
// When r does not hold a supported archive (Decode fails with
// ErrUnsupportedVariant), the whole stream is returned as one unnamed
// payload. Any other decode error is returned. Names absent from the
// archive are skipped. The result follows the order of names.
func LoadNamed(r io.Reader, names []string, opts ...Option) ([]Payload, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	a, err := DecodeBytes(b, opts...)
	if errors.Is(err, ErrUnsupportedVariant) {
		return []Payload{{Data: b}}, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Payload
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if e, ok := a.Entry(name); ok {
			out = append(out, Payload{Name: name, Data: e.Data})
		}
	}
	return out, nil
}

// FontmapArchiveName is the archive member name conventionally used for a
// fontmap of type t.
func FontmapArchiveName(t FontmapType) string {
	if t == FontmapWrapped {
		return "fontmap.fnm"
	}
	return "fontmap.bin"
}

// LoadFontmap decodes a fontmap from r, which may be a bare or wrapped
// fontmap or an archive holding one under its conventional name. The
// returned name is the archive member used, or "" for a bare stream.
func LoadFontmap(r io.Reader, opts ...Option) (*Fontmap, string, error) {
	names := []string{FontmapArchiveName(FontmapBare), FontmapArchiveName(FontmapWrapped)}
	payloads, err := LoadNamed(r, names, opts...)
	if err != nil {
		return nil, "", err
	}

	var errs []error
	for _, p := range payloads {
		fm, err := DecodeFontmap(p.Data)
		if err == nil {
			return fm, p.Name, nil
		}
		if p.Name != "" {
			err = fmt.Errorf("%s: %w", p.Name, err)
		}
		errs = append(errs, err)
	}
	return nil, "", errors.Join(append([]error{ErrFontmapNotFound}, errs...)...)
}
