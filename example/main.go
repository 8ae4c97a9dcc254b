package main

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	divapack "github.com/ahrav/go-divapack"
)

func main() {
	fmt.Println("=== FARC Archive Example ===")
	fmt.Println()

	// Create a temporary directory for our example archives.
	tempDir, err := os.MkdirTemp("", "divapack-example-")
	if err != nil {
		log.Fatal("Failed to create temp dir:", err)
	}
	defer os.RemoveAll(tempDir)

	entries := createExampleEntries()
	paths := createExampleArchives(tempDir, entries)

	fmt.Printf("Created example archives:\n")
	for _, p := range paths {
		fmt.Printf("  %s\n", filepath.Base(p))
	}
	fmt.Println()

	demonstrateClassify(paths)
	fmt.Println()

	demonstrateStore(tempDir, entries)
	fmt.Println()

	demonstrateFontmap()
}

// ExampleEntry is one file placed in the example archives.
type ExampleEntry struct {
	Name    string
	Content []byte
}

func createExampleEntries() []ExampleEntry {
	return []ExampleEntry{
		{Name: "rom/pv_db.txt", Content: []byte("pv_001.song_name=Example Song\npv_001.bpm=140\n")},
		{Name: "rom/string_array.bin", Content: bytes.Repeat([]byte("menu_text\x00"), 64)},
		{Name: "2d/spr_logo.bin", Content: []byte{0x00, 0x01, 0x02, 0x03, 0xFF}},
	}
}

// exampleLayouts are the archive kinds written by createExampleArchives,
// one file per entry in file name order.
var exampleLayouts = []struct {
	file    string
	variant *divapack.Variant
	flags   divapack.Flags
}{
	{"a_base.farc", divapack.VariantCompressed, divapack.Flags{Compressed: true}},
	{"b_dlc.farc", divapack.VariantExtended, divapack.Flags{Compressed: true, Encrypted: true}},
	{"c_ft.farc", divapack.VariantFutureTone, divapack.Flags{Compressed: true, Encrypted: true}},
}

// createExampleArchives writes each entry into its own archive kind.
func createExampleArchives(dir string, entries []ExampleEntry) []string {
	var paths []string
	for i, layout := range exampleLayouts {
		a := divapack.NewArchive(layout.variant)
		a.Flags = layout.flags
		a.Alignment = 16
		e := entries[i%len(entries)]
		if _, err := a.Add(e.Name, e.Content); err != nil {
			log.Fatal("Failed to add entry:", err)
		}

		b, err := divapack.Encode(a)
		if err != nil {
			log.Fatalf("Failed to encode %s: %v", layout.file, err)
		}
		path := filepath.Join(dir, layout.file)
		if err := os.WriteFile(path, b, 0644); err != nil {
			log.Fatal("Failed to write archive:", err)
		}
		paths = append(paths, path)
	}
	return paths
}

func demonstrateClassify(paths []string) {
	fmt.Println("--- Layout Detection ---")

	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			log.Fatal("Failed to read archive:", err)
		}
		tag := divapack.Classify(b)
		fmt.Printf("%s:\n", filepath.Base(p))
		fmt.Printf("  Layout: %s\n", tag)

		h, err := divapack.ReadHeader(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			fmt.Printf("  ❌ Error: %v\n", err)
			continue
		}
		fmt.Printf("  Flags: %s, alignment %d\n", h.Flags, h.Alignment)
		for _, te := range h.Entries {
			fmt.Printf("  %s @%d stored=%d size=%d\n", te.Name, te.Pointer, te.CompressedSize, te.UncompressedSize)
		}
	}
}

func demonstrateStore(dir string, entries []ExampleEntry) {
	fmt.Println("--- Store Operations ---")

	store, err := divapack.OpenStore(dir)
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}
	defer store.Close()

	fmt.Printf("Opened store over %d archives\n", len(store.Paths()))
	fmt.Println()

	for _, entry := range entries {
		fmt.Printf("Retrieving %s:\n", entry.Name)

		info, err := store.Stat(entry.Name)
		if err != nil {
			fmt.Printf("  ❌ Error: %v\n", err)
			continue
		}
		data, err := store.Get(entry.Name)
		if err != nil {
			fmt.Printf("  ❌ Error: %v\n", err)
			continue
		}

		fmt.Printf("  ✅ Found in %s (%s)\n", filepath.Base(info.Path), info.Flags)
		fmt.Printf("  Size: %d bytes, fingerprint %016x\n", info.Size, info.Fingerprint)
		if bytes.Equal(data, entry.Content) {
			fmt.Printf("  ✅ Content matches expected\n")
		} else {
			fmt.Printf("  ❌ Content mismatch!\n")
		}
		fmt.Println()
	}

	fmt.Println("Testing missing entry:")
	if _, err := store.Get("rom/missing.bin"); errors.Is(err, divapack.ErrEntryNotFound) {
		fmt.Printf("  ✅ Correctly handled missing entry: %v\n", err)
	} else {
		fmt.Printf("  ❌ Expected ErrEntryNotFound, got %v\n", err)
	}
}

// exampleFontmap is a one-font map with a few ASCII glyphs.
func exampleFontmap(typ divapack.FontmapType) *divapack.Fontmap {
	font := divapack.Font{
		ID: 0, AdvanceWidth: 24, LineHeight: 24, BoxWidth: 22, BoxHeight: 22,
		LayoutParam1: 1, LayoutParam2Numerator: 1, LayoutParam2Denominator: 1,
		TexSizeChars: 40,
	}
	for i, c := range "DIVA" {
		font.Chars = append(font.Chars, divapack.Glyph{
			Codepoint:  uint16(c),
			Halfwidth:  true,
			TexCol:     uint8(i),
			GlyphWidth: 12,
		})
	}
	return &divapack.Fontmap{Type: typ, Fonts: []divapack.Font{font}}
}

func demonstrateFontmap() {
	fmt.Println("--- Fontmaps ---")

	for _, typ := range []divapack.FontmapType{divapack.FontmapBare, divapack.FontmapWrapped} {
		fm := exampleFontmap(typ)
		raw, err := divapack.EncodeFontmap(fm)
		if err != nil {
			log.Fatal("Failed to encode fontmap:", err)
		}

		a := divapack.NewArchive(divapack.VariantCompressed)
		if _, err := a.Add(divapack.FontmapArchiveName(typ), raw); err != nil {
			log.Fatal("Failed to add fontmap:", err)
		}
		farc, err := divapack.Encode(a)
		if err != nil {
			log.Fatal("Failed to encode archive:", err)
		}

		got, member, err := divapack.LoadFontmap(bytes.NewReader(farc))
		if err != nil {
			fmt.Printf("  ❌ Error: %v\n", err)
			continue
		}
		fmt.Printf("%s: %d bytes, stored as %s, %d font(s), %d glyph(s)\n",
			typ, len(raw), member, len(got.Fonts), len(got.Fonts[0].Chars))

		if typ == divapack.FontmapWrapped {
			secs, err := divapack.ReadSections(raw)
			if err != nil {
				fmt.Printf("  ❌ Error: %v\n", err)
				continue
			}
			for _, s := range secs {
				fmt.Printf("  %*s%s size=%d\n", 2*s.Level, "", s.Signature, s.SectionSize)
			}
		}
	}
}
