// diff.go  – line-oriented fontmap comparison
package divapack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	tdspan "github.com/hexops/gotextdiff/span"
)

// Hunk is a contiguous run of changed lines in the second input of a diff.
type Hunk struct {
	// Lines holds the inserted lines with trailing newlines stripped.
	Lines []string

	// StartLine is the 1-based line in the second input where the hunk
	// begins.
	StartLine int
}

// EndLine returns the 1-based line number where the hunk ends.
func (h *Hunk) EndLine() int {
	if len(h.Lines) == 0 {
		return h.StartLine
	}
	return h.StartLine + len(h.Lines) - 1
}

// fontmapDocument is the JSON shape diffs operate on. It matches the
// meta.json plus font files layout of the extraction tool.
type fontmapDocument struct {
	Type  string `json:"fmh3_type"`
	Fonts []Font `json:"fonts"`
}

// RenderFontmap writes f as indented JSON.
func RenderFontmap(f *Fontmap) (string, error) {
	b, err := json.MarshalIndent(fontmapDocument{Type: f.Type.String(), Fonts: f.Fonts}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// DiffFontmaps returns a unified diff between the renderings of a and b,
// labelled with nameA and nameB. Equal fontmaps yield "".
func DiffFontmaps(a, b *Fontmap, nameA, nameB string) (string, error) {
	ta, err := RenderFontmap(a)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", nameA, err)
	}
	tb, err := RenderFontmap(b)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", nameB, err)
	}
	if ta == tb {
		return "", nil
	}
	edits := myers.ComputeEdits(tdspan.URIFromPath(nameA), ta, tb)
	return fmt.Sprint(gotextdiff.ToUnified(nameA, nameB, ta, edits)), nil
}

// addedHunks returns the blocks of lines present in newB but not in oldB,
// grouping consecutive insertions.
func addedHunks(oldB, newB []byte) []Hunk {
	if bytes.Equal(oldB, newB) {
		return nil
	}

	a, b := string(oldB), string(newB)
	edits := myers.ComputeEdits(tdspan.URIFromPath(""), a, b)
	u := gotextdiff.ToUnified("", "", a, edits)

	var hunks []Hunk
	var current *Hunk
	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for _, h := range u.Hunks {
		lineNo := h.ToLine
		for _, ln := range h.Lines {
			switch ln.Kind {
			case gotextdiff.Insert:
				text := strings.TrimSuffix(ln.Content, "\n")
				if current == nil {
					current = &Hunk{StartLine: lineNo}
				}
				current.Lines = append(current.Lines, text)
				lineNo++
			case gotextdiff.Equal, gotextdiff.Delete:
				flush()
				if ln.Kind == gotextdiff.Equal {
					lineNo++
				}
			}
		}
		flush()
	}
	return hunks
}

// AddedLines reports the hunks of lines that b's rendering adds over a's.
func AddedLines(a, b *Fontmap) ([]Hunk, error) {
	ta, err := RenderFontmap(a)
	if err != nil {
		return nil, err
	}
	tb, err := RenderFontmap(b)
	if err != nil {
		return nil, err
	}
	return addedHunks([]byte(ta), []byte(tb)), nil
}
