// span.go
//
// Payload extents for archive entries. Most entries occupy exactly the
// bytes their table row declares. Encrypted entries are longer: DT rounds
// the ciphertext up to the AES block size, and FT additionally prefixes a
// 16-byte IV. Since FT producers are not consistent about what the size
// field covers, an FT entry's extent is also capped by the start of the
// entry that follows it in the file.

package divapack

import (
	"slices"
)

// span is a half-open byte range [start, end) of the archive stream.
type span struct {
	start, end int64
}

// spans computes the byte range of every table row, in table order.
func (h *Header) spans() []span {
	v := h.Variant

	var sortedPointers []int64
	if v.Encryption == SchemeCBC {
		sortedPointers = make([]int64, 0, len(h.Entries))
		for _, te := range h.Entries {
			sortedPointers = append(sortedPointers, int64(te.Pointer))
		}
		slices.Sort(sortedPointers)
		sortedPointers = slices.Compact(sortedPointers)
	}

	out := make([]span, len(h.Entries))
	for i, te := range h.Entries {
		start := int64(te.Pointer)
		size := int64(te.CompressedSize)

		encrypted := te.Flags.Encrypted
		switch {
		case !encrypted || v.Encryption == SchemeNone:
			out[i] = span{start, start + size}

		case v.Encryption == SchemeECB:
			out[i] = span{start, start + int64(alignUp(int(size), blockSize))}

		default:
			end := start + blockSize + int64(alignUp(int(size), blockSize))
			end = min(end, nextPointer(sortedPointers, start, h.Size))
			// Whole blocks only; any partial tail is alignment slack.
			end = start + (end-start)/blockSize*blockSize
			out[i] = span{start, end}
		}
	}
	return out
}

// nextPointer returns the smallest pointer strictly greater than start, or
// limit when start belongs to the last entry in the file.
func nextPointer(sorted []int64, start, limit int64) int64 {
	idx, found := slices.BinarySearch(sorted, start)
	if found {
		idx++
	}
	if idx < len(sorted) {
		return min(sorted[idx], limit)
	}
	return limit
}
