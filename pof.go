// pof.go
//
// POF1 relocation tables. The payload is a little-endian length (counting
// itself) followed by one marker per relocatable 8-byte field, each marker
// holding the distance in 8-byte words from the previous field:
//
//	01dddddd                       distances up to 0x3F
//	10dddddd dddddddd              up to 0x3FFF
//	11dddddd dddddddd x2           up to 0x3FFFFFFF, big-endian
//
// The payload is zero-padded to 16 bytes; a zero byte ends the markers.

package divapack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrBadRelocation = errors.New("invalid relocation table")

const pofWord = 8

// encodeRelocations builds a POF1 payload for the ascending field offsets.
func encodeRelocations(offsets []int) ([]byte, error) {
	out := make([]byte, 4, 4+len(offsets))
	prev := 0
	for _, off := range offsets {
		if off <= prev || off%pofWord != 0 {
			return nil, fmt.Errorf("%w: offset %d after %d", ErrBadRelocation, off, prev)
		}
		d := (off - prev) / pofWord
		switch {
		case d <= 0x3F:
			out = append(out, 0x40|byte(d))
		case d <= 0x3FFF:
			out = append(out, 0x80|byte(d>>8), byte(d))
		case d <= 0x3FFFFFFF:
			out = append(out, 0xC0|byte(d>>24), byte(d>>16), byte(d>>8), byte(d))
		default:
			return nil, fmt.Errorf("%w: distance %d too large", ErrBadRelocation, d)
		}
		prev = off
	}
	binary.LittleEndian.PutUint32(out, uint32(len(out)))
	padded := make([]byte, alignUp(len(out), 16))
	copy(padded, out)
	return padded, nil
}

// DecodeRelocations returns the field offsets a POF1 payload lists.
func DecodeRelocations(payload []byte) ([]int, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: %d-byte payload", ErrBadRelocation, len(payload))
	}
	n := int(binary.LittleEndian.Uint32(payload))
	if n < 4 || n > len(payload) {
		return nil, fmt.Errorf("%w: length %d of %d", ErrBadRelocation, n, len(payload))
	}

	var offsets []int
	pos, off := 4, 0
	for pos < n {
		c := payload[pos]
		var d int
		switch c >> 6 {
		case 0:
			// Terminator or padding.
			return offsets, nil
		case 1:
			d = int(c & 0x3F)
			pos++
		case 2:
			if pos+2 > n {
				return nil, fmt.Errorf("%w: truncated marker at %d", ErrBadRelocation, pos)
			}
			d = int(c&0x3F)<<8 | int(payload[pos+1])
			pos += 2
		default:
			if pos+4 > n {
				return nil, fmt.Errorf("%w: truncated marker at %d", ErrBadRelocation, pos)
			}
			d = int(binary.BigEndian.Uint32(payload[pos:]) & 0x3FFFFFFF)
			pos += 4
		}
		off += d * pofWord
		offsets = append(offsets, off)
	}
	return offsets, nil
}
