package peer

import (
	"errors"
	"fmt"
)

// ErrInvalidBitfield indicates a bitfield that does not fit the torrent.
var ErrInvalidBitfield = errors.New("invalid bitfield")

// Bitfield is the BITFIELD payload: bit i (MSB first within each byte) is
// set when the peer holds piece i.
type Bitfield []byte

// NewBitfield returns an empty bitfield sized for numPieces.
func NewBitfield(numPieces int) Bitfield {
	return make(Bitfield, (numPieces+7)/8)
}

// Has reports whether piece index is set.
func (bf Bitfield) Has(index int) bool {
	byteIndex := index / 8
	if index < 0 || byteIndex >= len(bf) {
		return false
	}

	return bf[byteIndex]>>(7-uint(index%8))&1 != 0
}

// Set marks piece index as held. Out of range indices are ignored.
func (bf Bitfield) Set(index int) {
	byteIndex := index / 8
	if index < 0 || byteIndex >= len(bf) {
		return
	}

	bf[byteIndex] |= 1 << (7 - uint(index%8))
}

// Count returns the number of set bits among the first numPieces.
func (bf Bitfield) Count(numPieces int) int {
	n := 0

	for i := range numPieces {
		if bf.Has(i) {
			n++
		}
	}

	return n
}

// Validate checks that bf has exactly ceil(numPieces/8) bytes and that the
// spare bits of the last byte are clear.
func (bf Bitfield) Validate(numPieces int) error {
	want := (numPieces + 7) / 8
	if len(bf) != want {
		return fmt.Errorf("%w: %d bytes for %d pieces, want %d", ErrInvalidBitfield, len(bf), numPieces, want)
	}

	for i := numPieces; i < want*8; i++ {
		if bf.Has(i) {
			return fmt.Errorf("%w: spare bit %d is set", ErrInvalidBitfield, i)
		}
	}

	return nil
}
