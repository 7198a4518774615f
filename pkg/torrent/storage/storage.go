// Package storage provides output sinks for downloaded torrent data.
package storage

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"

	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

// ErrOutOfRange is returned for reads or writes beyond the torrent length.
var ErrOutOfRange = errors.New("offset out of range")

// hashBufferSize is the read size used when hashing a piece from storage.
const hashBufferSize = 32 * 1024

// Storage is the sink a downloader hands verified pieces to. Offsets are
// absolute within the torrent's byte stream. Implementations must allow
// concurrent writes to non-overlapping ranges.
type Storage interface {
	ReadBlock(b []byte, off int64) (n int, err error)
	WriteBlock(b []byte, off int64) (n int, err error)
	Close() error
}

// VerifyPiece streams piece index out of s and compares its SHA-1 against
// the torrent's piece hash.
func VerifyPiece(s Storage, mi *metainfo.Metainfo, index int) (bool, error) {
	size, err := mi.PieceSize(index)
	if err != nil {
		return false, err
	}

	expected, err := mi.PieceHash(index)
	if err != nil {
		return false, err
	}

	h := sha1.New()
	buf := make([]byte, hashBufferSize)
	off := mi.PieceOffset(index)

	for remaining := size; remaining > 0; {
		chunk := buf[:min(int64(len(buf)), remaining)]

		n, err := s.ReadBlock(chunk, off)
		if err != nil {
			return false, fmt.Errorf("read piece %d at %d: %w", index, off, err)
		}

		h.Write(chunk[:n])
		off += int64(n)
		remaining -= int64(n)
	}

	return bytes.Equal(h.Sum(nil), expected[:]), nil
}

func checkRange(length, off int64, n int) error {
	if off < 0 || int64(n) > length || off > length-int64(n) {
		return fmt.Errorf("%w: %d bytes at %d outside [0, %d)", ErrOutOfRange, n, off, length)
	}

	return nil
}
