package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"

	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
)

// DefaultPieceLength is used by Create when no piece length is given.
const DefaultPieceLength = 256 * 1024

// Create reads the whole of r, hashes it in pieceLength pieces and returns
// the bencoded single-file metainfo announcing to announce. The output is
// canonical, so Parse on it yields the same info-hash any other client
// would compute.
func Create(r io.Reader, name, announce string, pieceLength int64) ([]byte, error) {
	if name == "" {
		return nil, newValidationError(ErrInvalidValue, "name", "name must not be empty")
	}

	if announce == "" {
		return nil, newValidationError(ErrInvalidValue, "announce", "announce URL must not be empty")
	}

	if pieceLength <= 0 {
		pieceLength = DefaultPieceLength
	}

	var (
		pieces []byte
		length int64
		buf    = make([]byte, pieceLength)
	)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n])
			pieces = append(pieces, sum[:]...)
			length += int64(n)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
	}

	if pieces == nil {
		pieces = []byte{}
	}

	torrent := bencode.Dict{
		"announce": bencode.Str(announce),
		"info": bencode.Dict{
			"name":         bencode.Str(name),
			"length":       bencode.Int(length),
			"piece length": bencode.Int(pieceLength),
			"pieces":       bencode.String(pieces),
		},
	}

	return bencode.Encode(torrent)
}
