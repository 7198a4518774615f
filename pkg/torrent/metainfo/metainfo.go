package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
)

// HashLen is the size of a SHA-1 digest: one piece hash or the info-hash.
const HashLen = sha1.Size

// Metainfo is the parsed form of a single-file .torrent. It is built once
// by Parse and is read-only afterwards.
type Metainfo struct {
	Announce string
	Info     InfoDict
	InfoHash [HashLen]byte

	// rawInfo is the info dictionary exactly as decoded, unknown keys
	// included. It is what the info-hash is computed over.
	rawInfo bencode.Dict
}

// InfoDict holds the info dictionary fields this client understands.
type InfoDict struct {
	Name        string
	Length      int64
	PieceLength int64
	Pieces      []byte // concatenated 20-byte SHA-1 piece hashes
}

// Parse decodes a bencoded torrent file, validates the fields required for
// a single-file download and computes the info-hash over the canonical
// re-encoding of the original info dictionary.
func Parse(data []byte) (*Metainfo, error) {
	root, err := bencode.DecodeAll(data)
	if err != nil {
		return nil, err
	}

	top, ok := root.(bencode.Dict)
	if !ok {
		return nil, newValidationError(ErrInvalidTorrentStructure, "", "top level is a "+bencode.TypeName(root)+", want dict")
	}

	announce, err := stringField(top, "announce")
	if err != nil {
		return nil, err
	}

	info, err := dictField(top, "info")
	if err != nil {
		return nil, err
	}

	mi := &Metainfo{Announce: announce, rawInfo: info}

	if mi.Info.Name, err = stringField(info, "name"); err != nil {
		return nil, err
	}

	if _, multi := info.Get("files"); multi {
		return nil, newValidationError(ErrInvalidTorrentStructure, "files", "multi-file torrents are not supported")
	}

	if mi.Info.Length, err = intField(info, "length"); err != nil {
		return nil, err
	}

	if mi.Info.PieceLength, err = intField(info, "piece length"); err != nil {
		return nil, err
	}

	pieces, err := bytesField(info, "pieces")
	if err != nil {
		return nil, err
	}
	mi.Info.Pieces = pieces

	if err := mi.validate(); err != nil {
		return nil, err
	}

	mi.InfoHash, err = hashInfo(info)
	if err != nil {
		return nil, err
	}

	return mi, nil
}

// validate performs structural checks on the info dictionary.
func (m *Metainfo) validate() error {
	if m.Info.Length < 0 {
		return newValidationError(ErrInvalidValue, "length", fmt.Sprintf("negative length %d", m.Info.Length))
	}

	if m.Info.PieceLength <= 0 {
		return newValidationError(ErrInvalidValue, "piece length", fmt.Sprintf("piece length %d must be positive", m.Info.PieceLength))
	}

	if len(m.Info.Pieces)%HashLen != 0 {
		return newValidationError(ErrMalformedPieces, "pieces",
			fmt.Sprintf("length %d is not a multiple of %d", len(m.Info.Pieces), HashLen))
	}

	want := (m.Info.Length + m.Info.PieceLength - 1) / m.Info.PieceLength
	if got := int64(len(m.Info.Pieces) / HashLen); got != want {
		return newValidationError(ErrInconsistentData, "pieces",
			fmt.Sprintf("%d piece hashes for %d bytes at piece length %d, want %d", got, m.Info.Length, m.Info.PieceLength, want))
	}

	return nil
}

func hashInfo(info bencode.Dict) ([HashLen]byte, error) {
	encoded, err := bencode.Encode(info)
	if err != nil {
		return [HashLen]byte{}, fmt.Errorf("re-encoding info dict: %w", err)
	}

	return sha1.Sum(encoded), nil
}

// InfoHashHex returns the info-hash as lowercase hex.
func (m *Metainfo) InfoHashHex() string {
	return hex.EncodeToString(m.InfoHash[:])
}

// RawInfo returns the info dictionary as it was decoded.
func (m *Metainfo) RawInfo() bencode.Dict {
	return m.rawInfo
}

// NumPieces returns the number of pieces in the torrent.
func (m *Metainfo) NumPieces() int {
	return len(m.Info.Pieces) / HashLen
}

// PieceHash returns the expected SHA-1 of piece index.
func (m *Metainfo) PieceHash(index int) ([HashLen]byte, error) {
	var h [HashLen]byte
	if index < 0 || index >= m.NumPieces() {
		return h, fmt.Errorf("%w: %d not in [0, %d)", ErrPieceIndex, index, m.NumPieces())
	}

	copy(h[:], m.Info.Pieces[index*HashLen:(index+1)*HashLen])

	return h, nil
}

// PieceHashes splits the pieces field into individual hashes.
func (m *Metainfo) PieceHashes() [][HashLen]byte {
	hashes := make([][HashLen]byte, m.NumPieces())
	for i := range hashes {
		copy(hashes[i][:], m.Info.Pieces[i*HashLen:(i+1)*HashLen])
	}

	return hashes
}

// PieceSize returns the length of piece index; the last piece may be
// shorter than the piece length.
func (m *Metainfo) PieceSize(index int) (int64, error) {
	if index < 0 || index >= m.NumPieces() {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrPieceIndex, index, m.NumPieces())
	}

	return min(m.Info.PieceLength, m.Info.Length-m.Info.PieceLength*int64(index)), nil
}

// PieceOffset returns the byte offset of piece index within the file.
func (m *Metainfo) PieceOffset(index int) int64 {
	return int64(index) * m.Info.PieceLength
}

func stringField(d bencode.Dict, key string) (string, error) {
	b, err := bytesField(d, key)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func bytesField(d bencode.Dict, key string) ([]byte, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, newValidationError(ErrMissingField, key, "required field not present")
	}

	s, ok := v.(bencode.String)
	if !ok {
		return nil, newValidationError(ErrWrongType, key, "got "+bencode.TypeName(v)+", want string")
	}

	return []byte(s), nil
}

func intField(d bencode.Dict, key string) (int64, error) {
	v, ok := d.Get(key)
	if !ok {
		return 0, newValidationError(ErrMissingField, key, "required field not present")
	}

	n, ok := v.(bencode.Int)
	if !ok {
		return 0, newValidationError(ErrWrongType, key, "got "+bencode.TypeName(v)+", want integer")
	}

	return int64(n), nil
}

func dictField(d bencode.Dict, key string) (bencode.Dict, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, newValidationError(ErrMissingField, key, "required field not present")
	}

	dict, ok := v.(bencode.Dict)
	if !ok {
		return nil, newValidationError(ErrWrongType, key, "got "+bencode.TypeName(v)+", want dict")
	}

	return dict, nil
}
