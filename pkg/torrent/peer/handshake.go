package peer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// ProtocolID is the literal every handshake must carry.
	ProtocolID = "BitTorrent protocol"
	// ReservedLen is the number of reserved bytes in the handshake.
	ReservedLen = 8
	// HandshakeLen is the fixed length of a handshake frame.
	HandshakeLen = 1 + len(ProtocolID) + ReservedLen + 20 + 20
)

var (
	protocolBytes = []byte(ProtocolID)

	// ErrProtocolMismatch indicates a handshake whose length byte or
	// protocol literal is not the BitTorrent one.
	ErrProtocolMismatch = errors.New("handshake protocol mismatch")
	// ErrInfoHashMismatch indicates a peer that answered for a different torrent.
	ErrInfoHashMismatch = errors.New("handshake info hash mismatch")
)

// Handshake is the 68-byte frame exchanged once per connection before any
// framed message. See BEP 3.
type Handshake struct {
	Reserved [ReservedLen]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

// Marshal encodes the handshake into its 68-byte wire form.
func (h Handshake) Marshal() []byte {
	b := make([]byte, HandshakeLen)
	b[0] = byte(len(protocolBytes))
	copy(b[1:20], protocolBytes)
	copy(b[20:28], h.Reserved[:])
	copy(b[28:48], h.InfoHash[:])
	copy(b[48:68], h.PeerID[:])

	return b
}

// Unmarshal decodes a 68-byte handshake frame.
func Unmarshal(b []byte) (Handshake, error) {
	if len(b) != HandshakeLen {
		return Handshake{}, fmt.Errorf("%w: frame is %d bytes, want %d", ErrTruncated, len(b), HandshakeLen)
	}

	if b[0] != byte(len(protocolBytes)) {
		return Handshake{}, fmt.Errorf("%w: length byte %d, want %d", ErrProtocolMismatch, b[0], len(protocolBytes))
	}

	if !bytes.Equal(b[1:20], protocolBytes) {
		return Handshake{}, fmt.Errorf("%w: protocol %q", ErrProtocolMismatch, b[1:20])
	}

	var h Handshake

	copy(h.Reserved[:], b[20:28])
	copy(h.InfoHash[:], b[28:48])
	copy(h.PeerID[:], b[48:68])

	return h, nil
}

// Exchange writes our handshake and then reads exactly one frame back.
// Only the length byte and protocol literal of the reply are checked; the
// caller decides whether the echoed info-hash matters.
func Exchange(rw io.ReadWriter, infoHash, peerID [20]byte) (Handshake, error) {
	hs := Handshake{InfoHash: infoHash, PeerID: peerID}
	if _, err := rw.Write(hs.Marshal()); err != nil {
		return Handshake{}, fmt.Errorf("write handshake: %w", err)
	}

	return readHandshake(rw)
}

// Respond is the accepting side of Exchange: it reads the initiator's
// frame, requires infoHash to match and answers with our own frame.
func Respond(rw io.ReadWriter, infoHash, peerID [20]byte) (Handshake, error) {
	remote, err := readHandshake(rw)
	if err != nil {
		return Handshake{}, err
	}

	if remote.InfoHash != infoHash {
		return Handshake{}, fmt.Errorf("%w: got %x", ErrInfoHashMismatch, remote.InfoHash)
	}

	hs := Handshake{InfoHash: infoHash, PeerID: peerID}
	if _, err := rw.Write(hs.Marshal()); err != nil {
		return Handshake{}, fmt.Errorf("write handshake: %w", err)
	}

	return remote, nil
}

func readHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Handshake{}, fmt.Errorf("%w: read handshake: %w", ErrTruncated, err)
		}

		return Handshake{}, fmt.Errorf("read handshake: %w", err)
	}

	return Unmarshal(buf)
}
