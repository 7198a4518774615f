package torrent

import (
	"errors"
	"fmt"
)

var (
	// ErrHashMismatch is matched by every IntegrityError.
	ErrHashMismatch = errors.New("piece hash mismatch")
	// ErrProtocol is matched by every ProtocolError.
	ErrProtocol = errors.New("peer protocol violation")
	// ErrPieceUnavailable indicates the peer's bitfield lacks the piece.
	ErrPieceUnavailable = errors.New("peer does not have piece")
	// ErrFailed is returned by a Downloader that already failed.
	ErrFailed = errors.New("downloader failed earlier")
)

// IntegrityError reports a piece whose SHA-1 does not match the metainfo.
// Nothing is written to the sink for such a piece.
type IntegrityError struct {
	Index    int
	Expected [20]byte
	Actual   [20]byte
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("piece %d: hash mismatch: expected %x, got %x", e.Index, e.Expected, e.Actual)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrHashMismatch
}

// ProtocolError reports a message the state machine cannot accept in State.
type ProtocolError struct {
	State State
	Msg   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %s", e.State, e.Msg)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErrorf(state State, format string, args ...any) *ProtocolError {
	return &ProtocolError{State: state, Msg: fmt.Sprintf(format, args...)}
}
