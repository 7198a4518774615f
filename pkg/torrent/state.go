package torrent

import "fmt"

// State is the position of a Downloader in the per-connection flow.
type State int

const (
	StateAwaitBitfield State = iota
	StateSendInterested
	StateAwaitUnchoke
	StateRequesting
	StateVerifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitBitfield:
		return "await bitfield"
	case StateSendInterested:
		return "send interested"
	case StateAwaitUnchoke:
		return "await unchoke"
	case StateRequesting:
		return "requesting"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
