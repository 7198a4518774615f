package peer

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// DefaultIDPrefix is the Azureus-style client tag used when none is configured.
const DefaultIDPrefix = "-BC0001-"

// NewID returns a 20-byte peer id: prefix followed by random lowercase hex.
func NewID(prefix string) ([20]byte, error) {
	var id [20]byte
	if len(prefix) > len(id) {
		return id, fmt.Errorf("peer id prefix %q longer than %d bytes", prefix, len(id))
	}

	u := uuid.New()

	n := copy(id[:], prefix)

	tail := make([]byte, hex.EncodedLen(len(u)))
	hex.Encode(tail, u[:])
	copy(id[n:], tail)

	return id, nil
}
