package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/btcore/internal/status"
)

// AllPieces is the Piece value of a record for a whole-torrent download.
const AllPieces = -1

// Record is one download run kept in the history. It is an audit entry;
// nothing is resumed from it.
type Record struct {
	ID         uuid.UUID     `json:"id"`
	Tracker    string        `json:"tracker"`
	Name       string        `json:"name"`
	InfoHash   string        `json:"infoHash"`
	Output     string        `json:"output"`
	Piece      int           `json:"piece"`
	Length     int64         `json:"length"`
	Status     status.Status `json:"status"`
	Peer       string        `json:"peer,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt,omitzero"`
}

// Duration returns how long a finished run took, or zero while it is running.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Repository interface {
	Save(rec *Record) error
	Find(id uuid.UUID) (*Record, error)
	FindAll() ([]*Record, error)
	Delete(id uuid.UUID) error
	Close() error
}
