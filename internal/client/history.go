package client

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/btcore/internal/errors"
	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/internal/repository"
	"github.com/NamanBalaji/btcore/internal/status"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

// ErrNoHistory is returned by History when the client records nothing.
var ErrNoHistory = errors.New("download history disabled")

// History returns the recorded runs, oldest first.
func (c *Client) History() ([]*repository.Record, error) {
	if c.history == nil {
		return nil, ErrNoHistory
	}

	return c.history.FindAll()
}

func (c *Client) newRecord(mi *metainfo.Metainfo, out string, piece int, length int64) *repository.Record {
	return &repository.Record{
		ID:        uuid.New(),
		Tracker:   mi.Announce,
		Name:      mi.Info.Name,
		InfoHash:  mi.InfoHashHex(),
		Output:    out,
		Piece:     piece,
		Length:    length,
		Status:    status.Pending,
		StartedAt: time.Now(),
	}
}

// save writes rec to the history. A history failure is logged and does not
// affect the download.
func (c *Client) save(rec *repository.Record) {
	if c.history == nil {
		return
	}

	if err := c.history.Save(rec); err != nil {
		logger.Warnf("Failed to record %s in history: %v", rec.ID, err)
	}
}

func (c *Client) finish(rec *repository.Record, err error) {
	rec.FinishedAt = time.Now()

	switch {
	case err == nil:
		rec.Status = status.Completed
		logger.Infof("%s: %d bytes written to %s in %s", rec.Name, rec.Length, rec.Output, rec.Duration())
	case errors.Is(err, context.Canceled):
		rec.Status = status.Cancelled
		rec.Error = err.Error()
		logger.Infof("%s: cancelled", rec.Name)
	default:
		rec.Status = status.Failed
		rec.Error = err.Error()
		logger.Errorf("%s: %v", rec.Name, err)
	}

	c.save(rec)
}
