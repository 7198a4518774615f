// Package client ties the torrent core together for the command line:
// announce with retry, try peers in turn, record each run in the history
// and report progress while pieces arrive.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/NamanBalaji/btcore/internal/config"
	"github.com/NamanBalaji/btcore/internal/errors"
	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/internal/progress"
	"github.com/NamanBalaji/btcore/internal/repository"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/tracker"
)

// DefaultReportInterval is how often progress is reported during a download.
const DefaultReportInterval = time.Second

// ReportFunc receives periodic progress updates and a final one on success.
type ReportFunc func(p progress.Progress)

// Client runs downloads using one configuration and peer id.
type Client struct {
	cfg      *config.Config
	peerID   [20]byte
	peerOpts peer.Options
	trkOpts  tracker.Options
	history  repository.Repository
	report   ReportFunc
	interval time.Duration
}

// New returns a client for cfg. history may be nil to disable recording.
func New(cfg *config.Config, history repository.Repository) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	id, err := peer.NewID(cfg.PeerIDPrefix)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:    cfg,
		peerID: id,
		peerOpts: peer.Options{
			DialTimeout: cfg.DialTimeout,
			Timeout:     cfg.PeerTimeout,
		},
		trkOpts: tracker.Options{
			HTTPTimeout: cfg.TrackerTimeout,
			UDPTimeout:  cfg.UDPTimeout,
		},
		history:  history,
		interval: DefaultReportInterval,
		report: func(p progress.Progress) {
			logger.Infof("progress: %d/%d bytes (%.1f%%) eta %s",
				p.GetDownloaded(), p.GetTotalSize(), p.GetPercentage(), p.GetETA())
		},
	}, nil
}

// OnProgress replaces the progress sink and its period.
func (c *Client) OnProgress(interval time.Duration, fn ReportFunc) {
	if interval > 0 {
		c.interval = interval
	}
	c.report = fn
}

// PeerID returns the id this client handshakes with.
func (c *Client) PeerID() [20]byte {
	return c.peerID
}

// Peers announces to mi's tracker, retrying transient failures up to
// MaxRetries attempts.
func (c *Client) Peers(ctx context.Context, mi *metainfo.Metainfo) ([]tracker.Peer, error) {
	var peers []tracker.Peer

	err := retry(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay, mi.Announce, func() error {
		var err error
		peers, err = tracker.Announce(ctx, mi, c.peerID, uint16(c.cfg.Port), c.trkOpts)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Debugf("tracker %s returned %d peers", mi.Announce, len(peers))

	return peers, nil
}

// Handshake connects to addr and returns the peer id it answered with.
func (c *Client) Handshake(ctx context.Context, mi *metainfo.Metainfo, addr string) ([20]byte, error) {
	conn, err := peer.Dial(ctx, addr, mi.InfoHash, c.peerID, c.peerOpts)
	if err != nil {
		return [20]byte{}, errors.Classify(err, addr)
	}
	defer conn.Close()

	return conn.RemoteID(), nil
}
