package client

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/btcore/internal/errors"
	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/internal/progress"
	"github.com/NamanBalaji/btcore/internal/repository"
	"github.com/NamanBalaji/btcore/internal/status"
	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
	"github.com/NamanBalaji/btcore/pkg/torrent/tracker"
)

// DownloadPiece fetches piece index of mi and writes it to out. The file
// holds only that piece.
func (c *Client) DownloadPiece(ctx context.Context, mi *metainfo.Metainfo, index int, out string) error {
	size, err := mi.PieceSize(index)
	if err != nil {
		return err
	}

	rec := c.newRecord(mi, out, index, size)

	return c.run(ctx, mi, rec, []int{index}, func() (storage.Storage, error) {
		f, err := storage.CreateFile(out, size)
		if err != nil {
			return nil, err
		}

		return storage.NewSection(f, mi.PieceOffset(index), size), nil
	})
}

// Download fetches every piece of mi into out.
func (c *Client) Download(ctx context.Context, mi *metainfo.Metainfo, out string) error {
	pieces := make([]int, mi.NumPieces())
	for i := range pieces {
		pieces[i] = i
	}

	rec := c.newRecord(mi, out, repository.AllPieces, mi.Info.Length)

	return c.run(ctx, mi, rec, pieces, func() (storage.Storage, error) {
		f, err := storage.CreateFile(out, mi.Info.Length)
		if err != nil {
			return nil, err
		}

		return f, nil
	})
}

// run records rec, finds peers, opens the sink and downloads pieces while a
// second goroutine reports progress.
func (c *Client) run(ctx context.Context, mi *metainfo.Metainfo, rec *repository.Record, pieces []int,
	open func() (storage.Storage, error),
) (err error) {
	c.save(rec)
	defer func() { c.finish(rec, err) }()

	peers, err := c.Peers(ctx, mi)
	if err != nil {
		return err
	}

	if len(peers) == 0 {
		return errors.NewNetworkError(errors.ErrNoPeers, mi.Announce, false)
	}

	sink, err := open()
	if err != nil {
		return errors.NewIOError(err, rec.Output)
	}

	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = errors.NewIOError(cerr, rec.Output)
		}
	}()

	rec.Status = status.Active
	c.save(rec)

	tr := progress.NewTracker(rec.Length)
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return c.fromPeers(gctx, mi, peers, pieces, sink, tr, rec)
	})

	g.Go(func() error {
		c.reportLoop(done, tr)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if c.report != nil {
		c.report(tr)
	}

	return nil
}

// fromPeers tries peers in order until the pieces are stored. A peer that
// fails with a retryable error is dropped and the next one continues with
// the pieces still missing.
func (c *Client) fromPeers(ctx context.Context, mi *metainfo.Metainfo, peers []tracker.Peer, pieces []int,
	sink storage.Storage, tr *progress.Tracker, rec *repository.Record,
) error {
	remaining := slices.Clone(pieces)

	var (
		lastErr error
		tried   int
	)

	for _, p := range peers {
		if tried == c.cfg.MaxPeers {
			break
		}
		tried++

		addr := p.String()
		rec.Peer = addr

		got, err := c.fromPeer(ctx, mi, addr, remaining, sink, tr)
		remaining = slices.DeleteFunc(remaining, func(i int) bool { return slices.Contains(got, i) })

		if err == nil {
			return nil
		}

		de := errors.Classify(err, addr)
		if !de.Retryable {
			switch {
			case errors.IsIOError(de):
				logger.Errorf("writing output failed while downloading from %s: %v", addr, err)
			case errors.IsProtocolError(de, errors.ProtocolPeer):
				logger.Errorf("peer %s broke the protocol: %v", addr, err)
			}

			return errors.WithDetails(de, map[string]any{"peersTried": tried, "piecesLeft": len(remaining)})
		}

		if errors.IsNetworkError(de) {
			logger.Warnf("peer %s unreachable with %d pieces left: %v", addr, len(remaining), err)
		} else {
			logger.Warnf("peer %s failed with %d pieces left: %v", addr, len(remaining), err)
		}
		lastErr = de
	}

	return fmt.Errorf("%w: %d peers tried: %w", errors.ErrNoPeers, tried, lastErr)
}

// fromPeer downloads pieces over one connection and returns the indexes it
// stored, even when it fails part way.
func (c *Client) fromPeer(ctx context.Context, mi *metainfo.Metainfo, addr string, pieces []int,
	sink storage.Storage, tr *progress.Tracker,
) (got []int, err error) {
	conn, err := peer.Dial(ctx, addr, mi.InfoHash, c.peerID, c.peerOpts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	logger.Infof("connected to %s (peer id %x)", addr, conn.RemoteID())

	d := torrent.NewDownloader(mi, conn, sink)
	d.OnPiece(func(index int, size int64) {
		got = append(got, index)
		tr.Add(size)
		logger.Debugf("piece %d verified (%d bytes) from %s", index, size, addr)
	})

	if len(pieces) == mi.NumPieces() {
		err = d.DownloadAll(ctx)
		return got, err
	}

	for _, index := range pieces {
		if err := d.DownloadPiece(ctx, index); err != nil {
			return got, err
		}
	}

	return got, nil
}

func (c *Client) reportLoop(done <-chan struct{}, p progress.Progress) {
	if c.report == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.report(p)
		}
	}
}
