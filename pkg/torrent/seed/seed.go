// Package seed serves a complete single-file torrent to leechers over the
// peer wire protocol: handshake, BITFIELD, UNCHOKE on INTERESTED, then one
// PIECE per REQUEST.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
)

// MaxRequestLength is the largest block a leecher may ask for.
const MaxRequestLength = 128 * 1024

// ErrBadRequest indicates a REQUEST outside the advertised data.
var ErrBadRequest = errors.New("bad block request")

// Seeder answers leechers for one torrent.
type Seeder struct {
	mi     *metainfo.Metainfo
	store  storage.Storage
	peerID [20]byte
	opts   peer.Options
	have   peer.Bitfield
}

// New returns a seeder advertising every piece of mi, read from store.
func New(mi *metainfo.Metainfo, store storage.Storage, peerID [20]byte, opts peer.Options) *Seeder {
	have := peer.NewBitfield(mi.NumPieces())
	for i := range mi.NumPieces() {
		have.Set(i)
	}

	return &Seeder{mi: mi, store: store, peerID: peerID, opts: opts, have: have}
}

// Advertise restricts the pieces offered to those set in have.
func (s *Seeder) Advertise(have peer.Bitfield) {
	s.have = have
}

// Serve accepts leechers on l until ctx is cancelled, handling each on its
// own goroutine.
func (s *Seeder) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		netConn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := s.ServeConn(ctx, netConn); err != nil {
				logger.Warnf("seed %s: %v", netConn.RemoteAddr(), err)
			}
		}()
	}
}

// ServeConn handshakes an inbound connection and serves it until the
// leecher disconnects.
func (s *Seeder) ServeConn(ctx context.Context, netConn net.Conn) error {
	conn, err := peer.AcceptConn(ctx, netConn, s.mi.InfoHash, s.peerID, s.opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Infof("seeding %s to %s", s.mi.Info.Name, conn.RemoteAddr())

	if err := conn.WriteBitfield(s.have); err != nil {
		return err
	}

	for {
		msg, err := conn.ReadMsg()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		if msg.KeepAlive {
			continue
		}

		switch msg.ID {
		case peer.MsgInterested:
			if err := conn.WriteUnchoke(); err != nil {
				return err
			}
		case peer.MsgRequest:
			block, err := s.readBlock(msg.Index, msg.Begin, msg.Length)
			if err != nil {
				return err
			}

			if err := conn.WritePiece(msg.Index, msg.Begin, block); err != nil {
				return err
			}
		default:
			logger.Debugf("seed: ignoring %s", msg.ID)
		}
	}
}

func (s *Seeder) readBlock(index, begin, length uint32) ([]byte, error) {
	if !s.have.Has(int(index)) {
		return nil, fmt.Errorf("%w: piece %d not advertised", ErrBadRequest, index)
	}

	size, err := s.mi.PieceSize(int(index))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	if length == 0 || length > MaxRequestLength || int64(begin)+int64(length) > size {
		return nil, fmt.Errorf("%w: %d bytes at %d of %d byte piece %d", ErrBadRequest, length, begin, size, index)
	}

	block := make([]byte, length)
	if _, err := s.store.ReadBlock(block, s.mi.PieceOffset(int(index))+int64(begin)); err != nil {
		return nil, err
	}

	return block, nil
}
