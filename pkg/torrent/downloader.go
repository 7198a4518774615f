// Package torrent drives the per-connection piece download flow: bitfield,
// interested, unchoke, one block request at a time, SHA-1 verification and
// hand-off to a storage sink.
package torrent

import (
	"context"
	"fmt"

	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
)

// Wire is the part of a peer connection the downloader needs. *peer.Conn
// satisfies it; every call blocks until the peer answers or its timeout
// expires.
type Wire interface {
	ReadMsg() (peer.Message, error)
	WriteInterested() error
	WriteRequest(index, begin, length uint32) error
}

// PieceFunc is called after a piece has been verified and written.
type PieceFunc func(index int, size int64)

// Downloader runs the download flow over one handshaken connection. It is
// not safe for concurrent use; run one Downloader per connection.
type Downloader struct {
	mi       *metainfo.Metainfo
	wire     Wire
	sink     storage.Storage
	state    State
	bitfield peer.Bitfield
	onPiece  PieceFunc
}

// NewDownloader prepares a flow that writes verified pieces of mi to sink.
func NewDownloader(mi *metainfo.Metainfo, wire Wire, sink storage.Storage) *Downloader {
	return &Downloader{
		mi:    mi,
		wire:  wire,
		sink:  sink,
		state: StateAwaitBitfield,
	}
}

// OnPiece registers fn to be called after each piece reaches the sink.
func (d *Downloader) OnPiece(fn PieceFunc) {
	d.onPiece = fn
}

// State returns the current state.
func (d *Downloader) State() State {
	return d.state
}

// Bitfield returns the peer's advertised pieces once the bitfield arrived.
func (d *Downloader) Bitfield() peer.Bitfield {
	return d.bitfield
}

// DownloadPiece fetches, verifies and stores a single piece.
func (d *Downloader) DownloadPiece(ctx context.Context, index int) error {
	if err := d.ready(ctx); err != nil {
		return err
	}

	return d.fetch(ctx, index)
}

// DownloadAll fetches pieces 0..N-1 in order over the same connection. The
// first failure stops the download; pieces already stored stay stored.
func (d *Downloader) DownloadAll(ctx context.Context) error {
	if err := d.ready(ctx); err != nil {
		return err
	}

	for i := range d.mi.NumPieces() {
		if err := d.fetch(ctx, i); err != nil {
			return err
		}
	}

	return nil
}

func (d *Downloader) setState(s State) {
	logger.Debugf("downloader %s: %s -> %s", d.mi.Info.Name, d.state, s)
	d.state = s
}

// fail moves to StateFailed and passes err through.
func (d *Downloader) fail(err error) error {
	d.setState(StateFailed)
	return err
}

// ready runs the connection preamble once: bitfield, interested, unchoke.
func (d *Downloader) ready(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return d.fail(err)
		}

		switch d.state {
		case StateAwaitBitfield:
			if err := d.awaitBitfield(); err != nil {
				return d.fail(err)
			}

			d.setState(StateSendInterested)
		case StateSendInterested:
			if err := d.wire.WriteInterested(); err != nil {
				return d.fail(fmt.Errorf("send interested: %w", err))
			}

			d.setState(StateAwaitUnchoke)
		case StateAwaitUnchoke:
			if err := d.awaitUnchoke(); err != nil {
				return d.fail(err)
			}

			d.setState(StateRequesting)
		case StateRequesting, StateVerifying, StateDone:
			return nil
		case StateFailed:
			return ErrFailed
		default:
			panic(fmt.Sprintf("downloader in unknown state %d", int(d.state)))
		}
	}
}

// readMsg reads the next message, skipping keep-alives.
func (d *Downloader) readMsg() (peer.Message, error) {
	for {
		msg, err := d.wire.ReadMsg()
		if err != nil {
			return peer.Message{}, fmt.Errorf("%s: %w", d.state, err)
		}

		if !msg.KeepAlive {
			return msg, nil
		}
	}
}

func (d *Downloader) awaitBitfield() error {
	msg, err := d.readMsg()
	if err != nil {
		return err
	}

	if msg.ID != peer.MsgBitfield {
		return protocolErrorf(d.state, "first message is %s, want bitfield", msg.ID)
	}

	bf := peer.Bitfield(append([]byte(nil), msg.Payload...))
	if err := bf.Validate(d.mi.NumPieces()); err != nil {
		return protocolErrorf(d.state, "%v", err)
	}

	d.bitfield = bf
	logger.Debugf("peer has %d of %d pieces", bf.Count(d.mi.NumPieces()), d.mi.NumPieces())

	return nil
}

// awaitUnchoke accepts nothing but UNCHOKE (and keep-alives).
func (d *Downloader) awaitUnchoke() error {
	msg, err := d.readMsg()
	if err != nil {
		return err
	}

	if msg.ID != peer.MsgUnchoke {
		return protocolErrorf(d.state, "got %s while waiting for unchoke", msg.ID)
	}

	return nil
}

// fetch downloads piece index block by block with exactly one request in
// flight, verifies it and writes it to the sink.
func (d *Downloader) fetch(ctx context.Context, index int) error {
	size, err := d.mi.PieceSize(index)
	if err != nil {
		return err
	}

	hash, err := d.mi.PieceHash(index)
	if err != nil {
		return err
	}

	if !d.bitfield.Has(index) {
		return fmt.Errorf("%w: %d", ErrPieceUnavailable, index)
	}

	d.setState(StateRequesting)

	buf := newPieceBuffer(index, size, hash)
	for _, b := range buf.blocks {
		if err := ctx.Err(); err != nil {
			return d.fail(err)
		}

		if err := d.wire.WriteRequest(uint32(index), uint32(b.Offset), uint32(b.Length)); err != nil {
			return d.fail(fmt.Errorf("request piece %d block %d: %w", index, b.Offset, err))
		}

		if err := d.awaitBlock(buf, b); err != nil {
			return d.fail(err)
		}
	}

	d.setState(StateVerifying)

	if err := buf.verify(); err != nil {
		return d.fail(err)
	}

	if _, err := d.sink.WriteBlock(buf.data, d.mi.PieceOffset(index)); err != nil {
		return d.fail(fmt.Errorf("store piece %d: %w", index, err))
	}

	d.setState(StateDone)
	logger.Debugf("piece %d verified (%d bytes)", index, size)

	if d.onPiece != nil {
		d.onPiece(index, size)
	}

	return nil
}

// awaitBlock reads until the PIECE answering the outstanding request. HAVE
// updates the bitfield; anything else is a protocol error.
func (d *Downloader) awaitBlock(buf *pieceBuffer, want block) error {
	for {
		msg, err := d.readMsg()
		if err != nil {
			return err
		}

		switch msg.ID {
		case peer.MsgHave:
			d.bitfield.Set(int(msg.Index))
		case peer.MsgPiece:
			if int(msg.Index) != buf.Index || int(msg.Begin) != want.Offset {
				return protocolErrorf(d.state, "got block %d@%d, requested %d@%d", msg.Index, msg.Begin, buf.Index, want.Offset)
			}

			if err := buf.put(int(msg.Begin), msg.Block); err != nil {
				return protocolErrorf(d.state, "%v", err)
			}

			return nil
		default:
			return protocolErrorf(d.state, "got %s while waiting for block %d@%d", msg.ID, buf.Index, want.Offset)
		}
	}
}
