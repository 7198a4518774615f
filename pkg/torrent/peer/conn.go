package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	// DefaultDialTimeout bounds the TCP connect to a peer.
	DefaultDialTimeout = 5 * time.Second
	// DefaultTimeout bounds every read and write on an established connection.
	DefaultTimeout = 30 * time.Second
)

// ErrTimeout is returned when a peer does not answer within the configured
// timeout. The peer should be abandoned.
var ErrTimeout = errors.New("peer timeout")

// Options tunes a Conn. Zero values select the defaults.
type Options struct {
	DialTimeout time.Duration
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	return o
}

// Conn is a handshaken peer connection. Every read and write runs under a
// deadline, and writes are serialized so frames never interleave.
type Conn struct {
	netConn  net.Conn
	r        *Reader
	w        *Writer
	remoteID [20]byte
	timeout  time.Duration
	mu       sync.Mutex // protects w
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closeErr error // set by the watcher, read after wg.Wait
}

// Dial connects to addr, performs the handshake and checks that the peer
// echoed infoHash.
func Dial(ctx context.Context, addr string, infoHash, peerID [20]byte, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.DialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: dial %s: %w", ErrTimeout, addr, err)
		}

		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return NewConn(ctx, netConn, infoHash, peerID, opts)
}

// NewConn performs the initiating handshake over an already open
// connection. netConn is closed on failure.
func NewConn(ctx context.Context, netConn net.Conn, infoHash, peerID [20]byte, opts Options) (*Conn, error) {
	c := newConn(ctx, netConn, opts.withDefaults())

	if err := netConn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, c.abort("handshake", err)
	}

	hs, err := Exchange(netConn, infoHash, peerID)
	if err != nil {
		return nil, c.abort("handshake", err)
	}

	if err := netConn.SetDeadline(time.Time{}); err != nil {
		return nil, c.abort("handshake", err)
	}

	if hs.InfoHash != infoHash {
		return nil, c.abort("handshake", fmt.Errorf("%w: sent %x, got %x", ErrInfoHashMismatch, infoHash, hs.InfoHash))
	}

	c.remoteID = hs.PeerID

	return c, nil
}

// Accept waits for one inbound connection on l and answers its handshake.
func Accept(ctx context.Context, l net.Listener, infoHash, peerID [20]byte, opts Options) (*Conn, error) {
	netConn, err := l.Accept()
	if err != nil {
		return nil, err
	}

	return AcceptConn(ctx, netConn, infoHash, peerID, opts)
}

// AcceptConn answers the handshake on an inbound connection, rejecting
// peers that ask for a torrent other than infoHash. netConn is closed on
// failure.
func AcceptConn(ctx context.Context, netConn net.Conn, infoHash, peerID [20]byte, opts Options) (*Conn, error) {
	c := newConn(ctx, netConn, opts.withDefaults())

	if err := netConn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, c.abort("handshake", err)
	}

	hs, err := Respond(netConn, infoHash, peerID)
	if err != nil {
		return nil, c.abort("handshake", err)
	}

	if err := netConn.SetDeadline(time.Time{}); err != nil {
		return nil, c.abort("handshake", err)
	}

	c.remoteID = hs.PeerID

	return c, nil
}

func newConn(ctx context.Context, netConn net.Conn, opts Options) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		netConn: netConn,
		r:       NewReader(netConn),
		w:       NewWriter(netConn),
		timeout: opts.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		<-c.ctx.Done()
		c.closeErr = c.netConn.Close()
	}()

	return c
}

// abort wraps err and closes the connection. A close failure is joined
// to the returned error.
func (c *Conn) abort(op string, err error) error {
	err = c.wrap(op, err)

	if closeErr := c.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}

	return err
}

// wrap maps deadline expiry to ErrTimeout and cancellation to the
// context's error.
func (c *Conn) wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s after %s: %w", ErrTimeout, op, c.timeout, err)
	}

	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// ReadMsg returns the next message, failing with ErrTimeout when nothing
// arrives within the timeout.
func (c *Conn) ReadMsg() (Message, error) {
	if err := c.netConn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return Message{}, c.wrap("read", err)
	}

	msg, err := c.r.ReadMsg()
	if err != nil {
		return Message{}, c.wrap("read", err)
	}

	return msg, nil
}

func (c *Conn) write(op string, fn func(w *Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.netConn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return c.wrap(op, err)
	}

	return c.wrap(op, fn(c.w))
}

// WriteKeepAlive writes a keep-alive.
func (c *Conn) WriteKeepAlive() error {
	return c.write("write keep-alive", (*Writer).WriteKeepAlive)
}

// WriteUnchoke writes an unchoke message.
func (c *Conn) WriteUnchoke() error {
	return c.write("write unchoke", (*Writer).WriteUnchoke)
}

// WriteChoke writes a choke message.
func (c *Conn) WriteChoke() error {
	return c.write("write choke", (*Writer).WriteChoke)
}

// WriteInterested writes an interested message.
func (c *Conn) WriteInterested() error {
	return c.write("write interested", (*Writer).WriteInterested)
}

// WriteHave writes a have message.
func (c *Conn) WriteHave(index uint32) error {
	return c.write("write have", func(w *Writer) error { return w.WriteHave(index) })
}

// WriteBitfield writes a bitfield message.
func (c *Conn) WriteBitfield(bf Bitfield) error {
	return c.write("write bitfield", func(w *Writer) error { return w.WriteBitfield(bf) })
}

// WriteRequest writes a block request.
func (c *Conn) WriteRequest(index, begin, length uint32) error {
	return c.write("write request", func(w *Writer) error { return w.WriteRequest(index, begin, length) })
}

// WritePiece writes a block of piece data.
func (c *Conn) WritePiece(index, begin uint32, block []byte) error {
	return c.write("write piece", func(w *Writer) error { return w.WritePiece(index, begin, block) })
}

// RemoteID returns the peer id the remote side sent in its handshake.
func (c *Conn) RemoteID() [20]byte {
	return c.remoteID
}

// RemoteAddr returns the remote address of the connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// Close shuts down the connection and waits for its watcher to exit. It
// returns the error from closing the underlying connection.
func (c *Conn) Close() error {
	c.cancel()
	c.wg.Wait()

	return c.closeErr
}
