package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"time"
)

// UDP tracker protocol constants (BEP 15).
const (
	protocolID = 0x41727101980

	actionConnect  = 0
	actionAnnounce = 1
	actionError    = 3

	connectRequestLen   = 16
	connectResponseLen  = 16
	announceRequestLen  = 98
	announceResponseMin = 20
	maxDatagram         = 64 * 1024
)

// UDPClient implements the UDP tracker protocol.
type UDPClient struct {
	host    string
	timeout time.Duration
}

// NewUDPClient creates a client for the tracker at host:port. A zero
// timeout selects DefaultUDPTimeout; it applies to every receive.
func NewUDPClient(host string, timeout time.Duration) *UDPClient {
	if timeout <= 0 {
		timeout = DefaultUDPTimeout
	}

	return &UDPClient{host: host, timeout: timeout}
}

// Announce performs the connect exchange followed by one announce. A
// receive that does not complete within the timeout fails with
// KindTimeout; nothing is retransmitted.
func (c *UDPClient) Announce(ctx context.Context, req *AnnounceRequest) (*Response, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "udp", c.host)
	if err != nil {
		return nil, transportError("connect", c.url(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	connID, err := c.connect(conn)
	if err != nil {
		return nil, c.interrupted(ctx, "connect", err)
	}

	resp, err := c.announce(conn, connID, req)
	if err != nil {
		return nil, c.interrupted(ctx, "announce", err)
	}

	return resp, nil
}

// interrupted returns the context's error in place of err once ctx is done.
func (c *UDPClient) interrupted(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return transportError(op, c.url(), ctxErr)
	}

	return err
}

func (c *UDPClient) url() string {
	return "udp://" + c.host
}

// connect obtains a connection id from the tracker.
func (c *UDPClient) connect(conn net.Conn) (uint64, error) {
	transactionID := rand.Uint32()

	buf := make([]byte, connectRequestLen)
	binary.BigEndian.PutUint64(buf[0:8], protocolID)
	binary.BigEndian.PutUint32(buf[8:12], actionConnect)
	binary.BigEndian.PutUint32(buf[12:16], transactionID)

	if _, err := conn.Write(buf); err != nil {
		return 0, transportError("connect", c.url(), err)
	}

	resp, err := c.receive(conn, "connect")
	if err != nil {
		return 0, err
	}

	if err := checkHeader(resp, actionConnect, transactionID, connectResponseLen); err != nil {
		return 0, &Error{Kind: KindBadResponse, Op: "connect", URL: c.url(), Err: err}
	}

	return binary.BigEndian.Uint64(resp[8:16]), nil
}

// announce sends the announce request using connID.
func (c *UDPClient) announce(conn net.Conn, connID uint64, req *AnnounceRequest) (*Response, error) {
	transactionID := rand.Uint32()

	buf := make([]byte, announceRequestLen)
	binary.BigEndian.PutUint64(buf[0:8], connID)
	binary.BigEndian.PutUint32(buf[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(buf[12:16], transactionID)
	copy(buf[16:36], req.InfoHash[:])
	copy(buf[36:56], req.PeerID[:])
	binary.BigEndian.PutUint64(buf[56:64], uint64(req.Downloaded))
	binary.BigEndian.PutUint64(buf[64:72], uint64(req.Left))
	binary.BigEndian.PutUint64(buf[72:80], uint64(req.Uploaded))
	binary.BigEndian.PutUint32(buf[80:84], 0)                  // event: none
	binary.BigEndian.PutUint32(buf[84:88], 0)                  // IP address: sender's
	binary.BigEndian.PutUint32(buf[88:92], rand.Uint32())      // key
	binary.BigEndian.PutUint32(buf[92:96], uint32(0xFFFFFFFF)) // num_want: -1, tracker default
	binary.BigEndian.PutUint16(buf[96:98], req.Port)

	if _, err := conn.Write(buf); err != nil {
		return nil, transportError("announce", c.url(), err)
	}

	resp, err := c.receive(conn, "announce")
	if err != nil {
		return nil, err
	}

	if err := checkHeader(resp, actionAnnounce, transactionID, announceResponseMin); err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "announce", URL: c.url(), Err: err}
	}

	peers, err := parseCompactPeers(resp[announceResponseMin:])
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "announce", URL: c.url(), Err: err}
	}

	return &Response{
		Interval: int(binary.BigEndian.Uint32(resp[8:12])),
		Leechers: int(binary.BigEndian.Uint32(resp[12:16])),
		Seeders:  int(binary.BigEndian.Uint32(resp[16:20])),
		Peers:    peers,
	}, nil
}

// receive reads one datagram under a fresh read deadline.
func (c *UDPClient) receive(conn net.Conn, op string) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, transportError(op, c.url(), err)
	}

	buf := make([]byte, maxDatagram)

	n, err := conn.Read(buf)
	if err != nil {
		return nil, transportError(op, c.url(), err)
	}

	return buf[:n], nil
}

// checkHeader validates action and transaction id of a response. An
// error action carries a message instead of the expected body.
func checkHeader(resp []byte, wantAction, wantTransaction uint32, minLen int) error {
	if len(resp) < 8 {
		return fmt.Errorf("response too short: %d bytes", len(resp))
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	transaction := binary.BigEndian.Uint32(resp[4:8])

	if transaction != wantTransaction {
		return fmt.Errorf("transaction id mismatch: got %#x, want %#x", transaction, wantTransaction)
	}

	if action == actionError {
		return fmt.Errorf("tracker error: %s", string(resp[8:]))
	}

	if action != wantAction {
		return fmt.Errorf("unexpected action %d, want %d", action, wantAction)
	}

	if len(resp) < minLen {
		return fmt.Errorf("response too short: %d bytes, want at least %d", len(resp), minLen)
	}

	return nil
}
