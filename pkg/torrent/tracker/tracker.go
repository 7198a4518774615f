// Package tracker discovers peers by announcing to HTTP(S) and UDP (BEP 15)
// trackers using the compact peer list format.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

const (
	// DefaultHTTPTimeout bounds a whole HTTP announce.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultUDPTimeout bounds each UDP receive.
	DefaultUDPTimeout = 5 * time.Second

	compactPeerLen = 6
)

// Peer is a candidate peer address from a tracker response.
type Peer struct {
	IP   net.IP
	Port uint16
}

// String returns the host:port form used for dialing.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// AnnounceRequest contains announce parameters. Compact is always
// requested.
type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
}

// Response contains the tracker's answer.
type Response struct {
	Interval int // advisory re-announce interval in seconds
	Leechers int
	Seeders  int
	Peers    []Peer
}

// Client announces to one tracker.
type Client interface {
	Announce(ctx context.Context, req *AnnounceRequest) (*Response, error)
}

// Options tunes tracker transports. Zero values select the defaults.
type Options struct {
	HTTPTimeout time.Duration
	UDPTimeout  time.Duration
}

// New returns the client for announceURL's scheme.
func New(announceURL string, opts Options) (Client, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "parse", URL: announceURL, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPClient(announceURL, opts.HTTPTimeout), nil
	case "udp":
		return NewUDPClient(u.Host, opts.UDPTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// NewRequest builds the announce request for a fresh download of mi.
func NewRequest(mi *metainfo.Metainfo, peerID [20]byte, port uint16) *AnnounceRequest {
	return &AnnounceRequest{
		InfoHash: mi.InfoHash,
		PeerID:   peerID,
		Port:     port,
		Left:     mi.Info.Length,
	}
}

// Announce queries mi's tracker and returns the peers it knows about.
func Announce(ctx context.Context, mi *metainfo.Metainfo, peerID [20]byte, port uint16, opts Options) ([]Peer, error) {
	c, err := New(mi.Announce, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.Announce(ctx, NewRequest(mi, peerID, port))
	if err != nil {
		return nil, err
	}

	return resp.Peers, nil
}

// parseCompactPeers parses compact peer format (6 bytes per peer).
func parseCompactPeers(data []byte) ([]Peer, error) {
	if len(data)%compactPeerLen != 0 {
		return nil, fmt.Errorf("compact peer list length %d is not a multiple of %d", len(data), compactPeerLen)
	}

	numPeers := len(data) / compactPeerLen
	peers := make([]Peer, 0, numPeers)

	for i := range numPeers {
		offset := i * compactPeerLen
		ip := make(net.IP, net.IPv4len)
		copy(ip, data[offset:offset+4])

		peers = append(peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
		})
	}

	return peers, nil
}
