package tracker_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/tracker"
)

var (
	testInfoHash = [20]byte{0x00, 0x20, 0x26, 0x2b, 'a', 'Z', '~', 0xff, 0x80, 0x7f, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	testPeerID   = [20]byte{'-', 'B', 'C', '0', '0', '0', '1', '-', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l'}
)

func testRequest() *tracker.AnnounceRequest {
	return &tracker.AnnounceRequest{
		InfoHash: testInfoHash,
		PeerID:   testPeerID,
		Port:     6881,
		Left:     71,
	}
}

func compactPeers() []byte {
	return []byte{
		192, 168, 1, 10, 0x1a, 0xe1, // 192.168.1.10:6881
		10, 0, 0, 1, 0x00, 0x50, // 10.0.0.1:80
	}
}

func encodeResponse(t *testing.T, d bencode.Dict) []byte {
	t.Helper()

	b, err := bencode.Encode(d)
	require.NoError(t, err)

	return b
}

func TestHTTPAnnounce(t *testing.T) {
	var gotQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		q := r.URL.Query()

		assert.Equal(t, string(testInfoHash[:]), q.Get("info_hash"))
		assert.Equal(t, string(testPeerID[:]), q.Get("peer_id"))
		assert.Equal(t, "6881", q.Get("port"))
		assert.Equal(t, "0", q.Get("uploaded"))
		assert.Equal(t, "0", q.Get("downloaded"))
		assert.Equal(t, "71", q.Get("left"))
		assert.Equal(t, "1", q.Get("compact"))

		w.Write(encodeResponse(t, bencode.Dict{
			"interval":   bencode.Int(1800),
			"complete":   bencode.Int(3),
			"incomplete": bencode.Int(4),
			"peers":      bencode.String(compactPeers()),
		}))
	}))
	defer server.Close()

	c, err := tracker.New(server.URL+"/announce", tracker.Options{})
	require.NoError(t, err)

	resp, err := c.Announce(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1800, resp.Interval)
	assert.Equal(t, 3, resp.Seeders)
	assert.Equal(t, 4, resp.Leechers)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "192.168.1.10:6881", resp.Peers[0].String())
	assert.Equal(t, "10.0.0.1:80", resp.Peers[1].String())

	// Raw info-hash bytes are percent-encoded, never hex and never '+'.
	assert.Contains(t, gotQuery, "info_hash=%00%20%26%2BaZ~%FF%80%7F%01")
}

func TestHTTPAnnounceKeepsExistingQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("passkey"))
		assert.Equal(t, "1", r.URL.Query().Get("compact"))
		w.Write(encodeResponse(t, bencode.Dict{"interval": bencode.Int(60), "peers": bencode.Str("")}))
	}))
	defer server.Close()

	resp, err := tracker.NewHTTPClient(server.URL+"/announce?passkey=secret", 0).Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, resp.Peers)
}

func TestHTTPAnnounceBadResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   func(t *testing.T) []byte
		errMsg string
	}{
		{
			name:   "not bencode",
			status: http.StatusOK,
			body:   func(*testing.T) []byte { return []byte("<html>") },
		},
		{
			name:   "list instead of dict",
			status: http.StatusOK,
			body:   func(*testing.T) []byte { return []byte("le") },
		},
		{
			name:   "failure reason",
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return encodeResponse(t, bencode.Dict{"failure reason": bencode.Str("unregistered torrent")})
			},
			errMsg: "unregistered torrent",
		},
		{
			name:   "missing interval",
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return encodeResponse(t, bencode.Dict{"peers": bencode.String(compactPeers())})
			},
			errMsg: "interval",
		},
		{
			name:   "peers not multiple of six",
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return encodeResponse(t, bencode.Dict{"interval": bencode.Int(1), "peers": bencode.String(compactPeers()[:7])})
			},
			errMsg: "multiple of 6",
		},
		{
			name:   "peers as dict list",
			status: http.StatusOK,
			body: func(t *testing.T) []byte {
				return encodeResponse(t, bencode.Dict{"interval": bencode.Int(1), "peers": bencode.List{}})
			},
			errMsg: "peers",
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   func(*testing.T) []byte { return []byte("boom") },
			errMsg: "non-200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write(tt.body(t))
			}))
			defer server.Close()

			_, err := tracker.NewHTTPClient(server.URL, time.Second).Announce(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tracker.ErrBadResponse)

			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestHTTPAnnounceTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := tracker.NewHTTPClient(server.URL, 50*time.Millisecond).Announce(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrTimeout)
}

func TestHTTPAnnounceNetworkError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = tracker.NewHTTPClient("http://"+addr+"/announce", time.Second).Announce(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrNetwork)
}

// udpTracker is a scripted BEP 15 tracker. reply builds the datagram sent
// back for each request; returning nil sends nothing.
type udpTracker struct {
	conn  net.PacketConn
	reply func(req []byte) []byte
}

func newUDPTracker(t *testing.T, reply func(req []byte) []byte) *udpTracker {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ut := &udpTracker{conn: conn, reply: reply}
	t.Cleanup(func() { conn.Close() })

	go ut.serve()

	return ut
}

func (u *udpTracker) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		if out := u.reply(append([]byte(nil), buf[:n]...)); out != nil {
			u.conn.WriteTo(out, addr)
		}
	}
}

func (u *udpTracker) addr() string {
	return u.conn.LocalAddr().String()
}

const testConnID = 0x1122334455667788

func connectReply(req []byte) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:4], 0)
	copy(out[4:8], req[12:16])
	binary.BigEndian.PutUint64(out[8:16], testConnID)

	return out
}

func announceReply(req []byte, peers []byte) []byte {
	out := make([]byte, 20, 20+len(peers))
	binary.BigEndian.PutUint32(out[0:4], 1)
	copy(out[4:8], req[12:16])
	binary.BigEndian.PutUint32(out[8:12], 900)
	binary.BigEndian.PutUint32(out[12:16], 2)
	binary.BigEndian.PutUint32(out[16:20], 5)

	return append(out, peers...)
}

func TestUDPAnnounce(t *testing.T) {
	var announceReq []byte

	ut := newUDPTracker(t, func(req []byte) []byte {
		if len(req) == 16 {
			if binary.BigEndian.Uint64(req[0:8]) != 0x41727101980 {
				return nil
			}
			return connectReply(req)
		}

		announceReq = req
		return announceReply(req, compactPeers())
	})

	c, err := tracker.New("udp://"+ut.addr(), tracker.Options{UDPTimeout: time.Second})
	require.NoError(t, err)

	resp, err := c.Announce(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 900, resp.Interval)
	assert.Equal(t, 2, resp.Leechers)
	assert.Equal(t, 5, resp.Seeders)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "192.168.1.10:6881", resp.Peers[0].String())

	require.Len(t, announceReq, 98)
	assert.Equal(t, uint64(testConnID), binary.BigEndian.Uint64(announceReq[0:8]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(announceReq[8:12]))
	assert.True(t, bytes.Equal(testInfoHash[:], announceReq[16:36]))
	assert.True(t, bytes.Equal(testPeerID[:], announceReq[36:56]))
	assert.Equal(t, uint64(71), binary.BigEndian.Uint64(announceReq[64:72]))
	assert.Equal(t, uint16(6881), binary.BigEndian.Uint16(announceReq[96:98]))
}

func TestUDPAnnounceTimeout(t *testing.T) {
	ut := newUDPTracker(t, func([]byte) []byte { return nil })

	start := time.Now()
	_, err := tracker.NewUDPClient(ut.addr(), 100*time.Millisecond).Announce(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestUDPAnnounceTimeoutOnAnnounceStep(t *testing.T) {
	ut := newUDPTracker(t, func(req []byte) []byte {
		if len(req) == 16 {
			return connectReply(req)
		}
		return nil
	})

	_, err := tracker.NewUDPClient(ut.addr(), 100*time.Millisecond).Announce(context.Background(), testRequest())
	assert.ErrorIs(t, err, tracker.ErrTimeout)
}

func TestUDPAnnounceBadResponses(t *testing.T) {
	tests := []struct {
		name  string
		reply func(req []byte) []byte
		want  string
	}{
		{
			name: "connect transaction mismatch",
			reply: func(req []byte) []byte {
				out := connectReply(req)
				out[7] ^= 0xff
				return out
			},
			want: "transaction id mismatch",
		},
		{
			name: "connect too short",
			reply: func(req []byte) []byte {
				return connectReply(req)[:12]
			},
			want: "too short",
		},
		{
			name: "tracker error action",
			reply: func(req []byte) []byte {
				if len(req) == 16 {
					return connectReply(req)
				}
				out := make([]byte, 8)
				binary.BigEndian.PutUint32(out[0:4], 3)
				copy(out[4:8], req[12:16])
				return append(out, "torrent not registered"...)
			},
			want: "torrent not registered",
		},
		{
			name: "announce peers misaligned",
			reply: func(req []byte) []byte {
				if len(req) == 16 {
					return connectReply(req)
				}
				return announceReply(req, compactPeers()[:8])
			},
			want: "multiple of 6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ut := newUDPTracker(t, tt.reply)

			_, err := tracker.NewUDPClient(ut.addr(), time.Second).Announce(context.Background(), testRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tracker.ErrBadResponse)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestUDPAnnounceContextCancel(t *testing.T) {
	ut := newUDPTracker(t, func([]byte) []byte { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tracker.NewUDPClient(ut.addr(), 10*time.Second).Announce(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUDPAnnounceCancelledIsNotTimeout(t *testing.T) {
	ut := newUDPTracker(t, func([]byte) []byte { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := tracker.NewUDPClient(ut.addr(), 10*time.Second).Announce(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, tracker.ErrTimeout)
}

func TestNewUnsupportedScheme(t *testing.T) {
	_, err := tracker.New("wss://tracker.example/announce", tracker.Options{})
	assert.ErrorIs(t, err, tracker.ErrUnsupportedScheme)
}

func TestAnnounceUsesMetainfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("left"))
		w.Write(encodeResponse(t, bencode.Dict{"interval": bencode.Int(10), "peers": bencode.String(compactPeers())}))
	}))
	defer server.Close()

	raw, err := metainfo.Create(strings.NewReader("hello"), "hello.txt", server.URL+"/announce", 16)
	require.NoError(t, err)

	mi, err := metainfo.Parse(raw)
	require.NoError(t, err)

	peers, err := tracker.Announce(context.Background(), mi, testPeerID, 6881, tracker.Options{})
	require.NoError(t, err)
	assert.Len(t, peers, 2)
}
