package seed_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/seed"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
)

var opts = peer.Options{DialTimeout: time.Second, Timeout: 2 * time.Second}

func setup(t *testing.T, size int, have peer.Bitfield) (*metainfo.Metainfo, []byte, string) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}

	raw, err := metainfo.Create(bytes.NewReader(data), "seeded.bin", "http://tracker.test/announce", 16*1024)
	require.NoError(t, err)

	mi, err := metainfo.Parse(raw)
	require.NoError(t, err)

	id, err := peer.NewID("-SD0001-")
	require.NoError(t, err)

	s := seed.New(mi, storage.NewMemoryFrom(data), id, opts)
	if have != nil {
		s.Advertise(have)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	return mi, data, l.Addr().String()
}

func dial(t *testing.T, mi *metainfo.Metainfo, addr string) *peer.Conn {
	t.Helper()

	id, err := peer.NewID(peer.DefaultIDPrefix)
	require.NoError(t, err)

	conn, err := peer.Dial(context.Background(), addr, mi.InfoHash, id, opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestServeDownload(t *testing.T) {
	mi, data, addr := setup(t, 50000, nil)

	conn := dial(t, mi, addr)
	sink := storage.NewMemory(mi.Info.Length)

	require.NoError(t, torrent.NewDownloader(mi, conn, sink).DownloadAll(context.Background()))
	assert.Equal(t, data, sink.Bytes())
}

func TestServeAdvertisesBitfield(t *testing.T) {
	have := peer.NewBitfield(4) // 50000 bytes in 16 KiB pieces
	have.Set(1)

	mi, _, addr := setup(t, 50000, have)
	conn := dial(t, mi, addr)

	msg, err := conn.ReadMsg()
	require.NoError(t, err)
	require.Equal(t, peer.MsgBitfield, msg.ID)
	assert.Equal(t, []byte(have), msg.Payload)

	require.NoError(t, conn.WriteInterested())
	msg, err = conn.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, peer.MsgUnchoke, msg.ID)

	require.NoError(t, conn.WriteRequest(0, 0, 16*1024))
	_, err = conn.ReadMsg()
	assert.Error(t, err, "seeder should drop a leecher asking for an unadvertised piece")
}

func TestServeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name                 string
		index, begin, length uint32
	}{
		{"past piece end", 0, 16*1024 - 10, 20},
		{"zero length", 0, 0, 0},
		{"too long", 0, 0, seed.MaxRequestLength + 1},
		{"no such piece", 99, 0, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mi, _, addr := setup(t, 40000, nil)
			conn := dial(t, mi, addr)

			msg, err := conn.ReadMsg()
			require.NoError(t, err)
			require.Equal(t, peer.MsgBitfield, msg.ID)

			require.NoError(t, conn.WriteRequest(tc.index, tc.begin, tc.length))

			_, err = conn.ReadMsg()
			assert.Error(t, err)
		})
	}
}

func TestServeRejectsOtherTorrent(t *testing.T) {
	mi, _, addr := setup(t, 1000, nil)

	other := *mi
	other.InfoHash[0] ^= 0xff

	id, err := peer.NewID(peer.DefaultIDPrefix)
	require.NoError(t, err)

	_, err = peer.Dial(context.Background(), addr, other.InfoHash, id, opts)
	require.Error(t, err)
	assert.False(t, errors.Is(err, peer.ErrTimeout), "seeder should hang up, not stall: %v", err)
}

func TestServeStopsOnCancel(t *testing.T) {
	mi, _, _ := setup(t, 1000, nil)

	id, err := peer.NewID("-SD0001-")
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- seed.New(mi, storage.NewMemory(mi.Info.Length), id, opts).Serve(ctx, l) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
