package torrent_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

func TestIsMagnetLink(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"magnet:?xt=urn:btih:d69f91e6b2ae4c542468d1073a71d4ea13879a7f&dn=sample", true},
		{"magnet:?dn=sample", false},
		{"magnet:xt=urn:btih:abc", false},
		{"http://example.com/a.torrent", false},
		{"", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, torrent.IsMagnetLink(tc.in), tc.in)
	}
}

func TestIsTorrentContentType(t *testing.T) {
	assert.True(t, torrent.IsTorrentContentType("application/x-bittorrent"))
	assert.True(t, torrent.IsTorrentContentType("application/x-bittorrent; charset=binary"))
	assert.True(t, torrent.IsTorrentContentType("application/torrent"))
	assert.False(t, torrent.IsTorrentContentType("text/html"))
	assert.False(t, torrent.IsTorrentContentType(""))
}

func TestLoadMetainfoFromFile(t *testing.T) {
	mi := newTorrent(t, content(5000), 1024)
	path := filepath.Join(t.TempDir(), "a.torrent")
	require.NoError(t, os.WriteFile(path, rawTorrent(t, mi), 0o644))

	got, err := torrent.LoadMetainfo(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, mi.InfoHash, got.InfoHash)

	_, err = torrent.LoadMetainfo(context.Background(), filepath.Join(t.TempDir(), "missing.torrent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMetainfoFromURL(t *testing.T) {
	mi := newTorrent(t, content(5000), 1024)
	raw := rawTorrent(t, mi)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/typed":
			w.Header().Set("Content-Type", "application/x-bittorrent")
			w.Write(raw)
		case "/file.torrent":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(raw)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	for _, p := range []string{"/typed", "/file.torrent"} {
		got, err := torrent.LoadMetainfo(context.Background(), srv.URL+p)
		require.NoError(t, err, p)
		assert.Equal(t, mi.InfoHash, got.InfoHash, p)
	}

	_, err := torrent.LoadMetainfo(context.Background(), srv.URL+"/page")
	assert.ErrorContains(t, err, "not a torrent")

	_, err = torrent.LoadMetainfo(context.Background(), srv.URL+"/gone.torrent")
	assert.ErrorContains(t, err, "404")
}

func TestLoadMetainfoRejectsMagnet(t *testing.T) {
	_, err := torrent.LoadMetainfo(context.Background(), "magnet:?xt=urn:btih:d69f91e6b2ae4c542468d1073a71d4ea13879a7f")
	assert.ErrorIs(t, err, torrent.ErrMagnetUnsupported)
}

func rawTorrent(t *testing.T, mi *metainfo.Metainfo) []byte {
	t.Helper()

	raw, err := bencode.Encode(bencode.Dict{
		"announce": bencode.Str(mi.Announce),
		"info":     mi.RawInfo(),
	})
	require.NoError(t, err)

	return raw
}
