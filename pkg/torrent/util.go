package torrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/NamanBalaji/btcore/internal/logger"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
)

// maxTorrentFileSize caps how much of a remote .torrent is read.
const maxTorrentFileSize = 16 << 20

// ErrMagnetUnsupported is returned for magnet links; fetching metadata from
// peers is not supported.
var ErrMagnetUnsupported = errors.New("magnet links are not supported")

// IsTorrentContentType reports whether a Content-Type header denotes a
// .torrent file.
func IsTorrentContentType(contentType string) bool {
	switch strings.TrimSpace(strings.Split(contentType, ";")[0]) {
	case "application/x-bittorrent", "application/torrent":
		return true
	default:
		return false
	}
}

// IsMagnetLink checks if a given string is a magnet link with a BitTorrent
// info-hash.
func IsMagnetLink(urlStr string) bool {
	if !strings.HasPrefix(urlStr, "magnet:?") {
		return false
	}

	u, err := url.Parse(urlStr)
	if err != nil || u.Scheme != "magnet" {
		return false
	}

	params, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return false
	}

	return strings.HasPrefix(params.Get("xt"), "urn:btih:")
}

// LoadMetainfo reads and parses a .torrent from a local path or an
// http(s) URL.
func LoadMetainfo(ctx context.Context, src string) (*metainfo.Metainfo, error) {
	if IsMagnetLink(src) {
		return nil, ErrMagnetUnsupported
	}

	var (
		data []byte
		err  error
	)

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err = fetchTorrentFile(ctx, src)
	} else {
		data, err = os.ReadFile(src)
	}

	if err != nil {
		return nil, err
	}

	return metainfo.Parse(data)
}

func fetchTorrentFile(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", src, resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasSuffix(src, ".torrent") && !IsTorrentContentType(ct) {
		return nil, fmt.Errorf("fetch %s: content type %q is not a torrent", src, ct)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxTorrentFileSize))
}
