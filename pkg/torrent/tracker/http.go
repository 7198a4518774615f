package tracker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
)

// maxResponseBody caps how much of a tracker reply is read.
const maxResponseBody = 4 << 20

// HTTPClient implements the HTTP/HTTPS tracker protocol.
type HTTPClient struct {
	announceURL string
	client      *http.Client
}

// NewHTTPClient creates a new HTTP tracker client. A zero timeout selects
// DefaultHTTPTimeout.
func NewHTTPClient(announceURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	return &HTTPClient{
		announceURL: announceURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// Announce sends a single GET announce. Retrying is left to the caller.
func (c *HTTPClient) Announce(ctx context.Context, req *AnnounceRequest) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(req), nil)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "announce", URL: c.announceURL, Err: err}
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, transportError("announce", c.announceURL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, transportError("announce", c.announceURL, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, badResponse("announce", c.announceURL, "tracker returned non-200 status: %s", httpResp.Status)
	}

	return parseHTTPResponse(c.announceURL, body)
}

// requestURL appends the announce parameters. info_hash carries raw bytes
// and is escaped on its own so it never goes through a text encoding.
func (c *HTTPClient) requestURL(req *AnnounceRequest) string {
	params := url.Values{}
	params.Set("peer_id", string(req.PeerID[:]))
	params.Set("port", strconv.Itoa(int(req.Port)))
	params.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	params.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	params.Set("left", strconv.FormatInt(req.Left, 10))
	params.Set("compact", "1")

	sep := "?"
	if strings.Contains(c.announceURL, "?") {
		sep = "&"
	}

	return c.announceURL + sep + params.Encode() + "&info_hash=" + escapeBytes(req.InfoHash[:])
}

// escapeBytes percent-encodes every byte outside the RFC 3986 unreserved
// set. url.QueryEscape would turn 0x20 into '+', which some trackers
// decode differently.
func escapeBytes(b []byte) string {
	const hexDigits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(len(b) * 3)

	for _, c := range b {
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}

	return sb.String()
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// parseHTTPResponse parses the bencoded announce reply.
func parseHTTPResponse(announceURL string, body []byte) (*Response, error) {
	val, err := bencode.DecodeAll(body)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "announce", URL: announceURL, Err: err}
	}

	dict, ok := val.(bencode.Dict)
	if !ok {
		return nil, badResponse("announce", announceURL, "response is a %s, want dict", bencode.TypeName(val))
	}

	if reason, ok := dict["failure reason"].(bencode.String); ok {
		return nil, badResponse("announce", announceURL, "tracker returned failure: %s", string(reason))
	}

	interval, ok := dict["interval"].(bencode.Int)
	if !ok {
		return nil, badResponse("announce", announceURL, "missing or non-integer \"interval\"")
	}

	rawPeers, ok := dict["peers"].(bencode.String)
	if !ok {
		return nil, badResponse("announce", announceURL, "missing or non-string \"peers\"")
	}

	peers, err := parseCompactPeers(rawPeers)
	if err != nil {
		return nil, &Error{Kind: KindBadResponse, Op: "announce", URL: announceURL, Err: err}
	}

	resp := &Response{Interval: int(interval), Peers: peers}
	if complete, ok := dict["complete"].(bencode.Int); ok {
		resp.Seeders = int(complete)
	}

	if incomplete, ok := dict["incomplete"].(bencode.Int); ok {
		resp.Leechers = int(incomplete)
	}

	return resp, nil
}
