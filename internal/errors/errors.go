package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"time"

	"github.com/NamanBalaji/btcore/pkg/torrent"
	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
	"github.com/NamanBalaji/btcore/pkg/torrent/metainfo"
	"github.com/NamanBalaji/btcore/pkg/torrent/peer"
	"github.com/NamanBalaji/btcore/pkg/torrent/storage"
	"github.com/NamanBalaji/btcore/pkg/torrent/tracker"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
)

type ErrorCategory string

const (
	CategoryNetwork   ErrorCategory = "NETWORK"   // Connection issues
	CategoryTimeout   ErrorCategory = "TIMEOUT"   // Deadline passed waiting on a peer or tracker
	CategoryProtocol  ErrorCategory = "PROTOCOL"  // Malformed or unexpected wire data
	CategoryIntegrity ErrorCategory = "INTEGRITY" // Piece hash mismatch
	CategoryIO        ErrorCategory = "IO"        // File system issues
	CategoryResource  ErrorCategory = "RESOURCE"  // Piece not held, unsupported source, etc.
	CategoryContext   ErrorCategory = "CONTEXT"   // Context cancellation
	CategoryUnknown   ErrorCategory = "UNKNOWN"   // Unclassified errors
)

// Protocol identifies which layer produced an error.
type Protocol string

const (
	ProtocolTracker  Protocol = "TRACKER"
	ProtocolPeer     Protocol = "PEER"
	ProtocolMetainfo Protocol = "METAINFO"
	ProtocolGeneric  Protocol = "GENERIC"
)

// DownloadError represents an error that occurred during a download.
type DownloadError struct {
	Err       error         // Original error
	Category  ErrorCategory // General category
	Protocol  Protocol      // Which layer generated this error
	Retryable bool          // Whether another attempt or another peer may succeed
	Timestamp time.Time     // When the error occurred
	Resource  string        // Tracker URL, peer address, or file path
	Details   map[string]any
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	if e.Protocol == ProtocolGeneric {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s: %v", e.Protocol, e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ErrNoPeers is returned when a tracker yields no usable peer.
var ErrNoPeers = New("no peers available")

func newError(err error, category ErrorCategory, protocol Protocol, retryable bool, resource string) *DownloadError {
	return &DownloadError{
		Err:       err,
		Category:  category,
		Protocol:  protocol,
		Retryable: retryable,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewNetworkError creates a network-related error
func NewNetworkError(err error, resource string, retryable bool) *DownloadError {
	return newError(err, CategoryNetwork, ProtocolGeneric, retryable, resource)
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *DownloadError {
	return newError(err, CategoryIO, ProtocolGeneric, false, resource)
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *DownloadError {
	return newError(err, CategoryContext, ProtocolGeneric, false, resource)
}

// Classify wraps err in a DownloadError whose category and Retryable flag
// reflect the failure. Timeouts and connection failures are retryable;
// malformed data, integrity failures and cancellation are not. An err that
// already is a DownloadError is returned as is.
func Classify(err error, resource string) *DownloadError {
	if err == nil {
		return nil
	}

	var de *DownloadError
	if As(err, &de) {
		return de
	}

	switch {
	case Is(err, context.Canceled):
		return NewContextError(err, resource)

	case Is(err, tracker.ErrTimeout):
		return newError(err, CategoryTimeout, ProtocolTracker, true, resource)
	case Is(err, tracker.ErrNetwork):
		return newError(err, CategoryNetwork, ProtocolTracker, true, resource)
	case Is(err, tracker.ErrBadResponse):
		return newError(err, CategoryProtocol, ProtocolTracker, false, resource)
	case Is(err, tracker.ErrUnsupportedScheme):
		return newError(err, CategoryResource, ProtocolTracker, false, resource)

	case Is(err, torrent.ErrHashMismatch):
		return newError(err, CategoryIntegrity, ProtocolPeer, false, resource)
	case Is(err, torrent.ErrPieceUnavailable):
		return newError(err, CategoryResource, ProtocolPeer, true, resource)
	case Is(err, peer.ErrTruncated) && (Is(err, io.EOF) || Is(err, io.ErrUnexpectedEOF)):
		// The peer hung up mid-frame.
		return newError(err, CategoryNetwork, ProtocolPeer, true, resource)
	case Is(err, torrent.ErrProtocol),
		Is(err, peer.ErrProtocolMismatch),
		Is(err, peer.ErrInfoHashMismatch),
		Is(err, peer.ErrUnknownID),
		Is(err, peer.ErrTruncated),
		Is(err, peer.ErrMsgTooBig),
		Is(err, peer.ErrBadPayload),
		Is(err, peer.ErrInvalidBitfield):
		return newError(err, CategoryProtocol, ProtocolPeer, false, resource)
	case Is(err, peer.ErrTimeout):
		return newError(err, CategoryTimeout, ProtocolPeer, true, resource)

	case Is(err, bencode.ErrInvalidBencode),
		Is(err, bencode.ErrUnexpectedEOF),
		Is(err, bencode.ErrTrailingData):
		return newError(err, CategoryProtocol, ProtocolMetainfo, false, resource)
	case isValidationError(err):
		return newError(err, CategoryProtocol, ProtocolMetainfo, false, resource)

	case Is(err, context.DeadlineExceeded):
		return newError(err, CategoryTimeout, ProtocolGeneric, true, resource)
	case Is(err, storage.ErrOutOfRange):
		return NewIOError(err, resource)
	case isPathError(err):
		return NewIOError(err, resource)
	case Is(err, io.EOF), Is(err, io.ErrUnexpectedEOF):
		return NewNetworkError(err, resource, true)
	}

	var netErr net.Error
	if As(err, &netErr) {
		if netErr.Timeout() {
			return newError(err, CategoryTimeout, ProtocolGeneric, true, resource)
		}
		return NewNetworkError(err, resource, true)
	}

	var opErr *net.OpError
	if As(err, &opErr) {
		return NewNetworkError(err, resource, true)
	}

	return newError(err, CategoryUnknown, ProtocolGeneric, false, resource)
}

func isValidationError(err error) bool {
	var ve *metainfo.ValidationError
	return As(err, &ve)
}

func isPathError(err error) bool {
	var pe *fs.PathError
	return As(err, &pe)
}

// IsRetryable determines if an error should be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Retryable
	}

	return false
}

// IsNetworkError determines if the error is network-related
func IsNetworkError(err error) bool {
	var downloadErr *DownloadError
	return As(err, &downloadErr) && downloadErr.Category == CategoryNetwork
}

// IsIOError determines if the error is I/O related
func IsIOError(err error) bool {
	var downloadErr *DownloadError
	return As(err, &downloadErr) && downloadErr.Category == CategoryIO
}

// IsProtocolError determines if the error came from the given layer
func IsProtocolError(err error, protocol Protocol) bool {
	var downloadErr *DownloadError
	return As(err, &downloadErr) && downloadErr.Protocol == protocol
}

// CategoryOf returns the category of a DownloadError, or CategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var downloadErr *DownloadError
	if As(err, &downloadErr) {
		return downloadErr.Category
	}
	return CategoryUnknown
}

// WithDetails adds additional context to a DownloadError
func WithDetails(err error, details map[string]any) error {
	var downloadErr *DownloadError
	if !As(err, &downloadErr) {
		return err
	}

	if downloadErr.Details == nil {
		downloadErr.Details = make(map[string]any)
	}

	for k, v := range details {
		downloadErr.Details[k] = v
	}

	return downloadErr
}
