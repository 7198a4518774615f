package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies tracker failures.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindBadResponse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindBadResponse:
		return "bad response"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrNetwork     = errors.New("tracker network error")
	ErrTimeout     = errors.New("tracker timeout")
	ErrBadResponse = errors.New("bad tracker response")

	ErrUnsupportedScheme = errors.New("unsupported announce URL scheme")
)

// Error is returned by every tracker operation.
type Error struct {
	Kind Kind
	Op   string // "connect", "announce", ...
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker %s %s (%s): %v", e.Op, e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) and friends match on Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrBadResponse:
		return e.Kind == KindBadResponse
	default:
		return false
	}
}

func badResponse(op, url string, format string, args ...any) *Error {
	return &Error{Kind: KindBadResponse, Op: op, URL: url, Err: fmt.Errorf(format, args...)}
}

// transportError classifies an I/O error as a timeout or a network failure.
func transportError(op, url string, err error) *Error {
	kind := KindNetwork

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}

	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}
