package bencode

import (
	"errors"
	"fmt"
	"strconv"
)

// Decoder errors.
var (
	ErrInvalidBencode = errors.New("invalid bencode")
	ErrUnexpectedEOF  = errors.New("unexpected EOF")
	ErrTrailingData   = errors.New("trailing data after value")
)

// maxDepth bounds container nesting so hostile input cannot exhaust the stack.
const maxDepth = 256

// SyntaxError describes malformed input and the offset at which it was found.
type SyntaxError struct {
	Offset int
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: %v at offset %d: %s", e.Err, e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Decode decodes the first bencode value in data and returns it along with
// the number of bytes consumed. Bytes after the value are left untouched.
func Decode(data []byte) (Value, int, error) {
	d := &Decoder{data: data}

	v, err := d.decodeValue(0)
	if err != nil {
		return nil, 0, err
	}

	return v, d.pos, nil
}

// DecodeAll decodes data which must contain exactly one bencode value.
func DecodeAll(data []byte) (Value, error) {
	v, n, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if n != len(data) {
		return nil, &SyntaxError{Offset: n, Msg: fmt.Sprintf("%d unread bytes", len(data)-n), Err: ErrTrailingData}
	}

	return v, nil
}

// Decoder is a recursive-descent bencode parser over an in-memory buffer.
// It never reads past the end of data; truncated input yields
// ErrUnexpectedEOF.
type Decoder struct {
	data []byte
	pos  int
}

func (d *Decoder) errorf(sentinel error, format string, args ...any) error {
	return &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf(format, args...), Err: sentinel}
}

func (d *Decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, d.errorf(ErrUnexpectedEOF, "input ended")
	}

	return d.data[d.pos], nil
}

// decodeValue dispatches on the leading byte.
func (d *Decoder) decodeValue(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, d.errorf(ErrInvalidBencode, "nesting deeper than %d", maxDepth)
	}

	b, err := d.peek()
	if err != nil {
		return nil, err
	}

	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList(depth)
	case b == 'd':
		return d.decodeDict(depth)
	case b >= '0' && b <= '9':
		return d.decodeString()
	default:
		return nil, d.errorf(ErrInvalidBencode, "unexpected byte %q", b)
	}
}

// decodeInt decodes i<decimal>e.
func (d *Decoder) decodeInt() (Int, error) {
	start := d.pos
	d.pos++ // 'i'

	end := d.pos
	for end < len(d.data) && d.data[end] != 'e' {
		end++
	}

	if end >= len(d.data) {
		d.pos = len(d.data)
		return 0, d.errorf(ErrUnexpectedEOF, "unterminated integer starting at %d", start)
	}

	digits := d.data[d.pos:end]
	if err := validateIntDigits(digits); err != nil {
		return 0, d.errorf(ErrInvalidBencode, "%v", err)
	}

	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, d.errorf(ErrInvalidBencode, "integer %q out of range", digits)
	}

	d.pos = end + 1

	return Int(n), nil
}

func validateIntDigits(digits []byte) error {
	if len(digits) == 0 {
		return errors.New("empty integer")
	}

	body := digits
	if body[0] == '-' {
		body = body[1:]
		if len(body) == 0 {
			return errors.New("sign without digits")
		}

		if body[0] == '0' {
			return errors.New("negative zero or leading zero")
		}
	}

	for _, c := range body {
		if c < '0' || c > '9' {
			return fmt.Errorf("non-digit %q in integer", c)
		}
	}

	if len(body) > 1 && body[0] == '0' {
		return errors.New("leading zeros in integer")
	}

	return nil
}

// decodeString decodes <length>:<bytes>.
func (d *Decoder) decodeString() (String, error) {
	colon := d.pos
	for colon < len(d.data) && d.data[colon] != ':' {
		c := d.data[colon]
		if c < '0' || c > '9' {
			d.pos = colon
			return nil, d.errorf(ErrInvalidBencode, "non-digit %q in string length", c)
		}
		colon++
	}

	if colon >= len(d.data) {
		d.pos = len(d.data)
		return nil, d.errorf(ErrUnexpectedEOF, "string length not terminated by ':'")
	}

	lenStr := d.data[d.pos:colon]
	if len(lenStr) > 1 && lenStr[0] == '0' {
		return nil, d.errorf(ErrInvalidBencode, "leading zeros in string length")
	}

	length, err := strconv.ParseInt(string(lenStr), 10, 64)
	if err != nil {
		return nil, d.errorf(ErrInvalidBencode, "string length %q out of range", lenStr)
	}

	d.pos = colon + 1

	remaining := int64(len(d.data) - d.pos)
	if length > remaining {
		return nil, d.errorf(ErrUnexpectedEOF, "string declares %d bytes, %d remain", length, remaining)
	}

	s := make(String, length)
	copy(s, d.data[d.pos:d.pos+int(length)])
	d.pos += int(length)

	return s, nil
}

// decodeList decodes l<values>e.
func (d *Decoder) decodeList(depth int) (List, error) {
	d.pos++ // 'l'

	list := List{}
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == 'e' {
			d.pos++
			return list, nil
		}

		v, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}

		list = append(list, v)
	}
}

// decodeDict decodes d<key><value>...e. Keys must be byte strings and
// must not repeat. Out-of-order keys are accepted; Encode restores the
// canonical order.
func (d *Decoder) decodeDict(depth int) (Dict, error) {
	d.pos++ // 'd'

	dict := Dict{}
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == 'e' {
			d.pos++
			return dict, nil
		}

		if b < '0' || b > '9' {
			return nil, d.errorf(ErrInvalidBencode, "dict key must be a string, got %q", b)
		}

		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}

		if _, dup := dict[string(key)]; dup {
			return nil, d.errorf(ErrInvalidBencode, "duplicate dict key %q", key)
		}

		v, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("decoding dict value for key %q: %w", key, err)
		}

		dict[string(key)] = v
	}
}
