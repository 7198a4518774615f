package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ErrInvalidType is returned when encoding a value outside the closed set
// of bencode types (including a nil Value).
var ErrInvalidType = errors.New("invalid type for bencode")

// Encode returns the canonical bencode encoding of v. Dictionary keys are
// written in ascending byte order regardless of how the Dict was built.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Encoder writes bencode values to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencode encoding of v to the stream.
func (e *Encoder) Encode(v Value) error {
	switch val := v.(type) {
	case String:
		return e.encodeBytes(val)
	case Int:
		return e.encodeInt(int64(val))
	case List:
		return e.encodeList(val)
	case Dict:
		return e.encodeDict(val)
	default:
		return fmt.Errorf("bencode: %w: %s", ErrInvalidType, TypeName(v))
	}
}

func (e *Encoder) encodeInt(i int64) error {
	_, err := e.w.Write(EncodeInt(i))
	return err
}

func (e *Encoder) encodeBytes(b []byte) error {
	if _, err := io.WriteString(e.w, strconv.Itoa(len(b))+":"); err != nil {
		return err
	}

	_, err := e.w.Write(b)

	return err
}

func (e *Encoder) encodeList(l List) error {
	if _, err := e.w.Write([]byte("l")); err != nil {
		return err
	}

	for _, item := range l {
		if err := e.Encode(item); err != nil {
			return err
		}
	}

	_, err := e.w.Write([]byte("e"))

	return err
}

func (e *Encoder) encodeDict(d Dict) error {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	// Go string comparison is bytewise, which is exactly the raw-byte
	// ordering bencode requires.
	sort.Strings(keys)

	if _, err := e.w.Write([]byte("d")); err != nil {
		return err
	}

	for _, k := range keys {
		if err := e.encodeBytes([]byte(k)); err != nil {
			return err
		}

		if err := e.Encode(d[k]); err != nil {
			return fmt.Errorf("encoding dict value for key %q: %w", k, err)
		}
	}

	_, err := e.w.Write([]byte("e"))

	return err
}

// EncodeString encodes a string to bencode format.
func EncodeString(s string) []byte {
	return append([]byte(strconv.Itoa(len(s))+":"), s...)
}

// EncodeInt encodes an integer to bencode format.
func EncodeInt(i int64) []byte {
	return []byte("i" + strconv.FormatInt(i, 10) + "e")
}
