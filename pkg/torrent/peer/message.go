package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageID identifies a framed peer wire message.
type MessageID uint8

const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return fmt.Sprintf("MessageID(%d)", uint8(id))
	}
}

var (
	// ErrTruncated indicates the stream ended inside a frame.
	ErrTruncated = errors.New("truncated frame")
	// ErrUnknownID indicates a message id outside the supported set.
	ErrUnknownID = errors.New("unknown message id")
	// ErrMsgTooBig indicates a length prefix above MaxMsgLen.
	ErrMsgTooBig = errors.New("message larger than 1 MiB")
	// ErrBadPayload indicates a payload whose size does not fit its id.
	ErrBadPayload = errors.New("malformed message payload")
)

// MaxMsgLen is the largest length prefix accepted by Reader.
const MaxMsgLen = 1 << 20

// Message is a decoded frame. Payload and Block point into the Reader's
// buffer and are only valid until the next call to ReadMsg. Index, Begin,
// Length and Block are filled in for the ids that carry them.
type Message struct {
	KeepAlive bool
	ID        MessageID
	Payload   []byte
	Index     uint32 // have, request, piece, cancel
	Begin     uint32 // request, piece, cancel
	Length    uint32 // request, cancel
	Block     []byte // piece
}

// Reader decodes length-prefixed messages from a stream.
type Reader struct {
	r   io.Reader
	buf []byte
}

// NewReader creates a new message reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadMsg reads the next message. A zero length prefix yields a message
// with KeepAlive set. io.EOF is returned unwrapped only when the stream
// ends cleanly between frames.
func (r *Reader) ReadMsg() (Message, error) {
	var prefix [4]byte
	if n, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return Message{}, io.EOF
		}

		return Message{}, frameErr(err, "length prefix")
	}

	l := binary.BigEndian.Uint32(prefix[:])
	if l == 0 {
		return Message{KeepAlive: true}, nil
	}

	if l > MaxMsgLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMsgTooBig, l)
	}

	if cap(r.buf) < int(l) {
		r.buf = make([]byte, l)
	}

	body := r.buf[:l]
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Message{}, frameErr(err, fmt.Sprintf("%d byte body", l))
	}

	msg := Message{ID: MessageID(body[0]), Payload: body[1:]}

	switch msg.ID {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		if len(msg.Payload) != 0 {
			return Message{}, payloadErr(msg, 0)
		}
	case MsgHave:
		if len(msg.Payload) != 4 {
			return Message{}, payloadErr(msg, 4)
		}

		msg.Index = binary.BigEndian.Uint32(msg.Payload)
	case MsgRequest, MsgCancel:
		if len(msg.Payload) != 12 {
			return Message{}, payloadErr(msg, 12)
		}

		msg.Index = binary.BigEndian.Uint32(msg.Payload[0:4])
		msg.Begin = binary.BigEndian.Uint32(msg.Payload[4:8])
		msg.Length = binary.BigEndian.Uint32(msg.Payload[8:12])
	case MsgPiece:
		if len(msg.Payload) < 8 {
			return Message{}, payloadErr(msg, 8)
		}

		msg.Index = binary.BigEndian.Uint32(msg.Payload[0:4])
		msg.Begin = binary.BigEndian.Uint32(msg.Payload[4:8])
		msg.Block = msg.Payload[8:]
	case MsgBitfield:
		// raw bitmap, validated against the piece count by the caller
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownID, uint8(msg.ID))
	}

	return msg, nil
}

func frameErr(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s: %w", ErrTruncated, what, err)
	}

	return fmt.Errorf("reading %s: %w", what, err)
}

func payloadErr(msg Message, want int) error {
	return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrBadPayload, msg.ID, len(msg.Payload), want)
}

// Writer encodes messages. Every frame goes out in a single Write call.
type Writer struct {
	w   io.Writer
	buf [4 + 1 + 12]byte // frame scratch for fixed-length messages
}

// NewWriter creates a new message writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMsg writes prefix, id and payload as one frame. A short write
// leaves the stream desynchronized and must be treated as fatal.
func (w *Writer) WriteMsg(id MessageID, payload []byte) error {
	var frame []byte
	if n := 5 + len(payload); n <= len(w.buf) {
		frame = w.buf[:n]
	} else {
		frame = make([]byte, n)
	}

	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(payload)))
	frame[4] = byte(id)
	copy(frame[5:], payload)

	_, err := w.w.Write(frame)

	return err
}

// WriteKeepAlive writes a keep-alive (four zero bytes).
func (w *Writer) WriteKeepAlive() error {
	var prefix [4]byte

	_, err := w.w.Write(prefix[:])

	return err
}

// WriteChoke writes a choke message.
func (w *Writer) WriteChoke() error {
	return w.WriteMsg(MsgChoke, nil)
}

// WriteUnchoke writes an unchoke message.
func (w *Writer) WriteUnchoke() error {
	return w.WriteMsg(MsgUnchoke, nil)
}

// WriteInterested writes an interested message with an empty payload.
func (w *Writer) WriteInterested() error {
	return w.WriteMsg(MsgInterested, nil)
}

// WriteNotInterested writes a not interested message.
func (w *Writer) WriteNotInterested() error {
	return w.WriteMsg(MsgNotInterested, nil)
}

// WriteHave writes a have message.
func (w *Writer) WriteHave(index uint32) error {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], index)

	return w.WriteMsg(MsgHave, p[:])
}

// WriteBitfield writes a bitfield message.
func (w *Writer) WriteBitfield(bits []byte) error {
	return w.WriteMsg(MsgBitfield, bits)
}

// WriteRequest writes a request for length bytes at begin within piece index.
func (w *Writer) WriteRequest(index, begin, length uint32) error {
	var p [12]byte
	binary.BigEndian.PutUint32(p[0:4], index)
	binary.BigEndian.PutUint32(p[4:8], begin)
	binary.BigEndian.PutUint32(p[8:12], length)

	return w.WriteMsg(MsgRequest, p[:])
}

// WriteCancel writes a cancel for a previously requested block.
func (w *Writer) WriteCancel(index, begin, length uint32) error {
	var p [12]byte
	binary.BigEndian.PutUint32(p[0:4], index)
	binary.BigEndian.PutUint32(p[4:8], begin)
	binary.BigEndian.PutUint32(p[8:12], length)

	return w.WriteMsg(MsgCancel, p[:])
}

// WritePiece writes a block of piece data.
func (w *Writer) WritePiece(index, begin uint32, block []byte) error {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)

	return w.WriteMsg(MsgPiece, payload)
}
