package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	// HeaderSize is the fixed size of every frame header
	HeaderSize = 12

	// MaxFrameSize is the maximum accepted total_length (10 MiB)
	MaxFrameSize = 10 * 1024 * 1024

	// MaxPayloadSize is the largest payload that fits in a frame
	MaxPayloadSize = MaxFrameSize - HeaderSize
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size (10 MiB)")
	ErrInvalidFrame  = errors.New("invalid frame length")
	ErrNeedMoreData  = errors.New("incomplete frame")
)

// byteOrder is the wire byte order. Header integers are written in host order;
// client and server are assumed to share an architecture.
var byteOrder = binary.NativeEndian

// Header is the fixed 12-byte frame prefix
// Format: [TotalLength (int32)][Type (int32)][Checksum (int32, always 0)]
type Header struct {
	TotalLength int32
	Type        int32
	Checksum    int32
}

// PayloadLen returns the number of body bytes following the header
func (h Header) PayloadLen() int64 {
	return int64(h.TotalLength) - HeaderSize
}

// Frame is one decoded protocol message
type Frame struct {
	Type    int32
	Payload []byte
}

func putHeader(buf []byte, h Header) {
	byteOrder.PutUint32(buf[0:4], uint32(h.TotalLength))
	byteOrder.PutUint32(buf[4:8], uint32(h.Type))
	byteOrder.PutUint32(buf[8:12], uint32(h.Checksum))
}

func parseHeader(buf []byte) Header {
	return Header{
		TotalLength: int32(byteOrder.Uint32(buf[0:4])),
		Type:        int32(byteOrder.Uint32(buf[4:8])),
		Checksum:    int32(byteOrder.Uint32(buf[8:12])),
	}
}

// EncodeHeader builds a header announcing payloadLen body bytes. The body is
// not included; FILE_DATA uses this to stream its content separately.
func EncodeHeader(msgType int32, payloadLen int64) ([]byte, error) {
	if payloadLen < 0 || payloadLen > math.MaxInt32-HeaderSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, HeaderSize)
	putHeader(buf, Header{
		TotalLength: int32(HeaderSize + payloadLen),
		Type:        msgType,
	})
	return buf, nil
}

// EncodeMessage encodes a complete frame into a byte slice
func EncodeMessage(msgType int32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, Header{
		TotalLength: int32(len(buf)),
		Type:        msgType,
	})
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EncodeFrame writes a frame to the writer in a single Write call
func EncodeFrame(w io.Writer, f *Frame) error {
	data, err := EncodeMessage(f.Type, f.Payload)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// DecodeOne decodes the first frame in buf. It returns the frame and the
// number of bytes to discard from the front of buf. ErrNeedMoreData means buf
// holds a valid but incomplete prefix; ErrInvalidFrame means the header's
// length field is out of bounds. Neither consumes any bytes.
// The returned payload is a copy and does not alias buf.
func DecodeOne(buf []byte) (Frame, int, error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, ErrNeedMoreData
	}

	h := parseHeader(buf)
	if h.TotalLength < HeaderSize || h.TotalLength > MaxFrameSize {
		return Frame{}, 0, ErrInvalidFrame
	}

	total := int(h.TotalLength)
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMoreData
	}

	payload := make([]byte, total-HeaderSize)
	copy(payload, buf[HeaderSize:total])

	return Frame{Type: h.Type, Payload: payload}, total, nil
}

// ReadHeader reads and validates a frame header from a blocking reader.
// FILE_DATA headers may announce more than MaxFrameSize since their body is
// streamed, never buffered whole.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}

	h := parseHeader(buf[:])
	if h.TotalLength < HeaderSize {
		return Header{}, ErrInvalidFrame
	}
	if h.Type != TypeFileData && h.TotalLength > MaxFrameSize {
		return Header{}, ErrInvalidFrame
	}
	return h, nil
}

// DecodeFrame reads one complete frame from the reader
func DecodeFrame(r io.Reader) (*Frame, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.TotalLength > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, h.PayloadLen())
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	return &Frame{Type: h.Type, Payload: payload}, nil
}
