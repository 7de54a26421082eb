package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Wire format: a 13 byte little-endian header followed by the payload.
//
//	offset 0   frame type (1 byte)
//	offset 1   request number (8 bytes)
//	offset 9   payload length (4 bytes)
const headerSize = 13

// MaxMsgSize is the largest payload accepted on the wire.
const MaxMsgSize = 8 << 20

type frameType uint8

const (
	frameConnect frameType = iota + 1
	frameConnectAck
	frameRequest
	frameResponse
)

func (t frameType) String() string {
	switch t {
	case frameConnect:
		return "connect"
	case frameConnectAck:
		return "connect-ack"
	case frameRequest:
		return "request"
	case frameResponse:
		return "response"
	default:
		return fmt.Sprintf("frame(%d)", uint8(t))
	}
}

type header struct {
	typ    frameType
	reqNum uint64
	length uint32
}

func (h header) encode(b []byte) {
	b[0] = byte(h.typ)
	binary.LittleEndian.PutUint64(b[1:9], h.reqNum)
	binary.LittleEndian.PutUint32(b[9:13], h.length)
}

func decodeHeader(b []byte) (header, error) {
	h := header{
		typ:    frameType(b[0]),
		reqNum: binary.LittleEndian.Uint64(b[1:9]),
		length: binary.LittleEndian.Uint32(b[9:13]),
	}

	if h.typ < frameConnect || h.typ > frameResponse {
		return h, fmt.Errorf("%w: unknown type %d", ErrBadFrame, b[0])
	}
	if h.length > MaxMsgSize {
		return h, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrBadFrame, h.length, MaxMsgSize)
	}
	return h, nil
}

// appendFrame appends an encoded frame to dst and returns the result.
func appendFrame(dst []byte, typ frameType, reqNum uint64, payload []byte) []byte {
	var hdr [headerSize]byte
	header{typ: typ, reqNum: reqNum, length: uint32(len(payload))}.encode(hdr[:])

	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// readFrame reads one frame. scratch must hold at least headerSize bytes.
func readFrame(r io.Reader, scratch []byte) (header, []byte, error) {
	if _, err := io.ReadFull(r, scratch[:headerSize]); err != nil {
		return header{}, nil, err
	}

	h, err := decodeHeader(scratch[:headerSize])
	if err != nil {
		return h, nil, err
	}

	payload := make([]byte, h.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return h, nil, fmt.Errorf("read %s payload: %w", h.typ, err)
	}
	return h, payload, nil
}
