package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadFrame(t *testing.T) {
	var stream []byte
	stream = appendFrame(stream, frameRequest, 7, []byte("hello"))
	stream = appendFrame(stream, frameConnectAck, 8, nil)

	r := bytes.NewReader(stream)
	scratch := make([]byte, headerSize)

	h, payload, err := readFrame(r, scratch)
	if err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if h.typ != frameRequest || h.reqNum != 7 || string(payload) != "hello" {
		t.Errorf("first frame = %v/%d/%q, want request/7/hello", h.typ, h.reqNum, payload)
	}

	h, payload, err = readFrame(r, scratch)
	if err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if h.typ != frameConnectAck || h.reqNum != 8 || len(payload) != 0 {
		t.Errorf("second frame = %v/%d/%q, want connect-ack/8/empty", h.typ, h.reqNum, payload)
	}

	if _, _, err := readFrame(r, scratch); !errors.Is(err, io.EOF) {
		t.Errorf("readFrame() at end error = %v, want io.EOF", err)
	}
}

func TestDecodeHeader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		hdr  header
	}{
		{name: "zero type", hdr: header{typ: 0}},
		{name: "unknown type", hdr: header{typ: frameResponse + 1}},
		{name: "oversized payload", hdr: header{typ: frameRequest, length: MaxMsgSize + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, headerSize)
			tt.hdr.encode(b)
			if _, err := decodeHeader(b); !errors.Is(err, ErrBadFrame) {
				t.Errorf("decodeHeader() error = %v, want ErrBadFrame", err)
			}
		})
	}
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	stream := appendFrame(nil, frameResponse, 1, []byte("0123456789"))
	r := bytes.NewReader(stream[:len(stream)-3])

	if _, _, err := readFrame(r, make([]byte, headerSize)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readFrame() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestMsgBuffer_Resize(t *testing.T) {
	m := NewMsgBuffer(12)

	if err := m.Resize(8); err != nil {
		t.Fatalf("resize(8) error = %v", err)
	}
	if m.DataSize() != 8 || len(m.Bytes()) != 8 {
		t.Errorf("DataSize() = %d, len(Bytes()) = %d, want 8", m.DataSize(), len(m.Bytes()))
	}

	if err := m.Resize(13); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("resize(13) error = %v, want ErrBufferTooSmall", err)
	}

	m.inFlight = true
	if err := m.Resize(4); !errors.Is(err, ErrBufferInFlight) {
		t.Errorf("resize() in flight error = %v, want ErrBufferInFlight", err)
	}
	if m.DataSize() != 8 {
		t.Errorf("DataSize() after rejected resize = %d, want 8", m.DataSize())
	}
}

func TestMsgBuffer_FillGrows(t *testing.T) {
	m := NewMsgBuffer(4)
	m.Fill([]byte("0123456789"))

	if m.DataSize() != 10 || string(m.Bytes()) != "0123456789" {
		t.Errorf("after fill DataSize() = %d, Bytes() = %q", m.DataSize(), m.Bytes())
	}
}

func TestToUsec(t *testing.T) {
	tests := []struct {
		cycles uint64
		freq   float64
		want   float64
	}{
		{cycles: 1000, freq: 1, want: 1},
		{cycles: 2500, freq: 2.5, want: 1},
		{cycles: 0, freq: 3, want: 0},
		{cycles: 3_000_000, freq: 3, want: 1000},
	}

	for _, tt := range tests {
		if got := ToUsec(tt.cycles, tt.freq); got != tt.want {
			t.Errorf("ToUsec(%d, %v) = %v, want %v", tt.cycles, tt.freq, got, tt.want)
		}
	}
}
