package video

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeRecordLayout(t *testing.T) {
	rec := &Record{Timestamp: 1700000000.25, Frame: jpegFrame(12, 0x42)}

	data, err := EncodeRecord(nil, NewEncodingDescriptor(), rec)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	if len(data) != EncodedSize(rec) {
		t.Fatalf("len = %d, want EncodedSize %d", len(data), EncodedSize(rec))
	}

	if got := math.Float64frombits(binary.BigEndian.Uint64(data[:8])); got != rec.Timestamp {
		t.Errorf("time member = %v, want %v", got, rec.Timestamp)
	}
	if got := binary.BigEndian.Uint32(data[8:12]); got != uint32(len(rec.Frame)) {
		t.Errorf("block length = %d, want %d", got, len(rec.Frame))
	}
	if !bytes.Equal(data[12:], rec.Frame) {
		t.Error("block bytes differ from frame")
	}

	decoded, err := DecodeRecord(NewEncodingDescriptor(), data)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if decoded.Timestamp != rec.Timestamp || !bytes.Equal(decoded.Frame, rec.Frame) {
		t.Errorf("DecodeRecord() = %+v, want %+v", decoded, rec)
	}
}

func TestEncodeRecordAppends(t *testing.T) {
	prefix := []byte("hdr")
	rec := &Record{Timestamp: 1, Frame: []byte{1, 2, 3}}

	data, err := EncodeRecord(prefix, NewEncodingDescriptor(), rec)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	if !bytes.HasPrefix(data, prefix) {
		t.Error("encoded record does not keep dst prefix")
	}
	if len(data) != len(prefix)+EncodedSize(rec) {
		t.Errorf("len = %d, want %d", len(data), len(prefix)+EncodedSize(rec))
	}
}

func TestRecordCodecUnsupported(t *testing.T) {
	base64 := NewEncodingDescriptor()
	base64.ByteEncoding = ByteEncodingBase64

	badOrder := NewEncodingDescriptor()
	badOrder.ByteOrder = "middleEndian"

	unknownMember := NewEncodingDescriptor()
	unknownMember.Members = append(unknownMember.Members, EncodingMember{Ref: "/audio", Kind: MemberBlock})

	tests := []struct {
		name string
		enc  EncodingDescriptor
	}{
		{"base64", base64},
		{"unknown byte order", badOrder},
		{"unknown member", unknownMember},
	}

	rec := &Record{Timestamp: 1, Frame: []byte{1}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeRecord(nil, tt.enc, rec); !errors.Is(err, ErrUnsupportedEncoding) {
				t.Errorf("EncodeRecord() error = %v, want ErrUnsupportedEncoding", err)
			}
		})
	}
}

func TestDecodeRecordShortBuffer(t *testing.T) {
	data, err := EncodeRecord(nil, NewEncodingDescriptor(), &Record{Timestamp: 2, Frame: make([]byte, 20)})
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	for _, n := range []int{0, 7, 11, len(data) - 1} {
		if _, err := DecodeRecord(NewEncodingDescriptor(), data[:n]); err == nil {
			t.Errorf("DecodeRecord(%d bytes) expected error", n)
		}
	}
}

func TestRecordTimeAndClone(t *testing.T) {
	rec := &Record{Timestamp: 1700000000.5, Frame: []byte{9, 9}}

	want := time.Unix(1700000000, int64(500*time.Millisecond))
	if got := rec.Time(); !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}

	c := rec.Clone()
	c.Frame[0] = 0
	if rec.Frame[0] != 9 {
		t.Error("Clone() shares the frame buffer")
	}
}

func TestRecordRenewReusesBuffer(t *testing.T) {
	rec := &Record{Frame: make([]byte, 0, 64)}
	rec.renew(1, make([]byte, 48))
	ptr := &rec.Frame[:1][0]

	rec.renew(2, make([]byte, 32))
	if &rec.Frame[:1][0] != ptr {
		t.Error("renew() reallocated a frame that fits")
	}
	if len(rec.Frame) != 32 || rec.Timestamp != 2 {
		t.Errorf("renew() = (%v, %d bytes), want (2, 32 bytes)", rec.Timestamp, len(rec.Frame))
	}
}
