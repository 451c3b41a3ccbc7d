package video

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Encoded sizes of record members.
const (
	timeFieldSize   = 8
	blockLengthSize = 4
)

// Record is one published (timestamp, frame) pair.
type Record struct {
	// Timestamp is the capture time in seconds since the Unix epoch.
	Timestamp float64

	// Frame holds the compressed image bytes.
	Frame []byte
}

// Time returns the timestamp as a time.Time.
func (r *Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	return Record{
		Timestamp: r.Timestamp,
		Frame:     append([]byte(nil), r.Frame...),
	}
}

// renew overwrites the record in place, growing the frame buffer only when
// the new frame does not fit.
func (r *Record) renew(ts float64, frame []byte) {
	r.Timestamp = ts
	r.Frame = append(r.Frame[:0], frame...)
}

// EncodedSize returns the number of bytes EncodeRecord writes for rec.
func EncodedSize(rec *Record) int {
	return timeFieldSize + blockLengthSize + len(rec.Frame)
}

// EncodeRecord appends the binary form of rec to dst following enc.
//
// The time member is an IEEE-754 double. A compressed block member is
// written as a 4-byte length followed by the block bytes. Only the raw byte
// encoding is supported.
func EncodeRecord(dst []byte, enc EncodingDescriptor, rec *Record) ([]byte, error) {
	order, err := byteOrder(enc)
	if err != nil {
		return nil, err
	}

	for _, m := range enc.Members {
		switch {
		case m.Ref == "/"+FieldTime && m.Kind == MemberComponent && m.DataType == DataTypeDouble:
			dst = order.AppendUint64(dst, math.Float64bits(rec.Timestamp))
		case m.Ref == "/"+FieldFrame && m.Kind == MemberBlock:
			if uint64(len(rec.Frame)) > math.MaxUint32 {
				return nil, fmt.Errorf("%w: frame block of %d bytes", ErrUnsupportedEncoding, len(rec.Frame))
			}
			dst = order.AppendUint32(dst, uint32(len(rec.Frame)))
			dst = append(dst, rec.Frame...)
		default:
			return nil, fmt.Errorf("%w: member %s (%s)", ErrUnsupportedEncoding, m.Ref, m.Kind)
		}
	}
	return dst, nil
}

// DecodeRecord parses a record written by EncodeRecord. The returned frame
// aliases data.
func DecodeRecord(enc EncodingDescriptor, data []byte) (Record, error) {
	order, err := byteOrder(enc)
	if err != nil {
		return Record{}, err
	}

	var rec Record
	for _, m := range enc.Members {
		switch {
		case m.Ref == "/"+FieldTime && m.Kind == MemberComponent && m.DataType == DataTypeDouble:
			if len(data) < timeFieldSize {
				return Record{}, fmt.Errorf("decoding %s: short buffer", m.Ref)
			}
			rec.Timestamp = math.Float64frombits(order.Uint64(data))
			data = data[timeFieldSize:]
		case m.Ref == "/"+FieldFrame && m.Kind == MemberBlock:
			if len(data) < blockLengthSize {
				return Record{}, fmt.Errorf("decoding %s: short buffer", m.Ref)
			}
			n := order.Uint32(data)
			data = data[blockLengthSize:]
			if uint64(len(data)) < uint64(n) {
				return Record{}, fmt.Errorf("decoding %s: block length %d exceeds %d remaining bytes", m.Ref, n, len(data))
			}
			rec.Frame = data[:n]
			data = data[n:]
		default:
			return Record{}, fmt.Errorf("%w: member %s (%s)", ErrUnsupportedEncoding, m.Ref, m.Kind)
		}
	}
	return rec, nil
}

type appendByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func byteOrder(enc EncodingDescriptor) (appendByteOrder, error) {
	if enc.ByteEncoding != ByteEncodingRaw {
		return nil, fmt.Errorf("%w: byte encoding %q", ErrUnsupportedEncoding, enc.ByteEncoding)
	}
	switch enc.ByteOrder {
	case BigEndian:
		return binary.BigEndian, nil
	case LittleEndian:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w: byte order %q", ErrUnsupportedEncoding, enc.ByteOrder)
	}
}
