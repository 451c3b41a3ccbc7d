package video

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"strconv"
	"strings"
)

// DefaultMaxFrameSize bounds a single compressed frame.
const DefaultMaxFrameSize = 8 << 20

// JPEG start and end of image markers.
const (
	jpegMarker = 0xFF
	jpegSOI    = 0xD8
	jpegEOI    = 0xD9
)

var (
	errFrameTooLarge = errors.New("frame exceeds maximum size")
	errNoBoundary    = errors.New("multipart content type has no boundary")
	errNoDelimiter   = errors.New("no part delimiter within maximum frame size")
)

// Frame is one compressed image as read off the wire. Its contents are not
// interpreted or validated.
type Frame []byte

// framer reads the next frame into buf.
type framer interface {
	next(buf *bytes.Buffer, maxSize int64) error
}

// FrameDecoder turns a connected stream into a sequence of frames.
//
// The sequence is not restartable: after the first error the decoder is dead
// and every later call to Next returns the same *StreamError.
//
// FrameDecoder is not safe for concurrent use.
type FrameDecoder struct {
	framer  framer
	buf     bytes.Buffer
	maxSize int64
	frames  uint64
	err     error
}

// NewFrameDecoder selects the framing from the stream's content type.
//
// multipart/* streams are split on their boundary, one frame per part. Any
// other type is scanned for JPEG SOI/EOI markers. A multipart type without
// a boundary is a *StreamError.
func NewFrameDecoder(contentType string, r io.Reader, maxFrameSize int64) (*FrameDecoder, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	d := &FrameDecoder{maxSize: maxFrameSize}

	mediaType, params, err := mime.ParseMediaType(contentType)
	switch {
	case err == nil && strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil, &StreamError{Err: errNoBoundary}
		}
		d.framer = newPartFramer(r, boundary)
	default:
		d.framer = &markerFramer{r: bufio.NewReader(r)}
	}

	return d, nil
}

// Next blocks until one full frame has been read.
//
// The returned Frame aliases an internal buffer that is overwritten by the
// next call; copy it to keep it.
func (d *FrameDecoder) Next() (Frame, error) {
	if d.err != nil {
		return nil, d.err
	}

	if err := d.framer.next(&d.buf, d.maxSize); err != nil {
		d.err = &StreamError{Frames: d.frames, Err: err}
		return nil, d.err
	}

	d.frames++
	return Frame(d.buf.Bytes()), nil
}

// Frames returns the number of frames decoded so far.
func (d *FrameDecoder) Frames() uint64 {
	return d.frames
}

// Err returns the terminal error, or nil while the decoder is alive.
func (d *FrameDecoder) Err() error {
	return d.err
}

// partFramer splits a multipart/x-mixed-replace stream.
//
// Parts are read one at a time: the delimiter line, the part headers, then
// exactly Content-Length bytes. A complete part is returned as soon as its
// last byte arrives, without waiting for the next delimiter. Parts without a
// Content-Length header are scanned for JPEG SOI/EOI markers instead.
type partFramer struct {
	r     *bufio.Reader
	tp    *textproto.Reader
	delim []byte
}

func newPartFramer(r io.Reader, boundary string) *partFramer {
	br := bufio.NewReader(r)
	return &partFramer{
		r:     br,
		tp:    textproto.NewReader(br),
		delim: []byte("--" + boundary),
	}
}

func (f *partFramer) next(buf *bytes.Buffer, maxSize int64) error {
	for {
		if err := f.skipToDelimiter(maxSize); err != nil {
			return err
		}

		header, err := f.tp.ReadMIMEHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return fmt.Errorf("reading part header: %w", err)
		}

		length, ok, err := partLength(header)
		if err != nil {
			return err
		}
		if !ok {
			return readJPEG(f.r, buf, maxSize)
		}
		if length > maxSize {
			return errFrameTooLarge
		}
		if length == 0 {
			continue
		}

		buf.Reset()
		buf.Grow(int(length))
		if _, err := io.CopyN(buf, f.r, length); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("reading part: %w", err)
		}
		return nil
	}
}

// skipToDelimiter consumes input up to and including the next delimiter
// line. The closing delimiter ends the stream with io.EOF.
func (f *partFramer) skipToDelimiter(maxSize int64) error {
	var skipped int64
	for {
		line, err := f.r.ReadSlice('\n')
		trimmed := bytes.TrimRight(line, " \t\r\n")
		if bytes.HasPrefix(trimmed, f.delim) {
			switch rest := trimmed[len(f.delim):]; {
			case len(rest) == 0:
				return nil
			case bytes.Equal(rest, []byte("--")):
				return io.EOF
			}
		}

		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF) && len(line) > 0:
			return io.ErrUnexpectedEOF
		default:
			return err
		}

		skipped += int64(len(line))
		if skipped > maxSize {
			return errNoDelimiter
		}
	}
}

// partLength reports the part's Content-Length, if it has one.
func partLength(header textproto.MIMEHeader) (int64, bool, error) {
	v := strings.TrimSpace(header.Get("Content-Length"))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("invalid part Content-Length %q", v)
	}
	return n, true, nil
}

// markerFramer extracts SOI..EOI delimited JPEG images from a raw stream.
type markerFramer struct {
	r *bufio.Reader
}

func (f *markerFramer) next(buf *bytes.Buffer, maxSize int64) error {
	return readJPEG(f.r, buf, maxSize)
}

// readJPEG copies the next SOI..EOI delimited image from r into buf,
// discarding anything before the SOI marker.
func readJPEG(r *bufio.Reader, buf *bytes.Buffer, maxSize int64) error {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == jpegMarker && b == jpegSOI {
			break
		}
		prev = b
	}

	buf.Reset()
	buf.WriteByte(jpegMarker)
	buf.WriteByte(jpegSOI)

	prev = 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		buf.WriteByte(b)
		if int64(buf.Len()) > maxSize {
			return errFrameTooLarge
		}
		if prev == jpegMarker && b == jpegEOI {
			return nil
		}
		prev = b
	}
}
