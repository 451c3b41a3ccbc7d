package video

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestFrameDecoderMultipart(t *testing.T) {
	frames := [][]byte{jpegFrame(120, 0x11), jpegFrame(80, 0x22), jpegFrame(200, 0x33)}
	body := bytes.NewReader(mjpegBody(true, frames...))

	d, err := NewFrameDecoder(testContentType, body, 0)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}

	for i, want := range frames {
		got, err := d.Next()
		if err != nil {
			t.Fatalf("Next() frame %d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}

	_, err = d.Next()
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("Next() after last frame error = %v, want *StreamError", err)
	}
	if streamErr.Frames != 3 {
		t.Errorf("StreamError.Frames = %d, want 3", streamErr.Frames)
	}
	if !errors.Is(err, ErrStream) {
		t.Error("error does not match ErrStream")
	}
	if d.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", d.Frames())
	}
}

func TestFrameDecoderIsDeadAfterError(t *testing.T) {
	d, err := NewFrameDecoder(testContentType, bytes.NewReader(mjpegBody(true, jpegFrame(10, 1))), 0)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	_, first := d.Next()
	_, second := d.Next()
	if first == nil {
		t.Fatal("expected error at end of stream")
	}
	if first != second {
		t.Errorf("second error = %v, want the same error %v", second, first)
	}
	if d.Err() != first {
		t.Errorf("Err() = %v, want %v", d.Err(), first)
	}
}

func TestFrameDecoderSkipsEmptyParts(t *testing.T) {
	frame := jpegFrame(50, 0x44)
	d, err := NewFrameDecoder(testContentType, bytes.NewReader(mjpegBody(true, nil, frame)), 0)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}

	got, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("got %d bytes, want the non-empty frame of %d", len(got), len(frame))
	}
}

func TestFrameDecoderMarkerFallback(t *testing.T) {
	a := jpegFrame(30, 0x55)
	b := jpegFrame(40, 0x66)

	var raw bytes.Buffer
	raw.WriteString("junk before\r\n")
	raw.Write(a)
	raw.WriteString("\r\n--not-a-declared-boundary\r\n")
	raw.Write(b)

	tests := []struct {
		name        string
		contentType string
	}{
		{"image/jpeg", "image/jpeg"},
		{"empty content type", ""},
		{"unparseable content type", ";;;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewFrameDecoder(tt.contentType, bytes.NewReader(raw.Bytes()), 0)
			if err != nil {
				t.Fatalf("NewFrameDecoder() error = %v", err)
			}
			for i, want := range [][]byte{a, b} {
				got, err := d.Next()
				if err != nil {
					t.Fatalf("Next() frame %d error = %v", i, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("frame %d = %x, want %x", i, got, want)
				}
			}
			if _, err := d.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("Next() at end error = %v, want io.EOF", err)
			}
		})
	}
}

func TestFrameDecoderMarkerTruncatedFrame(t *testing.T) {
	frame := jpegFrame(64, 0x77)
	d, err := NewFrameDecoder("image/jpeg", bytes.NewReader(frame[:40]), 0)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}

	_, err = d.Next()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Next() error = %v, want io.ErrUnexpectedEOF", err)
	}
	if !errors.Is(err, ErrStream) {
		t.Error("error does not match ErrStream")
	}
}

func TestFrameDecoderFrameTooLarge(t *testing.T) {
	big := jpegFrame(64, 0x12)

	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"multipart", testContentType, mjpegBody(true, big)},
		{"markers", "image/jpeg", big},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewFrameDecoder(tt.contentType, bytes.NewReader(tt.body), 32)
			if err != nil {
				t.Fatalf("NewFrameDecoder() error = %v", err)
			}
			if _, err := d.Next(); !errors.Is(err, errFrameTooLarge) {
				t.Errorf("Next() error = %v, want errFrameTooLarge", err)
			}
		})
	}
}

func TestFrameDecoderMultipartWithoutBoundary(t *testing.T) {
	_, err := NewFrameDecoder("multipart/x-mixed-replace", bytes.NewReader(nil), 0)
	if !errors.Is(err, ErrStream) {
		t.Fatalf("NewFrameDecoder() error = %v, want ErrStream", err)
	}
	if !errors.Is(err, errNoBoundary) {
		t.Errorf("error = %v, want errNoBoundary", err)
	}
}

func TestFrameDecoderReturnsPartWithoutNextDelimiter(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	frame := jpegFrame(90, 0x21)
	go func() {
		var part bytes.Buffer
		writePart(&part, frame)
		part.WriteString("\r\n")
		pw.Write(part.Bytes()) //nolint:errcheck // Test writer
	}()

	d, err := NewFrameDecoder(testContentType, pr, 0)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}

	type result struct {
		frame Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := d.Next()
		done <- result{append(Frame(nil), f...), err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Next() error = %v", res.err)
		}
		if !bytes.Equal(res.frame, frame) {
			t.Errorf("got %d bytes, want %d", len(res.frame), len(frame))
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not return a complete part while the stream stayed open")
	}
}

func TestFrameDecoderPartHeaders(t *testing.T) {
	frame := jpegFrame(48, 0x31)

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"no content length", "Content-Type: image/jpeg\r\n", false},
		{"padded content length", fmt.Sprintf("Content-Length:  %d \r\n", len(frame)), false},
		{"invalid content length", "Content-Length: lots\r\n", true},
		{"negative content length", "Content-Length: -4\r\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body bytes.Buffer
			fmt.Fprintf(&body, "--%s\r\n%s\r\n", testBoundary, tt.header)
			body.Write(frame)
			fmt.Fprintf(&body, "\r\n--%s--\r\n", testBoundary)

			d, err := NewFrameDecoder(testContentType, &body, 0)
			if err != nil {
				t.Fatalf("NewFrameDecoder() error = %v", err)
			}
			got, err := d.Next()
			if tt.wantErr {
				if !errors.Is(err, ErrStream) {
					t.Errorf("Next() error = %v, want ErrStream", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if !bytes.Equal(got, frame) {
				t.Errorf("got %x, want %x", got, frame)
			}
			if _, err := d.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("Next() at closing delimiter error = %v, want io.EOF", err)
			}
		})
	}
}

func TestFrameDecoderMissingDelimiter(t *testing.T) {
	d, err := NewFrameDecoder(testContentType, bytes.NewReader(bytes.Repeat([]byte("noise\r\n"), 16)), 32)
	if err != nil {
		t.Fatalf("NewFrameDecoder() error = %v", err)
	}
	if _, err := d.Next(); !errors.Is(err, errNoDelimiter) {
		t.Errorf("Next() error = %v, want errNoDelimiter", err)
	}
}
