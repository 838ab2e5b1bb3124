package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Delimiter terminates every frame on the wire. Documents are compact JSON,
// so a payload never contains it.
var Delimiter = []byte("\n\n")

// DefaultMaxFrameSize bounds a single frame.
const DefaultMaxFrameSize = 8 << 20

var (
	// ErrFrameTooLarge is returned when a frame exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrTruncatedFrame is returned when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("transport: stream ended inside a frame")

	// ErrDelimiterInPayload is returned when a payload would split into two frames.
	ErrDelimiterInPayload = errors.New("transport: payload contains frame delimiter")
)

// FrameReader splits a byte stream into delimiter-terminated frames. It
// copes with frames split across reads and with several frames arriving in
// one read. Blank frames are skipped.
type FrameReader struct {
	scanner *bufio.Scanner
}

// NewFrameReader creates a frame reader. maxSize <= 0 selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize int) *FrameReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	initial := 64 * 1024
	if initial > maxSize {
		initial = maxSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), maxSize)
	scanner.Split(splitFrames)
	return &FrameReader{scanner: scanner}
}

// Next returns the next non-blank frame without its delimiter. It returns
// io.EOF when the stream ends cleanly between frames.
func (f *FrameReader) Next() ([]byte, error) {
	for f.scanner.Scan() {
		token := f.scanner.Bytes()
		if len(bytes.TrimSpace(token)) == 0 {
			continue
		}
		frame := make([]byte, len(token))
		copy(frame, token)
		return frame, nil
	}

	err := f.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		return nil, ErrFrameTooLarge
	default:
		return nil, err
	}
}

func splitFrames(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, Delimiter); i >= 0 {
		return i + len(Delimiter), data[:i], nil
	}
	if atEOF && len(bytes.TrimSpace(data)) > 0 {
		return 0, nil, ErrTruncatedFrame
	}
	if atEOF {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

// WriteFrame writes one frame in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if bytes.Contains(payload, Delimiter) {
		return ErrDelimiterInPayload
	}
	buf := make([]byte, 0, len(payload)+len(Delimiter))
	buf = append(buf, payload...)
	buf = append(buf, Delimiter...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
