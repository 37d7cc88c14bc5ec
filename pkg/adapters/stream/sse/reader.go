package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// MaxFrameSize bounds the data accumulated for a single frame
const MaxFrameSize = 1 << 20

// maxLineSize bounds a single line, leaving room for the field name
const maxLineSize = MaxFrameSize + 64

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize
var ErrFrameTooLarge = errors.New("sse frame too large")

// Frame is one dispatched server-sent event
type Frame struct {
	Event string
	ID    string
	Data  string
	Retry time.Duration
}

// IsMessage reports whether the frame would reach an EventSource onmessage listener
func (f *Frame) IsMessage() bool {
	return f.Event == "" || f.Event == "message"
}

// Reader decodes a text/event-stream body into frames
type Reader struct {
	r      *bufio.Reader
	lastID string
}

// NewReader wraps r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// LastID returns the most recent id field seen on the stream
func (r *Reader) LastID() string {
	return r.lastID
}

// ReadFrame returns the next frame that carries data. Comment lines
// (heartbeats) and frames without data are consumed silently. A frame cut
// off by EOF is discarded and io.EOF returned.
func (r *Reader) ReadFrame() (*Frame, error) {
	var (
		frame   Frame
		data    strings.Builder
		hasData bool
	)

	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}

		if line == "" {
			if !hasData {
				frame = Frame{}
				continue
			}
			frame.Data = strings.TrimSuffix(data.String(), "\n")
			frame.ID = r.lastID
			return &frame, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if data.Len()+len(value) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			frame.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns the next line without its terminator. It stops with
// ErrFrameTooLarge as soon as the line outgrows maxLineSize, so a peer that
// never sends a newline cannot make the reader buffer without limit.
func (r *Reader) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := r.r.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineSize {
			return "", ErrFrameTooLarge
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			return strings.TrimRight(string(line), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return "", io.EOF
		default:
			return "", err
		}
	}
}
