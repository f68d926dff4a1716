// Package wire implements the framing and encoding of the tau protocol.
//
// Frames are newline-delimited text, each frame one JSON-encoded message.
// A request is a two-element array [command, argument] with command one of
// "set", "get", "signals" or "clear"; a response carries the bare result.
// Timestamps travel anywhere in a message as a tagged object
// {"__datetime__": "2006-01-02T15:04:05.000000"} and decode back to
// time.Time on receipt; samples travel as [timestamp, value] pairs.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/backend"
)

// TimeLayout is the ISO-8601 timestamp encoding of the protocol.
const TimeLayout = "2006-01-02T15:04:05.000000"

// parseLayout accepts timestamps with any fractional precision, including
// none; peers omit the fraction when the microseconds are zero. Go parsing
// takes an optional fractional second after the seconds field of the layout.
const parseLayout = "2006-01-02T15:04:05"

// timeKey tags a JSON object as an encoded timestamp.
const timeKey = "__datetime__"

// Message is one request frame.
type Message struct {
	Command  string
	Argument any
}

// =============================================================================
// Value encoding
// =============================================================================

// encodeValue rewrites a result/argument tree into JSON-encodable values,
// tagging timestamps and flattening samples into pairs.
func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{timeKey: x.Format(TimeLayout)}
	case backend.Sample:
		return []any{encodeValue(x.Time), encodeValue(x.Value)}
	case []backend.Sample:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = encodeValue(s)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = encodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = encodeValue(val)
		}
		return out
	default:
		return v
	}
}

// decodeValue walks a decoded JSON tree and restores tagged timestamps.
func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if raw, ok := x[timeKey].(string); ok {
				if t, err := time.ParseInLocation(parseLayout, raw, time.Local); err == nil {
					return t
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = decodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = decodeValue(val)
		}
		return out
	default:
		return v
	}
}

// Marshal encodes a value as one JSON frame, newline included.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(encodeValue(v))
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes one frame into a value tree with restored timestamps.
func Unmarshal(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return decodeValue(v), nil
}

// =============================================================================
// Framing
// =============================================================================

// Reader reads newline-delimited frames from an io.Reader.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// readFrame reads one line, rejecting frames over the message size limit.
// The limit is enforced while reading: an oversized or newline-less frame
// fails as soon as it crosses the cap, it is never buffered whole.
func (r *Reader) readFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := r.r.ReadSlice('\n')
		frame = append(frame, chunk...)
		if len(frame) > config.DefaultMaxMessageSize {
			return nil, fmt.Errorf("frame exceeds %d bytes", config.DefaultMaxMessageSize)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			return nil, err
		}
		return frame, nil
	}
}

// ReadMessage reads and decodes the next request frame.
func (r *Reader) ReadMessage() (Message, error) {
	line, err := r.readFrame()
	if err != nil {
		return Message{}, err
	}
	v, err := Unmarshal(line)
	if err != nil {
		return Message{}, err
	}
	parts, ok := v.([]any)
	if !ok || len(parts) != 2 {
		return Message{}, fmt.Errorf("message is not a [command, argument] pair")
	}
	command, ok := parts[0].(string)
	if !ok {
		return Message{}, fmt.Errorf("message command is not a string")
	}
	return Message{Command: command, Argument: parts[1]}, nil
}

// ReadValue reads and decodes the next response frame.
func (r *Reader) ReadValue() (any, error) {
	line, err := r.readFrame()
	if err != nil {
		return nil, err
	}
	return Unmarshal(line)
}

// Writer writes newline-delimited frames to an io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteMessage encodes and writes one request frame.
func (w *Writer) WriteMessage(msg Message) error {
	return w.WriteValue([]any{msg.Command, msg.Argument})
}

// WriteValue encodes and writes one response frame.
func (w *Writer) WriteValue(v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
