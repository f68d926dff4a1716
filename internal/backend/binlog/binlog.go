// Package binlog implements the durable binary-log backend: two parallel
// fixed-width append-only files per signal. <signal>.TIME holds 8-byte
// little-endian tick counts (1 tick = 100 nanoseconds since the Unix epoch)
// and <signal>.VALUE holds 4-byte IEEE-754 floats; record i in TIME pairs
// with record i in VALUE.
//
// The narrower value domain is the point of this backend: only values
// coercible to a 32-bit float are accepted, in exchange for a dense
// 12-bytes-per-sample layout. Truncated trailing records, e.g. after a
// crash between the two appends, are discarded on read.
package binlog

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/keleshev/tau/internal/backend"
)

const name = "binary"

const (
	timeExt  = ".TIME"
	valueExt = ".VALUE"

	timeRecordSize  = 8
	valueRecordSize = 4

	// nanosPerTick converts between time.Time and on-disk tick counts.
	nanosPerTick = 100
)

// Backend stores each signal in <dir>/<signal>.TIME and <dir>/<signal>.VALUE.
type Backend struct {
	dir string
}

// New creates a binary-log backend rooted at dir, creating it if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) timePath(signal string) string {
	return filepath.Join(b.dir, signal+timeExt)
}

func (b *Backend) valuePath(signal string) string {
	return filepath.Join(b.dir, signal+valueExt)
}

func validSignal(signal string) bool {
	return signal != "" && signal == filepath.Base(signal) && !strings.HasPrefix(signal, ".")
}

func ticks(t time.Time) uint64 {
	return uint64(t.UnixNano() / nanosPerTick)
}

func timeFromTicks(n uint64) time.Time {
	return time.Unix(0, int64(n)*nanosPerTick)
}

// Coerce converts a sample value to the backend's float32 domain. Numbers,
// bools and numeric strings convert; everything else is rejected.
func Coerce(value any) (float32, error) {
	switch v := value.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return float32(v), nil
	case int32:
		return float32(v), nil
	case int64:
		return float32(v), nil
	case uint:
		return float32(v), nil
	case uint32:
		return float32(v), nil
	case uint64:
		return float32(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}
		return float32(f), nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", value)
	}
}

// Set appends one fixed-width record pair. The value is validated before
// anything touches disk, so a rejected write leaves no partial record.
func (b *Backend) Set(signal string, t time.Time, value any) error {
	if !validSignal(signal) {
		return backend.Errorf(name, "set", signal, "signal name is not a valid file name")
	}
	f32, err := Coerce(value)
	if err != nil {
		return backend.WrapError(name, "set", signal, err)
	}

	var timeRec [timeRecordSize]byte
	binary.LittleEndian.PutUint64(timeRec[:], ticks(t))
	if err := appendRecord(b.timePath(signal), timeRec[:]); err != nil {
		return backend.WrapError(name, "set", signal, err)
	}

	var valueRec [valueRecordSize]byte
	binary.LittleEndian.PutUint32(valueRec[:], math.Float32bits(f32))
	if err := appendRecord(b.valuePath(signal), valueRec[:]); err != nil {
		return backend.WrapError(name, "set", signal, err)
	}
	return nil
}

func appendRecord(path string, record []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(record); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Get scans both log files and pairs their records. The pair count is the
// smaller of the two complete-record counts, which drops truncated tails.
func (b *Backend) Get(signal string, rng *backend.Range, limit int) ([]backend.Sample, error) {
	if !validSignal(signal) {
		return nil, nil
	}
	times, err := readLog(b.timePath(signal))
	if err != nil {
		return nil, backend.WrapError(name, "get", signal, err)
	}
	values, err := readLog(b.valuePath(signal))
	if err != nil {
		return nil, backend.WrapError(name, "get", signal, err)
	}

	n := len(times) / timeRecordSize
	if m := len(values) / valueRecordSize; m < n {
		n = m
	}

	var out []backend.Sample
	for i := 0; i < n; i++ {
		t := timeFromTicks(binary.LittleEndian.Uint64(times[i*timeRecordSize:]))
		v := math.Float32frombits(binary.LittleEndian.Uint32(values[i*valueRecordSize:]))
		s := backend.Sample{Time: t, Value: float64(v)}
		if rng == nil || rng.Contains(t) {
			out = append(out, s)
		}
	}

	if rng == nil {
		if len(out) == 0 {
			return nil, nil
		}
		return out[len(out)-1:], nil
	}
	return backend.Downsample(out, limit), nil
}

// readLog reads a whole log file; a missing file is an empty log.
func readLog(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Signals enumerates signals by their .TIME files.
func (b *Backend) Signals() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, backend.WrapError(name, "signals", "", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), timeExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), timeExt))
	}
	return names, nil
}

// Clear deletes every log file owned by this backend.
func (b *Backend) Clear() error {
	signals, err := b.Signals()
	if err != nil {
		return backend.WrapError(name, "clear", "", err)
	}
	for _, signal := range signals {
		for _, path := range []string{b.timePath(signal), b.valuePath(signal)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return backend.WrapError(name, "clear", signal, err)
			}
		}
	}
	return nil
}
