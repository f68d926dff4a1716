// Package textlog implements the durable text-log backend: one append-only
// CSV-style file per signal, one "timestamp,JSON value" line per sample.
//
// Files are opened, written and closed within a single Set, so every write
// is durable before the call returns. Reads are full linear scans in file
// order, which is time order because writes only append.
package textlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/backend"
)

const name = "text"

// TimeLayout is the timestamp encoding used in log lines, an ISO-8601
// instant with microsecond precision.
const TimeLayout = "2006-01-02T15:04:05.000000"

// parseLayout tolerates lines whose timestamp carries fewer fractional
// digits, or none at all, as other writers of the format emit them.
const parseLayout = "2006-01-02T15:04:05"

// Backend stores each signal in <dir>/<signal>.csv.
type Backend struct {
	dir string
	ext string
}

// New creates a text-log backend rooted at dir, creating it if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Backend{dir: dir, ext: config.DefaultTextExt}, nil
}

func (b *Backend) path(signal string) string {
	return filepath.Join(b.dir, signal+b.ext)
}

func validSignal(signal string) bool {
	return signal != "" && signal == filepath.Base(signal) && !strings.HasPrefix(signal, ".")
}

// Set appends one "timestamp,JSON" line to the signal's log.
func (b *Backend) Set(signal string, t time.Time, value any) error {
	if !validSignal(signal) {
		return backend.Errorf(name, "set", signal, "signal name is not a valid file name")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return backend.WrapError(name, "set", signal, err)
	}

	f, err := os.OpenFile(b.path(signal), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return backend.WrapError(name, "set", signal, err)
	}
	line := t.Format(TimeLayout) + "," + string(data) + "\n"
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return backend.WrapError(name, "set", signal, err)
	}
	return backend.WrapError(name, "set", signal, f.Close())
}

// Get scans the signal's log. Malformed or partial trailing lines are
// ignored, so a crash mid-append never poisons the whole log.
func (b *Backend) Get(signal string, rng *backend.Range, limit int) ([]backend.Sample, error) {
	if !validSignal(signal) {
		return nil, nil
	}
	f, err := os.Open(b.path(signal))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, backend.WrapError(name, "get", signal, err)
	}
	defer f.Close()

	var out []backend.Sample
	var last backend.Sample
	found := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), config.DefaultMaxMessageSize)
	for scanner.Scan() {
		s, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if rng == nil {
			last, found = s, true
			continue
		}
		if rng.Contains(s.Time) {
			out = append(out, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, backend.WrapError(name, "get", signal, err)
	}

	if rng == nil {
		if !found {
			return nil, nil
		}
		return []backend.Sample{last}, nil
	}
	return backend.Downsample(out, limit), nil
}

// parseLine decodes one "timestamp,JSON" record.
func parseLine(line string) (backend.Sample, bool) {
	i := strings.IndexByte(line, ',')
	if i < 0 {
		return backend.Sample{}, false
	}
	t, err := time.ParseInLocation(parseLayout, line[:i], time.Local)
	if err != nil {
		return backend.Sample{}, false
	}
	var value any
	if err := json.Unmarshal([]byte(line[i+1:]), &value); err != nil {
		return backend.Sample{}, false
	}
	return backend.Sample{Time: t, Value: value}, true
}

// Signals enumerates the log files present on disk.
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
		if e.IsDir() || !strings.HasSuffix(e.Name(), b.ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), b.ext))
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
		if err := os.Remove(b.path(signal)); err != nil && !os.IsNotExist(err) {
			return backend.WrapError(name, "clear", signal, err)
		}
	}
	return nil
}
