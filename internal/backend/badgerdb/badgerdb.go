// Package badgerdb implements the backend contract on BadgerDB for
// installations that want durable history without one-file-per-signal
// logs. Keys order samples by signal and timestamp, so range reads are a
// bounded iterator scan rather than a whole-log parse.
package badgerdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/keleshev/tau/internal/backend"
)

const name = "badger"

// keyPrefix namespaces sample keys: s\x00<signal>\x00<8-byte big-endian
// unix nanos><2-byte big-endian sequence>. Big-endian timestamps make
// lexicographic key order equal time order; the sequence keeps samples
// written within the same nanosecond distinct and ordered.
const keyPrefix = "s\x00"

const keySuffixLen = 1 + 8 + 2 // separator + timestamp + sequence

// Config holds BadgerDB configuration.
type Config struct {
	// Path to the database directory.
	Path string

	// InMemory mode, for tests.
	InMemory bool
}

// Backend stores samples in a BadgerDB key space.
type Backend struct {
	db *badger.DB

	// lastNanos and seq disambiguate writes landing in the same
	// nanosecond. Backends have a single writer, so no lock.
	lastNanos int64
	seq       uint16
}

// New opens (or creates) the database.
func New(cfg Config) (*Backend, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the database. The backend is unusable afterwards.
func (b *Backend) Close() error {
	return b.db.Close()
}

func signalPrefix(signal string) []byte {
	return []byte(keyPrefix + signal + "\x00")
}

func sampleKey(signal string, t time.Time, seq uint16) []byte {
	key := signalPrefix(signal)
	var suffix [10]byte
	binary.BigEndian.PutUint64(suffix[:8], uint64(t.UnixNano()))
	binary.BigEndian.PutUint16(suffix[8:], seq)
	return append(key, suffix[:]...)
}

func timeFromKey(key []byte) time.Time {
	ts := binary.BigEndian.Uint64(key[len(key)-10 : len(key)-2])
	return time.Unix(0, int64(ts))
}

// Set appends one sample.
func (b *Backend) Set(signal string, t time.Time, value any) error {
	if signal == "" || strings.ContainsRune(signal, 0) {
		return backend.Errorf(name, "set", signal, "invalid signal name")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return backend.WrapError(name, "set", signal, err)
	}
	nanos := t.UnixNano()
	if nanos == b.lastNanos {
		b.seq++
	} else {
		b.lastNanos, b.seq = nanos, 0
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sampleKey(signal, t, b.seq), data)
	})
	return backend.WrapError(name, "set", signal, err)
}

// Get returns samples for the signal, scanning only the signal's key range.
func (b *Backend) Get(signal string, rng *backend.Range, limit int) ([]backend.Sample, error) {
	var out []backend.Sample

	err := b.db.View(func(txn *badger.Txn) error {
		prefix := signalPrefix(signal)

		if rng == nil {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.Reverse = true
			it := txn.NewIterator(opts)
			defer it.Close()

			// Reverse iteration starts past the last key of the prefix.
			seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
			if it.Seek(seek); it.ValidForPrefix(prefix) {
				s, err := decodeItem(it.Item())
				if err != nil {
					return err
				}
				out = append(out, s)
			}
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(sampleKey(signal, rng.Start, 0)); it.ValidForPrefix(prefix); it.Next() {
			t := timeFromKey(it.Item().Key())
			if t.After(rng.End) {
				break
			}
			s, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, backend.WrapError(name, "get", signal, err)
	}

	if rng == nil {
		return out, nil
	}
	return backend.Downsample(out, limit), nil
}

func decodeItem(item *badger.Item) (backend.Sample, error) {
	t := timeFromKey(item.Key())
	var value any
	err := item.Value(func(data []byte) error {
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return backend.Sample{}, err
	}
	return backend.Sample{Time: t, Value: value}, nil
}

// Signals scans sample keys and collects distinct signal names.
func (b *Backend) Signals() ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		last := ""
		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			key := it.Item().Key()
			if len(key) < len(keyPrefix)+keySuffixLen {
				continue
			}
			signal := string(key[len(keyPrefix) : len(key)-keySuffixLen])
			if signal != last {
				names = append(names, signal)
				last = signal
			}
		}
		return nil
	})
	if err != nil {
		return nil, backend.WrapError(name, "signals", "", err)
	}
	return names, nil
}

// Clear drops every key in the database.
func (b *Backend) Clear() error {
	return backend.WrapError(name, "clear", "", b.db.DropAll())
}
