// Package tau implements the query engine: the public API of the store.
//
// A Tau wraps exactly one backend (often a glue composite), resolves
// signal-name patterns against the backend's known signals, interprets
// query options and shapes the result. It adds no storage and no recovery
// of its own: backend failures propagate to the caller unchanged.
package tau

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/keleshev/tau/internal/backend"
)

// Engine is the API surface shared by the local engine and the network
// client, consumed by the CLI, the shell and the collector.
type Engine interface {
	Set(values map[string]any) error
	Get(q Query) (any, error)
	Signals() ([]string, error)
	Clear() error
}

// Query describes one Get call: which signals, over which time range, and
// how the result is shaped.
//
// Period and Start/End are mutually exclusive ways to select a range:
// Period is a window ending now, Start/End an absolute window (both must be
// given). With neither, the query returns the latest value per signal.
type Query struct {
	// Names holds signal names or glob patterns (*, ?, [...]).
	Names []string

	// Period selects samples from the window [now-Period, now].
	Period time.Duration

	// Start and End select samples from an absolute window, inclusive.
	Start time.Time
	End   time.Time

	// Limit caps the number of samples per signal via stride decimation.
	Limit int

	// Timestamps includes the timestamp alongside each value.
	Timestamps bool
}

// rangeOf resolves the query's time selection. A nil range means a
// latest-value query.
func (q Query) rangeOf(now time.Time) (*backend.Range, error) {
	hasAbsolute := !q.Start.IsZero() || !q.End.IsZero()
	if q.Period != 0 && hasAbsolute {
		return nil, fmt.Errorf("period and start/end are mutually exclusive")
	}
	if q.Period < 0 {
		return nil, fmt.Errorf("period must be positive")
	}
	if q.Period > 0 {
		return &backend.Range{Start: now.Add(-q.Period), End: now}, nil
	}
	if hasAbsolute {
		if q.Start.IsZero() || q.End.IsZero() {
			return nil, fmt.Errorf("start and end must be given together")
		}
		return &backend.Range{Start: q.Start, End: q.End}, nil
	}
	return nil, nil
}

// IsPattern reports whether s contains glob metacharacters.
func IsPattern(s string) bool {
	return strings.ContainsAny(s, "*?[]")
}

// match applies case-sensitive shell-glob matching. A malformed pattern
// matches only itself, literally.
func match(pattern, signal string) bool {
	ok, err := path.Match(pattern, signal)
	if err != nil {
		return pattern == signal
	}
	return ok
}

// Tau is the query engine.
type Tau struct {
	backend backend.Backend
	now     func() time.Time
}

// New creates an engine over the given backend.
func New(b backend.Backend) *Tau {
	return &Tau{backend: b, now: time.Now}
}

// Set writes every entry of values as a sample stamped with the current
// time. There is no transactionality across keys: a failure leaves earlier
// keys written and later ones not.
func (t *Tau) Set(values map[string]any) error {
	now := t.now()
	for signal, value := range values {
		if err := t.backend.Set(signal, now, value); err != nil {
			return err
		}
	}
	return nil
}

// Get resolves the query's names, fetches each signal and shapes the
// result. The result is a map from signal name to per-signal result,
// except when exactly one concrete (non-pattern) name was requested: then
// the signal's result is returned unwrapped.
//
// Per-signal results are: the latest value (or nil) for latest-value
// queries, a time-ascending value slice for range queries, and Samples
// instead of bare values when Timestamps is set.
func (t *Tau) Get(q Query) (any, error) {
	rng, err := q.rangeOf(t.now())
	if err != nil {
		return nil, err
	}
	signals, err := t.resolve(q.Names)
	if err != nil {
		return nil, err
	}

	results := make(map[string]any, len(signals))
	for _, signal := range signals {
		samples, err := t.backend.Get(signal, rng, q.Limit)
		if err != nil {
			return nil, err
		}
		results[signal] = shape(samples, rng != nil, q.Timestamps)
	}

	if len(q.Names) == 1 && !IsPattern(q.Names[0]) {
		return results[q.Names[0]], nil
	}
	return results, nil
}

// Samples runs a range query and returns the raw samples per resolved
// signal. It is the typed counterpart of Get for callers that post-process
// samples (stats, export).
func (t *Tau) Samples(q Query) (map[string][]backend.Sample, error) {
	rng, err := q.rangeOf(t.now())
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("a period or start/end range is required")
	}
	signals, err := t.resolve(q.Names)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]backend.Sample, len(signals))
	for _, signal := range signals {
		samples, err := t.backend.Get(signal, rng, q.Limit)
		if err != nil {
			return nil, err
		}
		results[signal] = samples
	}
	return results, nil
}

// resolve expands patterns against the backend's known signals and merges
// them with the directly named signals, dropping duplicates. Direct names
// survive resolution even when the backend has never seen them.
func (t *Tau) resolve(names []string) ([]string, error) {
	var patterns []string
	seen := make(map[string]struct{})
	var resolved []string

	add := func(signal string) {
		if _, dup := seen[signal]; dup {
			return
		}
		seen[signal] = struct{}{}
		resolved = append(resolved, signal)
	}

	for _, name := range names {
		if IsPattern(name) {
			patterns = append(patterns, name)
		} else {
			add(name)
		}
	}

	if len(patterns) > 0 {
		known, err := t.backend.Signals()
		if err != nil {
			return nil, err
		}
		for _, pattern := range patterns {
			for _, signal := range known {
				if match(pattern, signal) {
					add(signal)
				}
			}
		}
	}
	return resolved, nil
}

// shape converts one signal's samples into its per-signal result.
func shape(samples []backend.Sample, ranged, timestamps bool) any {
	if !ranged {
		if len(samples) == 0 {
			return nil
		}
		latest := samples[len(samples)-1]
		if timestamps {
			return latest
		}
		return latest.Value
	}

	if timestamps {
		if samples == nil {
			samples = []backend.Sample{}
		}
		return samples
	}
	values := make([]any, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

// Signals returns the names known to the backend.
func (t *Tau) Signals() ([]string, error) {
	return t.backend.Signals()
}

// Clear deletes all signals and samples.
func (t *Tau) Clear() error {
	return t.backend.Clear()
}

var _ Engine = (*Tau)(nil)
