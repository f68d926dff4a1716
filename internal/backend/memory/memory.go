// Package memory implements the volatile backend with a sliding retention
// window. Samples older than the window are discarded lazily at the head of
// every Set and Get, so no caller can observe an expired sample.
package memory

import (
	"time"

	"github.com/keleshev/tau/internal/backend"
)

const name = "memory"

// Backend stores series in memory. Data is lost on restart.
type Backend struct {
	window time.Duration
	series map[string][]backend.Sample

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates a memory backend retaining samples for the given window.
func New(window time.Duration) *Backend {
	return &Backend{
		window: window,
		series: make(map[string][]backend.Sample),
		now:    time.Now,
	}
}

// prune discards expired samples from every series. A signal pruned down
// to zero samples stays known until Clear.
func (b *Backend) prune() {
	now := b.now()
	for signal, samples := range b.series {
		kept := samples[:0]
		for _, s := range samples {
			if now.Sub(s.Time) < b.window {
				kept = append(kept, s)
			}
		}
		b.series[signal] = kept
	}
}

// Set appends one sample to the signal's series.
func (b *Backend) Set(signal string, t time.Time, value any) error {
	b.prune()
	b.series[signal] = append(b.series[signal], backend.Sample{Time: t, Value: value})
	return nil
}

// Get returns samples for the signal. A range query fails when its start
// precedes the retention window: the backend cannot prove it has complete
// history that far back, and the caller should ask a durable backend
// instead. Latest-value queries never fail.
func (b *Backend) Get(signal string, rng *backend.Range, limit int) ([]backend.Sample, error) {
	b.prune()

	samples := b.series[signal]

	if rng == nil {
		if len(samples) == 0 {
			return nil, nil
		}
		return []backend.Sample{samples[len(samples)-1]}, nil
	}

	if b.now().Sub(rng.Start) >= b.window {
		return nil, backend.Errorf(name, "get", signal,
			"range start %s is beyond the %s retention window", rng.Start.Format(time.RFC3339), b.window)
	}

	var out []backend.Sample
	for _, s := range samples {
		if rng.Contains(s.Time) {
			out = append(out, s)
		}
	}
	return backend.Downsample(out, limit), nil
}

// Signals returns the names of every signal seen since the last Clear.
func (b *Backend) Signals() ([]string, error) {
	b.prune()
	names := make([]string, 0, len(b.series))
	for signal := range b.series {
		names = append(names, signal)
	}
	return names, nil
}

// Clear deletes all signals and samples.
func (b *Backend) Clear() error {
	b.series = make(map[string][]backend.Sample)
	return nil
}
