// Package glue implements the multiplexing backend: an ordered list of
// member backends composed behind the single backend contract, giving
// write redundancy and read fallback.
//
// Members are always called strictly sequentially in list order, never in
// parallel, so the order of fallback attempts is deterministic. Glue owns
// no series of its own.
package glue

import (
	"sort"
	"time"

	"github.com/keleshev/tau/internal/backend"
	"github.com/keleshev/tau/internal/logging"
)

const name = "glue"

var log = logging.Component(name)

// Backend fans writes out to every member and reads from the first member
// able to answer.
type Backend struct {
	members []backend.Backend
}

// New composes the given members. An empty member list is legal to
// construct but fails every Set and Get.
func New(members ...backend.Backend) *Backend {
	return &Backend{members: members}
}

// Set attempts the write on every member, tolerating per-member failures.
// It succeeds when at least one member accepted the sample and fails only
// when no member could represent it, which is how a float-only member can
// coexist with general-value members.
func (b *Backend) Set(signal string, t time.Time, value any) error {
	accepted := false
	for _, m := range b.members {
		if err := m.Set(signal, t, value); err != nil {
			log.Debug("member rejected write", "signal", signal, "error", err)
			continue
		}
		accepted = true
	}
	if !accepted {
		return backend.Errorf(name, "set", signal, "no member backend accepted the value")
	}
	return nil
}

// Get queries members in order and returns the first non-empty result.
// When every member errors or comes back empty the call fails: a missing
// answer is indistinguishable from missing members except by the failure
// itself, and callers that prefer an empty result decide that at their own
// boundary.
func (b *Backend) Get(signal string, rng *backend.Range, limit int) ([]backend.Sample, error) {
	for _, m := range b.members {
		samples, err := m.Get(signal, rng, limit)
		if err != nil {
			log.Debug("member failed read, falling back", "signal", signal, "error", err)
			continue
		}
		if len(samples) > 0 {
			return samples, nil
		}
	}
	return nil, backend.Errorf(name, "get", signal, "no member backend returned data")
}

// Signals returns the sorted union of every member's known signals.
// Members that cannot answer are skipped.
func (b *Backend) Signals() ([]string, error) {
	seen := make(map[string]struct{})
	for _, m := range b.members {
		signals, err := m.Signals()
		if err != nil {
			log.Debug("member failed signal listing", "error", err)
			continue
		}
		for _, s := range signals {
			seen[s] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for s := range seen {
		names = append(names, s)
	}
	sort.Strings(names)
	return names, nil
}

// Clear clears every member. A failing member does not stop the others
// from being cleared; the first failure is reported after all attempts.
func (b *Backend) Clear() error {
	var firstErr error
	for _, m := range b.members {
		if err := m.Clear(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return backend.WrapError(name, "clear", "", firstErr)
}
