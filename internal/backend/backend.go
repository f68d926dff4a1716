// Package backend defines the storage contract shared by every tau backend.
//
// A backend stores append-ordered series of timestamped samples, one series
// per named signal. Four capabilities make up the contract: Set, Get,
// Signals and Clear. Every failure crossing the contract is an *Error, so
// composing backends (see the glue package) can tell "this member cannot
// answer" apart from programming mistakes.
package backend

import (
	"errors"
	"fmt"
	"time"
)

// Sample is one (timestamp, value) observation of a signal.
type Sample struct {
	Time  time.Time
	Value any
}

// Range selects samples with Start <= t <= End.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Backend is the capability set implemented by every storage variant.
//
// Implementations are not safe for concurrent use: there is exactly one
// logical reader/writer active per call. The network server serializes
// clients, so backends need no locking of their own.
type Backend interface {
	// Set appends one sample to the signal's series. Insertion order is
	// time order; backends trust the caller's wall clock.
	Set(signal string, t time.Time, value any) error

	// Get returns samples for the signal. A nil rng requests the single
	// most recent sample, returned as a one-element slice (empty when the
	// signal is unknown or has no samples). With a range, every sample
	// inside it is returned in ascending time order; the call fails when
	// the backend cannot prove its retained history covers the range.
	// limit > 0 decimates the result, see Downsample.
	Get(signal string, rng *Range, limit int) ([]Sample, error)

	// Signals returns the names of every signal known to the backend.
	Signals() ([]string, error)

	// Clear deletes all signals and samples. Idempotent.
	Clear() error
}

// =============================================================================
// Errors
// =============================================================================

// Error is the single failure kind crossing the Backend contract. It is
// raised when a value cannot be represented by the backend, when a range
// read cannot be proven complete, or when a composite backend exhausts its
// members.
type Error struct {
	Backend string // implementation name, e.g. "memory"
	Op      string // "set", "get", "signals" or "clear"
	Signal  string // empty for signal-independent operations
	Err     error  // optional cause
}

func (e *Error) Error() string {
	msg := e.Backend + " " + e.Op
	if e.Signal != "" {
		msg += " " + e.Signal
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf creates an *Error with a formatted cause.
func Errorf(backend, op, signal, format string, args ...any) *Error {
	return &Error{Backend: backend, Op: op, Signal: signal, Err: fmt.Errorf(format, args...)}
}

// WrapError wraps err into an *Error unless it already is one, in which
// case it is returned unchanged. Returns nil for a nil err.
func WrapError(backend, op, signal string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Backend: backend, Op: op, Signal: signal, Err: err}
}

// IsError reports whether err is (or wraps) a backend contract failure.
func IsError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// =============================================================================
// Downsampling
// =============================================================================

// Downsample decimates samples to respect limit using a uniform stride:
// stride = max(1, count/limit + 1), keeping indices 0, stride, 2*stride, ...
// This drops samples, it never averages them. limit <= 0 disables
// decimation.
func Downsample(samples []Sample, limit int) []Sample {
	if limit <= 0 || len(samples) == 0 {
		return samples
	}
	stride := len(samples)/limit + 1
	if stride < 1 {
		stride = 1
	}
	if stride == 1 {
		return samples
	}
	out := make([]Sample, 0, len(samples)/stride+1)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}
	return out
}
