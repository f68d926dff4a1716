// Package aggregate maintains running statistics over a signal's samples,
// with percentiles approximated by a DDSketch.
package aggregate

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/keleshev/tau/config"
)

// Aggregate accumulates one signal's numeric samples. It is single-caller,
// like everything else in the engine, and carries no lock.
type Aggregate struct {
	signal string

	count int64
	sum   float64
	min   float64
	max   float64

	// sketch is nil when percentile tracking could not be set up; the
	// plain statistics still work.
	sketch *ddsketch.DDSketch
}

// New creates an aggregate for the given signal. accuracy is the DDSketch
// relative accuracy; zero or negative selects the default.
func New(signal string, accuracy float64) *Aggregate {
	if accuracy <= 0 {
		accuracy = config.DefaultStatsAccuracy
	}
	a := &Aggregate{
		signal: signal,
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
	}
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		a.sketch = sketch
	}
	return a
}

// Add accumulates one value.
func (a *Aggregate) Add(value float64) {
	a.count++
	a.sum += value
	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}
	if a.sketch != nil {
		_ = a.sketch.Add(value)
	}
}

// Count returns the number of accumulated values.
func (a *Aggregate) Count() int64 { return a.count }

// IsEmpty reports whether nothing has been accumulated.
func (a *Aggregate) IsEmpty() bool { return a.count == 0 }

// Result holds the finished statistics for one signal.
type Result struct {
	Signal string  `json:"signal"`
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// Result snapshots the statistics. An empty aggregate yields a zero Result
// carrying only the signal name.
func (a *Aggregate) Result() Result {
	r := Result{Signal: a.signal, Count: a.count}
	if a.count == 0 {
		return r
	}
	r.Sum = a.sum
	r.Min = a.min
	r.Max = a.max
	r.Avg = a.sum / float64(a.count)

	if a.sketch != nil {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		r.P50, r.P90, r.P95, r.P99 = p50, p90, p95, p99
	}
	return r
}
