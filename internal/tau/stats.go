package tau

import (
	"strconv"

	"github.com/keleshev/tau/internal/aggregate"
)

// Stats runs a range query and reduces each signal's samples to summary
// statistics with approximate percentiles. Non-numeric sample values are
// skipped; a signal whose samples are all non-numeric yields an empty
// (count zero) result.
func (t *Tau) Stats(q Query) (map[string]aggregate.Result, error) {
	samples, err := t.Samples(q)
	if err != nil {
		return nil, err
	}

	results := make(map[string]aggregate.Result, len(samples))
	for signal, series := range samples {
		agg := aggregate.New(signal, 0)
		for _, s := range series {
			if v, ok := numeric(s.Value); ok {
				agg.Add(v)
			}
		}
		results[signal] = agg.Result()
	}
	return results, nil
}

// numeric converts a sample value to float64 when it represents a number.
// The accepted domain mirrors the binary backend's, minus bools: stats
// over flags are not meaningful.
func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
