package wire

import (
	"fmt"
	"time"

	"github.com/keleshev/tau/internal/tau"
)

// EncodeQuery converts a query into the get-request argument shape:
// [[names...], {period, start, end, limit, timestamps}]. Zero-valued
// options are omitted; period travels in (possibly fractional) seconds.
func EncodeQuery(q tau.Query) []any {
	names := make([]any, len(q.Names))
	for i, n := range q.Names {
		names[i] = n
	}
	options := make(map[string]any)
	if q.Period > 0 {
		options["period"] = q.Period.Seconds()
	}
	if !q.Start.IsZero() {
		options["start"] = q.Start
	}
	if !q.End.IsZero() {
		options["end"] = q.End
	}
	if q.Limit > 0 {
		options["limit"] = q.Limit
	}
	if q.Timestamps {
		options["timestamps"] = true
	}
	return []any{names, options}
}

// DecodeQuery parses a get-request argument back into a query.
func DecodeQuery(argument any) (tau.Query, error) {
	var q tau.Query

	parts, ok := argument.([]any)
	if !ok || len(parts) != 2 {
		return q, fmt.Errorf("get argument is not a [names, options] pair")
	}

	names, ok := parts[0].([]any)
	if !ok {
		return q, fmt.Errorf("get names is not an array")
	}
	for _, n := range names {
		s, ok := n.(string)
		if !ok {
			return q, fmt.Errorf("get name %v is not a string", n)
		}
		q.Names = append(q.Names, s)
	}

	options, ok := parts[1].(map[string]any)
	if !ok {
		if parts[1] == nil {
			return q, nil
		}
		return q, fmt.Errorf("get options is not an object")
	}

	for key, value := range options {
		switch key {
		case "period":
			seconds, ok := value.(float64)
			if !ok {
				return q, fmt.Errorf("period is not a number")
			}
			q.Period = time.Duration(seconds * float64(time.Second))
		case "start":
			t, ok := value.(time.Time)
			if !ok {
				return q, fmt.Errorf("start is not a timestamp")
			}
			q.Start = t
		case "end":
			t, ok := value.(time.Time)
			if !ok {
				return q, fmt.Errorf("end is not a timestamp")
			}
			q.End = t
		case "limit":
			n, ok := value.(float64)
			if !ok {
				return q, fmt.Errorf("limit is not a number")
			}
			q.Limit = int(n)
		case "timestamps":
			b, ok := value.(bool)
			if !ok {
				return q, fmt.Errorf("timestamps is not a boolean")
			}
			q.Timestamps = b
		default:
			return q, fmt.Errorf("unknown get option %q", key)
		}
	}
	return q, nil
}
