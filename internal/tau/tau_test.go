package tau

import (
	"reflect"
	"testing"
	"time"

	"github.com/keleshev/tau/internal/backend"
	"github.com/keleshev/tau/internal/backend/memory"
)

// newEngine builds an engine over a memory backend preloaded with two
// signals: a = 0, 5, 8 and b = 1, 6, 9 over the last few seconds.
func newEngine(t *testing.T) (*Tau, time.Time) {
	t.Helper()
	now := time.Now()
	mem := memory.New(time.Hour)
	for i, v := range []float64{0, 5, 8} {
		if err := mem.Set("a", now.Add(time.Duration(i-3)*time.Second), v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	for i, v := range []float64{1, 6, 9} {
		if err := mem.Set("b", now.Add(time.Duration(i-3)*time.Second), v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	engine := New(mem)
	engine.now = func() time.Time { return now }
	return engine, now
}

func TestGetLatestSingleName(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"a"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// A single concrete name comes back unwrapped.
	if got != 8.0 {
		t.Fatalf("Get(a) = %v, want 8", got)
	}
}

func TestGetLatestPattern(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"?"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[string]any{"a": 8.0, "b": 9.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get(?) = %v, want %v", got, want)
	}
}

func TestGetPeriod(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"?"}, Period: 10 * time.Second})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[string]any{
		"a": []any{0.0, 5.0, 8.0},
		"b": []any{1.0, 6.0, 9.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get(?, period) = %v, want %v", got, want)
	}
}

func TestGetStartEnd(t *testing.T) {
	engine, now := newEngine(t)

	got, err := engine.Get(Query{
		Names: []string{"a"},
		Start: now.Add(-10 * time.Second),
		End:   now,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, []any{0.0, 5.0, 8.0}) {
		t.Fatalf("Get(a, start/end) = %v", got)
	}
}

func TestGetTimestamps(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{
		Names:      []string{"a"},
		Period:     10 * time.Second,
		Timestamps: true,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	samples, ok := got.([]backend.Sample)
	if !ok {
		t.Fatalf("result type = %T, want []backend.Sample", got)
	}
	if len(samples) != 3 || samples[2].Value != 8.0 {
		t.Fatalf("samples = %v", samples)
	}
	if samples[0].Time.IsZero() {
		t.Fatal("timestamps missing")
	}
}

func TestGetLatestTimestamps(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"a"}, Timestamps: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sample, ok := got.(backend.Sample)
	if !ok {
		t.Fatalf("result type = %T, want backend.Sample", got)
	}
	if sample.Value != 8.0 || sample.Time.IsZero() {
		t.Fatalf("sample = %v", sample)
	}
}

func TestGetLimit(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	for i := 0; i < 10; i++ {
		mem.Set("rpm", now.Add(time.Duration(i-10)*time.Second), float64(i))
	}
	engine := New(mem)
	engine.now = func() time.Time { return now }

	got, err := engine.Get(Query{Names: []string{"rpm"}, Period: time.Minute, Limit: 4})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, []any{0.0, 3.0, 6.0, 9.0}) {
		t.Fatalf("Get with limit = %v", got)
	}
}

func TestPatterns(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	for _, signal := range []string{"mean-rpm", "mean-pressure", "rpm1", "rpm2", "x"} {
		mem.Set(signal, now, 1.0)
	}
	engine := New(mem)
	engine.now = func() time.Time { return now }

	tests := []struct {
		pattern string
		want    []string
	}{
		{"mean*", []string{"mean-pressure", "mean-rpm"}},
		{"rpm[12]", []string{"rpm1", "rpm2"}},
		{"?", []string{"x"}},
		{"nothing*", nil},
	}
	for _, tt := range tests {
		got, err := engine.Get(Query{Names: []string{tt.pattern}})
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.pattern, err)
		}
		m, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("Get(%q) type = %T, want map", tt.pattern, got)
		}
		if len(m) != len(tt.want) {
			t.Fatalf("Get(%q) = %v, want keys %v", tt.pattern, m, tt.want)
		}
		for _, signal := range tt.want {
			if _, ok := m[signal]; !ok {
				t.Errorf("Get(%q) missing %q", tt.pattern, signal)
			}
		}
	}
}

func TestPatternAndConcreteNameCombine(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	for _, signal := range []string{"meanSpeed", "meanPower", "rpm1", "rpm2", "foo"} {
		mem.Set(signal, now, 1.0)
	}
	engine := New(mem)
	engine.now = func() time.Time { return now }

	got, err := engine.Get(Query{Names: []string{"rpm[12]", "meanSpeed"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", got)
	}
	if len(m) != 3 {
		t.Fatalf("Get = %v, want exactly rpm1, rpm2, meanSpeed", m)
	}
	for _, signal := range []string{"rpm1", "rpm2", "meanSpeed"} {
		if _, ok := m[signal]; !ok {
			t.Errorf("missing %q", signal)
		}
	}
}

func TestUnknownConcreteName(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"missing"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get(missing) = %v, want nil", got)
	}
}

func TestMultipleNamesStayWrapped(t *testing.T) {
	engine, _ := newEngine(t)

	got, err := engine.Get(Query{Names: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[string]any{"a": 8.0, "b": 9.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get(a, b) = %v, want %v", got, want)
	}
}

func TestQueryValidation(t *testing.T) {
	engine, now := newEngine(t)

	bad := []Query{
		{Names: []string{"a"}, Period: time.Second, Start: now.Add(-time.Second), End: now},
		{Names: []string{"a"}, Start: now.Add(-time.Second)},
		{Names: []string{"a"}, End: now},
		{Names: []string{"a"}, Period: -time.Second},
	}
	for i, q := range bad {
		if _, err := engine.Get(q); err == nil {
			t.Errorf("query %d should be rejected", i)
		}
	}
}

func TestSetStampsCurrentTime(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	engine := New(mem)
	engine.now = func() time.Time { return now }

	if err := engine.Set(map[string]any{"rpm": 8.0, "state": "on"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := mem.Get("rpm", nil, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got[0].Time.Equal(now) {
		t.Fatalf("time = %v, want %v", got[0].Time, now)
	}
}

func TestSamplesRequiresRange(t *testing.T) {
	engine, _ := newEngine(t)

	if _, err := engine.Samples(Query{Names: []string{"a"}}); err == nil {
		t.Fatal("Samples without a range should fail")
	}

	samples, err := engine.Samples(Query{Names: []string{"a"}, Period: 10 * time.Second})
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples["a"]) != 3 {
		t.Fatalf("Samples = %v", samples)
	}
}

func TestStats(t *testing.T) {
	engine, _ := newEngine(t)

	stats, err := engine.Stats(Query{Names: []string{"a"}, Period: 10 * time.Second})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	r := stats["a"]
	if r.Count != 3 || r.Sum != 13 || r.Min != 0 || r.Max != 8 {
		t.Fatalf("Stats = %+v", r)
	}
	if r.Avg < 4.3 || r.Avg > 4.4 {
		t.Fatalf("Avg = %v", r.Avg)
	}
}

func TestStatsSkipsNonNumeric(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	mem.Set("state", now.Add(-2*time.Second), "on")
	mem.Set("state", now.Add(-time.Second), 5.0)
	engine := New(mem)
	engine.now = func() time.Time { return now }

	stats, err := engine.Stats(Query{Names: []string{"state"}, Period: 10 * time.Second})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["state"].Count != 1 {
		t.Fatalf("Count = %d, want 1", stats["state"].Count)
	}
}

func TestIsPattern(t *testing.T) {
	for _, s := range []string{"*", "?", "rpm[12]", "mean*"} {
		if !IsPattern(s) {
			t.Errorf("IsPattern(%q) = false", s)
		}
	}
	for _, s := range []string{"rpm", "mean-rpm", ""} {
		if IsPattern(s) {
			t.Errorf("IsPattern(%q) = true", s)
		}
	}
}

func TestMalformedPatternMatchesLiterally(t *testing.T) {
	now := time.Now()
	mem := memory.New(time.Hour)
	mem.Set("a[", now, 1.0)
	engine := New(mem)
	engine.now = func() time.Time { return now }

	got, err := engine.Get(Query{Names: []string{"a["}})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", got)
	}
	if m["a["] != 1.0 {
		t.Fatalf("Get(a[) = %v", m)
	}
}
