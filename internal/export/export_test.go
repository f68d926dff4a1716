package export

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/keleshev/tau/internal/backend"
)

func TestFromSamples(t *testing.T) {
	now := time.Now()
	samples := []backend.Sample{
		{Time: now, Value: 8.0},
		{Time: now.Add(time.Second), Value: "running"},
		{Time: now.Add(2 * time.Second), Value: map[string]any{"rpm": 1.0}},
	}

	rows := FromSamples("engine", samples)
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}

	if !rows[0].Numeric || rows[0].Value != 8.0 {
		t.Errorf("numeric row = %+v", rows[0])
	}
	if rows[0].Signal != "engine" || rows[0].TimestampMs != now.UnixMilli() {
		t.Errorf("row metadata = %+v", rows[0])
	}

	if rows[1].Numeric || rows[1].Raw != `"running"` {
		t.Errorf("string row = %+v", rows[1])
	}
	if rows[2].Numeric || rows[2].Raw != `{"rpm":1}` {
		t.Errorf("compound row = %+v", rows[2])
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	now := time.Now()

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	var samples []backend.Sample
	for i := 0; i < 100; i++ {
		samples = append(samples, backend.Sample{
			Time:  now.Add(time.Duration(i) * time.Second),
			Value: float64(i),
		})
	}
	if err := w.Write(FromSamples("rpm", samples)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Rows() != 100 {
		t.Fatalf("Rows = %d", w.Rows())
	}

	rows, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 100 {
		t.Fatalf("read %d rows", len(rows))
	}
	if rows[0].Signal != "rpm" || rows[0].Value != 0 || rows[99].Value != 99 {
		t.Fatalf("rows = %+v ... %+v", rows[0], rows[99])
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	w, err := NewWriter(filepath.Join(t.TempDir(), "out.parquet"))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write([]Row{{Signal: "rpm"}}); err == nil {
		t.Fatal("write after close should fail")
	}
	// Closing again is a no-op.
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSQLOverExportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	now := time.Now()

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	samples := []backend.Sample{
		{Time: now, Value: 1.0},
		{Time: now.Add(time.Second), Value: 2.0},
		{Time: now.Add(2 * time.Second), Value: 3.0},
	}
	if err := w.Write(FromSamples("rpm", samples)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	query := fmt.Sprintf(
		"SELECT signal, count(*) AS n, sum(value) AS total FROM read_parquet('%s') GROUP BY signal",
		path)
	results, err := SQL(context.Background(), query)
	if err != nil {
		t.Fatalf("SQL: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	row := results[0]
	if row["signal"] != "rpm" {
		t.Errorf("signal = %v", row["signal"])
	}
	if total, ok := row["total"].(float64); !ok || total != 6 {
		t.Errorf("total = %v (%T)", row["total"], row["total"])
	}
}

func TestSQLBadQuery(t *testing.T) {
	if _, err := SQL(context.Background(), "SELEKT nope"); err == nil {
		t.Fatal("bad SQL should fail")
	}
}
