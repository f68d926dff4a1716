// Package export writes stored samples to Parquet files and lets them
// be queried offline with SQL.
//
// Exported files are self-contained: every sample carries its signal
// name, so a directory of exports can be queried as one table with
// DuckDB's read_parquet.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/parquet-go/parquet-go"

	"github.com/keleshev/tau/internal/backend"
)

// Row is one exported sample.
//
// Numeric values land in Value; everything else keeps its JSON form in
// Raw with Numeric false.
type Row struct {
	Signal      string  `parquet:"signal,zstd"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Value       float64 `parquet:"value"`
	Numeric     bool    `parquet:"numeric"`
	Raw         string  `parquet:"raw,optional,zstd"`
}

// FromSamples converts one signal's samples to rows.
func FromSamples(signal string, samples []backend.Sample) []Row {
	rows := make([]Row, 0, len(samples))
	for _, s := range samples {
		row := Row{
			Signal:      signal,
			TimestampMs: s.Time.UnixMilli(),
		}
		if v, ok := numeric(s.Value); ok {
			row.Value = v
			row.Numeric = true
		} else if raw, err := json.Marshal(s.Value); err == nil {
			row.Raw = string(raw)
		}
		rows = append(rows, row)
	}
	return rows
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Writer writes rows to a Parquet file.
type Writer struct {
	path   string
	file   *os.File
	writer *parquet.GenericWriter[Row]
	rows   int64
	closed bool
}

// NewWriter creates a Parquet writer at path, creating parent
// directories as needed.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	writer := parquet.NewGenericWriter[Row](f,
		parquet.Compression(&parquet.Zstd))
	return &Writer{path: path, file: f, writer: writer}, nil
}

// Write appends rows to the file.
func (w *Writer) Write(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if w.closed {
		return fmt.Errorf("export writer is closed")
	}
	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rows += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 { return w.rows }

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// ReadFile reads all rows from an exported file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows[:n], nil
}

// SQL runs a query against exported files with DuckDB. Files are
// addressed with read_parquet('<glob>') in the query text.
func SQL(ctx context.Context, query string) ([]map[string]any, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
