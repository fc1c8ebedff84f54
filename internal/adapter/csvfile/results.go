package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// ResultWriter writes the final table to a CSV file.
type ResultWriter struct {
	path   string
	logger *slog.Logger
}

// NewResultWriter creates a writer for path. Parent directories are created
// on first write.
func NewResultWriter(path string, logger *slog.Logger) *ResultWriter {
	return &ResultWriter{path: path, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *ResultWriter) Name() string { return "csv" }

// Load writes the table through a temporary file renamed into place, so
// readers never observe a partial file.
func (w *ResultWriter) Load(ctx context.Context, columns []string, rows []domain.ResultRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeResults(tmp, columns, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename to %s: %w", w.path, err)
	}

	w.logger.Info("results written", "file", w.path, "rows", len(rows))
	return nil
}

// EncodeResults writes the header year, the metric columns, country and
// country_iso, then one line per row. Floats use the shortest exact form.
func EncodeResults(out io.Writer, columns []string, rows []domain.ResultRow) error {
	cw := csv.NewWriter(out)

	header := make([]string, 0, len(columns)+3)
	header = append(header, "year")
	header = append(header, columns...)
	header = append(header, "country", "country_iso")
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for _, r := range rows {
		if len(r.Values) != len(columns) {
			return fmt.Errorf("row %d/%s has %d values for %d columns", r.Year, r.ISO3, len(r.Values), len(columns))
		}
		rec[0] = strconv.Itoa(r.Year)
		for i, v := range r.Values {
			rec[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		rec[len(rec)-2] = r.Country
		rec[len(rec)-1] = r.ISO3
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
