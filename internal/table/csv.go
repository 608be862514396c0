package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

// Read parses a CSV stream whose first record is the header.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrSchemaMismatch)
	}
	header := records[0]
	// Spreadsheet exports often prefix the first header cell with a BOM.
	header[0] = strings.TrimPrefix(header[0], utf8BOM)
	return New(header, records[1:])
}

// ReadFile loads a CSV file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	slog.Debug("loaded csv", "path", path, "rows", t.Len(), "columns", len(t.columns))
	return t, nil
}

// Write serializes the table as CSV with a header row.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range t.rows {
		if err := cw.Write(r); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile truncates path and writes the table to it. The write is not atomic: a
// failure part way leaves a truncated file.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	slog.Debug("wrote csv", "path", path, "rows", t.Len())
	return nil
}
