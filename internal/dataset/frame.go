// Package dataset turns a CSV table into per-target train/test matrices.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Frame is a rectangular table of raw string cells with a header row.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

func NewFrame(columns []string, rows [][]string) (*Frame, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("frame has no columns")
	}
	f := &Frame{columns: make([]string, len(columns)), index: make(map[string]int, len(columns))}
	for i, c := range columns {
		name := strings.TrimSpace(c)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("duplicate column: %s", name)
		}
		f.columns[i] = name
		f.index[name] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i+1, len(row), len(columns))
		}
		f.rows = append(f.rows, append([]string(nil), row...))
	}
	return f, nil
}

// ReadCSV reads a header row followed by data rows. Blank lines are skipped.
func ReadCSV(in io.Reader) (*Frame, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	rows := make([][]string, 0, 1024)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}
		rows = append(rows, record)
	}
	return NewFrame(header, rows)
}

func ReadCSVFile(path string) (*Frame, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("csv path is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

func (f *Frame) Len() int {
	return len(f.rows)
}

// Rows returns a copy of the raw data rows.
func (f *Frame) Rows() [][]string {
	out := make([][]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Column returns the trimmed raw cells of column.
func (f *Frame) Column(column string) ([]string, error) {
	i, ok := f.index[column]
	if !ok {
		return nil, fmt.Errorf("column not found: %s", column)
	}
	out := make([]string, len(f.rows))
	for r, row := range f.rows {
		out[r] = strings.TrimSpace(row[i])
	}
	return out, nil
}

// NumericColumns lists, in header order, the columns whose every cell parses
// as a number or a boolean.
func (f *Frame) NumericColumns() []string {
	out := make([]string, 0, len(f.columns))
	for _, name := range f.columns {
		values, _ := f.Column(name)
		if len(values) == 0 {
			continue
		}
		numeric := true
		for _, v := range values {
			if _, ok := parseNumeric(v); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			out = append(out, name)
		}
	}
	return out
}

// Floats parses column as numbers, mapping booleans to 0 and 1.
func (f *Frame) Floats(column string) ([]float64, error) {
	values, err := f.Column(column)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(values))
	for i, v := range values {
		parsed, ok := parseNumeric(v)
		if !ok {
			return nil, fmt.Errorf("column %s row %d: %q is not numeric", column, i+1, v)
		}
		out[i] = parsed
	}
	return out, nil
}

func parseNumeric(raw string) (float64, bool) {
	if b, ok := parseBool(raw); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}
