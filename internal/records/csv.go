package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrMissingColumn is returned when a required source column is absent from the header row.
	ErrMissingColumn = errors.New("missing required column")
	// ErrInvalidDate is returned when a date cell is present but cannot be parsed.
	ErrInvalidDate = errors.New("invalid date")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
}

// ParseDate parses a date cell. An empty cell yields the zero time and no error.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidDate, value)
}

// DateOnly truncates a timestamp to midnight, keeping the zero time as is.
func DateOnly(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}

// table is a header-indexed view over a CSV source.
type table struct {
	reader  *csv.Reader
	columns map[string]int
	source  string
	line    int
}

func openTable(r io.Reader, source string) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read header: %w", source, err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	return &table{reader: reader, columns: normalizeHeaders(headers), source: source, line: 1}, nil
}

func (t *table) require(name string) (int, error) {
	idx, ok := t.columns[normalizeHeader(name)]
	if !ok {
		return -1, fmt.Errorf("%s: %w %q", t.source, ErrMissingColumn, name)
	}
	return idx, nil
}

func (t *table) optional(name string) int {
	if idx, ok := t.columns[normalizeHeader(name)]; ok {
		return idx
	}
	return -1
}

// next returns the next non-empty record, or io.EOF.
func (t *table) next() ([]string, error) {
	for {
		record, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%s: unable to read CSV: %w", t.source, err)
		}
		t.line++
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		return record, nil
	}
}

func (t *table) date(record []string, idx int, column string) (time.Time, error) {
	parsed, err := ParseDate(getValue(record, idx))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s line %d column %q: %w", t.source, t.line, column, err)
	}
	return DateOnly(parsed), nil
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := normalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

func getValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
