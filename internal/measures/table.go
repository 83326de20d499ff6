package measures

import (
	"math"
	"sort"
)

// AllClinics is the clinic key of the whole-population row.
const AllClinics = "*ALL*"

// Kind tags the type carried by a Value.
type Kind int

const (
	KindCount Kind = iota
	KindRate
	KindLabel
)

// Value is one cell of a month table.
type Value struct {
	Kind  Kind
	Count int
	Rate  float64
	Label string
}

func Count(n int) Value { return Value{Kind: KindCount, Count: n} }

func Rate(f float64) Value { return Value{Kind: KindRate, Rate: f} }

func Label(s string) Value { return Value{Kind: KindLabel, Label: s} }

// Float returns the numeric value, or false for labels.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindCount:
		return float64(v.Count), true
	case KindRate:
		return v.Rate, true
	}
	return 0, false
}

// Raw returns the value as an int, float64 or string.
func (v Value) Raw() any {
	switch v.Kind {
	case KindCount:
		return v.Count
	case KindRate:
		return v.Rate
	}
	return v.Label
}

// Row maps measure names to values for one clinic.
type Row map[string]Value

// Table holds one row per clinic plus the AllClinics row.
type Table struct {
	rows map[string]Row
}

// NewTable returns a table with an empty row for every clinic and for AllClinics.
func NewTable(clinics []string) *Table {
	t := &Table{rows: make(map[string]Row, len(clinics)+1)}
	t.rows[AllClinics] = Row{}
	for _, clinic := range clinics {
		t.rows[clinic] = Row{}
	}
	return t
}

func (t *Table) Set(clinic, name string, v Value) {
	row, ok := t.rows[clinic]
	if !ok {
		row = Row{}
		t.rows[clinic] = row
	}
	row[name] = v
}

func (t *Table) Get(clinic, name string) (Value, bool) {
	if t == nil {
		return Value{}, false
	}
	row, ok := t.rows[clinic]
	if !ok {
		return Value{}, false
	}
	v, ok := row[name]
	return v, ok
}

// Number returns a numeric cell, or 0 when absent or not numeric.
func (t *Table) Number(clinic, name string) float64 {
	v, ok := t.Get(clinic, name)
	if !ok {
		return 0
	}
	f, _ := v.Float()
	return f
}

// Row returns a copy of a clinic's row.
func (t *Table) Row(clinic string) Row {
	if t == nil {
		return nil
	}
	row, ok := t.rows[clinic]
	if !ok {
		return nil
	}
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Keys returns every row key including AllClinics, sorted.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.rows))
	for key := range t.rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clinics returns the clinic keys without AllClinics, sorted.
func (t *Table) Clinics() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.rows))
	for key := range t.rows {
		if key != AllClinics {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Columns returns the union of measure names across rows, sorted.
func (t *Table) Columns() []string {
	seen := map[string]struct{}{}
	for _, row := range t.rows {
		for name := range row {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies every cell of other into t.
func (t *Table) Merge(other *Table) {
	for clinic, row := range other.rows {
		for name, v := range row {
			t.Set(clinic, name, v)
		}
	}
}

// HalfUp rounds half away from zero.
func HalfUp(x float64) int {
	if x >= 0 {
		return int(math.Floor(x + 0.5))
	}
	return int(math.Ceil(x - 0.5))
}

// Percent is count/total as a half-up rounded whole percentage, 0 when total is 0.
func Percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(HalfUp(float64(count) / float64(total) * 100))
}

// Round2 rounds to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
