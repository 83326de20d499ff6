package store

import (
	"sort"
	"time"

	"referral-process-measures/internal/measures"
)

// Accessor selects how a cell is returned by Lookup.
type Accessor int

const (
	// AccessRaw returns the cell as stored: int, float64 or string.
	AccessRaw Accessor = iota
	// AccessRate returns a float64, 0 for labels and missing cells.
	AccessRate
	// AccessCount returns a truncated int, 0 for labels and missing cells.
	AccessCount
)

// Query addresses one cell. Offset shifts Month by whole months.
type Query struct {
	Accessor Accessor
	Month    time.Time
	Clinic   string
	Measure  string
	Offset   int
}

// Store is the read-only measure store built once at startup. Only usage-test
// results change after construction, under their own locks.
type Store struct {
	asOf          time.Time
	months        []time.Time
	tables        map[time.Time]*measures.Table
	distributions map[time.Time]*measures.Distribution
	pending       map[measures.PendingStatus]measures.DataSource
	usage         *usageBook
}

// New assembles a store from computed months and pending snapshots.
func New(asOf time.Time, results []*measures.MonthResult, pending []measures.DataSource) *Store {
	s := &Store{
		asOf:          asOf,
		tables:        make(map[time.Time]*measures.Table, len(results)),
		distributions: make(map[time.Time]*measures.Distribution, len(results)),
		pending:       make(map[measures.PendingStatus]measures.DataSource, len(pending)),
	}
	for _, result := range results {
		key := monthKey(result.Month)
		s.months = append(s.months, key)
		s.tables[key] = result.Measures
		s.distributions[key] = result.Distributions
	}
	sort.Slice(s.months, func(i, j int) bool { return s.months[i].Before(s.months[j]) })
	for _, src := range pending {
		s.pending[src.Status()] = src
	}
	s.usage = newUsageBook(s.months, s.tables)
	return s
}

func monthKey(t time.Time) time.Time {
	return measures.FirstOfMonth(t)
}

func (s *Store) AsOf() time.Time { return s.asOf }

// Months returns the reporting months, oldest first.
func (s *Store) Months() []time.Time {
	return append([]time.Time(nil), s.months...)
}

// LastMonth is the default month for queries: the most recent reporting month.
func (s *Store) LastMonth() time.Time {
	if len(s.months) == 0 {
		return time.Time{}
	}
	return s.months[len(s.months)-1]
}

// Table returns the month table, or nil for a month outside the store.
func (s *Store) Table(month time.Time) *measures.Table {
	return s.tables[monthKey(month)]
}

// Distribution returns the month's distributions, or nil.
func (s *Store) Distribution(month time.Time) *measures.Distribution {
	return s.distributions[monthKey(month)]
}

// Lookup resolves a query. Missing months, clinics and measures yield the zero
// value of the accessor's type; AccessRaw reads a miss as the count 0.
func (s *Store) Lookup(q Query) any {
	month := monthKey(q.Month).AddDate(0, q.Offset, 0)
	v, ok := s.tables[month].Get(q.Clinic, q.Measure)
	switch q.Accessor {
	case AccessRate:
		if !ok {
			return 0.0
		}
		f, _ := v.Float()
		return f
	case AccessCount:
		if !ok {
			return 0
		}
		f, _ := v.Float()
		return int(f)
	}
	if !ok {
		return 0
	}
	return v.Raw()
}

// ClinicMeasure returns a cell as stored, or 0 when absent.
func (s *Store) ClinicMeasure(month time.Time, clinic, measure string) any {
	return s.Lookup(Query{Accessor: AccessRaw, Month: month, Clinic: clinic, Measure: measure})
}

// ClinicRate returns a numeric cell as float64, 0 otherwise.
func (s *Store) ClinicRate(month time.Time, clinic, measure string) float64 {
	return s.Lookup(Query{Accessor: AccessRate, Month: month, Clinic: clinic, Measure: measure}).(float64)
}

// ClinicCount returns a numeric cell truncated to int, 0 otherwise.
func (s *Store) ClinicCount(month time.Time, clinic, measure string) int {
	return s.Lookup(Query{Accessor: AccessCount, Month: month, Clinic: clinic, Measure: measure}).(int)
}

// ClinicRateAt is ClinicRate for the month offset months away from month.
func (s *Store) ClinicRateAt(month time.Time, offset int, clinic, measure string) float64 {
	return s.Lookup(Query{Accessor: AccessRate, Month: month, Offset: offset, Clinic: clinic, Measure: measure}).(float64)
}

// ClinicCountAt is ClinicCount for the month offset months away from month.
func (s *Store) ClinicCountAt(month time.Time, offset int, clinic, measure string) int {
	return s.Lookup(Query{Accessor: AccessCount, Month: month, Offset: offset, Clinic: clinic, Measure: measure}).(int)
}

func (s *Store) OverallMeasure(month time.Time, measure string) any {
	return s.ClinicMeasure(month, measures.AllClinics, measure)
}

func (s *Store) OverallRate(month time.Time, measure string) float64 {
	return s.ClinicRate(month, measures.AllClinics, measure)
}

func (s *Store) OverallCount(month time.Time, measure string) int {
	return s.ClinicCount(month, measures.AllClinics, measure)
}

// Clinics returns the month's clinics, sorted, without AllClinics.
func (s *Store) Clinics(month time.Time) []string {
	return s.tables[monthKey(month)].Clinics()
}

// ClinicDistributionCount returns a sparse distribution cell, 0 when absent.
func (s *Store) ClinicDistributionCount(month time.Time, clinic, dimension, category, priority string) int {
	return s.distributions[monthKey(month)].Count(measures.DistributionKey{
		Clinic:    clinic,
		Dimension: dimension,
		Category:  category,
		Priority:  priority,
	})
}

// Pending returns the snapshot source for a pending status.
func (s *Store) Pending(status measures.PendingStatus) (measures.DataSource, bool) {
	src, ok := s.pending[status]
	return src, ok
}
