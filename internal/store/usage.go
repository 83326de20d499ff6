package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"referral-process-measures/internal/measures"
)

// ErrUnknownTest is returned when scoring a milestone that is not a usage test.
var ErrUnknownTest = errors.New("unknown usage test")

type usageKey struct {
	month  time.Time
	clinic string
}

// usageEntry holds one clinic-month's usage rows. mu guards results.
type usageEntry struct {
	mu      sync.Mutex
	results []measures.UsageTestResult
}

// usageBook is fixed at construction: one placeholder entry per month and clinic,
// including AllClinics. Entries are mutated independently under their own lock.
type usageBook struct {
	tables  map[time.Time]*measures.Table
	entries map[usageKey]*usageEntry
}

func newUsageBook(months []time.Time, tables map[time.Time]*measures.Table) *usageBook {
	b := &usageBook{tables: tables, entries: map[usageKey]*usageEntry{}}
	for _, month := range months {
		for _, clinic := range tables[month].Keys() {
			results := make([]measures.UsageTestResult, 0, len(measures.UsageTests))
			for _, test := range measures.UsageTests {
				results = append(results, measures.UsageTestResult{
					Month:     month,
					Clinic:    clinic,
					Milestone: test.Milestone,
					Title:     test.Title,
					Points:    test.Points,
				})
			}
			b.entries[usageKey{month: month, clinic: clinic}] = &usageEntry{results: results}
		}
	}
	return b
}

func (b *usageBook) entry(month time.Time, clinic string) (*usageEntry, bool) {
	e, ok := b.entries[usageKey{month: monthKey(month), clinic: clinic}]
	return e, ok
}

// UsageResults returns a copy of the clinic-month's usage rows, nil when the
// month or clinic is unknown.
func (s *Store) UsageResults(month time.Time, clinic string) []measures.UsageTestResult {
	e, ok := s.usage.entry(month, clinic)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]measures.UsageTestResult(nil), e.results...)
}

// SetUsageScore records the result and score of one milestone from a ratio.
func (s *Store) SetUsageScore(month time.Time, clinic, milestone string, ratio float64) error {
	e, ok := s.usage.entry(month, clinic)
	if !ok {
		return fmt.Errorf("no usage rows for %s %s", clinic, monthKey(month).Format("2006-01"))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set(milestone, ratio)
}

func (e *usageEntry) set(milestone string, ratio float64) error {
	for i := range e.results {
		if e.results[i].Milestone == milestone {
			e.results[i] = e.results[i].Scored(ratio)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTest, milestone)
}

// ScoreUsage computes every usage test for a clinic-month from its measures and
// returns the scored rows. The whole update runs under the entry's lock.
func (s *Store) ScoreUsage(month time.Time, clinic string) ([]measures.UsageTestResult, error) {
	e, ok := s.usage.entry(month, clinic)
	if !ok {
		return nil, fmt.Errorf("no usage rows for %s %s", clinic, monthKey(month).Format("2006-01"))
	}
	table := s.usage.tables[monthKey(month)]

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, test := range measures.UsageTests {
		ratio, ok := measures.UsageRatio(table, clinic, test.Milestone)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTest, test.Milestone)
		}
		if err := e.set(test.Milestone, ratio); err != nil {
			return nil, err
		}
	}
	return append([]measures.UsageTestResult(nil), e.results...), nil
}

// UsageTotals sums points and score across results and returns the score as a
// half-up whole percentage of the available points.
func UsageTotals(results []measures.UsageTestResult) (points int, score float64, pct int) {
	for _, r := range results {
		points += r.Points
		score += r.Score
	}
	score = measures.Round2(score)
	if points > 0 {
		pct = measures.HalfUp(score / float64(points) * 100)
	}
	return points, score, pct
}
