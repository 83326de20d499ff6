package measures

import (
	"fmt"
	"sort"
	"time"

	"referral-process-measures/internal/records"
)

// FirstOfMonth normalizes t to the first day of its month at midnight UTC.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ReportingMonths returns the n months before the as-of month, oldest first.
func ReportingMonths(asOf time.Time, n int) []time.Time {
	first := FirstOfMonth(asOf).AddDate(0, -n, 0)
	months := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		months = append(months, first.AddDate(0, i, 0))
	}
	return months
}

// MonthResult is the full measure set for one reporting month.
type MonthResult struct {
	Month         time.Time
	Measures      *Table
	Distributions *Distribution
}

// Inputs are the immutable master tables a month is computed from.
type Inputs struct {
	Referrals *records.ReferralTable
	DSMs      *records.DSMTable
	Targets   Targets
}

// Clinics is the sorted union of clinics across referral and message sources.
func (in Inputs) Clinics() []string {
	seen := map[string]struct{}{}
	for _, clinic := range in.Referrals.Clinics() {
		seen[clinic] = struct{}{}
	}
	for _, clinic := range in.DSMs.Clinics() {
		seen[clinic] = struct{}{}
	}
	clinics := make([]string, 0, len(seen))
	for clinic := range seen {
		clinics = append(clinics, clinic)
	}
	sort.Strings(clinics)
	return clinics
}

// ComputeMonth runs every window and lookback for month, then derives the age
// categories, targets, variances and classifications.
func ComputeMonth(in Inputs, month time.Time) (*MonthResult, error) {
	month = FirstOfMonth(month)
	clinics := in.Clinics()
	refs := in.Referrals.Rows
	var dsms []records.DSM
	if in.DSMs != nil {
		dsms = in.DSMs.Rows
	}

	table := NewTable(clinics)
	windows := Windows(month)
	for _, lb := range Lookbacks {
		for _, w := range windows {
			table.Merge(Aggregate(refs, clinics, lb, w))
		}
	}

	current := windows[0]
	dist := SeenAgeDistribution(refs, clinics, current)
	table.Merge(CRMUsage(refs, clinics, current, dist))
	table.Merge(DSMUsage(dsms, clinics, current))

	for _, clinic := range table.Keys() {
		table.Set(clinic, DimensionAgeToScheduled, Label(AgeCategory(table.Number(clinic, MedianDaysScheduled))))
		table.Set(clinic, DimensionAgeToSeen, Label(AgeCategory(table.Number(clinic, MedianDaysSeen))))
	}

	aims := ProcessAims()
	ApplyTargets(table, in.Targets)
	ApplyVariances(table, VarianceDefs(aims))
	if err := Classify(table, CategoryDefs(aims)); err != nil {
		return nil, fmt.Errorf("month %s: %w", month.Format("2006-01"), err)
	}
	return &MonthResult{Month: month, Measures: table, Distributions: dist}, nil
}
