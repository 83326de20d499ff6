package measures

import (
	"sort"

	"referral-process-measures/internal/records"
)

// Distribution dimension names.
const (
	DimensionAgeToSeen      = "Age Category to Seen"
	DimensionAgeToScheduled = "Age Category to Scheduled"
	DimensionStatus         = "Referral Status"
)

// DistributionKey identifies one sparse distribution cell. Priority is empty for
// priority-agnostic dimensions.
type DistributionKey struct {
	Clinic    string
	Dimension string
	Category  string
	Priority  string
}

// DistributionEntry is a cell with its count.
type DistributionEntry struct {
	DistributionKey
	Count int
}

// Distribution is a sparse set of counts keyed by clinic, dimension, category and priority.
type Distribution struct {
	counts map[DistributionKey]int
}

func NewDistribution() *Distribution {
	return &Distribution{counts: map[DistributionKey]int{}}
}

// Add accumulates n into key, creating the cell if needed.
func (d *Distribution) Add(key DistributionKey, n int) {
	d.counts[key] += n
}

// Count returns the count at key, or 0 when the cell does not exist.
func (d *Distribution) Count(key DistributionKey) int {
	if d == nil {
		return 0
	}
	return d.counts[key]
}

// Entries returns every cell sorted by clinic, dimension, priority and category.
func (d *Distribution) Entries() []DistributionEntry {
	if d == nil {
		return nil
	}
	out := make([]DistributionEntry, 0, len(d.counts))
	for key, n := range d.counts {
		out = append(out, DistributionEntry{DistributionKey: key, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Clinic != b.Clinic {
			return a.Clinic < b.Clinic
		}
		if a.Dimension != b.Dimension {
			return a.Dimension < b.Dimension
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Category < b.Category
	})
	return out
}

// Merge adds every cell of other into d.
func (d *Distribution) Merge(other *Distribution) {
	for key, n := range other.counts {
		d.Add(key, n)
	}
}

// SeenAgeDistribution counts aged referrals in the 90 day lookback over w per clinic,
// priority and age bin of days until seen. Only non-empty cells are kept and no
// AllClinics cells are produced.
func SeenAgeDistribution(refs []records.Referral, clinics []string, w Window) *Distribution {
	d := NewDistribution()
	known := clinicSet(clinics)
	for i := range refs {
		ref := &refs[i]
		if _, ok := known[ref.Clinic]; !ok || !ref.Aged || !w.contains(ref.LagDate90) {
			continue
		}
		d.Add(DistributionKey{
			Clinic:    ref.Clinic,
			Dimension: DimensionAgeToSeen,
			Category:  AgeCategory(ref.DaysUntilSeen),
			Priority:  ref.Priority,
		}, 1)
	}
	return d
}

func clinicSet(clinics []string) map[string]struct{} {
	known := make(map[string]struct{}, len(clinics))
	for _, clinic := range clinics {
		known[clinic] = struct{}{}
	}
	return known
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
