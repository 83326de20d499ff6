package measures

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"referral-process-measures/internal/records"
)

// PendingStatus selects one of the current pending-status snapshots.
type PendingStatus int

const (
	OnHold PendingStatus = iota
	PendingReschedule
	PendingAcceptance
	AcceptedPending
)

// PendingStatuses lists every status in display order.
var PendingStatuses = []PendingStatus{OnHold, PendingReschedule, PendingAcceptance, AcceptedPending}

var pendingNames = map[PendingStatus]string{
	OnHold:            "on-hold",
	PendingReschedule: "pending-reschedule",
	PendingAcceptance: "pending-acceptance",
	AcceptedPending:   "accepted",
}

var pendingSourceStatus = map[PendingStatus]string{
	OnHold:            records.StatusOnHold,
	PendingReschedule: records.StatusPendingReschedule,
	PendingAcceptance: records.StatusPendingAcceptance,
	AcceptedPending:   records.StatusAccepted,
}

func (s PendingStatus) String() string {
	if name, ok := pendingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PendingStatus(%d)", int(s))
}

// SourceStatus is the referral status value the snapshot selects.
func (s PendingStatus) SourceStatus() string {
	return pendingSourceStatus[s]
}

// ParsePendingStatus accepts either the slug ("on-hold") or the source status ("On Hold").
func ParsePendingStatus(value string) (PendingStatus, error) {
	value = strings.TrimSpace(value)
	for _, status := range PendingStatuses {
		if strings.EqualFold(value, status.String()) || strings.EqualFold(value, status.SourceStatus()) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown pending status %q", value)
}

// age and reason extract a referral's bin inputs for a status.
func (s PendingStatus) age(ref *records.Referral) float64 {
	switch s {
	case OnHold:
		if ref.DateHeld.IsZero() {
			return math.NaN()
		}
		return ref.DaysOnHold
	case PendingReschedule:
		if ref.DatePendingReschedule.IsZero() {
			return math.NaN()
		}
		return ref.DaysPendingReschedule
	case PendingAcceptance:
		if !ref.WasSent {
			return math.NaN()
		}
		return ref.DaysUntilAccepted
	default:
		if !ref.WasSent {
			return math.NaN()
		}
		return ref.DaysUntilSeen
	}
}

func (s PendingStatus) reason(ref *records.Referral) string {
	if s == OnHold {
		return strings.ReplaceAll(ref.HoldReason, "Coordinating", "Coord.")
	}
	return ref.SubStatus
}

// CategoryCount is one bin or reason with its aged-referral count.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DataSource serves one pending status's distributions.
type DataSource interface {
	Status() PendingStatus
	// AgeCount returns the count in an age bin for a clinic, 0 when absent.
	AgeCount(clinic, category string) int
	// AgeCounts returns the age bins for a clinic in bin order.
	AgeCounts(clinic string) []CategoryCount
	// ReasonCounts returns the reason (or sub-status) counts for a clinic, sorted by reason.
	ReasonCounts(clinic string) []CategoryCount
}

type pendingSource struct {
	status  PendingStatus
	ages    map[string]map[string]int
	reasons map[string]map[string]int
}

// NewPendingSource builds the snapshot of referrals currently in status. Counts are
// sums of the aged flag.
func NewPendingSource(refs []records.Referral, status PendingStatus) DataSource {
	src := &pendingSource{
		status:  status,
		ages:    map[string]map[string]int{},
		reasons: map[string]map[string]int{},
	}
	want := status.SourceStatus()
	for i := range refs {
		ref := &refs[i]
		if ref.Status != want {
			continue
		}
		n := boolCount(ref.Aged)
		addNested(src.ages, ref.Clinic, AgeCategory(status.age(ref)), n)
		addNested(src.reasons, ref.Clinic, status.reason(ref), n)
	}
	return src
}

func addNested(m map[string]map[string]int, outer, inner string, n int) {
	if m[outer] == nil {
		m[outer] = map[string]int{}
	}
	m[outer][inner] += n
}

func (p *pendingSource) Status() PendingStatus { return p.status }

func (p *pendingSource) AgeCount(clinic, category string) int {
	return p.ages[clinic][category]
}

func (p *pendingSource) AgeCounts(clinic string) []CategoryCount {
	out := make([]CategoryCount, 0, len(AgeCategories)+1)
	for _, category := range append(append([]string{}, AgeCategories...), NoCategory) {
		n, ok := p.ages[clinic][category]
		if !ok && category == NoCategory {
			continue
		}
		out = append(out, CategoryCount{Category: category, Count: n})
	}
	return out
}

func (p *pendingSource) ReasonCounts(clinic string) []CategoryCount {
	out := make([]CategoryCount, 0, len(p.reasons[clinic]))
	for reason, n := range p.reasons[clinic] {
		out = append(out, CategoryCount{Category: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
