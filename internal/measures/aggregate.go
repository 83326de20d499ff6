package measures

import (
	"fmt"
	"sort"
	"time"

	"referral-process-measures/internal/records"
)

// Window is a half-open date range [Start, End) with the prefix its measure names carry.
type Window struct {
	Start  time.Time
	End    time.Time
	Prefix string
}

func (w Window) contains(t time.Time) bool {
	return !t.IsZero() && !t.Before(w.Start) && t.Before(w.End)
}

// Windows returns the as-of report month window followed by the four trailing
// windows that end on the first of the following month.
func Windows(month time.Time) []Window {
	next := month.AddDate(0, 1, 0)
	windows := []Window{{Start: month, End: next}}
	for _, days := range []int{28, 91, 182, 364} {
		windows = append(windows, Window{
			Start:  next.AddDate(0, 0, -days),
			End:    next,
			Prefix: fmt.Sprintf("MOV%d ", days),
		})
	}
	return windows
}

// Lookback describes a lag window family: which priority it covers, the measure
// stem and which optional measures it produces.
type Lookback struct {
	Days     int
	Priority string
	Stem     string
	// SeenWithin adds "{Stem} Seen in Nd" and its percentage when non-zero.
	SeenWithin int
	// Milestones adds the accepted/completed counts, medians and seen/scheduled ratios.
	Milestones bool
}

var (
	UrgentAfter5Days = Lookback{Days: 5, Priority: records.PriorityUrgent, Stem: "Urgent Referrals", SeenWithin: 5}
	RoutineAfter30   = Lookback{Days: 30, Priority: records.PriorityRoutine, Stem: "Routine Referrals", SeenWithin: 30}
	AllAfter90Days   = Lookback{Days: 90, Stem: "Referrals", Milestones: true}
)

// Lookbacks are the three process-time windows computed every month.
var Lookbacks = []Lookback{UrgentAfter5Days, RoutineAfter30, AllAfter90Days}

func (l Lookback) suffix() string {
	return fmt.Sprintf("After %dd", l.Days)
}

// Name builds "{prefix}{stem} {verb} After {N}d".
func (l Lookback) Name(prefix, verb string) string {
	return fmt.Sprintf("%s%s %s %s", prefix, l.Stem, verb, l.suffix())
}

// TotalName builds "{prefix}{stem} {verb}". Sent and Aged totals carry no lag suffix.
func (l Lookback) TotalName(prefix, verb string) string {
	return fmt.Sprintf("%s%s %s", prefix, l.Stem, verb)
}

// SeenWithinName builds "{prefix}{stem} Seen in {N}d".
func (l Lookback) SeenWithinName(prefix string) string {
	return fmt.Sprintf("%s%s Seen in %dd", prefix, l.Stem, l.SeenWithin)
}

// PctSeenWithinName builds "{prefix}Pct {stem} Seen in {N}d".
func (l Lookback) PctSeenWithinName(prefix string) string {
	return prefix + "Pct " + l.SeenWithinName("")
}

func (l Lookback) selects(ref *records.Referral) bool {
	return l.Priority == "" || ref.Priority == l.Priority
}

// Median measure names, produced by the 90 day lookback.
const (
	MedianDaysSeen      = "Median Days until Seen"
	MedianDaysScheduled = "Median Days until Scheduled"
	MedianDaysCompleted = "Median Days until Completed"
	MedianDaysAccepted  = "Median Days to Accept"
)

// Aggregate computes one lookback over one window for every clinic and for AllClinics.
// The AllClinics row is computed over the whole filtered set, never summed from clinic rows.
func Aggregate(refs []records.Referral, clinics []string, lb Lookback, w Window) *Table {
	known := make(map[string]struct{}, len(clinics))
	for _, clinic := range clinics {
		known[clinic] = struct{}{}
	}
	groups := make(map[string][]*records.Referral, len(clinics))
	all := make([]*records.Referral, 0)
	for i := range refs {
		ref := &refs[i]
		if _, ok := known[ref.Clinic]; !ok {
			continue
		}
		if !lb.selects(ref) || !w.contains(ref.LagDate(lb.Days)) {
			continue
		}
		groups[ref.Clinic] = append(groups[ref.Clinic], ref)
		all = append(all, ref)
	}

	table := NewTable(clinics)
	for _, clinic := range clinics {
		aggregateGroup(table, clinic, groups[clinic], lb, w.Prefix)
	}
	aggregateGroup(table, AllClinics, all, lb, w.Prefix)
	return table
}

func aggregateGroup(t *Table, clinic string, group []*records.Referral, lb Lookback, prefix string) {
	var sent, aged, rejected, canceled, closedWBS, seen, scheduled, waiting, notScheduled int
	var seenWithin, accepted, completed, completedSeen int
	var daysSeen, daysScheduled, daysCompleted, daysAccepted []float64

	for _, ref := range group {
		sent++
		switch {
		case ref.Status == records.StatusRejected && ref.WasSent:
			rejected++
		case ref.Status == records.StatusCancelled && ref.WasSent:
			canceled++
		case !ref.Aged && ref.WasSent:
			closedWBS++
		}
		if !ref.Aged {
			continue
		}
		aged++
		if ref.SeenOrCheckedIn {
			seen++
		}
		if ref.Scheduled() {
			scheduled++
			if !ref.SeenOrCheckedIn {
				waiting++
			}
		} else {
			notScheduled++
		}
		if lb.SeenWithin > 0 && ref.DaysUntilSeen <= float64(lb.SeenWithin) {
			seenWithin++
		}
		if lb.Milestones {
			if ref.WasAccepted {
				accepted++
			}
			if ref.WasCompleted {
				completed++
				if ref.SeenOrCheckedIn {
					completedSeen++
				}
			}
			daysSeen = append(daysSeen, ref.DaysUntilSeen)
			daysScheduled = append(daysScheduled, ref.DaysUntilScheduled)
			daysCompleted = append(daysCompleted, ref.DaysUntilCompleted)
			daysAccepted = append(daysAccepted, ref.DaysUntilAccepted)
		}
	}

	t.Set(clinic, lb.TotalName(prefix, "Sent"), Count(sent))
	t.Set(clinic, lb.TotalName(prefix, "Aged"), Count(aged))
	t.Set(clinic, lb.Name(prefix, "Rejected"), Count(rejected))
	t.Set(clinic, lb.Name(prefix, "Canceled"), Count(canceled))
	t.Set(clinic, lb.Name(prefix, "Closed WBS"), Count(closedWBS))
	t.Set(clinic, lb.Name(prefix, "Seen"), Count(seen))
	t.Set(clinic, lb.Name(prefix, "Scheduled"), Count(scheduled))
	t.Set(clinic, lb.Name(prefix, "Waiting"), Count(waiting))
	t.Set(clinic, lb.Name(prefix, "Not Scheduled"), Count(notScheduled))

	if lb.SeenWithin > 0 {
		t.Set(clinic, lb.SeenWithinName(prefix), Count(seenWithin))
		t.Set(clinic, lb.PctSeenWithinName(prefix), Rate(Percent(seenWithin, aged)))
	}
	if lb.Milestones {
		t.Set(clinic, lb.Name(prefix, "Accepted"), Count(accepted))
		t.Set(clinic, lb.Name(prefix, "Completed"), Count(completed))
		t.Set(clinic, lb.Name(prefix, "Completed and Seen"), Count(completedSeen))
		t.Set(clinic, prefix+MedianDaysSeen, Rate(Median(daysSeen)))
		t.Set(clinic, prefix+MedianDaysScheduled, Rate(Median(daysScheduled)))
		t.Set(clinic, prefix+MedianDaysCompleted, Rate(Median(daysCompleted)))
		t.Set(clinic, prefix+MedianDaysAccepted, Rate(Median(daysAccepted)))
		t.Set(clinic, prefix+"Pct "+lb.Name("", "Seen"), Rate(Percent(seen, aged)))
		t.Set(clinic, prefix+"Pct "+lb.Name("", "Scheduled"), Rate(Percent(scheduled, aged)))
	}
}

// Median returns the median of values, 0 for an empty set.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
