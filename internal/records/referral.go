package records

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// Referral status and priority values carried by the source system.
const (
	StatusRejected          = "Rejected"
	StatusCancelled         = "Cancelled"
	StatusClosed            = "Closed"
	StatusCompleted         = "Completed"
	StatusOnHold            = "On Hold"
	StatusPendingReschedule = "Pending Reschedule"
	StatusPendingAcceptance = "Pending Acceptance"
	StatusAccepted          = "Accepted"

	PriorityUrgent  = "Urgent"
	PriorityRoutine = "Routine"
)

// Referral is one source referral row plus its derived fields. Date fields hold the
// zero time when the source cell was empty.
type Referral struct {
	ID                 string
	PatientID          string
	Clinic             string
	Priority           string
	Status             string
	SubStatus          string
	HoldReason         string
	SourceLocation     string
	ProviderReferredTo string
	LocationReferredTo string
	OrganizationTo     string
	AssignedPersonnel  string
	LastUpdateBy       string

	DateSent              time.Time
	DateWritten           time.Time
	DateSeen              time.Time
	DateCheckedIn         time.Time
	DateHeld              time.Time
	DatePendingReschedule time.Time
	DateLastUpdate        time.Time
	DateSimilarScheduled  time.Time
	DateAccepted          time.Time
	DateCompleted         time.Time
	DateScheduled         time.Time

	DaysUntilSeen         float64
	DaysUntilAccepted     float64
	DaysUntilCompleted    float64
	DaysUntilScheduled    float64
	DaysOnHold            float64
	DaysPendingReschedule float64

	LagDate5  time.Time
	LagDate30 time.Time
	LagDate90 time.Time

	Aged              bool
	WasSent           bool
	SeenOrCheckedIn   bool
	PatientScheduled  bool
	AppointmentLinked bool
	WasAccepted       bool
	WasCompleted      bool
	SeenInCRM         bool
}

// Scheduled reports whether the patient has any scheduled appointment for the referral.
func (r *Referral) Scheduled() bool {
	return r.PatientScheduled || r.AppointmentLinked
}

// LagDate returns the sent date plus the given lookback, or the zero time when unsent.
func (r *Referral) LagDate(days int) time.Time {
	switch days {
	case 5:
		return r.LagDate5
	case 30:
		return r.LagDate30
	case 90:
		return r.LagDate90
	}
	if !r.WasSent {
		return time.Time{}
	}
	return r.DateSent.AddDate(0, 0, days)
}

// ReferralTable is the immutable master referral table.
type ReferralTable struct {
	AsOf time.Time
	Rows []Referral
}

// Clinics returns the distinct clinic names in sorted order.
func (t *ReferralTable) Clinics() []string {
	return distinct(len(t.Rows), func(i int) string { return t.Rows[i].Clinic })
}

// LoadReferrals reads the referral CSV at path.
func LoadReferrals(path string, asOf time.Time) (*ReferralTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadReferrals(file, path, asOf)
}

// ReadReferrals parses referral rows and derives the day counts, flags and lag dates
// relative to asOf. Missing required columns and malformed dates fail the whole load.
func ReadReferrals(r io.Reader, source string, asOf time.Time) (*ReferralTable, error) {
	asOf = DateOnly(asOf)
	tbl, err := openTable(r, source)
	if err != nil {
		return nil, err
	}

	idIdx, err := tbl.require("Referral ID")
	if err != nil {
		return nil, err
	}
	clinicIdx, err := tbl.require("Clinic")
	if err != nil {
		return nil, err
	}
	priorityIdx, err := tbl.require("Referral Priority")
	if err != nil {
		return nil, err
	}
	statusIdx, err := tbl.require("Referral Status")
	if err != nil {
		return nil, err
	}
	sentIdx, err := tbl.require("Date Referral Sent")
	if err != nil {
		return nil, err
	}

	text := map[string]int{}
	for _, name := range []string{
		"Patient ID", "Referral Sub-Status", "Reason for Hold", "Source Location",
		"Provider Referred To", "Location Referred To", "Organization Referred To",
		"Assigned Personnel", "Last Referral Update By",
	} {
		text[name] = tbl.optional(name)
	}
	dates := map[string]int{"Date Referral Sent": sentIdx}
	for _, name := range []string{
		"Date Referral Written", "Date Referral Seen", "Date Patient Checked In",
		"Date Held", "Date Pending Reschedule", "Date Last Referral Update",
		"Date Similar Appt Scheduled", "Date Accepted", "Date Referral Completed",
		"Date Referral Scheduled",
	} {
		dates[name] = tbl.optional(name)
	}

	result := &ReferralTable{AsOf: asOf}
	for {
		record, err := tbl.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		parsed := map[string]time.Time{}
		for name, idx := range dates {
			if idx < 0 {
				continue
			}
			value, err := tbl.date(record, idx, name)
			if err != nil {
				return nil, err
			}
			parsed[name] = value
		}

		ref := Referral{
			ID:                    getValue(record, idIdx),
			Clinic:                getValue(record, clinicIdx),
			Priority:              getValue(record, priorityIdx),
			Status:                getValue(record, statusIdx),
			PatientID:             getValue(record, text["Patient ID"]),
			SubStatus:             getValue(record, text["Referral Sub-Status"]),
			HoldReason:            getValue(record, text["Reason for Hold"]),
			SourceLocation:        getValue(record, text["Source Location"]),
			ProviderReferredTo:    getValue(record, text["Provider Referred To"]),
			LocationReferredTo:    getValue(record, text["Location Referred To"]),
			OrganizationTo:        getValue(record, text["Organization Referred To"]),
			AssignedPersonnel:     getValue(record, text["Assigned Personnel"]),
			LastUpdateBy:          getValue(record, text["Last Referral Update By"]),
			DateSent:              parsed["Date Referral Sent"],
			DateWritten:           parsed["Date Referral Written"],
			DateSeen:              parsed["Date Referral Seen"],
			DateCheckedIn:         parsed["Date Patient Checked In"],
			DateHeld:              parsed["Date Held"],
			DatePendingReschedule: parsed["Date Pending Reschedule"],
			DateLastUpdate:        parsed["Date Last Referral Update"],
			DateSimilarScheduled:  parsed["Date Similar Appt Scheduled"],
			DateAccepted:          parsed["Date Accepted"],
			DateCompleted:         parsed["Date Referral Completed"],
			DateScheduled:         parsed["Date Referral Scheduled"],
		}
		if ref.ID == "" {
			return nil, fmt.Errorf("%s line %d: empty Referral ID", source, tbl.line)
		}
		ref.derive(asOf)
		result.Rows = append(result.Rows, ref)
	}
	return result, nil
}

// derive fills the day counts, flags and lag dates. Every "days until" measure falls
// back to asOf when its milestone has not happened yet.
func (r *Referral) derive(asOf time.Time) {
	seenOrCheckedIn := firstDate(r.DateSeen, r.DateCheckedIn)
	scheduled := firstDate(r.DateScheduled, r.DateSimilarScheduled)

	r.WasSent = !r.DateSent.IsZero()
	r.SeenOrCheckedIn = !seenOrCheckedIn.IsZero()
	r.PatientScheduled = !r.DateSimilarScheduled.IsZero()
	r.AppointmentLinked = !r.DateScheduled.IsZero()
	r.WasAccepted = !r.DateAccepted.IsZero()
	r.WasCompleted = !r.DateCompleted.IsZero()
	r.SeenInCRM = !r.DateSeen.IsZero()

	closed := r.Status == StatusClosed || r.Status == StatusCompleted
	r.Aged = r.WasSent &&
		r.Status != StatusRejected && r.Status != StatusCancelled &&
		(!closed || r.SeenOrCheckedIn)

	if r.WasSent {
		r.DaysUntilSeen = daysBetween(r.DateSent, firstDate(seenOrCheckedIn, asOf))
		r.DaysUntilAccepted = daysBetween(r.DateSent, firstDate(r.DateAccepted, asOf))
		r.DaysUntilCompleted = daysBetween(r.DateSent, firstDate(r.DateCompleted, asOf))
		r.DaysUntilScheduled = daysBetween(r.DateSent, firstDate(scheduled, asOf))
		r.LagDate5 = r.DateSent.AddDate(0, 0, 5)
		r.LagDate30 = r.DateSent.AddDate(0, 0, 30)
		r.LagDate90 = r.DateSent.AddDate(0, 0, 90)
	}
	if !r.DateHeld.IsZero() {
		r.DaysOnHold = daysBetween(r.DateHeld, asOf)
	}
	if !r.DatePendingReschedule.IsZero() {
		r.DaysPendingReschedule = daysBetween(r.DatePendingReschedule, asOf)
	}
}

func firstDate(values ...time.Time) time.Time {
	for _, value := range values {
		if !value.IsZero() {
			return value
		}
	}
	return time.Time{}
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}

func distinct(n int, value func(int) string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0)
	for i := 0; i < n; i++ {
		v := value(i)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
