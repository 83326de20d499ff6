package measures

import (
	"time"

	"referral-process-measures/internal/records"
)

// CRM and DSM usage measure names, all over the 90 day lookback.
const (
	AppointmentsLinked   = "Appointments Linked After 90d"
	SeenInCRM            = "Referrals Seen in CRM After 90d"
	PatientsWithDSM      = "Patients with DSMs After 90d"
	PatientsWithDSMAndRx = "Patients with DSM and CRM Referrals After 90d"
)

// CRMUsage counts linked appointments and CRM-seen tags among aged referrals whose
// 90 day lag date falls in w, and adds the not-accepted status distribution to dist.
func CRMUsage(refs []records.Referral, clinics []string, w Window, dist *Distribution) *Table {
	known := clinicSet(clinics)
	linked := map[string]int{}
	seen := map[string]int{}
	for i := range refs {
		ref := &refs[i]
		if _, ok := known[ref.Clinic]; !ok || !w.contains(ref.LagDate90) || !ref.Aged {
			continue
		}
		if ref.AppointmentLinked {
			linked[ref.Clinic]++
			linked[AllClinics]++
		}
		if ref.SeenInCRM {
			seen[ref.Clinic]++
			seen[AllClinics]++
		}
		if !ref.WasAccepted && dist != nil {
			dist.Add(DistributionKey{Clinic: ref.Clinic, Dimension: DimensionStatus, Category: ref.Status}, 1)
		}
	}

	t := NewTable(clinics)
	for _, clinic := range t.Keys() {
		t.Set(clinic, w.Prefix+AppointmentsLinked, Count(linked[clinic]))
		t.Set(clinic, w.Prefix+SeenInCRM, Count(seen[clinic]))
	}
	return t
}

// DSMUsage counts distinct patients messaged, and distinct patients messaged about
// a referral, per clinic over messages whose 90 day lag date falls in w. The
// AllClinics row counts distinct patients across clinics.
func DSMUsage(dsms []records.DSM, clinics []string, w Window) *Table {
	known := clinicSet(clinics)
	patients := map[string]map[string]struct{}{}
	referred := map[string]map[string]struct{}{}
	add := func(m map[string]map[string]struct{}, clinic, id string) {
		if id == "" {
			return
		}
		if m[clinic] == nil {
			m[clinic] = map[string]struct{}{}
		}
		m[clinic][id] = struct{}{}
	}
	for i := range dsms {
		msg := &dsms[i]
		if _, ok := known[msg.Clinic]; !ok || !w.contains(msg.LagDate90) {
			continue
		}
		for _, clinic := range []string{msg.Clinic, AllClinics} {
			add(patients, clinic, msg.PersonID)
			add(referred, clinic, msg.ReferralPersonID)
		}
	}

	t := NewTable(clinics)
	for _, clinic := range t.Keys() {
		t.Set(clinic, w.Prefix+PatientsWithDSM, Count(len(patients[clinic])))
		t.Set(clinic, w.Prefix+PatientsWithDSMAndRx, Count(len(referred[clinic])))
	}
	return t
}

// UsageTest is one scored CRM/DSM usage milestone.
type UsageTest struct {
	Milestone string
	Title     string
	Points    int
}

// UsageTests lists the milestones in display order.
var UsageTests = []UsageTest{
	{Milestone: "Accepted", Title: "% of Referrals Accepted", Points: 10},
	{Milestone: "Linked", Title: "% of Scheduled Referrals with Linked Appt", Points: 10},
	{Milestone: "Seen", Title: "% of Seen Referrals Tagged as Seen", Points: 10},
	{Milestone: "Completed", Title: "% of Seen Referrals that are Completed", Points: 10},
	{Milestone: "Import", Title: "% of DSM Referrals with CRM Referral", Points: 5},
}

// UsageTestResult is the scored outcome of one milestone for a clinic and month.
type UsageTestResult struct {
	Month     time.Time `json:"month"`
	Clinic    string    `json:"clinic"`
	Milestone string    `json:"milestone"`
	Title     string    `json:"title"`
	Points    int       `json:"points"`
	Result    int       `json:"result"`
	Score     float64   `json:"score"`
}

// Scored fills Result and Score from a ratio.
func (r UsageTestResult) Scored(ratio float64) UsageTestResult {
	r.Result = HalfUp(ratio * 100)
	r.Score = Round2(float64(r.Points) * ratio)
	return r
}

// UsageRatio computes a milestone's ratio from a clinic's month row.
func UsageRatio(t *Table, clinic, milestone string) (float64, bool) {
	num := func(name string) float64 { return t.Number(clinic, name) }
	ratio := func(n, d float64) float64 {
		if d == 0 {
			return 0
		}
		return n / d
	}
	switch milestone {
	case "Accepted":
		return ratio(num(AllAfter90Days.Name("", "Accepted")), num(AllAfter90Days.TotalName("", "Aged"))), true
	case "Linked":
		return ratio(num(AppointmentsLinked), num(AllAfter90Days.Name("", "Scheduled"))), true
	case "Seen":
		return ratio(num(SeenInCRM), num(AllAfter90Days.Name("", "Seen"))), true
	case "Completed":
		return ratio(num(AllAfter90Days.Name("", "Completed and Seen")), num(AllAfter90Days.Name("", "Seen"))), true
	case "Import":
		patients := num(PatientsWithDSM)
		if patients == 0 {
			return 1, true
		}
		return num(PatientsWithDSMAndRx) / patients, true
	}
	return 0, false
}
