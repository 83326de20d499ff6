package measures

import (
	"strings"
	"testing"
	"time"

	"referral-process-measures/internal/records"
)

func loadDSMs(t *testing.T, content string) *records.DSMTable {
	t.Helper()
	table, err := records.ReadDSMs(strings.NewReader(content), "fixture")
	if err != nil {
		t.Fatalf("load dsm fixture: %v", err)
	}
	return table
}

func TestComputeMonth(t *testing.T) {
	sent := "2022-10-10"
	refs := loadReferrals(t, []referralRow{
		{clinic: "A", priority: "Routine", status: "Accepted", sent: sent, seen: seenAfter(sent, 10), scheduled: seenAfter(sent, 4), accepted: seenAfter(sent, 1), completed: seenAfter(sent, 11)},
		{clinic: "A", priority: "Routine", status: "Accepted", sent: sent, accepted: seenAfter(sent, 2)},
		{clinic: "A", priority: "Routine", status: "Pending Acceptance", sent: sent},
		{clinic: "B", priority: "Urgent", status: "Accepted", sent: sent, seen: seenAfter(sent, 3)},
	})
	dsms := loadDSMs(t, "Message ID,Message Date,Clinic,Referral ID,Person ID\n"+
		"M1,2022-10-10,A,R1,P1\n"+
		"M2,2022-10-12,A,,P2\n"+
		"M3,2022-10-12,A,,P2\n"+
		"M4,2022-10-12,Z,,P1\n")

	month := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := ComputeMonth(Inputs{Referrals: refs, DSMs: dsms, Targets: Targets{RoutinePct: 50, UrgentPct: 50}}, month)
	if err != nil {
		t.Fatalf("ComputeMonth error: %v", err)
	}
	if !result.Month.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("month not normalized: %s", result.Month)
	}
	table := result.Measures
	if got := strings.Join(table.Clinics(), ","); got != "A,B,Z" {
		t.Fatalf("expected clinic union A,B,Z, got %s", got)
	}

	checks := []struct {
		clinic string
		name   string
		want   float64
	}{
		{"A", "Referrals Aged", 3},
		{"A", "Referrals Accepted After 90d", 2},
		{"A", "Referrals Completed and Seen After 90d", 1},
		{"A", AppointmentsLinked, 1},
		{"A", SeenInCRM, 1},
		{"A", PatientsWithDSM, 2},
		{"A", PatientsWithDSMAndRx, 1},
		{AllClinics, PatientsWithDSM, 2},
		{"Z", "Referrals Sent", 0},
		{"A", "Target Pct Routine Referrals Seen in 30d", 50},
	}
	for _, check := range checks {
		if got := table.Number(check.clinic, check.name); got != check.want {
			t.Errorf("%s %q = %v, want %v", check.clinic, check.name, got, check.want)
		}
	}

	for _, name := range []string{"Routine Performance vs. Target", "Urgent Improvement Direction", DimensionAgeToSeen, "Dir Var Target Pct Routine Referrals Seen in 30d"} {
		v, ok := table.Get("A", name)
		if !ok || v.Kind != KindLabel || v.Label == "" {
			t.Fatalf("expected label for %q, got %+v", name, v)
		}
	}

	key := DistributionKey{Clinic: "B", Dimension: DimensionAgeToSeen, Category: "7d", Priority: "Urgent"}
	if got := result.Distributions.Count(key); got != 1 {
		t.Fatalf("expected one urgent referral seen in 7d bin for B, got %d", got)
	}
	status := DistributionKey{Clinic: "A", Dimension: DimensionStatus, Category: "Pending Acceptance"}
	if got := result.Distributions.Count(status); got != 1 {
		t.Fatalf("expected one not-accepted referral for A, got %d", got)
	}
	if got := result.Distributions.Count(DistributionKey{Clinic: AllClinics, Dimension: DimensionAgeToSeen, Category: "7d", Priority: "Urgent"}); got != 0 {
		t.Fatalf("age distribution must not carry ALL rows, got %d", got)
	}
}

func TestUsageRatio(t *testing.T) {
	table := NewTable([]string{"A", "B"})
	table.Set("A", "Referrals Accepted After 90d", Count(3))
	table.Set("A", "Referrals Aged", Count(4))
	table.Set("A", "Referrals Scheduled After 90d", Count(0))
	table.Set("A", PatientsWithDSM, Count(0))
	table.Set("B", PatientsWithDSM, Count(4))
	table.Set("B", PatientsWithDSMAndRx, Count(1))

	cases := []struct {
		clinic    string
		milestone string
		want      float64
	}{
		{"A", "Accepted", 0.75},
		{"A", "Linked", 0},
		{"A", "Import", 1},
		{"B", "Import", 0.25},
	}
	for _, tc := range cases {
		got, ok := UsageRatio(table, tc.clinic, tc.milestone)
		if !ok || !floatEqual(got, tc.want) {
			t.Fatalf("UsageRatio(%s, %s) = %v, want %v", tc.clinic, tc.milestone, got, tc.want)
		}
	}
	if _, ok := UsageRatio(table, "A", "Bogus"); ok {
		t.Fatalf("expected unknown milestone to be rejected")
	}

	scored := UsageTestResult{Points: 10}.Scored(0.75)
	if scored.Result != 75 || scored.Score != 7.5 {
		t.Fatalf("unexpected scored result %+v", scored)
	}
	scored = UsageTestResult{Points: 5}.Scored(1.0 / 3)
	if scored.Result != 33 || scored.Score != 1.67 {
		t.Fatalf("unexpected scored result %+v", scored)
	}
}

func TestPendingSources(t *testing.T) {
	content := "Referral ID,Clinic,Referral Priority,Referral Status,Referral Sub-Status,Reason for Hold,Date Referral Sent,Date Held,Date Pending Reschedule\n" +
		"R1,A,Routine,On Hold,,Coordinating care,2023-01-01,2023-02-25,\n" +
		"R2,A,Routine,On Hold,,Coordinating care,2023-01-01,2023-01-01,\n" +
		"R3,A,Routine,On Hold,,Patient request,2023-01-01,,\n" +
		"R4,A,Routine,Pending Reschedule,Needs call,,2023-01-01,,2023-02-20\n" +
		"R5,A,Routine,Accepted,Waiting,,2023-02-20,,\n"
	refs, err := records.ReadReferrals(strings.NewReader(content), "fixture", testAsOf)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}

	hold := NewPendingSource(refs.Rows, OnHold)
	if got := hold.AgeCount("A", "7d"); got != 1 {
		t.Fatalf("expected 1 on hold in 7d, got %d", got)
	}
	if got := hold.AgeCount("A", "60d"); got != 1 {
		t.Fatalf("expected 1 on hold in 60d, got %d", got)
	}
	if got := hold.AgeCount("A", NoCategory); got != 1 {
		t.Fatalf("expected missing held date in (none), got %d", got)
	}
	if got := hold.AgeCount("B", "7d"); got != 0 {
		t.Fatalf("expected 0 for unknown clinic, got %d", got)
	}
	reasons := hold.ReasonCounts("A")
	if len(reasons) != 2 || reasons[0].Category != "Coord. care" || reasons[0].Count != 2 {
		t.Fatalf("unexpected hold reasons %+v", reasons)
	}
	ages := hold.AgeCounts("A")
	if len(ages) != len(AgeCategories)+1 || ages[len(ages)-1].Category != NoCategory {
		t.Fatalf("unexpected age bins %+v", ages)
	}

	resched := NewPendingSource(refs.Rows, PendingReschedule)
	if got := resched.AgeCount("A", "14d"); got != 1 {
		t.Fatalf("expected 1 pending reschedule in 14d, got %d", got)
	}
	accepted := NewPendingSource(refs.Rows, AcceptedPending)
	if got := accepted.AgeCount("A", "14d"); got != 1 {
		t.Fatalf("expected accepted referral waiting 9 days, got %d", got)
	}
	if got := accepted.ReasonCounts("A"); len(got) != 1 || got[0].Category != "Waiting" {
		t.Fatalf("unexpected accepted sub-statuses %+v", got)
	}

	status, err := ParsePendingStatus("Pending Acceptance")
	if err != nil || status != PendingAcceptance {
		t.Fatalf("ParsePendingStatus = %v, %v", status, err)
	}
	if status, err = ParsePendingStatus("on-hold"); err != nil || status != OnHold {
		t.Fatalf("ParsePendingStatus slug = %v, %v", status, err)
	}
	if _, err := ParsePendingStatus("sleeping"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
