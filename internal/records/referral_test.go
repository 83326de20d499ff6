package records

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const referralHeader = "Referral ID,Clinic,Referral Priority,Referral Status,Referral Sub-Status,Reason for Hold,Patient ID," +
	"Date Referral Sent,Date Referral Seen,Date Patient Checked In,Date Held,Date Pending Reschedule," +
	"Date Similar Appt Scheduled,Date Accepted,Date Referral Completed,Date Referral Scheduled\n"

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}

func TestLoadReferralsDerivesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "referrals.csv")
	content := referralHeader +
		"R1,Cardiology,Routine,Accepted,,,P1,2023-01-01,2023-01-11,,,,2023-01-05,2023-01-02,,2023-01-04\n" +
		"R2,Cardiology,Urgent,Closed,,,P2,2023-01-01,,,,,,,,\n" +
		"R3,Dermatology,Routine,Closed,,,P3,2023-01-01,,2023-01-21,,,,,2023-01-25,\n" +
		"R4,Dermatology,Routine,Rejected,,,P4,2023-01-01,,,,,,,,\n" +
		"R5,Dermatology,Routine,On Hold,Waiting,Coordinating care,P5,2023-02-01,,,2023-02-15,,,,,\n" +
		"R6,Dermatology,Routine,Pending Acceptance,,,P6,,,,,,,,,\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	asOf := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	table, err := LoadReferrals(path, asOf)
	if err != nil {
		t.Fatalf("LoadReferrals error: %v", err)
	}
	if len(table.Rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(table.Rows))
	}

	r1 := table.Rows[0]
	if !r1.Aged || !r1.WasSent || !r1.SeenOrCheckedIn || !r1.SeenInCRM {
		t.Fatalf("unexpected flags for R1: %+v", r1)
	}
	if !floatEqual(r1.DaysUntilSeen, 10) {
		t.Fatalf("expected 10 days until seen, got %v", r1.DaysUntilSeen)
	}
	if !floatEqual(r1.DaysUntilScheduled, 3) {
		t.Fatalf("expected referral scheduled date to win, got %v", r1.DaysUntilScheduled)
	}
	if !floatEqual(r1.DaysUntilAccepted, 1) {
		t.Fatalf("expected 1 day until accepted, got %v", r1.DaysUntilAccepted)
	}
	if !floatEqual(r1.DaysUntilCompleted, 59) {
		t.Fatalf("expected completed fallback to as-of, got %v", r1.DaysUntilCompleted)
	}
	if !r1.PatientScheduled || !r1.AppointmentLinked || !r1.Scheduled() {
		t.Fatalf("expected R1 scheduled flags")
	}
	if got := r1.LagDate90.Format("2006-01-02"); got != "2023-04-01" {
		t.Fatalf("unexpected 90 day lag date %s", got)
	}

	if table.Rows[1].Aged {
		t.Fatalf("closed and never seen must not be aged")
	}
	r3 := table.Rows[2]
	if !r3.Aged || r3.SeenInCRM || !r3.SeenOrCheckedIn {
		t.Fatalf("closed but checked in should be aged and not seen in CRM: %+v", r3)
	}
	if !floatEqual(r3.DaysUntilSeen, 20) {
		t.Fatalf("expected check-in fallback, got %v", r3.DaysUntilSeen)
	}
	if table.Rows[3].Aged {
		t.Fatalf("rejected must not be aged")
	}
	r5 := table.Rows[4]
	if !floatEqual(r5.DaysOnHold, 14) || r5.HoldReason != "Coordinating care" {
		t.Fatalf("unexpected hold fields: %v %q", r5.DaysOnHold, r5.HoldReason)
	}
	r6 := table.Rows[5]
	if r6.WasSent || r6.Aged || !r6.LagDate90.IsZero() {
		t.Fatalf("unsent referral must have no lag date and not be aged")
	}

	clinics := table.Clinics()
	if strings.Join(clinics, ",") != "Cardiology,Dermatology" {
		t.Fatalf("unexpected clinics %v", clinics)
	}
}

func TestReadReferralsAgedNeverExceedsSent(t *testing.T) {
	statuses := []string{"Accepted", "Closed", "Completed", "Rejected", "Cancelled", "On Hold"}
	var b strings.Builder
	b.WriteString(referralHeader)
	for i, status := range statuses {
		seen := ""
		if i%2 == 0 {
			seen = "2023-01-10"
		}
		b.WriteString("R" + string(rune('A'+i)) + ",Ortho,Routine," + status + ",,,P,2023-01-01," + seen + ",,,,,,,\n")
	}
	table, err := ReadReferrals(strings.NewReader(b.String()), "inline", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadReferrals error: %v", err)
	}
	for _, ref := range table.Rows {
		if ref.Aged && !ref.WasSent {
			t.Fatalf("aged without sent: %+v", ref)
		}
		if ref.Aged && (ref.Status == StatusRejected || ref.Status == StatusCancelled) {
			t.Fatalf("aged with status %s", ref.Status)
		}
	}
}

func TestReadReferralsMissingColumn(t *testing.T) {
	content := "Referral ID,Clinic,Referral Status,Date Referral Sent\nR1,Ortho,Accepted,2023-01-01\n"
	_, err := ReadReferrals(strings.NewReader(content), "inline", time.Now())
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "Referral Priority") {
		t.Fatalf("expected column name in error, got %v", err)
	}
}

func TestReadReferralsStripsByteOrderMark(t *testing.T) {
	content := "\ufeffReferral ID,Clinic,Referral Priority,Referral Status,Date Referral Sent\nR1,Ortho,Routine,Accepted,2023-01-01\n"
	table, err := ReadReferrals(strings.NewReader(content), "inline", time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("read referrals with BOM: %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0].ID != "R1" {
		t.Fatalf("unexpected rows %+v", table.Rows)
	}
}

func TestReadReferralsInvalidDate(t *testing.T) {
	content := "Referral ID,Clinic,Referral Priority,Referral Status,Date Referral Sent\nR1,Ortho,Routine,Accepted,not-a-date\n"
	_, err := ReadReferrals(strings.NewReader(content), "inline", time.Now())
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestParseDateLayouts(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"2023-01-02", "2023-01-02"},
		{"2023/01/02", "2023-01-02"},
		{"01/02/2023", "2023-01-02"},
		{"1/2/2023", "2023-01-02"},
		{"2023-01-02 13:45:00", "2023-01-02"},
		{"", ""},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.value)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", tc.value, err)
		}
		formatted := ""
		if !got.IsZero() {
			formatted = got.Format("2006-01-02")
		}
		if formatted != tc.want {
			t.Fatalf("ParseDate(%q) = %q, want %q", tc.value, formatted, tc.want)
		}
	}
}
