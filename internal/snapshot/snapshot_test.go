package snapshot

import (
	"context"
	"testing"
	"time"

	"referral-process-measures/internal/measures"
)

type fakeSource struct {
	month time.Time
	table *measures.Table
}

func (f fakeSource) AsOf() time.Time { return f.month.AddDate(0, 1, 0) }

func (f fakeSource) Months() []time.Time { return []time.Time{f.month} }

func (f fakeSource) Table(month time.Time) *measures.Table {
	if month.Equal(f.month) {
		return f.table
	}
	return nil
}

func (f fakeSource) Distribution(time.Time) *measures.Distribution { return measures.NewDistribution() }

func (f fakeSource) UsageResults(time.Time, string) []measures.UsageTestResult {
	return nil
}

func TestSanitizeSchema(t *testing.T) {
	if got, err := sanitizeSchema(" referral_measures "); err != nil || got != "referral_measures" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
	for _, bad := range []string{"", "1abc", "a-b", "a;drop"} {
		if _, err := sanitizeSchema(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRowsFlattenTable(t *testing.T) {
	month := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	table := measures.NewTable([]string{"A"})
	table.Set("A", "Referrals Seen After 90d", measures.Count(6))
	table.Set("A", "Pct Referrals Seen After 90d", measures.Rate(75))
	table.Set("A", "Routine Performance vs. Target", measures.Label("Falling"))
	table.Set(measures.AllClinics, "Referrals Seen After 90d", measures.Count(11))

	rows := Rows(fakeSource{month: month, table: table})
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	byKey := map[string]MeasureRow{}
	for _, row := range rows {
		byKey[row.Clinic+"|"+row.Measure] = row
	}
	seen := byKey["A|Referrals Seen After 90d"]
	if seen.Kind != "count" || !seen.Number.Valid || seen.Number.Float64 != 6 || seen.Label.Valid {
		t.Fatalf("unexpected count row %+v", seen)
	}
	label := byKey["A|Routine Performance vs. Target"]
	if label.Kind != "label" || label.Number.Valid || label.Label.String != "Falling" {
		t.Fatalf("unexpected label row %+v", label)
	}
	if all := byKey[measures.AllClinics+"|Referrals Seen After 90d"]; all.Number.Float64 != 11 {
		t.Fatalf("unexpected ALL row %+v", all)
	}
}

func TestSaveRequiresURL(t *testing.T) {
	_, err := Save(context.Background(), fakeSource{}, Config{Schema: "referral_measures"})
	if err == nil {
		t.Fatalf("expected error without database URL")
	}
}
