package measures

import (
	"errors"
	"testing"
)

func TestAgeCategoryBoundaries(t *testing.T) {
	cases := []struct {
		days float64
		want string
	}{
		{0, "7d"},
		{7, "7d"},
		{7.5, "14d"},
		{14, "14d"},
		{30, "30d"},
		{31, "60d"},
		{60, "60d"},
		{90, "90d"},
		{90.01, ">90d"},
		{400, ">90d"},
	}
	for _, tc := range cases {
		if got := AgeCategory(tc.days); got != tc.want {
			t.Fatalf("AgeCategory(%v) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestDirection(t *testing.T) {
	if Direction(0) != DirectionFlat || Direction(0.1) != DirectionUp || Direction(-3) != DirectionDown {
		t.Fatalf("unexpected direction glyphs")
	}
	if DirectionUp != "▲" || DirectionDown != "▼" {
		t.Fatalf("unexpected glyph code points")
	}
}

func TestVarianceDefsGenerated(t *testing.T) {
	defs := VarianceDefs(ProcessAims())
	if len(defs) != 20 {
		t.Fatalf("expected 20 variance definitions, got %d", len(defs))
	}
	byName := map[string]VarianceDef{}
	for _, def := range defs {
		byName[def.Measure] = def
	}
	want := map[string]VarianceDef{
		"Var MOV91 Pct Routine Referrals Seen in 30d": {
			Value: "MOV28 Pct Routine Referrals Seen in 30d", Standard: "MOV91 Pct Routine Referrals Seen in 30d",
		},
		"Var Target Pct Urgent Referrals Seen in 5d": {
			Value: "Pct Urgent Referrals Seen in 5d", Standard: "Target Pct Urgent Referrals Seen in 5d",
		},
		"Var Target MOV364 Pct Urgent Referrals Seen in 5d": {
			Value: "MOV364 Pct Urgent Referrals Seen in 5d", Standard: "Target Pct Urgent Referrals Seen in 5d",
		},
		"Var MOV364 Median Days until Seen": {
			Value: "MOV182 Median Days until Seen", Standard: "MOV364 Median Days until Seen",
		},
	}
	for name, expected := range want {
		got, ok := byName[name]
		if !ok {
			t.Fatalf("missing definition %q", name)
		}
		if got.Value != expected.Value || got.Standard != expected.Standard {
			t.Fatalf("%q = %+v, want %+v", name, got, expected)
		}
	}
	if _, ok := byName["Var Target Median Days until Seen"]; ok {
		t.Fatalf("median aims must not get target variances")
	}
}

func TestApplyVariancesSetsDirection(t *testing.T) {
	table := NewTable([]string{"A"})
	table.Set("A", "MOV28 X", Rate(40))
	table.Set("A", "MOV91 X", Rate(40))
	table.Set("A", "MOV182 X", Rate(30))
	table.Set("A", "MOV364 X", Rate(35))
	ApplyVariances(table, VarianceDefs([]Aim{{Measure: "X"}}))

	checks := map[string]struct {
		variance  float64
		direction string
	}{
		"Var MOV91 X":  {0, DirectionFlat},
		"Var MOV182 X": {10, DirectionUp},
		"Var MOV364 X": {-5, DirectionDown},
	}
	for name, want := range checks {
		if got := table.Number("A", name); got != want.variance {
			t.Fatalf("%s = %v, want %v", name, got, want.variance)
		}
		dir, _ := table.Get("A", DirectionName(name))
		if dir.Label != want.direction {
			t.Fatalf("%s direction = %q, want %q", name, dir.Label, want.direction)
		}
	}
	// AllClinics has no inputs, so every variance is zero
	if dir, _ := table.Get(AllClinics, "Dir Var MOV91 X"); dir.Label != DirectionFlat {
		t.Fatalf("expected flat direction on empty row, got %q", dir.Label)
	}
}

func TestScoreAndClassify(t *testing.T) {
	cases := []struct {
		near, mid, long float64
		score           int
		performance     string
	}{
		{0, 0, 0, 111, "Consistent Performer"},
		{1, 5, -1, 11, "Rising Recovery"},
		{-1, 5, 2, 110, "Performer"},
		{-1, 5, -2, 10, "Setback Recovery"},
		{3, -5, 2, 101, "Bouncing Back"},
		{3, -5, -2, 1, "Turning Upward"},
		{-3, -5, 2, 100, "Falling"},
		{-3, -5, -2, 0, "Consistently Under"},
	}
	for _, tc := range cases {
		score := Score(tc.near, tc.mid, tc.long)
		if score != tc.score {
			t.Fatalf("Score(%v,%v,%v) = %d, want %d", tc.near, tc.mid, tc.long, score, tc.score)
		}
		table := NewTable(nil)
		table.Set(AllClinics, "n", Rate(tc.near))
		table.Set(AllClinics, "m", Rate(tc.mid))
		table.Set(AllClinics, "l", Rate(tc.long))
		defs := []CategoryDef{{Category: "Perf", NearTerm: "n", MidTerm: "m", LongTerm: "l", Rubric: PerformanceRubric}}
		if err := Classify(table, defs); err != nil {
			t.Fatalf("Classify error: %v", err)
		}
		got, _ := table.Get(AllClinics, "Perf")
		if got.Label != tc.performance {
			t.Fatalf("score %d classified %q, want %q", score, got.Label, tc.performance)
		}
	}

	if ImprovementRubric[0] != "Falling" || ImprovementRubric[111] != "Rising" {
		t.Fatalf("unexpected improvement rubric")
	}
}

func TestClassifyUnmappedScore(t *testing.T) {
	table := NewTable(nil)
	defs := []CategoryDef{{Category: "Partial", NearTerm: "n", MidTerm: "m", LongTerm: "l", Rubric: Rubric{0: "None"}}}
	err := Classify(table, defs)
	if !errors.Is(err, ErrUnmappedScore) {
		t.Fatalf("expected ErrUnmappedScore, got %v", err)
	}
}

func TestCategoryDefsUseTargetAndPriorVariances(t *testing.T) {
	defs := CategoryDefs(ProcessAims())
	if len(defs) != 4 {
		t.Fatalf("expected 4 category definitions, got %d", len(defs))
	}
	names := map[string]CategoryDef{}
	for _, def := range defs {
		names[def.Category] = def
	}
	perf := names["Routine Performance vs. Target"]
	if perf.NearTerm != "Var Target MOV91 Pct Routine Referrals Seen in 30d" || perf.LongTerm != "Var Target MOV364 Pct Routine Referrals Seen in 30d" {
		t.Fatalf("unexpected routine performance terms %+v", perf)
	}
	improve := names["Urgent Improvement Direction"]
	if improve.MidTerm != "Var MOV182 Pct Urgent Referrals Seen in 5d" {
		t.Fatalf("unexpected urgent improvement terms %+v", improve)
	}
}
