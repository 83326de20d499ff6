package measures

import (
	"errors"
	"fmt"
)

// ErrUnmappedScore is returned when a variance score sum has no rubric entry.
var ErrUnmappedScore = errors.New("variance score not in rubric")

// Direction glyphs.
const (
	DirectionUp   = "▲"
	DirectionDown = "▼"
	DirectionFlat = "-"
)

// Direction tags a variance by its sign.
func Direction(v float64) string {
	switch {
	case v > 0:
		return DirectionUp
	case v < 0:
		return DirectionDown
	}
	return DirectionFlat
}

// DirectionName is the column carrying the glyph of a variance column.
func DirectionName(variance string) string {
	return "Dir " + variance
}

// VarianceDef computes Measure = Value - Standard.
type VarianceDef struct {
	Measure  string
	Value    string
	Standard string
}

// Aim is a tracked measure. Aims with a Target also get variances against it and
// the two classification categories.
type Aim struct {
	Measure string
	// Label names the aim in category names, e.g. "Routine".
	Label     string
	HasTarget bool
}

// TargetName is the column holding an aim's target.
func (a Aim) TargetName() string {
	return "Target " + a.Measure
}

var movingPrefixes = []string{"MOV28 ", "MOV91 ", "MOV182 ", "MOV364 "}

// PriorVarianceName names the variance of a trailing window against the next shorter one.
func PriorVarianceName(prefix, measure string) string {
	return "Var " + prefix + measure
}

// TargetVarianceName names the variance of a window against the target. An empty
// prefix is the as-of report month.
func TargetVarianceName(prefix, measure string) string {
	return "Var Target " + prefix + measure
}

// VarianceDefs generates the variance definitions for the aims: each trailing window
// against the next shorter one, and, for targeted aims, the month and every trailing
// window from MOV91 on against the target.
func VarianceDefs(aims []Aim) []VarianceDef {
	defs := make([]VarianceDef, 0)
	for _, aim := range aims {
		for i := 1; i < len(movingPrefixes); i++ {
			defs = append(defs, VarianceDef{
				Measure:  PriorVarianceName(movingPrefixes[i], aim.Measure),
				Value:    movingPrefixes[i-1] + aim.Measure,
				Standard: movingPrefixes[i] + aim.Measure,
			})
		}
		if !aim.HasTarget {
			continue
		}
		for _, prefix := range append([]string{""}, movingPrefixes[1:]...) {
			defs = append(defs, VarianceDef{
				Measure:  TargetVarianceName(prefix, aim.Measure),
				Value:    prefix + aim.Measure,
				Standard: aim.TargetName(),
			})
		}
	}
	return defs
}

// ApplyVariances sets every variance and its direction on every row of t.
func ApplyVariances(t *Table, defs []VarianceDef) {
	for _, clinic := range t.Keys() {
		for _, def := range defs {
			v := t.Number(clinic, def.Value) - t.Number(clinic, def.Standard)
			t.Set(clinic, def.Measure, Rate(v))
			t.Set(clinic, DirectionName(def.Measure), Label(Direction(v)))
		}
	}
}

// Rubric maps a score sum to a category name.
type Rubric map[int]string

var (
	PerformanceRubric = Rubric{
		111: "Consistent Performer",
		11:  "Rising Recovery",
		110: "Performer",
		10:  "Setback Recovery",
		101: "Bouncing Back",
		1:   "Turning Upward",
		100: "Falling",
		0:   "Consistently Under",
	}
	ImprovementRubric = Rubric{
		111: "Rising",
		11:  "Rising Recovery",
		110: "Rising",
		10:  "Setback Recovery",
		101: "Bouncing Back",
		1:   "Turning Upward",
		100: "Falling",
		0:   "Falling",
	}
)

// CategoryDef classifies one row from three variance columns.
type CategoryDef struct {
	Category string
	NearTerm string
	MidTerm  string
	LongTerm string
	Rubric   Rubric
}

// CategoryDefs generates the performance-vs-target and improvement-direction
// categories for every targeted aim.
func CategoryDefs(aims []Aim) []CategoryDef {
	defs := make([]CategoryDef, 0)
	for _, aim := range aims {
		if !aim.HasTarget {
			continue
		}
		defs = append(defs,
			CategoryDef{
				Category: aim.Label + " Performance vs. Target",
				NearTerm: TargetVarianceName("MOV91 ", aim.Measure),
				MidTerm:  TargetVarianceName("MOV182 ", aim.Measure),
				LongTerm: TargetVarianceName("MOV364 ", aim.Measure),
				Rubric:   PerformanceRubric,
			},
			CategoryDef{
				Category: aim.Label + " Improvement Direction",
				NearTerm: PriorVarianceName("MOV91 ", aim.Measure),
				MidTerm:  PriorVarianceName("MOV182 ", aim.Measure),
				LongTerm: PriorVarianceName("MOV364 ", aim.Measure),
				Rubric:   ImprovementRubric,
			},
		)
	}
	return defs
}

// Score sums 1, 10 and 100 for each of the near, mid and long variances that is non-negative.
func Score(near, mid, long float64) int {
	score := 0
	if near >= 0 {
		score++
	}
	if mid >= 0 {
		score += 10
	}
	if long >= 0 {
		score += 100
	}
	return score
}

// Classify labels every row of t for each category.
func Classify(t *Table, defs []CategoryDef) error {
	for _, clinic := range t.Keys() {
		for _, def := range defs {
			score := Score(t.Number(clinic, def.NearTerm), t.Number(clinic, def.MidTerm), t.Number(clinic, def.LongTerm))
			name, ok := def.Rubric[score]
			if !ok {
				return fmt.Errorf("%s for %s: %w: %d", def.Category, clinic, ErrUnmappedScore, score)
			}
			t.Set(clinic, def.Category, Label(name))
		}
	}
	return nil
}

// Targets holds the configured target percentages.
type Targets struct {
	RoutinePct float64
	UrgentPct  float64
}

// ProcessAims returns the tracked process-time aims.
func ProcessAims() []Aim {
	return []Aim{
		{Measure: RoutineAfter30.PctSeenWithinName(""), Label: "Routine", HasTarget: true},
		{Measure: UrgentAfter5Days.PctSeenWithinName(""), Label: "Urgent", HasTarget: true},
		{Measure: MedianDaysSeen},
		{Measure: MedianDaysScheduled},
	}
}

// ApplyTargets writes the target columns on every row.
func ApplyTargets(t *Table, targets Targets) {
	routine := Aim{Measure: RoutineAfter30.PctSeenWithinName("")}.TargetName()
	urgent := Aim{Measure: UrgentAfter5Days.PctSeenWithinName("")}.TargetName()
	for _, clinic := range t.Keys() {
		t.Set(clinic, routine, Rate(targets.RoutinePct))
		t.Set(clinic, urgent, Rate(targets.UrgentPct))
	}
}
