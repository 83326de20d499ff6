package measures

import "math"

// NoCategory is the bin for a missing day count.
const NoCategory = "(none)"

// AgeCategories lists the bins in display order.
var AgeCategories = []string{"7d", "14d", "30d", "60d", "90d", ">90d"}

var ageBounds = []struct {
	limit    float64
	category string
}{
	{7, "7d"},
	{14, "14d"},
	{30, "30d"},
	{60, "60d"},
	{90, "90d"},
}

// AgeCategory bins a day count. Upper bounds are inclusive.
func AgeCategory(days float64) string {
	if math.IsNaN(days) {
		return NoCategory
	}
	for _, bound := range ageBounds {
		if days <= bound.limit {
			return bound.category
		}
	}
	return ">90d"
}
