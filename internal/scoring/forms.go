package scoring

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/terra-clan/bracket-engine/internal/rules"
)

// FormsScore computes the final score of a performance from its judge
// scores. Scores are sorted, one minimum and one maximum are dropped,
// and the highest Summands values of the remaining middle are added.
// The second return is false while the result is pending: fewer than
// MinScores scores, or a middle shorter than Summands.
func FormsScore(values []float64, r rules.FormsRules) (float64, bool) {
	if len(values) < r.MinScores || len(values) < 2 {
		return 0, false
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	middle := sorted[1 : len(sorted)-1]
	if len(middle) < r.Summands {
		return 0, false
	}

	sum := decimal.Zero
	for _, v := range middle[len(middle)-r.Summands:] {
		sum = sum.Add(decimal.NewFromFloat(v))
	}

	f, _ := sum.Float64()
	return f, true
}

// ValidFormsValue reports whether v lies inside the accepted score range
func ValidFormsValue(v float64, r rules.FormsRules) bool {
	return v >= r.MinValue && v <= r.MaxValue
}

// Placements returns the place of each performer of a terminal round,
// indexed by score order. Places run 1, 2, 3 and stop once place 3 is
// handed out twice; later performers get 0. Four performers therefore
// receive 1, 2, 3, 3.
func Placements(n int) []int {
	places := make([]int, n)
	place := 1
	for i := 0; i < n; i++ {
		if place == 3 {
			places[i] = 3
			if i+1 < n {
				places[i+1] = 3
			}
			break
		}
		places[i] = place
		place++
	}
	return places
}
