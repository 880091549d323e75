package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/rules"
)

// Side is one participant of a match with all judges' cards summed
type Side struct {
	ID            string
	Card          models.SparringCard
	FirstScoredAt time.Time
}

// Verdict is the outcome of applying the winner precedence to a match
type Verdict struct {
	// Winner is 0 for the first-listed participant, 1 for the second
	Winner   int
	Decision models.Decision
	Points   [2]float64
}

// Decisive reports whether the verdict ends the match before quorum
func (v Verdict) Decisive() bool {
	return v.Decision == models.DecisionDisqualification || v.Decision == models.DecisionPointGap
}

// Disqualified reports a nonzero count of the most severe penalty tier
func Disqualified(c models.SparringCard) bool {
	return c.Hansoku > 0
}

// Totals returns both participants' point totals: scoring tiers minus
// own penalty deductions plus the award for the opponent's keikoku.
func Totals(a, b models.SparringCard, r rules.SparringRules) (float64, float64) {
	ta := raw(a, r).Add(award(b, r))
	tb := raw(b, r).Add(award(a, r))

	fa, _ := ta.Float64()
	fb, _ := tb.Float64()
	return fa, fb
}

func raw(c models.SparringCard, r rules.SparringRules) decimal.Decimal {
	p := r.Points
	pen := r.Penalties

	points := tier(c.Yuko, p.Yuko).Add(tier(c.WazaAri, p.WazaAri)).Add(tier(c.Ippon, p.Ippon))
	deductions := tier(c.Chukoku, pen.Chukoku).
		Add(tier(c.Keikoku, pen.Keikoku)).
		Add(tier(c.HansokuChui, pen.HansokuChui)).
		Add(tier(c.Hansoku, pen.Hansoku))

	return points.Sub(deductions)
}

func award(opponent models.SparringCard, r rules.SparringRules) decimal.Decimal {
	return tier(opponent.Keikoku, r.KeikokuAward)
}

func tier(count int, value float64) decimal.Decimal {
	return decimal.NewFromInt(int64(count)).Mul(decimal.NewFromFloat(value))
}

// Resolve applies the winner precedence, first matching rule wins:
// disqualification, point gap, higher total, earliest first score,
// first-listed participant.
func Resolve(a, b Side, r rules.SparringRules) Verdict {
	ta, tb := Totals(a.Card, b.Card, r)
	v := Verdict{Points: [2]float64{ta, tb}}

	switch {
	case Disqualified(a.Card):
		v.Winner, v.Decision = 1, models.DecisionDisqualification
	case Disqualified(b.Card):
		v.Winner, v.Decision = 0, models.DecisionDisqualification
	case gap(ta, tb) >= r.PointGap:
		v.Winner, v.Decision = higher(ta, tb), models.DecisionPointGap
	case ta != tb:
		v.Winner, v.Decision = higher(ta, tb), models.DecisionPoints
	default:
		v.Winner, v.Decision = earliest(a.FirstScoredAt, b.FirstScoredAt)
	}
	return v
}

func gap(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func higher(a, b float64) int {
	if b > a {
		return 1
	}
	return 0
}

// earliest picks the side with the lower first-score timestamp; a side
// without any score never wins this rule. Anything else falls back to
// the first-listed participant.
func earliest(a, b time.Time) (int, models.Decision) {
	switch {
	case a.IsZero() && b.IsZero():
		return 0, models.DecisionFirstListed
	case b.IsZero():
		return 0, models.DecisionEarliestScore
	case a.IsZero():
		return 1, models.DecisionEarliestScore
	case a.Before(b):
		return 0, models.DecisionEarliestScore
	case b.Before(a):
		return 1, models.DecisionEarliestScore
	}
	return 0, models.DecisionFirstListed
}
