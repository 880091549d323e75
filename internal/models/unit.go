package models

import "time"

// UnitKind distinguishes solo performances from head-to-head matches
type UnitKind string

const (
	KindPerformance UnitKind = "performance"
	KindMatch       UnitKind = "match"
)

// UnitStatus represents the lifecycle state of a contest unit
type UnitStatus string

const (
	UnitScheduled  UnitStatus = "scheduled"
	UnitInProgress UnitStatus = "in_progress"
	UnitCompleted  UnitStatus = "completed"
	UnitCancelled  UnitStatus = "cancelled"
	UnitPostponed  UnitStatus = "postponed"
)

// IsTerminal returns true if the status is a terminal state
func (s UnitStatus) IsTerminal() bool {
	return s == UnitCompleted || s == UnitCancelled || s == UnitPostponed
}

// Valid reports whether s is a known status
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitScheduled, UnitInProgress, UnitCompleted, UnitCancelled, UnitPostponed:
		return true
	}
	return false
}

// Outcome is a competitor's result within one unit
type Outcome string

const (
	OutcomeAdvanced   Outcome = "advanced"
	OutcomeEliminated Outcome = "eliminated"
	OutcomeWin        Outcome = "win"
	OutcomeLoss       Outcome = "loss"
	OutcomeBye        Outcome = "bye"
)

// Decision records which rule produced a unit's result
type Decision string

const (
	DecisionFormsWindow      Decision = "forms_window"
	DecisionDisqualification Decision = "disqualification"
	DecisionPointGap         Decision = "point_gap"
	DecisionPoints           Decision = "points"
	DecisionEarliestScore    Decision = "earliest_score"
	DecisionFirstListed      Decision = "first_listed"
	DecisionBye              Decision = "bye"
)

// ContestUnit is one judged or contested item: a performance or a match.
// Performances use CompetitorID only. Matches use both slots; an empty
// OpponentID marks a bye.
type ContestUnit struct {
	ID                string     `json:"id"`
	CategoryID        string     `json:"category_id"`
	Kind              UnitKind   `json:"kind"`
	Level             string     `json:"level"`
	Position          int        `json:"position"`
	Status            UnitStatus `json:"status"`
	CompetitorID      string     `json:"competitor_id,omitempty"`
	OpponentID        string     `json:"opponent_id,omitempty"`
	WinnerID          string     `json:"winner_id,omitempty"`
	Score             *float64   `json:"score,omitempty"`
	CompetitorPoints  *float64   `json:"competitor_points,omitempty"`
	OpponentPoints    *float64   `json:"opponent_points,omitempty"`
	CompetitorOutcome Outcome    `json:"competitor_outcome,omitempty"`
	OpponentOutcome   Outcome    `json:"opponent_outcome,omitempty"`
	Decision          Decision   `json:"decision,omitempty"`
	Placement         int        `json:"placement,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// IsBye returns true for a match with an empty second slot
func (u *ContestUnit) IsBye() bool {
	return u.Kind == KindMatch && u.OpponentID == ""
}

// HasCompetitor reports whether competitorID occupies a slot of the unit
func (u *ContestUnit) HasCompetitor(competitorID string) bool {
	if competitorID == "" {
		return false
	}
	return u.CompetitorID == competitorID || (u.Kind == KindMatch && u.OpponentID == competitorID)
}

// Competitors returns the occupied slots in slot order
func (u *ContestUnit) Competitors() []string {
	out := make([]string, 0, 2)
	if u.CompetitorID != "" {
		out = append(out, u.CompetitorID)
	}
	if u.Kind == KindMatch && u.OpponentID != "" {
		out = append(out, u.OpponentID)
	}
	return out
}

// Result is the finalized or pending result of one unit
type Result struct {
	UnitID           string     `json:"unit_id"`
	Kind             UnitKind   `json:"kind"`
	Status           UnitStatus `json:"status"`
	Pending          bool       `json:"pending"`
	Score            *float64   `json:"score,omitempty"`
	WinnerID         string     `json:"winner_id,omitempty"`
	CompetitorPoints *float64   `json:"competitor_points,omitempty"`
	OpponentPoints   *float64   `json:"opponent_points,omitempty"`
	Decision         Decision   `json:"decision,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ResultOf projects a unit's result fields
func ResultOf(u *ContestUnit) *Result {
	return &Result{
		UnitID:           u.ID,
		Kind:             u.Kind,
		Status:           u.Status,
		Pending:          u.Status != UnitCompleted,
		Score:            u.Score,
		WinnerID:         u.WinnerID,
		CompetitorPoints: u.CompetitorPoints,
		OpponentPoints:   u.OpponentPoints,
		Decision:         u.Decision,
		CompletedAt:      u.CompletedAt,
	}
}

// ScoreboardRow is one competitor line of a level scoreboard
type ScoreboardRow struct {
	UnitID       string     `json:"unit_id"`
	CompetitorID string     `json:"competitor_id"`
	Position     int        `json:"position"`
	Status       UnitStatus `json:"status"`
	Result       *float64   `json:"result,omitempty"`
	Outcome      Outcome    `json:"outcome,omitempty"`
	Rank         *int       `json:"rank,omitempty"`
}

// Bracket is the ordered set of levels and units for one category
type Bracket struct {
	CategoryID string         `json:"category_id"`
	Discipline Discipline     `json:"discipline"`
	Levels     []string       `json:"levels"`
	Units      []*ContestUnit `json:"units"`
	Source     string         `json:"source,omitempty"`
	Notes      []string       `json:"notes,omitempty"`
}
