package models

import "time"

// SparringCard is one judge's tally for one participant of a match
type SparringCard struct {
	Yuko        int `json:"yuko" yaml:"yuko"`
	WazaAri     int `json:"waza_ari" yaml:"waza_ari"`
	Ippon       int `json:"ippon" yaml:"ippon"`
	Chukoku     int `json:"chukoku" yaml:"chukoku"`
	Keikoku     int `json:"keikoku" yaml:"keikoku"`
	HansokuChui int `json:"hansoku_chui" yaml:"hansoku_chui"`
	Hansoku     int `json:"hansoku" yaml:"hansoku"`
}

// Valid returns true when every count is non-negative
func (c SparringCard) Valid() bool {
	return c.Yuko >= 0 && c.WazaAri >= 0 && c.Ippon >= 0 &&
		c.Chukoku >= 0 && c.Keikoku >= 0 && c.HansokuChui >= 0 && c.Hansoku >= 0
}

// Add returns the element-wise sum of two cards
func (c SparringCard) Add(o SparringCard) SparringCard {
	return SparringCard{
		Yuko:        c.Yuko + o.Yuko,
		WazaAri:     c.WazaAri + o.WazaAri,
		Ippon:       c.Ippon + o.Ippon,
		Chukoku:     c.Chukoku + o.Chukoku,
		Keikoku:     c.Keikoku + o.Keikoku,
		HansokuChui: c.HansokuChui + o.HansokuChui,
		Hansoku:     c.Hansoku + o.Hansoku,
	}
}

// ScoreEntry is one judge's evaluation of one competitor in one unit.
// Unique per (judge, unit, competitor); resubmission updates in place.
type ScoreEntry struct {
	ID           string        `json:"id"`
	UnitID       string        `json:"unit_id"`
	JudgeID      string        `json:"judge_id"`
	CompetitorID string        `json:"competitor_id"`
	Value        *float64      `json:"value,omitempty"`
	Card         *SparringCard `json:"card,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Submission is the input of a score submission
type Submission struct {
	UnitID       string        `json:"unit_id"`
	JudgeID      string        `json:"judge_id"`
	CompetitorID string        `json:"competitor_id"`
	Value        *float64      `json:"value,omitempty"`
	Card         *SparringCard `json:"card,omitempty"`
}
