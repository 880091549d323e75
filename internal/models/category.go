package models

import "time"

// Discipline selects the rule set a category is contested under
type Discipline string

const (
	DisciplineForms    Discipline = "forms"
	DisciplineSparring Discipline = "sparring"
)

// Valid reports whether d is a known discipline
func (d Discipline) Valid() bool {
	return d == DisciplineForms || d == DisciplineSparring
}

// Category is one competition division, bound to a tatami
type Category struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Discipline Discipline `json:"discipline"`
	Tatami     string     `json:"tatami,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Registration mirrors the registration service's record for one competitor
type Registration struct {
	CategoryID   string    `json:"category_id"`
	CompetitorID string    `json:"competitor_id"`
	Name         string    `json:"name"`
	Club         string    `json:"club,omitempty"`
	Approved     bool      `json:"approved"`
	Paid         bool      `json:"paid"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Eligible returns true when the registration is approved and paid
func (r *Registration) Eligible() bool {
	return r.Approved && r.Paid
}

// Competitor projects the identity of an eligible registration
func (r *Registration) Competitor() Competitor {
	return Competitor{
		ID:         r.CompetitorID,
		CategoryID: r.CategoryID,
		Name:       r.Name,
		Club:       r.Club,
	}
}

// Competitor is an individual or team identity scoped to one category
type Competitor struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Club       string `json:"club,omitempty"`
}

// JudgeAssignment binds a judge to a category and tatami
type JudgeAssignment struct {
	JudgeID    string    `json:"judge_id"`
	CategoryID string    `json:"category_id"`
	Tatami     string    `json:"tatami,omitempty"`
	Confirmed  bool      `json:"confirmed"`
	UpdatedAt  time.Time `json:"updated_at"`
}
