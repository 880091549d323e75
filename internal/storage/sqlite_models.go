package storage

import (
	"time"

	"github.com/terra-clan/bracket-engine/internal/models"
)

type categoryRecord struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Discipline string
	Tatami     string
	UpdatedAt  time.Time
}

func (categoryRecord) TableName() string { return "categories" }

func (r categoryRecord) toModel() *models.Category {
	return &models.Category{
		ID:         r.ID,
		Name:       r.Name,
		Discipline: models.Discipline(r.Discipline),
		Tatami:     r.Tatami,
		UpdatedAt:  r.UpdatedAt,
	}
}

type registrationRecord struct {
	CategoryID   string `gorm:"primaryKey"`
	CompetitorID string `gorm:"primaryKey"`
	Name         string
	Club         string
	Approved     bool
	Paid         bool
	UpdatedAt    time.Time
}

func (registrationRecord) TableName() string { return "registrations" }

func (r registrationRecord) toModel() *models.Registration {
	return &models.Registration{
		CategoryID:   r.CategoryID,
		CompetitorID: r.CompetitorID,
		Name:         r.Name,
		Club:         r.Club,
		Approved:     r.Approved,
		Paid:         r.Paid,
		UpdatedAt:    r.UpdatedAt,
	}
}

type judgeAssignmentRecord struct {
	JudgeID    string `gorm:"primaryKey"`
	CategoryID string `gorm:"primaryKey"`
	Tatami     string
	Confirmed  bool
	UpdatedAt  time.Time
}

func (judgeAssignmentRecord) TableName() string { return "judge_assignments" }

type levelRecord struct {
	CategoryID string `gorm:"primaryKey"`
	Level      string `gorm:"primaryKey"`
	CreatedAt  time.Time
}

func (levelRecord) TableName() string { return "bracket_levels" }

type unitRecord struct {
	ID                string `gorm:"primaryKey"`
	CategoryID        string `gorm:"index:idx_contest_units_level,unique"`
	Kind              string
	Level             string `gorm:"index:idx_contest_units_level,unique"`
	Position          int    `gorm:"index:idx_contest_units_level,unique"`
	Status            string
	CompetitorID      string
	OpponentID        string
	WinnerID          string
	Score             *float64
	CompetitorPoints  *float64
	OpponentPoints    *float64
	CompetitorOutcome string
	OpponentOutcome   string
	Decision          string
	Placement         int
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

func (unitRecord) TableName() string { return "contest_units" }

func newUnitRecord(u *models.ContestUnit) unitRecord {
	return unitRecord{
		ID:                u.ID,
		CategoryID:        u.CategoryID,
		Kind:              string(u.Kind),
		Level:             u.Level,
		Position:          u.Position,
		Status:            string(u.Status),
		CompetitorID:      u.CompetitorID,
		OpponentID:        u.OpponentID,
		WinnerID:          u.WinnerID,
		Score:             u.Score,
		CompetitorPoints:  u.CompetitorPoints,
		OpponentPoints:    u.OpponentPoints,
		CompetitorOutcome: string(u.CompetitorOutcome),
		OpponentOutcome:   string(u.OpponentOutcome),
		Decision:          string(u.Decision),
		Placement:         u.Placement,
		CreatedAt:         u.CreatedAt,
		CompletedAt:       u.CompletedAt,
	}
}

func (r unitRecord) toModel() *models.ContestUnit {
	return &models.ContestUnit{
		ID:                r.ID,
		CategoryID:        r.CategoryID,
		Kind:              models.UnitKind(r.Kind),
		Level:             r.Level,
		Position:          r.Position,
		Status:            models.UnitStatus(r.Status),
		CompetitorID:      r.CompetitorID,
		OpponentID:        r.OpponentID,
		WinnerID:          r.WinnerID,
		Score:             r.Score,
		CompetitorPoints:  r.CompetitorPoints,
		OpponentPoints:    r.OpponentPoints,
		CompetitorOutcome: models.Outcome(r.CompetitorOutcome),
		OpponentOutcome:   models.Outcome(r.OpponentOutcome),
		Decision:          models.Decision(r.Decision),
		Placement:         r.Placement,
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
	}
}

type unitJudgeRecord struct {
	UnitID  string `gorm:"primaryKey"`
	JudgeID string `gorm:"primaryKey"`
}

func (unitJudgeRecord) TableName() string { return "unit_judges" }

type scoreRecord struct {
	ID           string `gorm:"primaryKey"`
	UnitID       string `gorm:"index:idx_score_entries_key,unique"`
	JudgeID      string `gorm:"index:idx_score_entries_key,unique"`
	CompetitorID string `gorm:"index:idx_score_entries_key,unique"`
	Value        *float64
	Card         *models.SparringCard `gorm:"serializer:json"`
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

func (scoreRecord) TableName() string { return "score_entries" }

func (r scoreRecord) toModel() *models.ScoreEntry {
	return &models.ScoreEntry{
		ID:           r.ID,
		UnitID:       r.UnitID,
		JudgeID:      r.JudgeID,
		CompetitorID: r.CompetitorID,
		Value:        r.Value,
		Card:         r.Card,
		SubmittedAt:  r.SubmittedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
