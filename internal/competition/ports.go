package competition

import (
	"context"
	"errors"
	"fmt"

	"github.com/terra-clan/bracket-engine/internal/models"
	"github.com/terra-clan/bracket-engine/internal/seeding"
	"github.com/terra-clan/bracket-engine/internal/storage"
)

// Eligibility is the registration collaborator's view of one competitor
type Eligibility struct {
	Registered bool
	Approved   bool
	Paid       bool
}

// Eligible returns true for an approved and paid registration
func (e Eligibility) Eligible() bool {
	return e.Registered && e.Approved && e.Paid
}

// Reason explains why a competitor is not eligible
func (e Eligibility) Reason() string {
	switch {
	case !e.Registered:
		return models.ReasonNotRegistered
	case !e.Approved:
		return models.ReasonNotApproved
	case !e.Paid:
		return models.ReasonNotPaid
	}
	return ""
}

// Registrations is the registration collaborator
type Registrations interface {
	IsEligible(ctx context.Context, competitorID, categoryID string) (Eligibility, error)
	EligibleCompetitors(ctx context.Context, categoryID string) ([]models.Competitor, error)
}

// JudgePanel is the judge-panel collaborator
type JudgePanel interface {
	IsConfirmedJudge(ctx context.Context, judgeID, categoryID string) (bool, error)
	ConfirmedJudges(ctx context.Context, categoryID, tatami string) ([]string, error)
}

// SeedingAssistant proposes a first level for a category. Its output is
// untrusted and always repaired before use.
type SeedingAssistant interface {
	ProposeBracket(ctx context.Context, categoryID string, competitors []models.Competitor) (*seeding.Proposal, error)
}

// StoreRegistrations answers eligibility from the mirrored registrations
type StoreRegistrations struct {
	repo storage.Repository
}

// NewStoreRegistrations creates a store-backed registration collaborator
func NewStoreRegistrations(repo storage.Repository) *StoreRegistrations {
	return &StoreRegistrations{repo: repo}
}

// IsEligible implements Registrations
func (s *StoreRegistrations) IsEligible(ctx context.Context, competitorID, categoryID string) (Eligibility, error) {
	reg, err := s.repo.GetRegistration(ctx, categoryID, competitorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Eligibility{}, nil
		}
		return Eligibility{}, err
	}
	return Eligibility{Registered: true, Approved: reg.Approved, Paid: reg.Paid}, nil
}

// EligibleCompetitors implements Registrations
func (s *StoreRegistrations) EligibleCompetitors(ctx context.Context, categoryID string) ([]models.Competitor, error) {
	regs, err := s.repo.ListRegistrations(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	var out []models.Competitor
	for _, reg := range regs {
		if reg.Eligible() {
			out = append(out, reg.Competitor())
		}
	}
	return out, nil
}

// StoreJudgePanel answers judge questions from the mirrored assignments
type StoreJudgePanel struct {
	repo storage.Repository
}

// NewStoreJudgePanel creates a store-backed judge-panel collaborator
func NewStoreJudgePanel(repo storage.Repository) *StoreJudgePanel {
	return &StoreJudgePanel{repo: repo}
}

// IsConfirmedJudge implements JudgePanel
func (s *StoreJudgePanel) IsConfirmedJudge(ctx context.Context, judgeID, categoryID string) (bool, error) {
	a, err := s.repo.GetJudgeAssignment(ctx, judgeID, categoryID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check judge: %w", err)
	}
	return a.Confirmed, nil
}

// ConfirmedJudges implements JudgePanel
func (s *StoreJudgePanel) ConfirmedJudges(ctx context.Context, categoryID, tatami string) ([]string, error) {
	return s.repo.ListConfirmedJudges(ctx, categoryID, tatami)
}
