package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medscript/medscript/internal/platform/suggestion"
)

// Suggester produces advisory text for a prescription. It is satisfied by
// *suggestion.Client; failures surface as suggestion.ErrUnavailable.
type Suggester interface {
	Enabled() bool
	Suggest(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	repo      Repository
	suggester Suggester
	logger    zerolog.Logger
}

func NewService(repo Repository, suggester Suggester, logger zerolog.Logger) *Service {
	return &Service{repo: repo, suggester: suggester, logger: logger}
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return validationErrorf("at least one item is required")
	}
	for i, it := range items {
		if strings.TrimSpace(it.Drug) == "" {
			return validationErrorf("item %d: drug is required", i)
		}
		if strings.TrimSpace(it.Dosage) == "" {
			return validationErrorf("item %d: dosage is required", i)
		}
	}
	return nil
}

// Create validates the draft, issues a new ACTIVE record with its content
// hash, and persists it. An interaction note is requested from the suggester
// best-effort before insert; its absence never fails the creation.
func (s *Service) Create(ctx context.Context, draft Draft) (*Prescription, error) {
	if strings.TrimSpace(draft.PatientRef) == "" {
		return nil, validationErrorf("patient_ref is required")
	}
	if strings.TrimSpace(draft.PractitionerRef) == "" {
		return nil, validationErrorf("practitioner_ref is required")
	}
	if err := validateItems(draft.Items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Prescription{
		ID:              uuid.New(),
		PatientRef:      draft.PatientRef,
		PractitionerRef: draft.PractitionerRef,
		Diagnosis:       draft.Diagnosis,
		Notes:           draft.Notes,
		Items:           draft.Items,
		Status:          StatusActive,
		ContentHash:     ComputeContentHash(draft.PatientRef, draft.PractitionerRef, draft.Items),
		IssuedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if note := s.interactionNote(ctx, p.Items); note != "" {
		p.InteractionNote = &note
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("patient_ref", p.PatientRef).
		Int("items", len(p.Items)).
		Msg("prescription created")
	return p, nil
}

func (s *Service) interactionNote(ctx context.Context, items []Item) string {
	if s.suggester == nil || !s.suggester.Enabled() || len(items) < 2 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Review the following prescribed medications for clinically significant drug-drug interactions. Respond with a short note, or 'No significant interactions found.'\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s %s", it.Drug, it.Dosage)
		if it.Frequency != "" {
			fmt.Fprintf(&b, ", %s", it.Frequency)
		}
		b.WriteString("\n")
	}

	note, err := s.suggester.Suggest(ctx, b.String())
	if err != nil {
		if !errors.Is(err, suggestion.ErrUnavailable) {
			s.logger.Error().Err(err).Msg("unexpected suggester error")
		}
		return ""
	}
	return note
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetSuccessor(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetSuccessor(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientRef string, limit, offset int) ([]*Prescription, int, error) {
	if strings.TrimSpace(patientRef) == "" {
		return nil, 0, validationErrorf("patient_ref is required")
	}
	return s.repo.ListByPatient(ctx, patientRef, limit, offset)
}

// Amend issues a replacement for an ACTIVE record. The old record becomes
// AMENDED and the new one, carrying the new items and a fresh content hash,
// points back at it through Supersedes. The two writes commit atomically.
func (s *Service) Amend(ctx context.Context, id uuid.UUID, newItems []Item) (*Prescription, error) {
	if err := validateItems(newItems); err != nil {
		return nil, err
	}

	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.Status != StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidState, old.Status)
	}

	now := time.Now().UTC()
	oldID := old.ID
	replacement := &Prescription{
		ID:              uuid.New(),
		PatientRef:      old.PatientRef,
		PractitionerRef: old.PractitionerRef,
		Diagnosis:       old.Diagnosis,
		Notes:           old.Notes,
		Items:           newItems,
		Status:          StatusActive,
		ContentHash:     ComputeContentHash(old.PatientRef, old.PractitionerRef, newItems),
		Supersedes:      &oldID,
		IssuedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if note := s.interactionNote(ctx, newItems); note != "" {
		replacement.InteractionNote = &note
	}

	if err := s.repo.Amend(ctx, id, replacement); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("prescription_id", replacement.ID.String()).
		Str("supersedes", id.String()).
		Msg("prescription amended")
	return replacement, nil
}

// Revoke marks an ACTIVE record REVOKED. Terminal; a revoked record cannot
// be amended or reactivated.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Revoke(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("prescription_id", id.String()).Msg("prescription revoked")
	return nil
}
