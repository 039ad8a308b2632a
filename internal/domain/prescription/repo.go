package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the durable store of prescription records. Implementations
// must make Amend and Revoke atomic compare-and-set transitions: they only
// succeed when the target record is observed ACTIVE at commit time, and fail
// with ErrInvalidState otherwise.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	// GetSuccessor returns the record whose Supersedes equals id, or
	// ErrNotFound when the record has not been amended.
	GetSuccessor(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientRef string, limit, offset int) ([]*Prescription, int, error)
	// Amend atomically marks the old record AMENDED and inserts its ACTIVE
	// replacement in a single transaction.
	Amend(ctx context.Context, oldID uuid.UUID, replacement *Prescription) error
	Revoke(ctx context.Context, id uuid.UUID) error
}
