package verification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medscript/medscript/internal/domain/prescription"
	"github.com/medscript/medscript/internal/platform/telemetry"
)

// Verdict is the outcome of resolving a token.
type Verdict string

const (
	// VerdictValid means the token matches an ACTIVE record.
	VerdictValid Verdict = "VALID"
	// VerdictSuperseded means the record was authentic but has been amended.
	VerdictSuperseded Verdict = "SUPERSEDED"
	// VerdictRevoked means the record was authentic but has been revoked.
	VerdictRevoked Verdict = "REVOKED"
	// VerdictTampered means the token's tag does not match the record, or
	// the stored record no longer matches its own content hash.
	VerdictTampered Verdict = "TAMPERED"
	// VerdictUnknown means the token is malformed or names no record.
	VerdictUnknown Verdict = "UNKNOWN"
)

// MetricResolutions counts resolve outcomes by verdict.
const MetricResolutions = "verify_resolutions_total"

// Result is the public answer to a verification query. It deliberately
// exposes no clinical content; holders of a token learn only the verdict and
// chain position.
type Result struct {
	Verdict    Verdict    `json:"verdict"`
	RecordID   *uuid.UUID `json:"record_id,omitempty"`
	CurrentID  *uuid.UUID `json:"current_id,omitempty"`
	VerifiedAt time.Time  `json:"verified_at"`
}

// maxChainDepth bounds the supersession walk. Chains are append-only and
// short in practice; the bound only guards against storage corruption.
const maxChainDepth = 100

type Resolver struct {
	codec   *Codec
	repo    prescription.Repository
	metrics *telemetry.Provider
	logger  zerolog.Logger
}

func NewResolver(codec *Codec, repo prescription.Repository, metrics *telemetry.Provider, logger zerolog.Logger) *Resolver {
	if metrics != nil {
		metrics.Register(MetricResolutions, "verdict", "Verification resolutions by verdict.")
	}
	return &Resolver{codec: codec, repo: repo, metrics: metrics, logger: logger}
}

// Resolve maps a presented token to a verdict. Malformed tokens and unknown
// ids are indistinguishable to the caller; both come back UNKNOWN.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Result, error) {
	res, err := r.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.Inc(MetricResolutions, string(res.Verdict))
	}
	r.logger.Info().
		Str("verdict", string(res.Verdict)).
		Msg("token resolved")
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, token string) (*Result, error) {
	now := time.Now().UTC()

	id, claimedTag, err := r.codec.Decode(token)
	if err != nil {
		return &Result{Verdict: VerdictUnknown, VerifiedAt: now}, nil
	}

	p, err := r.repo.GetByID(ctx, id)
	if errors.Is(err, prescription.ErrNotFound) {
		return &Result{Verdict: VerdictUnknown, VerifiedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}

	if !r.codec.Verify(p, claimedTag) || p.Hash() != p.ContentHash {
		return &Result{Verdict: VerdictTampered, RecordID: &p.ID, VerifiedAt: now}, nil
	}

	switch p.Status {
	case prescription.StatusActive:
		return &Result{Verdict: VerdictValid, RecordID: &p.ID, VerifiedAt: now}, nil
	case prescription.StatusRevoked:
		return &Result{Verdict: VerdictRevoked, RecordID: &p.ID, VerifiedAt: now}, nil
	case prescription.StatusAmended:
		res := &Result{Verdict: VerdictSuperseded, RecordID: &p.ID, VerifiedAt: now}
		if head, err := r.currentHead(ctx, p.ID); err != nil {
			return nil, err
		} else if head != nil {
			res.CurrentID = &head.ID
		}
		return res, nil
	default:
		return &Result{Verdict: VerdictUnknown, RecordID: &p.ID, VerifiedAt: now}, nil
	}
}

// currentHead walks the supersession chain forward and returns the ACTIVE
// head, or nil when the chain ends in a revoked record.
func (r *Resolver) currentHead(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	for i := 0; i < maxChainDepth; i++ {
		next, err := r.repo.GetSuccessor(ctx, id)
		if errors.Is(err, prescription.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if next.Status == prescription.StatusActive {
			return next, nil
		}
		if next.Status == prescription.StatusRevoked {
			return nil, nil
		}
		id = next.ID
	}
	return nil, errors.New("supersession chain too deep")
}
