package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medscript/medscript/internal/domain/prescription"
	"github.com/medscript/medscript/internal/platform/telemetry"
)

// -- Mock Repository --

type mockRepo struct {
	prescriptions map[uuid.UUID]*prescription.Prescription
}

func newMockRepo() *mockRepo {
	return &mockRepo{prescriptions: make(map[uuid.UUID]*prescription.Prescription)}
}

func (m *mockRepo) add(p *prescription.Prescription) {
	m.prescriptions[p.ID] = p
}

func (m *mockRepo) Create(_ context.Context, p *prescription.Prescription) error {
	m.prescriptions[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetSuccessor(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	for _, p := range m.prescriptions {
		if p.Supersedes != nil && *p.Supersedes == id {
			return p, nil
		}
	}
	return nil, prescription.ErrNotFound
}

func (m *mockRepo) ListByPatient(_ context.Context, patientRef string, limit, offset int) ([]*prescription.Prescription, int, error) {
	return nil, 0, nil
}

func (m *mockRepo) Amend(_ context.Context, oldID uuid.UUID, replacement *prescription.Prescription) error {
	m.prescriptions[oldID].Status = prescription.StatusAmended
	m.prescriptions[replacement.ID] = replacement
	return nil
}

func (m *mockRepo) Revoke(_ context.Context, id uuid.UUID) error {
	m.prescriptions[id].Status = prescription.StatusRevoked
	return nil
}

func newTestResolver(repo prescription.Repository) (*Resolver, *Codec, *telemetry.Provider) {
	codec := NewCodec(testSecret)
	metrics := telemetry.NewProvider("medscript-test")
	return NewResolver(codec, repo, metrics, zerolog.Nop()), codec, metrics
}

// amendChain marks old AMENDED and inserts a successor with the given status.
func amendChain(repo *mockRepo, old *prescription.Prescription, status prescription.Status, items []prescription.Item) *prescription.Prescription {
	old.Status = prescription.StatusAmended
	oldID := old.ID
	next := &prescription.Prescription{
		ID:              uuid.New(),
		PatientRef:      old.PatientRef,
		PractitionerRef: old.PractitionerRef,
		Items:           items,
		Status:          status,
		Supersedes:      &oldID,
	}
	next.ContentHash = next.Hash()
	repo.add(next)
	return next
}

func TestResolve_Valid(t *testing.T) {
	repo := newMockRepo()
	r, codec, metrics := newTestResolver(repo)

	p := testRecord()
	repo.add(p)

	res, err := r.Resolve(context.Background(), codec.Derive(p))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictValid {
		t.Errorf("expected VALID, got %s", res.Verdict)
	}
	if res.RecordID == nil || *res.RecordID != p.ID {
		t.Error("expected record id in result")
	}
	if metrics.Count(MetricResolutions, string(VerdictValid)) != 1 {
		t.Error("expected VALID resolution counted")
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	r, _, _ := newTestResolver(newMockRepo())

	for _, token := range []string{"garbage", "", strings.Repeat("A", 44)} {
		res, err := r.Resolve(context.Background(), token)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if res.Verdict != VerdictUnknown {
			t.Errorf("token %q: expected UNKNOWN, got %s", token, res.Verdict)
		}
	}
}

func TestResolve_UnknownRecord(t *testing.T) {
	r, codec, _ := newTestResolver(newMockRepo())

	res, err := r.Resolve(context.Background(), codec.Derive(testRecord()))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictUnknown {
		t.Errorf("expected UNKNOWN for missing record, got %s", res.Verdict)
	}
}

func TestResolve_TamperedToken(t *testing.T) {
	repo := newMockRepo()
	r, codec, metrics := newTestResolver(repo)

	p := testRecord()
	repo.add(p)

	// Token derived for a different content than what is stored.
	forged := *p
	forged.ContentHash = prescription.ComputeContentHash(p.PatientRef, p.PractitionerRef,
		[]prescription.Item{{Drug: "Oxycodone", Dosage: "80mg"}})

	res, err := r.Resolve(context.Background(), codec.Derive(&forged))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictTampered {
		t.Errorf("expected TAMPERED, got %s", res.Verdict)
	}
	if metrics.Count(MetricResolutions, string(VerdictTampered)) != 1 {
		t.Error("expected TAMPERED resolution counted")
	}
}

func TestResolve_TamperedStore(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)

	p := testRecord()
	repo.add(p)
	token := codec.Derive(p)

	// Stored items mutated out from under the recorded hash.
	p.Items[0].Dosage = "5000mg"

	res, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictTampered {
		t.Errorf("expected TAMPERED, got %s", res.Verdict)
	}
}

func TestResolve_Revoked(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)

	p := testRecord()
	p.Status = prescription.StatusRevoked
	repo.add(p)

	res, err := r.Resolve(context.Background(), codec.Derive(p))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictRevoked {
		t.Errorf("expected REVOKED, got %s", res.Verdict)
	}
}

func TestResolve_SupersededPointsAtActiveHead(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)

	p := testRecord()
	repo.add(p)
	token := codec.Derive(p)

	mid := amendChain(repo, p, prescription.StatusAmended,
		[]prescription.Item{{Drug: "Amoxicillin", Dosage: "250mg"}})
	head := amendChain(repo, mid, prescription.StatusActive,
		[]prescription.Item{{Drug: "Amoxicillin", Dosage: "125mg"}})

	res, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictSuperseded {
		t.Errorf("expected SUPERSEDED, got %s", res.Verdict)
	}
	if res.CurrentID == nil || *res.CurrentID != head.ID {
		t.Error("expected current_id to name the ACTIVE head of the chain")
	}
}

func TestResolve_SupersededChainEndsRevoked(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)

	p := testRecord()
	repo.add(p)
	token := codec.Derive(p)

	amendChain(repo, p, prescription.StatusRevoked,
		[]prescription.Item{{Drug: "Amoxicillin", Dosage: "250mg"}})

	res, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Verdict != VerdictSuperseded {
		t.Errorf("expected SUPERSEDED, got %s", res.Verdict)
	}
	if res.CurrentID != nil {
		t.Error("expected no current_id when the chain head is revoked")
	}
}

func TestResolve_OldTokenStaysVerifiableAfterAmend(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)

	p := testRecord()
	repo.add(p)
	oldToken := codec.Derive(p)

	head := amendChain(repo, p, prescription.StatusActive,
		[]prescription.Item{{Drug: "Amoxicillin", Dosage: "250mg"}})

	oldRes, err := r.Resolve(context.Background(), oldToken)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if oldRes.Verdict != VerdictSuperseded {
		t.Errorf("old token: expected SUPERSEDED, got %s", oldRes.Verdict)
	}

	newRes, err := r.Resolve(context.Background(), codec.Derive(head))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if newRes.Verdict != VerdictValid {
		t.Errorf("new token: expected VALID, got %s", newRes.Verdict)
	}
}

func TestHandler_ResolveToken(t *testing.T) {
	repo := newMockRepo()
	r, codec, _ := newTestResolver(repo)
	h := NewHandler(r)

	p := testRecord()
	repo.add(p)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues(codec.Derive(p))

	if err := h.ResolveToken(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"verdict":"VALID"`) {
		t.Errorf("expected VALID verdict in body, got %s", rec.Body.String())
	}
}
