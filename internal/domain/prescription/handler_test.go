package prescription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService(newMockRepo(), nil)
	return NewHandler(svc), echo.New()
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_CreatePrescription(t *testing.T) {
	h, e := newTestHandler()

	body := `{"patient_ref":"patient-1","practitioner_ref":"dr-smith","items":[{"drug":"Amoxicillin","dosage":"500mg","frequency":"TID","duration":"7 days"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Prescription
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != StatusActive {
		t.Errorf("expected ACTIVE, got %s", p.Status)
	}
	if p.ContentHash == "" {
		t.Error("expected content hash in response")
	}
}

func TestHandler_CreatePrescription_Validation(t *testing.T) {
	h, e := newTestHandler()

	body := `{"patient_ref":"patient-1","practitioner_ref":"dr-smith","items":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreatePrescription(c)
	if code := httpStatus(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetPrescription(t *testing.T) {
	h, e := newTestHandler()

	p, err := h.svc.Create(context.Background(), validDraft())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPrescription_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPrescription(c)
	if code := httpStatus(t, err); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_GetPrescription_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetPrescription(c)
	if code := httpStatus(t, err); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_AmendPrescription(t *testing.T) {
	h, e := newTestHandler()

	p, _ := h.svc.Create(context.Background(), validDraft())

	body := `{"items":[{"drug":"Amoxicillin","dosage":"250mg","frequency":"TID"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.AmendPrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var replacement Prescription
	json.Unmarshal(rec.Body.Bytes(), &replacement)
	if replacement.Supersedes == nil || *replacement.Supersedes != p.ID {
		t.Error("expected replacement to supersede the original")
	}
}

func TestHandler_AmendPrescription_Conflict(t *testing.T) {
	h, e := newTestHandler()

	p, _ := h.svc.Create(context.Background(), validDraft())
	if err := h.svc.Revoke(context.Background(), p.ID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	body := `{"items":[{"drug":"Amoxicillin","dosage":"250mg"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.AmendPrescription(c)
	if code := httpStatus(t, err); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_RevokePrescription(t *testing.T) {
	h, e := newTestHandler()

	p, _ := h.svc.Create(context.Background(), validDraft())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.RevokePrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var revoked Prescription
	json.Unmarshal(rec.Body.Bytes(), &revoked)
	if revoked.Status != StatusRevoked {
		t.Errorf("expected REVOKED, got %s", revoked.Status)
	}
}

func TestHandler_ListPatientPrescriptions(t *testing.T) {
	h, e := newTestHandler()

	for i := 0; i < 2; i++ {
		if _, err := h.svc.Create(context.Background(), validDraft()); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patientRef")
	c.SetParamValues("patient-1")

	if err := h.ListPatientPrescriptions(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected total 2, got %d", resp.Total)
	}
}
