// Package document renders prescription records into portable PDF documents
// carrying an embedded verification token as both a QR code and fallback
// text.
package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/medscript/medscript/internal/domain/prescription"
	"github.com/medscript/medscript/internal/domain/verification"
)

// RenderError reports a record that cannot be rendered, typically because a
// required field is missing.
type RenderError struct {
	Msg string
}

func (e *RenderError) Error() string {
	return "render: " + e.Msg
}

func renderErrorf(format string, args ...interface{}) *RenderError {
	return &RenderError{Msg: fmt.Sprintf(format, args...)}
}

const qrSizePx = 256

// Renderer produces the printable document for a record. Rendering is
// deterministic: the same record yields byte-identical output, so documents
// can be regenerated at any time without invalidating an earlier printout.
type Renderer struct {
	codec      *verification.Codec
	clinicName string
}

func NewRenderer(codec *verification.Codec, clinicName string) *Renderer {
	if clinicName == "" {
		clinicName = "MedScript Pro"
	}
	return &Renderer{codec: codec, clinicName: clinicName}
}

func validateRecord(p *prescription.Prescription) error {
	if p == nil {
		return renderErrorf("no record")
	}
	if strings.TrimSpace(p.PatientRef) == "" {
		return renderErrorf("patient reference is required")
	}
	if strings.TrimSpace(p.PractitionerRef) == "" {
		return renderErrorf("practitioner reference is required")
	}
	if len(p.Items) == 0 {
		return renderErrorf("record has no items")
	}
	if p.IssuedAt.IsZero() {
		return renderErrorf("issuance timestamp is required")
	}
	if p.ContentHash == "" {
		return renderErrorf("content hash is required")
	}
	return nil
}

// Render returns the single-page PDF for a record.
func (r *Renderer) Render(p *prescription.Prescription) ([]byte, error) {
	if err := validateRecord(p); err != nil {
		return nil, err
	}

	token := r.codec.Derive(p)
	qrPNG, err := qrcode.Encode(token, qrcode.Medium, qrSizePx)
	if err != nil {
		return nil, renderErrorf("qr encode: %v", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	// Without catalog sorting fpdf emits font objects in map iteration
	// order, which varies per render and breaks byte-determinism.
	pdf.SetCatalogSort(true)
	// Both document dates must be pinned to issuance; either one left at
	// time.Now() makes output differ across renders of the same record.
	pdf.SetCreationDate(p.IssuedAt.UTC())
	pdf.SetModificationDate(p.IssuedAt.UTC())
	pdf.SetTitle("Prescription "+p.ID.String(), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, r.clinicName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Prescription Record", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Patient: "+p.PatientRef, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Prescriber: "+p.PractitionerRef, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued: "+p.IssuedAt.UTC().Format("2006-01-02 15:04 UTC"), "", 1, "L", false, 0, "")
	if p.Diagnosis != nil && *p.Diagnosis != "" {
		pdf.CellFormat(0, 6, "Diagnosis: "+*p.Diagnosis, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Rx", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for i, it := range p.Items {
		line := fmt.Sprintf("%d. %s %s", i+1, it.Drug, it.Dosage)
		if it.Frequency != "" {
			line += ", " + it.Frequency
		}
		if it.Duration != "" {
			line += ", " + it.Duration
		}
		pdf.CellFormat(0, 6, line, "", 1, "L", false, 0, "")
		if it.Instructions != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 5, "    "+it.Instructions, "", 1, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 11)
		}
	}

	if p.Notes != nil && *p.Notes != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, "Notes: "+*p.Notes, "", "L", false)
	}

	pdf.Ln(6)
	pdf.RegisterImageOptionsReader("verify-qr",
		fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))
	pdf.ImageOptions("verify-qr", 10, pdf.GetY(), 35, 35, false,
		fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetXY(50, pdf.GetY()+8)
	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(0, 4,
		"Scan to verify this prescription, or enter the code below at the verification endpoint:\n"+token,
		"", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, renderErrorf("pdf output: %v", err)
	}
	return buf.Bytes(), nil
}
