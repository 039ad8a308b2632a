package prescription

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a prescription record. ACTIVE records
// transition exactly once, to AMENDED (via amend) or REVOKED (via revoke);
// both are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusAmended Status = "AMENDED"
	StatusRevoked Status = "REVOKED"
)

// Item is a single prescribed medication. Order within a prescription is
// clinically meaningful and preserved everywhere items travel.
type Item struct {
	Drug         string `db:"drug" json:"drug"`
	Dosage       string `db:"dosage" json:"dosage"`
	Frequency    string `db:"frequency" json:"frequency,omitempty"`
	Duration     string `db:"duration" json:"duration,omitempty"`
	Instructions string `db:"instructions" json:"instructions,omitempty"`
}

// Prescription maps to the prescription table. Once issued, every field
// except Status (and UpdatedAt) is immutable; clinical changes produce a new
// record linked through Supersedes.
type Prescription struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientRef      string     `db:"patient_ref" json:"patient_ref"`
	PractitionerRef string     `db:"practitioner_ref" json:"practitioner_ref"`
	Diagnosis       *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	InteractionNote *string    `db:"interaction_note" json:"interaction_note,omitempty"`
	Items           []Item     `json:"items"`
	Status          Status     `db:"status" json:"status"`
	ContentHash     string     `db:"content_hash" json:"content_hash"`
	Supersedes      *uuid.UUID `db:"supersedes" json:"supersedes,omitempty"`
	IssuedAt        time.Time  `db:"issued_at" json:"issued_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Draft is the caller-supplied input to Create.
type Draft struct {
	PatientRef      string  `json:"patient_ref"`
	PractitionerRef string  `json:"practitioner_ref"`
	Diagnosis       *string `json:"diagnosis,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Items           []Item  `json:"items"`
}

const hashVersion = "v1"

// ComputeContentHash returns the hex SHA-256 digest over the canonical
// serialization of the clinically relevant fields: patient and practitioner
// identity plus the ordered items. Status, timestamps, notes and other
// metadata are excluded so that only clinical divergence changes the hash.
//
// The serialization separates fields with 0x1F and items with 0x1E so that
// concatenation ambiguity cannot produce colliding inputs.
func ComputeContentHash(patientRef, practitionerRef string, items []Item) string {
	h := sha256.New()
	io.WriteString(h, hashVersion)
	io.WriteString(h, "\x1f")
	io.WriteString(h, patientRef)
	io.WriteString(h, "\x1f")
	io.WriteString(h, practitionerRef)
	for _, it := range items {
		io.WriteString(h, "\x1e")
		io.WriteString(h, it.Drug)
		io.WriteString(h, "\x1f")
		io.WriteString(h, it.Dosage)
		io.WriteString(h, "\x1f")
		io.WriteString(h, it.Frequency)
		io.WriteString(h, "\x1f")
		io.WriteString(h, it.Duration)
		io.WriteString(h, "\x1f")
		io.WriteString(h, it.Instructions)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hash recomputes the content hash from the record's current fields.
func (p *Prescription) Hash() string {
	return ComputeContentHash(p.PatientRef, p.PractitionerRef, p.Items)
}
