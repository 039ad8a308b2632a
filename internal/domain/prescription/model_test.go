package prescription

import "testing"

func TestComputeContentHash_Deterministic(t *testing.T) {
	items := []Item{
		{Drug: "Amoxicillin", Dosage: "500mg", Frequency: "TID", Duration: "7 days"},
		{Drug: "Ibuprofen", Dosage: "200mg", Frequency: "PRN"},
	}
	a := ComputeContentHash("patient-1", "dr-smith", items)
	b := ComputeContentHash("patient-1", "dr-smith", items)
	if a != b {
		t.Errorf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestComputeContentHash_DivergesOnClinicalChange(t *testing.T) {
	base := []Item{{Drug: "Amoxicillin", Dosage: "500mg", Frequency: "TID"}}
	baseline := ComputeContentHash("patient-1", "dr-smith", base)

	cases := []struct {
		name            string
		patientRef      string
		practitionerRef string
		items           []Item
	}{
		{"dosage change", "patient-1", "dr-smith", []Item{{Drug: "Amoxicillin", Dosage: "250mg", Frequency: "TID"}}},
		{"drug change", "patient-1", "dr-smith", []Item{{Drug: "Azithromycin", Dosage: "500mg", Frequency: "TID"}}},
		{"patient change", "patient-2", "dr-smith", base},
		{"practitioner change", "patient-1", "dr-jones", base},
		{"item added", "patient-1", "dr-smith", append(append([]Item{}, base...), Item{Drug: "Ibuprofen", Dosage: "200mg"})},
	}
	for _, tc := range cases {
		if got := ComputeContentHash(tc.patientRef, tc.practitionerRef, tc.items); got == baseline {
			t.Errorf("%s: hash did not diverge", tc.name)
		}
	}
}

func TestComputeContentHash_OrderSensitive(t *testing.T) {
	a := ComputeContentHash("p", "d", []Item{
		{Drug: "A", Dosage: "1mg"},
		{Drug: "B", Dosage: "2mg"},
	})
	b := ComputeContentHash("p", "d", []Item{
		{Drug: "B", Dosage: "2mg"},
		{Drug: "A", Dosage: "1mg"},
	})
	if a == b {
		t.Error("expected item order to affect the hash")
	}
}

func TestComputeContentHash_NoConcatenationAmbiguity(t *testing.T) {
	a := ComputeContentHash("p", "d", []Item{{Drug: "AB", Dosage: "C"}})
	b := ComputeContentHash("p", "d", []Item{{Drug: "A", Dosage: "BC"}})
	if a == b {
		t.Error("field boundary shift produced identical hash")
	}
}

func TestHash_MatchesStoredFields(t *testing.T) {
	p := &Prescription{
		PatientRef:      "patient-1",
		PractitionerRef: "dr-smith",
		Items:           []Item{{Drug: "Amoxicillin", Dosage: "500mg"}},
	}
	p.ContentHash = p.Hash()
	if p.Hash() != p.ContentHash {
		t.Error("recomputed hash does not match stored hash")
	}

	p.Items[0].Dosage = "250mg"
	if p.Hash() == p.ContentHash {
		t.Error("expected mismatch after item mutation")
	}
}
