package domain

import (
	"strings"
	"time"
)

// State of a prescription. Edits are only allowed while active; changes
// between states happen only through an explicit state change.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StateActive, StateCompleted, StateCancelled:
		return st, nil
	}
	return "", Validationf("unknown prescription state %q", s)
}

// Prescription is the aggregate root. Lines is nil for header-only listings.
type Prescription struct {
	ID           int64              `json:"id"`
	Folio        string             `json:"folio"`
	IssuedAt     time.Time          `json:"issued_at"`
	Diagnosis    string             `json:"diagnosis"`
	Observations string             `json:"observations"`
	State        State              `json:"state"`
	PatientID    int64              `json:"patient_id"`
	IssuedBy     int64              `json:"issued_by"`
	CreatedAt    time.Time          `json:"created_at"`
	PatientName  string             `json:"patient_name,omitempty"`
	IssuerName   string             `json:"issuer_name,omitempty"`
	Lines        []PrescriptionLine `json:"lines,omitempty"`
}

type PrescriptionLine struct {
	ID             int64  `json:"id"`
	PrescriptionID int64  `json:"prescription_id"`
	Medication     string `json:"medication"`
	Quantity       int    `json:"quantity"`
	Dosage         string `json:"dosage"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions"`
	MedicationID   *int64 `json:"medication_id,omitempty"`
	MedicationName string `json:"medication_name,omitempty"`
}

// NewPrescription is the header of a prescription to create. Folio and
// IssuedAt are filled in when left empty; IssuedBy is the acting user.
type NewPrescription struct {
	Folio        string
	IssuedAt     time.Time
	Diagnosis    string
	Observations string
	PatientID    int64
	IssuedBy     int64
}

// PrescriptionEdit replaces header content; nil fields keep their value.
type PrescriptionEdit struct {
	Diagnosis    *string
	Observations *string
	PatientID    *int64
}

type LineInput struct {
	Medication   string
	Quantity     *int
	Dosage       string
	Duration     string
	Instructions string
	MedicationID *int64
}

const DefaultLineQuantity = 1

// Normalize validates the line and fills the default quantity.
func (l LineInput) Normalize() (PrescriptionLine, error) {
	if strings.TrimSpace(l.Medication) == "" {
		return PrescriptionLine{}, Validationf("line medication is required")
	}
	qty := DefaultLineQuantity
	if l.Quantity != nil {
		if *l.Quantity <= 0 {
			return PrescriptionLine{}, Validationf("line quantity must be positive, got %d", *l.Quantity)
		}
		qty = *l.Quantity
	}
	return PrescriptionLine{
		Medication:   l.Medication,
		Quantity:     qty,
		Dosage:       l.Dosage,
		Duration:     l.Duration,
		Instructions: l.Instructions,
		MedicationID: l.MedicationID,
	}, nil
}

func NormalizeLines(in []LineInput) ([]PrescriptionLine, error) {
	lines := make([]PrescriptionLine, 0, len(in))
	for _, l := range in {
		line, err := l.Normalize()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
