package models

import "time"

type PrescriptionStatus string

const (
	PrescriptionPending   PrescriptionStatus = "pending"
	PrescriptionCollected PrescriptionStatus = "collected"
	PrescriptionOverdue   PrescriptionStatus = "overdue"
)

func (s PrescriptionStatus) Valid() bool {
	switch s {
	case PrescriptionPending, PrescriptionCollected, PrescriptionOverdue:
		return true
	}
	return false
}

// Prescription records one collection event of a medication by a patient.
type Prescription struct {
	ID            string             `db:"id" json:"id"`
	MedicationID  string             `db:"medication_id" json:"medication_id"`
	PatientID     string             `db:"patient_id" json:"patient_id"`
	DateCollected time.Time          `db:"date_collected" json:"date_collected"`
	NextDueDate   time.Time          `db:"next_due_date" json:"next_due_date"`
	Status        PrescriptionStatus `db:"status" json:"status"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// PrescriptionDetail joins in the display names used by listings and exports.
type PrescriptionDetail struct {
	Prescription
	MedicationName   string `db:"medication_name" json:"medication_name"`
	MedicationDosage string `db:"medication_dosage" json:"medication_dosage"`
	PatientName      string `db:"patient_name" json:"patient_name"`
}

type PrescriptionFilter struct {
	PatientID    string
	MedicationID string
	Status       *PrescriptionStatus

	// AsOf is the day a Status filter is evaluated against.
	AsOf      time.Time
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
