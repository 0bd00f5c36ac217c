package models

import "time"

// Frequency is how often a medication may be collected, or how often a program meets.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type Medication struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Dosage      string    `db:"dosage" json:"dosage"`
	Frequency   Frequency `db:"frequency" json:"frequency"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MedicationDetail is a medication with its collection history.
type MedicationDetail struct {
	Medication
	Prescriptions []Prescription `json:"prescriptions"`
}

type MedicationFilter struct {
	Search    string
	Frequency *Frequency
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
