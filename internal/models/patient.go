package models

import "time"

type PatientStatus string

const (
	PatientActive   PatientStatus = "active"
	PatientInactive PatientStatus = "inactive"
)

func (s PatientStatus) Valid() bool {
	return s == PatientActive || s == PatientInactive
}

type Patient struct {
	ID              string        `db:"id" json:"id"`
	Name            string        `db:"name" json:"name"`
	Email           string        `db:"email" json:"email"`
	Phone           string        `db:"phone" json:"phone"`
	AssignedStaffID *string       `db:"assigned_staff_id" json:"assigned_staff_id,omitempty"`
	Status          PatientStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// PatientStats is a patient row plus its session counts, as loaded for listings.
type PatientStats struct {
	Patient
	AssignedStaffName *string `db:"assigned_staff_name"`
	AttendedSessions  int     `db:"attended_sessions"`
	TotalSessions     int     `db:"total_sessions"`
}

// PatientView is the API projection with derived fields.
type PatientView struct {
	Patient
	AssignedStaffName string   `json:"assigned_staff_name,omitempty"`
	AdherenceRate     int      `json:"adherence_rate"`
	Programs          []string `json:"programs"`
}

type PatientFilter struct {
	Status    *PatientStatus
	ProgramID string
	Adherence string
	Search    string
	Page      int
	PageSize  int
}

// Enrollment links a patient to a program.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	ProgramID  string    `db:"program_id" json:"program_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}
