package models

import "time"

// DateRange bounds exports. Both ends are inclusive calendar days and either may be nil.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// DashboardCounts holds the raw totals behind the dashboard.
type DashboardCounts struct {
	TotalPatients        int `db:"total_patients"`
	ActivePatients       int `db:"active_patients"`
	TotalPrograms        int `db:"total_programs"`
	TotalEnrollments     int `db:"total_enrollments"`
	OverduePrescriptions int `db:"overdue_prescriptions"`
	AttendedSessions     int `db:"attended_sessions"`
	MissedSessions       int `db:"missed_sessions"`
	CanceledSessions     int `db:"canceled_sessions"`
}

// PatientSessionTally is one patient's attended and total session counts.
type PatientSessionTally struct {
	PatientID string `db:"patient_id"`
	Name      string `db:"name"`
	Attended  int    `db:"attended"`
	Total     int    `db:"total"`
}

// ProgramEnrollmentCount is the number of patients enrolled in one program.
type ProgramEnrollmentCount struct {
	ProgramID string `db:"program_id"`
	Name      string `db:"name"`
	Enrolled  int    `db:"enrolled"`
}

// DashboardStats is the cached dashboard payload.
type DashboardStats struct {
	TotalPatients        int `json:"total_patients"`
	ActivePatients       int `json:"active_patients"`
	TotalPrograms        int `json:"total_programs"`
	TotalEnrollments     int `json:"total_enrollments"`
	AverageAdherence     int `json:"average_adherence"`
	OverduePrescriptions int `json:"overdue_prescriptions"`
	AttendedSessions     int `json:"attended_sessions"`
	MissedSessions       int `json:"missed_sessions"`
	CanceledSessions     int `json:"canceled_sessions"`
}

// AdherencePoint is one bar of the adherence chart.
type AdherencePoint struct {
	Name      string `json:"name"`
	Adherence int    `json:"adherence"`
}

// EnrollmentPoint is one bar of the enrollment chart.
type EnrollmentPoint struct {
	Name     string `json:"name"`
	Enrolled int    `json:"enrolled"`
}

// StatusSlice is one slice of the session status chart.
type StatusSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}
