package models

import "time"

type SessionStatus string

const (
	SessionAttended SessionStatus = "attended"
	SessionMissed   SessionStatus = "missed"
	SessionCanceled SessionStatus = "canceled"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionAttended, SessionMissed, SessionCanceled:
		return true
	}
	return false
}

// Session is one scheduled program meeting for a patient. FinalizedAt is set by the
// first explicit status decision or by the missed sweep.
type Session struct {
	ID           string        `db:"id" json:"id"`
	ProgramID    string        `db:"program_id" json:"program_id"`
	PatientID    string        `db:"patient_id" json:"patient_id"`
	Date         time.Time     `db:"date" json:"date"`
	Status       SessionStatus `db:"status" json:"status"`
	CancelReason *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Notes        *string       `db:"notes" json:"notes,omitempty"`
	FinalizedAt  *time.Time    `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

type SessionDetail struct {
	Session
	ProgramName string `db:"program_name" json:"program_name"`
	PatientName string `db:"patient_name" json:"patient_name"`
}

type SessionFilter struct {
	ProgramID string
	PatientID string
	Status    *SessionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
