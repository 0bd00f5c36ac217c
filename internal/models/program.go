package models

import "time"

type Program struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Frequency     Frequency `db:"frequency" json:"frequency"`
	SessionsCount int       `db:"sessions_count" json:"sessions_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ProgramStats is a program row with its enrollment count.
type ProgramStats struct {
	Program
	EnrolledPatients int `db:"enrolled_patients" json:"enrolled_patients"`
}

// ProgramView adds the linked medication ids.
type ProgramView struct {
	ProgramStats
	Medications []string `json:"medications"`
}

type ProgramFilter struct {
	Search   string
	Page     int
	PageSize int
}
