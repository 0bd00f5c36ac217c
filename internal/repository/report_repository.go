package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/carepath-api/internal/models"
)

// ReportRepository runs the aggregate queries behind the reports endpoints.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// DashboardCounts gathers all dashboard totals in one round trip. A pending
// prescription already past its due date counts as overdue even before the sweep runs.
func (r *ReportRepository) DashboardCounts(ctx context.Context, today time.Time) (*models.DashboardCounts, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM patients) AS total_patients,
        (SELECT COUNT(*) FROM patients WHERE status = 'active') AS active_patients,
        (SELECT COUNT(*) FROM programs) AS total_programs,
        (SELECT COUNT(*) FROM patient_programs) AS total_enrollments,
        (SELECT COUNT(*) FROM prescriptions WHERE status = 'overdue' OR (status = 'pending' AND next_due_date < $1)) AS overdue_prescriptions,
        (SELECT COUNT(*) FROM sessions WHERE status = 'attended') AS attended_sessions,
        (SELECT COUNT(*) FROM sessions WHERE status = 'missed') AS missed_sessions,
        (SELECT COUNT(*) FROM sessions WHERE status = 'canceled') AS canceled_sessions`
	var counts models.DashboardCounts
	if err := r.db.GetContext(ctx, &counts, query, today); err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}
	return &counts, nil
}

// SessionTallies returns attended and total session counts for every patient, including those with none.
func (r *ReportRepository) SessionTallies(ctx context.Context) ([]models.PatientSessionTally, error) {
	const query = `SELECT p.id AS patient_id, p.name,
        COUNT(s.id) FILTER (WHERE s.status = 'attended') AS attended,
        COUNT(s.id) AS total
        FROM patients p
        LEFT JOIN sessions s ON s.patient_id = p.id
        GROUP BY p.id, p.name, p.created_at
        ORDER BY p.created_at ASC, p.id ASC`
	var rows []models.PatientSessionTally
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("session tallies: %w", err)
	}
	return rows, nil
}

func (r *ReportRepository) EnrollmentCounts(ctx context.Context) ([]models.ProgramEnrollmentCount, error) {
	const query = `SELECT pr.id AS program_id, pr.name, COUNT(pp.id) AS enrolled
        FROM programs pr
        LEFT JOIN patient_programs pp ON pp.program_id = pr.id
        GROUP BY pr.id, pr.name, pr.created_at
        ORDER BY pr.created_at ASC, pr.id ASC`
	var rows []models.ProgramEnrollmentCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("enrollment counts: %w", err)
	}
	return rows, nil
}
