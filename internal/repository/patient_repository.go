package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/carepath-api/internal/models"
)

const patientStatsSelect = `SELECT p.id, p.name, p.email, p.phone, p.assigned_staff_id, p.status, p.created_at, p.updated_at,
        u.name AS assigned_staff_name,
        COALESCE(st.attended, 0) AS attended_sessions,
        COALESCE(st.total, 0) AS total_sessions
        FROM patients p
        LEFT JOIN users u ON u.id = p.assigned_staff_id
        LEFT JOIN (
            SELECT patient_id, COUNT(*) FILTER (WHERE status = 'attended') AS attended, COUNT(*) AS total
            FROM sessions GROUP BY patient_id
        ) st ON st.patient_id = p.id`

// PatientRepository persists patients and their program enrollments.
type PatientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// ListWithStats returns every patient matching filter with session tallies.
// Adherence filtering and pagination happen on the derived rate, so they are left to the caller.
func (r *PatientRepository) ListWithStats(ctx context.Context, filter models.PatientFilter, rng models.DateRange) ([]models.PatientStats, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM patient_programs pp WHERE pp.patient_id = p.id AND pp.program_id = $%d)", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.name) LIKE $%d OR LOWER(p.email) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	conditions, args = dateRangeConditions("p.created_at", rng.Start, rng.End, true, conditions, args)

	query := patientStatsSelect + whereClause(conditions) + " ORDER BY p.created_at DESC, p.id ASC"
	var items []models.PatientStats
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return items, nil
}

func (r *PatientRepository) FindByID(ctx context.Context, id string) (*models.PatientStats, error) {
	var item models.PatientStats
	if err := r.db.GetContext(ctx, &item, patientStatsSelect+" WHERE p.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &item, nil
}

// ExistsByEmail ignores excludeID so that updates can keep their own address.
func (r *PatientRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM patients WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return true, nil
}

// ProgramIDs maps each patient id to the programs it is enrolled in.
func (r *PatientRepository) ProgramIDs(ctx context.Context, patientIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(patientIDs))
	if len(patientIDs) == 0 {
		return result, nil
	}
	var rows []models.Enrollment
	const query = `SELECT id, patient_id, program_id, enrolled_at FROM patient_programs WHERE patient_id = ANY($1) ORDER BY enrolled_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(patientIDs)); err != nil {
		return nil, fmt.Errorf("list patient programs: %w", err)
	}
	for _, row := range rows {
		result[row.PatientID] = append(result[row.PatientID], row.ProgramID)
	}
	return result, nil
}

// Create inserts the patient and enrolls it in programIDs atomically.
func (r *PatientRepository) Create(ctx context.Context, patient *models.Patient, programIDs []string) error {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	patient.CreatedAt = now
	patient.UpdatedAt = now
	return withTx(ctx, r.db, "create patient", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO patients (id, name, email, phone, assigned_staff_id, status, created_at, updated_at)
        VALUES (:id, :name, :email, :phone, :assigned_staff_id, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, patient); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return enrollAll(ctx, tx, patient.ID, programIDs)
	})
}

// Update saves patient fields. When programIDs is non-nil the enrollments are replaced by it.
func (r *PatientRepository) Update(ctx context.Context, patient *models.Patient, programIDs []string) error {
	patient.UpdatedAt = time.Now().UTC()
	return withTx(ctx, r.db, "update patient", func(tx *sqlx.Tx) error {
		const query = `UPDATE patients SET name = :name, email = :email, phone = :phone, assigned_staff_id = :assigned_staff_id,
        status = :status, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, patient); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		if programIDs == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM patient_programs WHERE patient_id = $1`, patient.ID); err != nil {
			return fmt.Errorf("clear patient programs: %w", err)
		}
		return enrollAll(ctx, tx, patient.ID, programIDs)
	})
}

// Delete removes the patient with its prescriptions, sessions and enrollments.
func (r *PatientRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, "delete patient", func(tx *sqlx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM prescriptions WHERE patient_id = $1`,
			`DELETE FROM sessions WHERE patient_id = $1`,
			`DELETE FROM patient_programs WHERE patient_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete patient dependents: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete patient: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Enroll is idempotent.
func (r *PatientRepository) Enroll(ctx context.Context, patientID, programID string) error {
	const query = `INSERT INTO patient_programs (id, patient_id, program_id, enrolled_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (patient_id, program_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), patientID, programID, time.Now().UTC()); err != nil {
		return fmt.Errorf("enroll patient: %w", err)
	}
	return nil
}

// Unenroll returns sql.ErrNoRows when the patient was not enrolled.
func (r *PatientRepository) Unenroll(ctx context.Context, patientID, programID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patient_programs WHERE patient_id = $1 AND program_id = $2`, patientID, programID)
	if err != nil {
		return fmt.Errorf("unenroll patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func enrollAll(ctx context.Context, tx *sqlx.Tx, patientID string, programIDs []string) error {
	now := time.Now().UTC()
	for _, programID := range programIDs {
		const query = `INSERT INTO patient_programs (id, patient_id, program_id, enrolled_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (patient_id, program_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), patientID, programID, now); err != nil {
			return fmt.Errorf("enroll patient in %s: %w", programID, err)
		}
	}
	return nil
}
