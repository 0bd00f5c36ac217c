package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/carepath-api/internal/models"
)

const prescriptionColumns = `p.id, p.medication_id, p.patient_id, p.date_collected, p.next_due_date, p.status, p.created_at, p.updated_at`

const prescriptionDetailFrom = `FROM prescriptions p
        JOIN medications m ON m.id = p.medication_id
        JOIN patients pt ON pt.id = p.patient_id`

// latestCollectedQuery orders ties on date_collected by insertion time, then id.
const latestCollectedQuery = `SELECT ` + prescriptionColumns + ` FROM prescriptions p
        WHERE p.patient_id = $1 AND p.medication_id = $2 AND p.status = $3
        ORDER BY p.date_collected DESC, p.created_at DESC, p.id DESC LIMIT 1`

// PrescriptionRepository persists collection events.
type PrescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// List returns prescriptions with medication and patient names, newest collection first.
func (r *PrescriptionRepository) List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, int, error) {
	var conditions []string
	var args []interface{}
	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("p.patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.MedicationID != "" {
		conditions = append(conditions, fmt.Sprintf("p.medication_id = $%d", len(args)+1))
		args = append(args, filter.MedicationID)
	}
	if filter.Status != nil {
		var condition string
		condition, args = prescriptionStatusCondition(*filter.Status, filter.AsOf, args)
		conditions = append(conditions, condition)
	}
	conditions, args = dateRangeConditions("p.date_collected", filter.StartDate, filter.EndDate, false, conditions, args)
	where := whereClause(conditions)
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s, m.name AS medication_name, m.dosage AS medication_dosage, pt.name AS patient_name
        %s%s ORDER BY p.date_collected DESC, p.created_at DESC, p.id DESC LIMIT %d OFFSET %d`, prescriptionColumns, prescriptionDetailFrom, where, limit, offset)
	var items []models.PrescriptionDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM prescriptions p"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}
	return items, total, nil
}

// prescriptionStatusCondition matches the status a prescription shows on asOf:
// a pending row already past its due date reads as overdue before the sweep stores it.
func prescriptionStatusCondition(status models.PrescriptionStatus, asOf time.Time, args []interface{}) (string, []interface{}) {
	n := len(args) + 1
	switch status {
	case models.PrescriptionOverdue:
		return fmt.Sprintf("(p.status = 'overdue' OR (p.status = 'pending' AND p.next_due_date < $%d))", n), append(args, asOf)
	case models.PrescriptionPending:
		return fmt.Sprintf("p.status = 'pending' AND p.next_due_date >= $%d", n), append(args, asOf)
	default:
		return fmt.Sprintf("p.status = $%d", n), append(args, status)
	}
}

// ListForExport returns every prescription created inside the range.
func (r *PrescriptionRepository) ListForExport(ctx context.Context, rng models.DateRange) ([]models.PrescriptionDetail, error) {
	conditions, args := dateRangeConditions("p.created_at", rng.Start, rng.End, true, nil, nil)
	query := fmt.Sprintf(`SELECT %s, m.name AS medication_name, m.dosage AS medication_dosage, pt.name AS patient_name
        %s%s ORDER BY p.date_collected DESC, p.created_at DESC, p.id DESC`, prescriptionColumns, prescriptionDetailFrom, whereClause(conditions))
	var items []models.PrescriptionDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("export prescriptions: %w", err)
	}
	return items, nil
}

func (r *PrescriptionRepository) ListByMedication(ctx context.Context, medicationID string) ([]models.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions p WHERE p.medication_id = $1 ORDER BY p.date_collected DESC, p.created_at DESC, p.id DESC`
	var items []models.Prescription
	if err := r.db.SelectContext(ctx, &items, query, medicationID); err != nil {
		return nil, fmt.Errorf("list prescriptions by medication: %w", err)
	}
	return items, nil
}

func (r *PrescriptionRepository) FindByID(ctx context.Context, id string) (*models.Prescription, error) {
	var item models.Prescription
	if err := r.db.GetContext(ctx, &item, `SELECT `+prescriptionColumns+` FROM prescriptions p WHERE p.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find prescription: %w", err)
	}
	return &item, nil
}

// CreateIfEligible inserts p after check accepts the patient's latest collected
// prescription for the same medication (nil when there is none). The lookup and
// insert share a transaction holding an advisory lock on the patient and
// medication pair, so concurrent collections for the same pair run one at a time.
func (r *PrescriptionRepository) CreateIfEligible(ctx context.Context, p *models.Prescription, check func(last *models.Prescription) error) error {
	return withTx(ctx, r.db, "create prescription", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.PatientID+":"+p.MedicationID); err != nil {
			return fmt.Errorf("lock collection: %w", err)
		}

		var last *models.Prescription
		var found models.Prescription
		err := tx.GetContext(ctx, &found, latestCollectedQuery, p.PatientID, p.MedicationID, models.PrescriptionCollected)
		switch {
		case err == nil:
			last = &found
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("find latest collection: %w", err)
		}
		if err := check(last); err != nil {
			return err
		}

		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		const query = `INSERT INTO prescriptions (id, medication_id, patient_id, date_collected, next_due_date, status, created_at, updated_at)
        VALUES (:id, :medication_id, :patient_id, :date_collected, :next_due_date, :status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("create prescription: %w", err)
		}
		return nil
	})
}

func (r *PrescriptionRepository) UpdateStatus(ctx context.Context, id string, status models.PrescriptionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE prescriptions SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update prescription status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PrescriptionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkOverdue flips every uncollected prescription due before today to overdue in
// one statement and returns how many rows changed.
func (r *PrescriptionRepository) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	const query = `UPDATE prescriptions SET status = $1, updated_at = $2
        WHERE next_due_date < $3 AND status NOT IN ($4, $1)`
	res, err := r.db.ExecContext(ctx, query, models.PrescriptionOverdue, time.Now().UTC(), today, models.PrescriptionCollected)
	if err != nil {
		return 0, fmt.Errorf("mark prescriptions overdue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count overdue prescriptions: %w", err)
	}
	return int(n), nil
}
