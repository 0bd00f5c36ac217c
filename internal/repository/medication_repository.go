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

const medicationColumns = `id, name, dosage, frequency, description, created_at, updated_at`

// MedicationRepository manages the medication catalogue.
type MedicationRepository struct {
	db *sqlx.DB
}

func NewMedicationRepository(db *sqlx.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

// List returns medications matching filter and the unpaginated total.
func (r *MedicationRepository) List(ctx context.Context, filter models.MedicationFilter) ([]models.Medication, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Frequency != nil {
		conditions = append(conditions, fmt.Sprintf("frequency = $%d", len(args)+1))
		args = append(args, *filter.Frequency)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := whereClause(conditions)

	allowedSorts := map[string]string{
		"name":       "name",
		"frequency":  "frequency",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM medications%s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`, medicationColumns, where, column, order, limit, offset)
	var medications []models.Medication
	if err := r.db.SelectContext(ctx, &medications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list medications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM medications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count medications: %w", err)
	}
	return medications, total, nil
}

// FindByID returns sql.ErrNoRows when the medication does not exist.
func (r *MedicationRepository) FindByID(ctx context.Context, id string) (*models.Medication, error) {
	var medication models.Medication
	if err := r.db.GetContext(ctx, &medication, `SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find medication: %w", err)
	}
	return &medication, nil
}

// CountExisting reports how many of ids name existing medications.
func (r *MedicationRepository) CountExisting(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM medications WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return n, nil
}

func (r *MedicationRepository) Create(ctx context.Context, medication *models.Medication) error {
	if medication.ID == "" {
		medication.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	medication.CreatedAt = now
	medication.UpdatedAt = now
	const query = `INSERT INTO medications (id, name, dosage, frequency, description, created_at, updated_at)
        VALUES (:id, :name, :dosage, :frequency, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, medication); err != nil {
		return fmt.Errorf("create medication: %w", err)
	}
	return nil
}

func (r *MedicationRepository) Update(ctx context.Context, medication *models.Medication) error {
	medication.UpdatedAt = time.Now().UTC()
	const query = `UPDATE medications SET name = :name, dosage = :dosage, frequency = :frequency, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, medication); err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	return nil
}

// Delete removes the medication together with its prescriptions and program links.
// It returns sql.ErrNoRows when the medication did not exist.
func (r *MedicationRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, "delete medication", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM prescriptions WHERE medication_id = $1`, id); err != nil {
			return fmt.Errorf("delete medication prescriptions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM program_medications WHERE medication_id = $1`, id); err != nil {
			return fmt.Errorf("delete medication program links: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM medications WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete medication: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
