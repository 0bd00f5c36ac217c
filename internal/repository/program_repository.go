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

const programStatsSelect = `SELECT pr.id, pr.name, pr.description, pr.frequency, pr.sessions_count, pr.created_at, pr.updated_at,
        (SELECT COUNT(*) FROM patient_programs pp WHERE pp.program_id = pr.id) AS enrolled_patients
        FROM programs pr`

type programMedicationRow struct {
	ProgramID    string `db:"program_id"`
	MedicationID string `db:"medication_id"`
}

// ProgramRepository persists care programs and their medication links.
type ProgramRepository struct {
	db *sqlx.DB
}

func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramStats, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(pr.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	where := whereClause(conditions)
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`%s%s ORDER BY pr.created_at DESC, pr.id ASC LIMIT %d OFFSET %d`, programStatsSelect, where, limit, offset)
	var items []models.ProgramStats
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM programs pr"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return items, total, nil
}

// ListForExport returns programs created inside the range.
func (r *ProgramRepository) ListForExport(ctx context.Context, rng models.DateRange) ([]models.ProgramStats, error) {
	conditions, args := dateRangeConditions("pr.created_at", rng.Start, rng.End, true, nil, nil)
	var items []models.ProgramStats
	if err := r.db.SelectContext(ctx, &items, programStatsSelect+whereClause(conditions)+" ORDER BY pr.created_at DESC, pr.id ASC", args...); err != nil {
		return nil, fmt.Errorf("export programs: %w", err)
	}
	return items, nil
}

func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.ProgramStats, error) {
	var item models.ProgramStats
	if err := r.db.GetContext(ctx, &item, programStatsSelect+" WHERE pr.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return &item, nil
}

// CountExisting reports how many of ids name existing programs.
func (r *ProgramRepository) CountExisting(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM programs WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("count programs: %w", err)
	}
	return n, nil
}

// MedicationIDs maps each program id to its linked medications.
func (r *ProgramRepository) MedicationIDs(ctx context.Context, programIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(programIDs))
	if len(programIDs) == 0 {
		return result, nil
	}
	var rows []programMedicationRow
	const query = `SELECT program_id, medication_id FROM program_medications WHERE program_id = ANY($1) ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(programIDs)); err != nil {
		return nil, fmt.Errorf("list program medications: %w", err)
	}
	for _, row := range rows {
		result[row.ProgramID] = append(result[row.ProgramID], row.MedicationID)
	}
	return result, nil
}

func (r *ProgramRepository) Create(ctx context.Context, program *models.Program, medicationIDs []string) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	program.CreatedAt = now
	program.UpdatedAt = now
	return withTx(ctx, r.db, "create program", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO programs (id, name, description, frequency, sessions_count, created_at, updated_at)
        VALUES (:id, :name, :description, :frequency, :sessions_count, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, program); err != nil {
			return fmt.Errorf("create program: %w", err)
		}
		return linkMedications(ctx, tx, program.ID, medicationIDs)
	})
}

// Update saves program fields. A non-nil medicationIDs replaces the medication links.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program, medicationIDs []string) error {
	program.UpdatedAt = time.Now().UTC()
	return withTx(ctx, r.db, "update program", func(tx *sqlx.Tx) error {
		const query = `UPDATE programs SET name = :name, description = :description, frequency = :frequency,
        sessions_count = :sessions_count, updated_at = :updated_at WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, program); err != nil {
			return fmt.Errorf("update program: %w", err)
		}
		if medicationIDs == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM program_medications WHERE program_id = $1`, program.ID); err != nil {
			return fmt.Errorf("clear program medications: %w", err)
		}
		return linkMedications(ctx, tx, program.ID, medicationIDs)
	})
}

// Delete removes the program with its sessions, enrollments and medication links.
func (r *ProgramRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, "delete program", func(tx *sqlx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM sessions WHERE program_id = $1`,
			`DELETE FROM patient_programs WHERE program_id = $1`,
			`DELETE FROM program_medications WHERE program_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete program dependents: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete program: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func linkMedications(ctx context.Context, tx *sqlx.Tx, programID string, medicationIDs []string) error {
	now := time.Now().UTC()
	for _, medicationID := range medicationIDs {
		const query = `INSERT INTO program_medications (id, program_id, medication_id, created_at) VALUES ($1, $2, $3, $4)
        ON CONFLICT (program_id, medication_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), programID, medicationID, now); err != nil {
			return fmt.Errorf("link medication %s: %w", medicationID, err)
		}
	}
	return nil
}
