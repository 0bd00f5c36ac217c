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

const sessionColumns = `s.id, s.program_id, s.patient_id, s.date, s.status, s.cancel_reason, s.notes, s.finalized_at, s.created_at, s.updated_at`

// SessionRepository persists program sessions.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func sessionConditions(filter models.SessionFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("s.program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("s.patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	return dateRangeConditions("s.date", filter.StartDate, filter.EndDate, false, conditions, args)
}

// List returns sessions matching filter, most recent date first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	conditions, args := sessionConditions(filter)
	where := whereClause(conditions)
	limit, offset := pageBounds(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM sessions s%s ORDER BY s.date DESC, s.created_at DESC LIMIT %d OFFSET %d`, sessionColumns, where, limit, offset)
	var items []models.Session
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sessions s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return items, total, nil
}

// ListForExport returns sessions dated inside the range with program and patient names.
func (r *SessionRepository) ListForExport(ctx context.Context, rng models.DateRange) ([]models.SessionDetail, error) {
	conditions, args := dateRangeConditions("s.date", rng.Start, rng.End, false, nil, nil)
	query := fmt.Sprintf(`SELECT %s, pr.name AS program_name, pt.name AS patient_name
        FROM sessions s
        JOIN programs pr ON pr.id = s.program_id
        JOIN patients pt ON pt.id = s.patient_id%s
        ORDER BY s.date DESC, s.created_at DESC`, sessionColumns, whereClause(conditions))
	var items []models.SessionDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	return items, nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var item models.Session
	if err := r.db.GetContext(ctx, &item, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &item, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO sessions (id, program_id, patient_id, date, status, cancel_reason, notes, finalized_at, created_at, updated_at)
        VALUES (:id, :program_id, :patient_id, :date, :status, :cancel_reason, :notes, :finalized_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET program_id = :program_id, patient_id = :patient_id, date = :date, status = :status,
        cancel_reason = :cancel_reason, notes = :notes, finalized_at = :finalized_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkMissed finalizes every past session nobody decided on as missed, in one statement.
func (r *SessionRepository) MarkMissed(ctx context.Context, today time.Time) (int, error) {
	const query = `UPDATE sessions SET status = $1, finalized_at = $2, updated_at = $2
        WHERE date < $3 AND finalized_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, models.SessionMissed, time.Now().UTC(), today)
	if err != nil {
		return 0, fmt.Errorf("mark sessions missed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count missed sessions: %w", err)
	}
	return int(n), nil
}
