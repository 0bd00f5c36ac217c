package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carepath-api/internal/models"
)

func TestPatientCreateEnrollsInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO patient_programs").WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "pr1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO patient_programs").WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "pr2", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	p := &models.Patient{Name: "Jane", Email: "jane@example.com", Status: models.PatientActive}
	require.NoError(t, repo.Create(context.Background(), p, []string{"pr1", "pr2"}))
	assert.NotEmpty(t, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientUpdateWithoutProgramsKeepsEnrollments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE patients SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), &models.Patient{ID: "pt1"}, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientUpdateReplacesEnrollments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE patients SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM patient_programs WHERE patient_id = $1")).WithArgs("pt1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), &models.Patient{ID: "pt1"}, []string{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientListWithStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	status := models.PatientActive
	cols := []string{"id", "name", "email", "phone", "assigned_staff_id", "status", "created_at", "updated_at", "assigned_staff_name", "attended_sessions", "total_sessions"}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.status = $1 AND EXISTS (SELECT 1 FROM patient_programs pp WHERE pp.patient_id = p.id AND pp.program_id = $2)")).
		WithArgs(status, "pr1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("pt1", "Jane", "jane@example.com", "555", "u1", "active", time.Now(), time.Now(), "Sarah", 2, 3))

	items, err := repo.ListWithStats(context.Background(), models.PatientFilter{Status: &status, ProgramID: "pr1"}, models.DateRange{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].AttendedSessions)
	assert.Equal(t, 3, items[0].TotalSessions)
	require.NotNil(t, items[0].AssignedStaffName)
	assert.Equal(t, "Sarah", *items[0].AssignedStaffName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientProgramIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM patient_programs WHERE patient_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "program_id", "enrolled_at"}).
			AddRow("e1", "pt1", "pr1", time.Now()).
			AddRow("e2", "pt1", "pr2", time.Now()).
			AddRow("e3", "pt2", "pr1", time.Now()))

	got, err := repo.ProgramIDs(context.Background(), []string{"pt1", "pt2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pr1", "pr2"}, got["pt1"])
	assert.Equal(t, []string{"pr1"}, got["pt2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientUnenrollMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectExec("DELETE FROM patient_programs").WithArgs("pt1", "pr9").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Unenroll(context.Background(), "pt1", "pr9")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestPatientExistsByEmailExcludesSelf(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPatientRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM patients WHERE LOWER(email) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("jane@example.com", "pt1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByEmail(context.Background(), "jane@example.com", "pt1")
	require.NoError(t, err)
	assert.False(t, exists)
}
