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

var medicationCols = []string{"id", "name", "dosage", "frequency", "description", "created_at", "updated_at"}

func TestMedicationRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMedicationRepository(db)

	freq := models.FrequencyDaily
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM medications WHERE frequency = $1 AND LOWER(name) LIKE $2 ORDER BY name ASC, id ASC LIMIT 10 OFFSET 10")).
		WithArgs(freq, "%met%").
		WillReturnRows(sqlmock.NewRows(medicationCols).AddRow("m1", "Metformin", "500mg", "daily", "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM medications WHERE frequency = $1 AND LOWER(name) LIKE $2")).
		WithArgs(freq, "%met%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.MedicationFilter{
		Frequency: &freq, Search: "Met", Page: 2, PageSize: 10, SortBy: "name", SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.FrequencyDaily, items[0].Frequency)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepositoryDeleteRemovesDependents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMedicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM prescriptions WHERE medication_id = $1")).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM program_medications WHERE medication_id = $1")).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM medications WHERE id = $1")).WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "m1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepositoryDeleteMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMedicationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM prescriptions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM program_medications").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM medications").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMedicationRepository(db)

	mock.ExpectExec("INSERT INTO medications").
		WithArgs(sqlmock.AnyArg(), "Metformin", "500mg", models.FrequencyDaily, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	med := &models.Medication{Name: "Metformin", Dosage: "500mg", Frequency: models.FrequencyDaily}
	require.NoError(t, repo.Create(context.Background(), med))
	assert.NotEmpty(t, med.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMedicationRepositoryCountExisting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMedicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM medications WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountExisting(context.Background(), []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountExisting(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
