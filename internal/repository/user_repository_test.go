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

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("admin@healthcare.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "created_at", "updated_at"}).
			AddRow("u1", "admin@healthcare.com", "Admin", "hash", "admin", time.Now(), time.Now()))

	user, err := repo.FindByEmail(context.Background(), "admin@healthcare.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users WHERE id").WillReturnError(sql.ErrNoRows)
	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestUserRepositoryListByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	role := models.RoleStaff
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE role = $1 ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "role", "created_at", "updated_at"}).
			AddRow("u2", "sarah@healthcare.com", "Sarah", "hash", "staff", time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1")).
		WithArgs(role).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
