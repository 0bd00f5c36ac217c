package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type fakePatientRepo struct {
	rows        []models.PatientStats
	programs    map[string][]string
	emails      map[string]string
	programIDsQ [][]string
	saved       *models.Patient
	savedLinks  []string
	enrolled    []string
	unenrolled  []string
	deleted     []string
}

func (f *fakePatientRepo) ListWithStats(ctx context.Context, filter models.PatientFilter, rng models.DateRange) ([]models.PatientStats, error) {
	var out []models.PatientStats
	for _, r := range f.rows {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakePatientRepo) FindByID(ctx context.Context, id string) (*models.PatientStats, error) {
	for _, r := range f.rows {
		if r.ID == id {
			clone := r
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePatientRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	owner, ok := f.emails[email]
	return ok && owner != excludeID, nil
}

func (f *fakePatientRepo) ProgramIDs(ctx context.Context, patientIDs []string) (map[string][]string, error) {
	f.programIDsQ = append(f.programIDsQ, patientIDs)
	out := map[string][]string{}
	for _, id := range patientIDs {
		if p, ok := f.programs[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakePatientRepo) Create(ctx context.Context, patient *models.Patient, programIDs []string) error {
	patient.ID = "new"
	f.saved = patient
	f.savedLinks = programIDs
	f.rows = append(f.rows, models.PatientStats{Patient: *patient})
	f.programs["new"] = programIDs
	return nil
}

func (f *fakePatientRepo) Update(ctx context.Context, patient *models.Patient, programIDs []string) error {
	f.saved = patient
	f.savedLinks = programIDs
	for i := range f.rows {
		if f.rows[i].ID == patient.ID {
			f.rows[i].Patient = *patient
		}
	}
	if programIDs != nil {
		f.programs[patient.ID] = programIDs
	}
	return nil
}

func (f *fakePatientRepo) Delete(ctx context.Context, id string) error {
	if _, err := f.FindByID(ctx, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePatientRepo) Enroll(ctx context.Context, patientID, programID string) error {
	f.enrolled = append(f.enrolled, patientID+":"+programID)
	return nil
}

func (f *fakePatientRepo) Unenroll(ctx context.Context, patientID, programID string) error {
	if programID != idPR1 {
		return sql.ErrNoRows
	}
	f.unenrolled = append(f.unenrolled, patientID+":"+programID)
	return nil
}

type fakeStaffRepo struct {
	users map[string]*models.User
}

func (f *fakeStaffRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func patientRow(id, name string, attended, total int) models.PatientStats {
	return models.PatientStats{
		Patient:          models.Patient{ID: id, Name: name, Email: id + "@example.com", Status: models.PatientActive},
		AttendedSessions: attended,
		TotalSessions:    total,
	}
}

func newPatientFixture() (*PatientService, *fakePatientRepo, *fakeProgramRepo) {
	staffName := "Nurse Joy"
	alice := patientRow(idP1, "Alice Smith", 9, 10)
	alice.AssignedStaffName = &staffName
	repo := &fakePatientRepo{
		rows: []models.PatientStats{
			alice,
			patientRow(idP2, "Bob Jones", 2, 3),
			patientRow(idP3, "Cara Diaz", 1, 4),
			patientRow(idP4, "Dan Wu", 0, 0),
		},
		programs: map[string][]string{idP1: {idPR1}},
		emails:   map[string]string{"p1@example.com": idP1},
	}
	programs := newFakeProgramRepo()
	programs.items[idPR1] = &models.ProgramStats{Program: models.Program{ID: idPR1, Name: "Diabetes Care"}}
	staff := &fakeStaffRepo{users: map[string]*models.User{idU1: {ID: idU1, Role: models.RoleStaff}}}
	return NewPatientService(repo, programs, staff, nil, nil, nil), repo, programs
}

func TestPatientListFiltersOnAdherence(t *testing.T) {
	svc, _, _ := newPatientFixture()

	high, _, err := svc.List(context.Background(), models.PatientFilter{Adherence: "high"})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, idP1, high[0].ID)
	assert.Equal(t, 90, high[0].AdherenceRate)
	assert.Equal(t, "Nurse Joy", high[0].AssignedStaffName)
	assert.Equal(t, []string{idPR1}, high[0].Programs)

	medium, _, err := svc.List(context.Background(), models.PatientFilter{Adherence: "medium"})
	require.NoError(t, err)
	require.Len(t, medium, 1)
	assert.Equal(t, 67, medium[0].AdherenceRate)

	low, pagination, err := svc.List(context.Background(), models.PatientFilter{Adherence: "low"})
	require.NoError(t, err)
	assert.Len(t, low, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, []string{}, low[1].Programs)

	numeric, _, err := svc.List(context.Background(), models.PatientFilter{Adherence: "60"})
	require.NoError(t, err)
	assert.Len(t, numeric, 2)

	_, _, err = svc.List(context.Background(), models.PatientFilter{Adherence: "great"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPatientListPaginatesAfterFiltering(t *testing.T) {
	svc, repo, _ := newPatientFixture()

	page, pagination, err := svc.List(context.Background(), models.PatientFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, idP4, page[0].ID)
	assert.Equal(t, 4, pagination.TotalCount)
	assert.Equal(t, []string{idP4}, repo.programIDsQ[len(repo.programIDsQ)-1])

	empty, _, err := svc.List(context.Background(), models.PatientFilter{Page: 5, PageSize: 3})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPatientCreate(t *testing.T) {
	svc, repo, _ := newPatientFixture()

	view, err := svc.Create(context.Background(), CreatePatientRequest{
		Name: "Eve Park", Email: "Eve@Example.com", Phone: "555", AssignedStaffID: idU1, ProgramIDs: []string{idPR1, idPR1},
	})
	require.NoError(t, err)
	assert.Equal(t, "new", view.ID)
	assert.Equal(t, "eve@example.com", repo.saved.Email)
	assert.Equal(t, models.PatientActive, repo.saved.Status)
	assert.Equal(t, []string{idPR1}, repo.savedLinks)
	assert.Equal(t, []string{idPR1}, view.Programs)
}

func TestPatientCreateRejections(t *testing.T) {
	svc, _, _ := newPatientFixture()
	base := CreatePatientRequest{Name: "Eve", Email: "eve@example.com", Phone: "555", AssignedStaffID: idU1}

	dup := base
	dup.Email = "P1@example.com"
	_, err := svc.Create(context.Background(), dup)
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	noStaff := base
	noStaff.AssignedStaffID = idU2
	_, err = svc.Create(context.Background(), noStaff)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	badProgram := base
	badProgram.ProgramIDs = []string{idPR9}
	_, err = svc.Create(context.Background(), badProgram)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	missing := base
	missing.AssignedStaffID = ""
	_, err = svc.Create(context.Background(), missing)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPatientRejectsMalformedIDs(t *testing.T) {
	svc, repo, _ := newPatientFixture()

	_, err := svc.Create(context.Background(), CreatePatientRequest{Name: "Eve", Email: "eve@example.com", Phone: "555", AssignedStaffID: "u1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), CreatePatientRequest{Name: "Eve", Email: "eve@example.com", Phone: "555", AssignedStaffID: idU1, ProgramIDs: []string{"pr1"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	staff := "nobody"
	_, err = svc.Update(context.Background(), idP1, UpdatePatientRequest{AssignedStaffID: &staff})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Nil(t, repo.saved)
}

func TestPatientUpdateProgramReplacement(t *testing.T) {
	svc, repo, _ := newPatientFixture()
	phone := "999"

	_, err := svc.Update(context.Background(), idP1, UpdatePatientRequest{Phone: &phone})
	require.NoError(t, err)
	assert.Nil(t, repo.savedLinks)
	assert.Equal(t, "999", repo.saved.Phone)

	view, err := svc.Update(context.Background(), idP1, UpdatePatientRequest{ProgramIDs: []string{}})
	require.NoError(t, err)
	assert.NotNil(t, repo.savedLinks)
	assert.Empty(t, view.Programs)
}

func TestPatientUpdateEmailConflictExcludesSelf(t *testing.T) {
	svc, repo, _ := newPatientFixture()
	own := "p1@example.com"
	_, err := svc.Update(context.Background(), idP1, UpdatePatientRequest{Email: &own})
	require.NoError(t, err)

	repo.emails["taken@example.com"] = idP2
	taken := "taken@example.com"
	_, err = svc.Update(context.Background(), idP1, UpdatePatientRequest{Email: &taken})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Update(context.Background(), "missing", UpdatePatientRequest{Email: &taken})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPatientEnrollment(t *testing.T) {
	svc, repo, _ := newPatientFixture()

	require.NoError(t, svc.Enroll(context.Background(), idP2, idPR1))
	assert.Equal(t, []string{"p2:pr1"}, repo.enrolled)
	assert.ErrorIs(t, svc.Enroll(context.Background(), idP2, idPR9), appErrors.ErrNotFound)
	assert.ErrorIs(t, svc.Enroll(context.Background(), "ghost", idPR1), appErrors.ErrNotFound)

	require.NoError(t, svc.Unenroll(context.Background(), idP1, idPR1))
	assert.ErrorIs(t, svc.Unenroll(context.Background(), idP1, idPR9), appErrors.ErrNotFound)
}

func TestPatientDelete(t *testing.T) {
	svc, repo, _ := newPatientFixture()

	require.NoError(t, svc.Delete(context.Background(), idP3))
	assert.Equal(t, []string{idP3}, repo.deleted)
	assert.ErrorIs(t, svc.Delete(context.Background(), "ghost"), appErrors.ErrNotFound)
}
