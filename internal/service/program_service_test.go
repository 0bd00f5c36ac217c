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

type fakeProgramRepo struct {
	items        map[string]*models.ProgramStats
	links        map[string][]string
	savedLinks   []string
	linksPassed  bool
	deleted      []string
	createdNames []string
}

func newFakeProgramRepo() *fakeProgramRepo {
	return &fakeProgramRepo{items: map[string]*models.ProgramStats{}, links: map[string][]string{}}
}

func (f *fakeProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramStats, int, error) {
	var out []models.ProgramStats
	for _, p := range f.items {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (f *fakeProgramRepo) FindByID(ctx context.Context, id string) (*models.ProgramStats, error) {
	if p, ok := f.items[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProgramRepo) CountExisting(ctx context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			n++
		}
	}
	return n, nil
}

func (f *fakeProgramRepo) MedicationIDs(ctx context.Context, programIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, id := range programIDs {
		if l, ok := f.links[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (f *fakeProgramRepo) Create(ctx context.Context, program *models.Program, medicationIDs []string) error {
	program.ID = "generated"
	f.createdNames = append(f.createdNames, program.Name)
	f.savedLinks = medicationIDs
	return nil
}

func (f *fakeProgramRepo) Update(ctx context.Context, program *models.Program, medicationIDs []string) error {
	f.items[program.ID].Program = *program
	f.savedLinks = medicationIDs
	f.linksPassed = medicationIDs != nil
	return nil
}

func (f *fakeProgramRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMedicationRepo) CountExisting(ctx context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			n++
		}
	}
	return n, nil
}

func newProgramFixture() (*ProgramService, *fakeProgramRepo) {
	repo := newFakeProgramRepo()
	repo.items[idPR1] = &models.ProgramStats{
		Program:          models.Program{ID: idPR1, Name: "Diabetes Care", Description: "d", Frequency: models.FrequencyWeekly, SessionsCount: 4},
		EnrolledPatients: 3,
	}
	repo.links[idPR1] = []string{idM1}
	meds := &fakeMedicationRepo{items: map[string]*models.Medication{idM1: {ID: idM1}, idM2: {ID: idM2}}}
	return NewProgramService(repo, meds, nil, nil, nil), repo
}

func TestProgramCreateDefaultsFrequencyAndDedupesLinks(t *testing.T) {
	svc, repo := newProgramFixture()

	view, err := svc.Create(context.Background(), CreateProgramRequest{
		Name: "Heart Health", Description: "cardio", SessionsCount: 6, MedicationIDs: []string{idM1, idM2, idM1},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyWeekly, view.Frequency)
	assert.Equal(t, []string{idM1, idM2}, view.Medications)
	assert.Equal(t, []string{idM1, idM2}, repo.savedLinks)
}

func TestProgramCreateRejectsUnknownMedication(t *testing.T) {
	svc, repo := newProgramFixture()

	_, err := svc.Create(context.Background(), CreateProgramRequest{
		Name: "Heart Health", Description: "cardio", SessionsCount: 6, MedicationIDs: []string{idM9},
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, repo.createdNames)
}

func TestProgramCreateRejectsMalformedMedicationIDs(t *testing.T) {
	svc, repo := newProgramFixture()
	_, err := svc.Create(context.Background(), CreateProgramRequest{
		Name: "Heart Health", Description: "cardio", SessionsCount: 6, MedicationIDs: []string{idM1, "m2"},
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Len(t, repo.items, 1)
}

func TestProgramCreateRequiresSessions(t *testing.T) {
	svc, _ := newProgramFixture()

	_, err := svc.Create(context.Background(), CreateProgramRequest{Name: "X", Description: "d", SessionsCount: 0})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestProgramGetIncludesMedications(t *testing.T) {
	svc, _ := newProgramFixture()

	view, err := svc.Get(context.Background(), idPR1)
	require.NoError(t, err)
	assert.Equal(t, 3, view.EnrolledPatients)
	assert.Equal(t, []string{idM1}, view.Medications)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestProgramUpdateKeepsLinksWhenOmitted(t *testing.T) {
	svc, repo := newProgramFixture()
	name := "Diabetes Plus"

	view, err := svc.Update(context.Background(), idPR1, UpdateProgramRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Diabetes Plus", view.Name)
	assert.Equal(t, []string{idM1}, view.Medications)
	assert.False(t, repo.linksPassed)
}

func TestProgramUpdateReplacesLinks(t *testing.T) {
	svc, repo := newProgramFixture()

	view, err := svc.Update(context.Background(), idPR1, UpdateProgramRequest{MedicationIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, view.Medications)
	assert.True(t, repo.linksPassed)
}

func TestProgramDelete(t *testing.T) {
	svc, repo := newProgramFixture()

	require.NoError(t, svc.Delete(context.Background(), idPR1))
	assert.Equal(t, []string{idPR1}, repo.deleted)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), appErrors.ErrNotFound)
}
