package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type fakeMedicationRepo struct {
	items   map[string]*models.Medication
	deleted []string
	updated *models.Medication
}

func (f *fakeMedicationRepo) List(ctx context.Context, filter models.MedicationFilter) ([]models.Medication, int, error) {
	var out []models.Medication
	for _, m := range f.items {
		out = append(out, *m)
	}
	return out, len(out), nil
}

func (f *fakeMedicationRepo) FindByID(ctx context.Context, id string) (*models.Medication, error) {
	if m, ok := f.items[id]; ok {
		clone := *m
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeMedicationRepo) Create(ctx context.Context, m *models.Medication) error {
	m.ID = "generated"
	return nil
}

func (f *fakeMedicationRepo) Update(ctx context.Context, m *models.Medication) error {
	f.updated = m
	return nil
}

func (f *fakeMedicationRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePrescriptionRepo struct {
	items       map[string]*models.Prescription
	lastFilter  models.PrescriptionFilter
	last        *models.Prescription
	created     []*models.Prescription
	statusSaved models.PrescriptionStatus
	overdue     int
	sweepErr    error
	byMed       []models.Prescription
}

// List filters on the status as of filter.AsOf, the way the SQL does.
func (f *fakePrescriptionRepo) List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, int, error) {
	f.lastFilter = filter
	var out []models.PrescriptionDetail
	for _, p := range f.items {
		if filter.Status != nil {
			pastDue := p.NextDueDate.Before(filter.AsOf)
			switch *filter.Status {
			case models.PrescriptionOverdue:
				if !(p.Status == models.PrescriptionOverdue || (p.Status == models.PrescriptionPending && pastDue)) {
					continue
				}
			case models.PrescriptionPending:
				if p.Status != models.PrescriptionPending || pastDue {
					continue
				}
			default:
				if p.Status != *filter.Status {
					continue
				}
			}
		}
		out = append(out, models.PrescriptionDetail{Prescription: *p})
	}
	return out, len(out), nil
}

func (f *fakePrescriptionRepo) FindByID(ctx context.Context, id string) (*models.Prescription, error) {
	if p, ok := f.items[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakePrescriptionRepo) CreateIfEligible(ctx context.Context, p *models.Prescription, check func(last *models.Prescription) error) error {
	if err := check(f.last); err != nil {
		return err
	}
	p.ID = "new"
	f.created = append(f.created, p)
	return nil
}

func (f *fakePrescriptionRepo) UpdateStatus(ctx context.Context, id string, status models.PrescriptionStatus) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	f.statusSaved = status
	return nil
}

func (f *fakePrescriptionRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func (f *fakePrescriptionRepo) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	return f.overdue, f.sweepErr
}

func (f *fakePrescriptionRepo) ListByMedication(ctx context.Context, medicationID string) ([]models.Prescription, error) {
	return f.byMed, nil
}

func newPrescriptionFixture(freq models.Frequency) (*PrescriptionService, *fakePrescriptionRepo, *MetricsService) {
	meds := &fakeMedicationRepo{items: map[string]*models.Medication{idM1: {ID: idM1, Name: "Metformin", Frequency: freq}}}
	patients := &fakePatientRepo{rows: []models.PatientStats{patientRow(idPT1, "Jane", 0, 0)}}
	repo := &fakePrescriptionRepo{items: map[string]*models.Prescription{}}
	metrics := NewMetricsService()
	svc := NewPrescriptionService(repo, meds, patients, nil, metrics, nil, nil)
	svc.now = func() time.Time { return date("2024-10-20") }
	return svc, repo, metrics
}

func collectedOn(day string) *models.Prescription {
	return &models.Prescription{ID: "old", DateCollected: date(day), Status: models.PrescriptionCollected}
}

func TestCreatePrescriptionFirstCollection(t *testing.T) {
	svc, repo, metrics := newPrescriptionFixture(models.FrequencyWeekly)

	p, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionPending, p.Status)
	require.Len(t, repo.created, 1)
	assert.Equal(t, date("2024-10-20"), repo.created[0].DateCollected)
	assert.Equal(t, uint64(0), metrics.Snapshot().CollectionsRejected)
}

func TestCreatePrescriptionWithinWindowIsRejected(t *testing.T) {
	svc, repo, metrics := newPrescriptionFixture(models.FrequencyWeekly)
	repo.last = collectedOn("2024-10-15")

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateCollection.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, "Medication already collected. Frequency: weekly. Please wait until next collection date.", appErr.Message)
	assert.Empty(t, repo.created)
	assert.Equal(t, uint64(1), metrics.Snapshot().CollectionsRejected)
}

func TestCreatePrescriptionAtWindowBoundary(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyWeekly)
	repo.last = collectedOn("2024-10-13")

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"})
	require.NoError(t, err)
	assert.Len(t, repo.created, 1)
}

func TestCreatePrescriptionDailySameDayRejected(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyDaily)
	repo.last = collectedOn("2024-10-20")

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20T18:00:00Z", NextDueDate: "2024-10-21"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateCollection)
}

func TestCreatePrescriptionUnknownMedication(t *testing.T) {
	svc, _, _ := newPrescriptionFixture(models.FrequencyDaily)
	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM9, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-21"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCreatePrescriptionRejectsBadDates(t *testing.T) {
	svc, _, _ := newPrescriptionFixture(models.FrequencyDaily)

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "20/10/2024", NextDueDate: "2024-10-21"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-19"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreatePrescriptionUnknownFrequencyIsValidationError(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.Frequency("hourly"))
	repo.last = collectedOn("2024-10-01")

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-21"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, repo.created)
}

func TestGetPrescriptionAppliesOverdueView(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyDaily)
	repo.items[idP1] = &models.Prescription{ID: idP1, NextDueDate: date("2024-10-19"), Status: models.PrescriptionPending}
	repo.items[idP2] = &models.Prescription{ID: idP2, NextDueDate: date("2024-10-01"), Status: models.PrescriptionCollected}

	p, err := svc.Get(context.Background(), idP1)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionOverdue, p.Status)

	p, err = svc.Get(context.Background(), idP2)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionCollected, p.Status)
}

func TestUpdateStatusReevaluatesOverdue(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyDaily)
	repo.items[idP1] = &models.Prescription{ID: idP1, NextDueDate: date("2024-10-10"), Status: models.PrescriptionOverdue}

	p, err := svc.UpdateStatus(context.Background(), idP1, UpdatePrescriptionStatusRequest{Status: models.PrescriptionPending})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionOverdue, p.Status)
	assert.Equal(t, models.PrescriptionOverdue, repo.statusSaved)

	p, err = svc.UpdateStatus(context.Background(), idP1, UpdatePrescriptionStatusRequest{Status: models.PrescriptionCollected})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionCollected, p.Status)
	assert.Equal(t, models.PrescriptionCollected, repo.statusSaved)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyDaily)
	repo.items[idP1] = &models.Prescription{ID: idP1}
	_, err := svc.UpdateStatus(context.Background(), idP1, UpdatePrescriptionStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSweepOverdueCounts(t *testing.T) {
	svc, repo, metrics := newPrescriptionFixture(models.FrequencyDaily)
	repo.overdue = 4

	n, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(4), metrics.Snapshot().SweptPrescriptions)

	repo.sweepErr = errors.New("db down")
	_, err = svc.SweepOverdue(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestDeletePrescriptionNotFound(t *testing.T) {
	svc, _, _ := newPrescriptionFixture(models.FrequencyDaily)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), appErrors.ErrNotFound)
}

func TestCreatePrescriptionUnknownPatient(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyWeekly)

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idP9, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "patient not found", appErrors.FromError(err).Message)
	assert.Empty(t, repo.created)
}

func TestCreatePrescriptionRejectsMalformedIDs(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyWeekly)

	cases := []CreatePrescriptionRequest{
		{MedicationID: "not-a-uuid", PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"},
		{MedicationID: idM1, PatientID: "pt1", DateCollected: "2024-10-20", NextDueDate: "2024-10-27"},
	}
	for _, req := range cases {
		_, err := svc.Create(context.Background(), req)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		assert.Equal(t, 400, appErr.Status)
	}
	assert.Empty(t, repo.created)
}

func TestCreatePrescriptionTimesRepositoryCall(t *testing.T) {
	svc, _, metrics := newPrescriptionFixture(models.FrequencyWeekly)

	_, err := svc.Create(context.Background(), CreatePrescriptionRequest{MedicationID: idM1, PatientID: idPT1, DateCollected: "2024-10-20", NextDueDate: "2024-10-27"})
	require.NoError(t, err)
	assert.Contains(t, scrapeMetrics(t, metrics), `db_query_duration_seconds_count{query="prescription.create_if_eligible"} 1`)
}

func TestListPrescriptionsFiltersOnEvaluatedStatus(t *testing.T) {
	svc, repo, _ := newPrescriptionFixture(models.FrequencyWeekly)
	repo.items[idP1] = &models.Prescription{ID: idP1, NextDueDate: date("2024-10-01"), Status: models.PrescriptionPending}
	repo.items[idP2] = &models.Prescription{ID: idP2, NextDueDate: date("2024-10-27"), Status: models.PrescriptionPending}
	repo.items[idP3] = &models.Prescription{ID: idP3, NextDueDate: date("2024-10-01"), Status: models.PrescriptionCollected}

	overdue := models.PrescriptionOverdue
	items, page, err := svc.List(context.Background(), models.PrescriptionFilter{Status: &overdue})
	require.NoError(t, err)
	assert.Equal(t, date("2024-10-20"), repo.lastFilter.AsOf)
	require.Len(t, items, 1)
	assert.Equal(t, idP1, items[0].ID)
	assert.Equal(t, models.PrescriptionOverdue, items[0].Status)
	assert.Equal(t, 1, page.TotalCount)

	pending := models.PrescriptionPending
	items, _, err = svc.List(context.Background(), models.PrescriptionFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, idP2, items[0].ID)
	assert.Equal(t, models.PrescriptionPending, items[0].Status)
}
