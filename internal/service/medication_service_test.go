package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

func newMedicationFixture() (*MedicationService, *fakeMedicationRepo, *fakePrescriptionRepo) {
	meds := &fakeMedicationRepo{items: map[string]*models.Medication{idM1: {ID: idM1, Name: "Metformin", Dosage: "500mg", Frequency: models.FrequencyDaily}}}
	prescriptions := &fakePrescriptionRepo{}
	svc := NewMedicationService(meds, prescriptions, nil, nil, nil)
	svc.now = func() time.Time { return date("2024-10-20") }
	return svc, meds, prescriptions
}

func TestMedicationCreateValidatesFrequency(t *testing.T) {
	svc, _, _ := newMedicationFixture()
	_, err := svc.Create(context.Background(), CreateMedicationRequest{Name: "X", Dosage: "1mg", Frequency: "hourly", Description: "d"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	med, err := svc.Create(context.Background(), CreateMedicationRequest{Name: "X", Dosage: "1mg", Frequency: models.FrequencyMonthly, Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, "generated", med.ID)
}

func TestMedicationGetIncludesPrescriptions(t *testing.T) {
	svc, _, prescriptions := newMedicationFixture()
	prescriptions.byMed = []models.Prescription{
		{ID: idP1, NextDueDate: date("2024-10-01"), Status: models.PrescriptionPending},
		{ID: idP2, NextDueDate: date("2024-10-25"), Status: models.PrescriptionPending},
	}

	detail, err := svc.Get(context.Background(), idM1)
	require.NoError(t, err)
	require.Len(t, detail.Prescriptions, 2)
	assert.Equal(t, models.PrescriptionOverdue, detail.Prescriptions[0].Status)
	assert.Equal(t, models.PrescriptionPending, detail.Prescriptions[1].Status)
}

func TestMedicationPartialUpdate(t *testing.T) {
	svc, meds, _ := newMedicationFixture()
	dosage := "850mg"
	med, err := svc.Update(context.Background(), idM1, UpdateMedicationRequest{Dosage: &dosage})
	require.NoError(t, err)
	assert.Equal(t, "850mg", med.Dosage)
	assert.Equal(t, "Metformin", meds.updated.Name)
}

func TestMedicationDelete(t *testing.T) {
	svc, meds, _ := newMedicationFixture()
	require.NoError(t, svc.Delete(context.Background(), idM1))
	assert.Equal(t, []string{idM1}, meds.deleted)
	assert.ErrorIs(t, svc.Delete(context.Background(), idM9), appErrors.ErrNotFound)
}
