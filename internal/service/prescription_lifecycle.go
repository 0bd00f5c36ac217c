package service

import (
	"time"

	"github.com/noah-isme/carepath-api/internal/models"
)

// ApplyOverdue moves p to overdue when its due date is before today and it has
// not been collected. It never touches collected prescriptions and never leaves
// overdue. It reports whether the status changed.
func ApplyOverdue(p *models.Prescription, today time.Time) bool {
	if p == nil || p.Status == models.PrescriptionCollected || p.Status == models.PrescriptionOverdue {
		return false
	}
	if !TruncateDay(p.NextDueDate).Before(TruncateDay(today)) {
		return false
	}
	p.Status = models.PrescriptionOverdue
	return true
}

// TransitionPrescription applies an explicit status change and then re-evaluates
// overdue, the same way every prescription write does. Asking for pending on a
// past-due prescription therefore lands on overdue.
func TransitionPrescription(p *models.Prescription, requested models.PrescriptionStatus, today time.Time) {
	p.Status = requested
	ApplyOverdue(p, today)
}
