package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/export"
)

// Export dataset names, as used in the export route.
const (
	ExportPatients      = "patients"
	ExportPrograms      = "programs"
	ExportSessions      = "sessions"
	ExportPrescriptions = "prescriptions"
)

const notAvailable = "N/A"

type patientExportSource interface {
	ListWithStats(ctx context.Context, filter models.PatientFilter, rng models.DateRange) ([]models.PatientStats, error)
}

type programExportSource interface {
	ListForExport(ctx context.Context, rng models.DateRange) ([]models.ProgramStats, error)
}

type sessionExportSource interface {
	ListForExport(ctx context.Context, rng models.DateRange) ([]models.SessionDetail, error)
}

type prescriptionExportSource interface {
	ListForExport(ctx context.Context, rng models.DateRange) ([]models.PrescriptionDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportRequest selects a dataset, format and optional inclusive day range.
type ExportRequest struct {
	Dataset   string
	Format    string
	StartDate string
	EndDate   string
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders patients, programs, sessions and prescriptions as CSV or PDF.
type ExportService struct {
	patients      patientExportSource
	programs      programExportSource
	sessions      sessionExportSource
	prescriptions prescriptionExportSource
	csv           csvRenderer
	pdf           pdfRenderer
	logger        *zap.Logger
	now           func() time.Time
}

// ExportSources groups the repositories an export reads from.
type ExportSources struct {
	Patients      patientExportSource
	Programs      programExportSource
	Sessions      sessionExportSource
	Prescriptions prescriptionExportSource
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(sources ExportSources, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		patients:      sources.Patients,
		programs:      sources.Programs,
		sessions:      sources.Sessions,
		prescriptions: sources.Prescriptions,
		csv:           csv,
		pdf:           pdf,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*ExportFile, error) {
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rng, err := ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	var (
		data  export.Dataset
		title string
	)
	switch req.Dataset {
	case ExportPatients:
		data, err = s.patientDataset(ctx, rng)
		title = "Patients"
	case ExportPrograms:
		data, err = s.programDataset(ctx, rng)
		title = "Programs"
	case ExportSessions:
		data, err = s.sessionDataset(ctx, rng)
		title = "Sessions"
	case ExportPrescriptions:
		data, err = s.prescriptionDataset(ctx, rng)
		title = "Prescriptions"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown export %q", req.Dataset))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export data")
	}

	var payload []byte
	if format == export.FormatPDF {
		payload, err = s.pdf.Render(data, fmt.Sprintf("%s report (%s)", title, s.now().UTC().Format(dateLayout)))
	} else {
		payload, err = s.csv.Render(data)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("export rendered",
		zap.String("dataset", req.Dataset),
		zap.String("format", string(format)),
		zap.Int("rows", len(data.Rows)),
	)
	return &ExportFile{
		Filename:    format.Filename(req.Dataset),
		ContentType: format.ContentType(),
		Data:        payload,
		Rows:        len(data.Rows),
	}, nil
}

func (s *ExportService) patientDataset(ctx context.Context, rng models.DateRange) (export.Dataset, error) {
	rows, err := s.patients.ListWithStats(ctx, models.PatientFilter{}, rng)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{Headers: []string{"ID", "Name", "Email", "Phone", "Assigned Staff", "Adherence Rate", "Status", "Created At"}}
	for _, p := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"ID":             p.ID,
			"Name":           p.Name,
			"Email":          p.Email,
			"Phone":          p.Phone,
			"Assigned Staff": orNA(p.AssignedStaffName),
			"Adherence Rate": strconv.Itoa(AdherencePercent(p.AttendedSessions, p.TotalSessions)) + "%",
			"Status":         string(p.Status),
			"Created At":     formatDay(p.CreatedAt),
		})
	}
	return data, nil
}

func (s *ExportService) programDataset(ctx context.Context, rng models.DateRange) (export.Dataset, error) {
	rows, err := s.programs.ListForExport(ctx, rng)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{Headers: []string{"ID", "Name", "Description", "Frequency", "Total Sessions", "Enrolled Patients", "Created At"}}
	for _, p := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"ID":                p.ID,
			"Name":              p.Name,
			"Description":       p.Description,
			"Frequency":         string(p.Frequency),
			"Total Sessions":    strconv.Itoa(p.SessionsCount),
			"Enrolled Patients": strconv.Itoa(p.EnrolledPatients),
			"Created At":        formatDay(p.CreatedAt),
		})
	}
	return data, nil
}

func (s *ExportService) sessionDataset(ctx context.Context, rng models.DateRange) (export.Dataset, error) {
	rows, err := s.sessions.ListForExport(ctx, rng)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{Headers: []string{"ID", "Program", "Patient", "Date", "Status", "Cancel Reason", "Notes", "Created At"}}
	for _, sess := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"ID":            sess.ID,
			"Program":       naIfEmpty(sess.ProgramName),
			"Patient":       naIfEmpty(sess.PatientName),
			"Date":          formatDay(sess.Date),
			"Status":        string(sess.Status),
			"Cancel Reason": orNA(sess.CancelReason),
			"Notes":         orNA(sess.Notes),
			"Created At":    formatDay(sess.CreatedAt),
		})
	}
	return data, nil
}

func (s *ExportService) prescriptionDataset(ctx context.Context, rng models.DateRange) (export.Dataset, error) {
	rows, err := s.prescriptions.ListForExport(ctx, rng)
	if err != nil {
		return export.Dataset{}, err
	}
	today := TruncateDay(s.now())
	data := export.Dataset{Headers: []string{"ID", "Medication", "Patient", "Date Collected", "Next Due Date", "Status"}}
	for _, p := range rows {
		ApplyOverdue(&p.Prescription, today)
		data.Rows = append(data.Rows, map[string]string{
			"ID":             p.ID,
			"Medication":     p.MedicationName + " " + p.MedicationDosage,
			"Patient":        naIfEmpty(p.PatientName),
			"Date Collected": formatDay(p.DateCollected),
			"Next Due Date":  formatDay(p.NextDueDate),
			"Status":         string(p.Status),
		})
	}
	return data, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.UTC().Format(dateLayout)
}

func orNA(value *string) string {
	if value == nil {
		return notAvailable
	}
	return naIfEmpty(*value)
}

func naIfEmpty(value string) string {
	if value == "" {
		return notAvailable
	}
	return value
}
