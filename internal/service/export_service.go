package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/pkg/export"
	"github.com/campus-ops/clearance-api/pkg/storage"
)

type reportFormSource interface {
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, error)
	Count(ctx context.Context, filter models.FormFilter) (int, error)
}

type reportAuditSource interface {
	CountByOffice(ctx context.Context, from, to time.Time) (map[models.OfficeRole]int, error)
}

type reportSlotSource interface {
	DecidedCountsByOffice(ctx context.Context) (map[models.OfficeRole]int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	forms   reportFormSource
	audit   reportAuditSource
	slots   reportSlotSource
	names   nameResolver
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.DownloadSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(forms reportFormSource, audit reportAuditSource, slots reportSlotSource, names nameResolver, store fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		forms:   forms,
		audit:   audit,
		slots:   slots,
		names:   names,
		storage: store,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset for a job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	signedURL := fmt.Sprintf("%s/reports/download/%s", prefix, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	periodPart := sanitizeFilename(job.Params.Semester)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), periodPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeClearanceSummary:
		return s.buildClearanceSummary(ctx, job.Params)
	case models.ReportTypeOfficeActivity:
		return s.buildOfficeActivity(ctx, job.Params)
	case models.ReportTypePendingByOffice:
		return s.buildPendingByOffice(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildClearanceSummary(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.FormFilter{
		Type:         params.FormType,
		Semester:     params.Semester,
		AcademicYear: params.AcademicYear,
		Limit:        200,
	}
	forms := make([]models.Form, 0)
	for offset := 0; ; offset += filter.Limit {
		filter.Offset = offset
		page, err := s.forms.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("load forms: %w", err)
		}
		forms = append(forms, page...)
		if len(page) < filter.Limit {
			break
		}
	}

	studentIDs := make([]string, 0, len(forms))
	for _, form := range forms {
		studentIDs = append(studentIDs, form.StudentID)
	}
	names, err := s.names.NamesByIDs(ctx, studentIDs)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load student names: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Type", "Semester", "Academic Year", "Status", "Submitted", "Finalized"},
	}
	for _, form := range forms {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":       names[form.StudentID],
			"Type":          string(form.Type),
			"Semester":      form.Semester,
			"Academic Year": form.AcademicYear,
			"Status":        string(form.Status),
			"Submitted":     form.SubmittedAt.Format("2006-01-02 15:04"),
			"Finalized":     formatReportTime(form.FinalizedAt),
		})
	}
	return dataset, "Clearance Summary", nil
}

func (s *ExportService) buildOfficeActivity(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	counts, err := s.audit.CountByOffice(ctx, from, to)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load office activity: %w", err)
	}

	dataset := export.Dataset{Headers: []string{"Office", "Decisions (30d)"}}
	for _, role := range models.RosterFor(params.FormType) {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Office":          string(role),
			"Decisions (30d)": fmt.Sprintf("%d", counts[role]),
		})
	}
	return dataset, "Office Activity", nil
}

func (s *ExportService) buildPendingByOffice(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	open, err := s.forms.Count(ctx, models.FormFilter{
		Status: []models.FormStatus{models.FormStatusPending, models.FormStatusInProgress},
	})
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("count open forms: %w", err)
	}
	decided, err := s.slots.DecidedCountsByOffice(ctx)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load decided counts: %w", err)
	}

	dataset := export.Dataset{Headers: []string{"Office", "Pending Forms"}}
	for _, role := range models.RosterFor(params.FormType) {
		pending := open - decided[role]
		if pending < 0 {
			pending = 0
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Office":        string(role),
			"Pending Forms": fmt.Sprintf("%d", pending),
		})
	}
	return dataset, "Pending Forms by Office", nil
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
