package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/pkg/excel"
	"github.com/dabestan-dev/dabestan-api/pkg/export"
	"github.com/dabestan-dev/dabestan-api/pkg/storage"
)

type exportAttendanceSource interface {
	Summarize(ctx context.Context, classID string, from, to time.Time) ([]repository.AbsenceSummary, error)
}

type exportDisciplineSource interface {
	List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplineDetail, int, error)
}

type exportEvaluationSource interface {
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
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

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	attendance  exportAttendanceSource
	discipline  exportDisciplineSource
	evaluations exportEvaluationSource
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(
	attendance exportAttendanceSource,
	discipline exportDisciplineSource,
	evaluations exportEvaluationSource,
	store fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		attendance:  attendance,
		discipline:  discipline,
		evaluations: evaluations,
		storage:     store,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
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
	case models.ReportFormatXLSX:
		payload, err = renderWorkbook(dataset)
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

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	classPart := "all"
	if job.Params.ClassID != nil && *job.Params.ClassID != "" {
		classPart = sanitizeFilename(*job.Params.ClassID)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), classPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
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
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	case models.ReportTypeDiscipline:
		return s.buildDisciplineDataset(ctx, job.Params)
	case models.ReportTypeEvaluations:
		return s.buildEvaluationDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	if params.ClassID == nil || *params.ClassID == "" {
		return export.Dataset{}, "", fmt.Errorf("attendance report requires a class")
	}
	from, to, err := paramsRange(params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	summaries, err := s.attendance.Summarize(ctx, *params.ClassID, from, to)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Absent", "Late", "Unjustified"},
	}
	for _, row := range summaries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":     row.StudentName,
			"Absent":      strconv.Itoa(row.AbsentCount),
			"Late":        strconv.Itoa(row.LateCount),
			"Unjustified": strconv.Itoa(row.UnjustedCount),
		})
	}
	return dataset, "Attendance report", nil
}

func (s *ExportService) buildDisciplineDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.DisciplineFilter{PageSize: 200}
	if params.ClassID != nil {
		filter.ClassID = *params.ClassID
	}
	from, to, err := paramsRange(params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	filter.DateFrom = &from
	filter.DateTo = &to
	records, _, err := s.discipline.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Student", "Class", "Severity", "Description", "Recorded by"},
	}
	for _, record := range records {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":        record.CreatedAt.Format("2006-01-02"),
			"Student":     record.StudentName,
			"Class":       derefString(record.ClassName),
			"Severity":    string(record.Severity),
			"Description": record.Description,
			"Recorded by": derefString(record.RecorderName),
		})
	}
	return dataset, "Discipline report", nil
}

func (s *ExportService) buildEvaluationDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.EvaluationFilter{PageSize: 200}
	if params.ClassID != nil {
		filter.ClassID = *params.ClassID
	}
	from, to, err := paramsRange(params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	filter.DateFrom = &from
	filter.DateTo = &to
	evaluations, _, err := s.evaluations.List(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Student", "Homework", "Score", "Notes"},
	}
	for _, ev := range evaluations {
		score := ""
		if ev.ClassScore != nil {
			score = strconv.Itoa(*ev.ClassScore)
		}
		homework := "no"
		if ev.HomeworkDone {
			homework = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":     ev.Date.Format("2006-01-02"),
			"Student":  ev.StudentName,
			"Homework": homework,
			"Score":    score,
			"Notes":    derefString(ev.Notes),
		})
	}
	return dataset, "Daily evaluations report", nil
}

func renderWorkbook(dataset export.Dataset) ([]byte, error) {
	rows := make([]map[string]string, 0, len(dataset.Rows))
	for _, row := range dataset.Rows {
		m := make(map[string]string, len(dataset.Headers))
		for _, header := range dataset.Headers {
			if value, ok := row[header]; ok {
				m[header] = value
			}
		}
		rows = append(rows, m)
	}
	return excel.Workbook(dataset.Headers, rows)
}

func paramsRange(params models.ReportJobParams) (time.Time, time.Time, error) {
	from := time.Now().UTC().AddDate(0, -1, 0)
	to := time.Now().UTC()
	if params.DateFrom != nil && *params.DateFrom != "" {
		parsed, err := time.Parse("2006-01-02", *params.DateFrom)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid dateFrom")
		}
		from = parsed
	}
	if params.DateTo != nil && *params.DateTo != "" {
		parsed, err := time.Parse("2006-01-02", *params.DateTo)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid dateTo")
		}
		to = parsed
	}
	return from, to, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
