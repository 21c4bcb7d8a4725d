package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/pkg/storage"
)

type attendanceSummaryStub struct{}

func (attendanceSummaryStub) Summarize(ctx context.Context, classID string, from, to time.Time) ([]repository.AbsenceSummary, error) {
	return []repository.AbsenceSummary{
		{StudentID: "student-1", StudentName: "Sara Ahmadi", AbsentCount: 3, LateCount: 1, UnjustedCount: 2},
		{StudentID: "student-2", StudentName: "Omid Karimi", AbsentCount: 0, LateCount: 2, UnjustedCount: 0},
	}, nil
}

type disciplineListStub struct{}

func (disciplineListStub) List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplineDetail, int, error) {
	class := "4-A"
	recorder := "Ms. Rostami"
	return []models.DisciplineDetail{
		{
			DisciplineRecord: models.DisciplineRecord{
				ID:          "disc-1",
				StudentID:   "student-1",
				ClassID:     "class-1",
				Description: "disrupted the lesson",
				Severity:    models.DisciplineSeverityLow,
				CreatedAt:   time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
			},
			StudentName:  "Sara Ahmadi",
			ClassName:    &class,
			RecorderName: &recorder,
		},
	}, 1, nil
}

type evaluationListStub struct{}

func (evaluationListStub) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	score := 17
	notes := "good participation"
	return []models.EvaluationDetail{
		{
			Evaluation: models.Evaluation{
				ID:           "eval-1",
				StudentID:    "student-1",
				ClassID:      "class-1",
				Date:         time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
				HomeworkDone: true,
				ClassScore:   &score,
				Notes:        &notes,
			},
			StudentName: "Sara Ahmadi",
		},
	}, 1, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir, "/files")
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(attendanceSummaryStub{}, disciplineListStub{}, evaluationListStub{}, store, signer, cfg, zap.NewNop())
	return svc, store
}

func strPtr(s string) *string {
	return &s
}

func TestExportServiceGenerateAttendanceCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{ClassID: strPtr("class-1"), Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/reports/download/")

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateAttendanceRequiresClass(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-no-class",
		Type:   models.ReportTypeAttendance,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}

func TestExportServiceGenerateDisciplinePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeDiscipline,
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateEvaluationsXLSX(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-3",
		Type:      models.ReportTypeEvaluations,
		Params:    models.ReportJobParams{ClassID: strPtr("class-1"), Format: models.ReportFormatXLSX},
		CreatedBy: "admin",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatXLSX, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateRejectsBadDate(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:   "job-bad-date",
		Type: models.ReportTypeAttendance,
		Params: models.ReportJobParams{
			ClassID:  strPtr("class-1"),
			DateFrom: strPtr("10/02/2026"),
			Format:   models.ReportFormatCSV,
		},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
