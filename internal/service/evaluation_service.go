package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type evaluationRepository interface {
	ListByClassDate(ctx context.Context, classID string, date time.Time) (map[string]models.Evaluation, error)
	UpsertBatch(ctx context.Context, evaluations []models.Evaluation) error
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error)
}

// EvaluationEntry is one student line of a daily evaluation sheet.
type EvaluationEntry struct {
	StudentID    string  `json:"student_id" validate:"required"`
	HomeworkDone bool    `json:"homework_done"`
	ClassScore   *int    `json:"class_score,omitempty" validate:"omitempty,min=0,max=10"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// SaveEvaluationsRequest is the daily sheet of one class.
type SaveEvaluationsRequest struct {
	ClassID string            `json:"class_id" validate:"required"`
	Date    string            `json:"date" validate:"required,datetime=2006-01-02"`
	Entries []EvaluationEntry `json:"entries" validate:"required,min=1,dive"`
}

// SaveEvaluationsResult reports how many rows actually changed.
type SaveEvaluationsResult struct {
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
}

// EvaluationService stores per-student daily evaluations, writing only the
// rows whose observable state differs from what is stored.
type EvaluationService struct {
	evaluations evaluationRepository
	students    attendanceStudentRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(evaluations evaluationRepository, students attendanceStudentRepository, validate *validator.Validate, log *zap.Logger) *EvaluationService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &EvaluationService{evaluations: evaluations, students: students, validator: validate, logger: log}
}

// Save diffs the submitted sheet against the stored snapshot and upserts
// only the changed rows. Untouched entries cost nothing, so a teacher can
// resubmit the whole sheet after editing a single student.
func (s *EvaluationService) Save(ctx context.Context, actor *models.JWTClaims, req SaveEvaluationsRequest) (*SaveEvaluationsResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	roster, err := s.students.ListByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, student := range roster {
		enrolled[student.ID] = struct{}{}
	}

	existing, err := s.evaluations.ListByClassDate(ctx, req.ClassID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluations")
	}

	result := &SaveEvaluationsResult{}
	changed := make([]models.Evaluation, 0, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := enrolled[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in this class", entry.StudentID))
		}
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears twice", entry.StudentID))
		}
		seen[entry.StudentID] = struct{}{}

		incoming := models.EvaluationState{
			HomeworkDone: entry.HomeworkDone,
			ClassScore:   entry.ClassScore,
			Notes:        entry.Notes,
		}
		stored, exists := existing[entry.StudentID]
		if exists {
			current := models.EvaluationState{
				HomeworkDone: stored.HomeworkDone,
				ClassScore:   stored.ClassScore,
				Notes:        stored.Notes,
			}
			if !current.Changed(incoming) {
				result.Unchanged++
				continue
			}
		} else if isZeroEvaluation(incoming) {
			// A blank line with no stored counterpart stays unwritten.
			result.Unchanged++
			continue
		}

		evaluation := models.Evaluation{
			StudentID:    entry.StudentID,
			ClassID:      req.ClassID,
			Date:         date,
			HomeworkDone: entry.HomeworkDone,
			ClassScore:   entry.ClassScore,
			Notes:        entry.Notes,
			RecordedBy:   actor.UserID,
		}
		if exists {
			evaluation.ID = stored.ID
		}
		changed = append(changed, evaluation)
	}

	if err := s.evaluations.UpsertBatch(ctx, changed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evaluations")
	}
	result.Written = len(changed)

	s.logger.Info("evaluations saved",
		zap.String("class_id", req.ClassID),
		zap.String("date", req.Date),
		zap.Int("written", result.Written),
		zap.Int("unchanged", result.Unchanged),
	)
	return result, nil
}

// List returns evaluations matching the filter.
func (s *EvaluationService) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	evaluations, total, err := s.evaluations.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return evaluations, total, nil
}

// Sheet returns the stored evaluations of one class for one day keyed by
// student, for pre-filling the teacher's form.
func (s *EvaluationService) Sheet(ctx context.Context, classID string, date time.Time) (map[string]models.Evaluation, error) {
	existing, err := s.evaluations.ListByClassDate(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluations")
	}
	return existing, nil
}

func isZeroEvaluation(state models.EvaluationState) bool {
	return !state.HomeworkDone && state.ClassScore == nil && (state.Notes == nil || *state.Notes == "")
}
