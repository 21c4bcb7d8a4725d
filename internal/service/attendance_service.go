package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/internal/saga"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type attendanceRepository interface {
	ListSession(ctx context.Context, key models.AttendanceSessionKey) ([]models.AttendanceRecord, error)
	ReplaceSession(ctx context.Context, key models.AttendanceSessionKey, records []models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceDetail, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error)
	UpdateJustification(ctx context.Context, id string, justification string, medicalNoteURL *string, updatedAt time.Time) error
	ClearJustification(ctx context.Context, id string) error
	Summarize(ctx context.Context, classID string, from, to time.Time) ([]repository.AbsenceSummary, error)
}

type attendanceAssignmentRepository interface {
	TeacherOwns(ctx context.Context, classSubjectID, teacherID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error)
}

type attendanceStudentRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type attendanceTeacherRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
}

type noteStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
	PublicURL(filename string) string
}

// AttendanceEntry is one roster line of a session submission.
type AttendanceEntry struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// RecordSessionRequest is a full roster snapshot for one lesson.
type RecordSessionRequest struct {
	ClassSubjectID string            `json:"class_subject_id" validate:"required"`
	Date           string            `json:"date" validate:"required,datetime=2006-01-02"`
	LessonPeriod   int               `json:"lesson_period" validate:"required,min=1,max=12"`
	Entries        []AttendanceEntry `json:"entries" validate:"required,dive"`
}

// JustifyRequest carries a guardian's explanation for an absence.
type JustifyRequest struct {
	Justification string `json:"justification" validate:"required,min=1,max=1000"`
}

// AttendanceService implements session reconciliation and justifications.
type AttendanceService struct {
	attendance  attendanceRepository
	assignments attendanceAssignmentRepository
	students    attendanceStudentRepository
	teachers    attendanceTeacherRepository
	storage     noteStorage
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(
	attendance attendanceRepository,
	assignments attendanceAssignmentRepository,
	students attendanceStudentRepository,
	teachers attendanceTeacherRepository,
	storage noteStorage,
	validate *validator.Validate,
	log *zap.Logger,
) *AttendanceService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &AttendanceService{
		attendance:  attendance,
		assignments: assignments,
		students:    students,
		teachers:    teachers,
		storage:     storage,
		validator:   validate,
		logger:      log,
	}
}

// RecordSession replaces the stored snapshot for one (class subject, date,
// period) with the submitted roster. Present entries are dropped; only
// absent and late rows are written. Resubmitting the same form converges on
// the same stored state.
func (s *AttendanceService) RecordSession(ctx context.Context, actor *models.JWTClaims, req RecordSessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	if err := s.authorizeSession(ctx, actor, req.ClassSubjectID); err != nil {
		return err
	}

	assignment, err := s.assignments.FindByID(ctx, req.ClassSubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class subject")
	}

	roster, err := s.students.ListByClass(ctx, assignment.ClassID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, student := range roster {
		enrolled[student.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(req.Entries))
	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if !entry.Status.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", entry.Status))
		}
		if _, ok := enrolled[entry.StudentID]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in this class", entry.StudentID))
		}
		if _, dup := seen[entry.StudentID]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears twice", entry.StudentID))
		}
		seen[entry.StudentID] = struct{}{}
		if !entry.Status.Persisted() {
			continue
		}
		records = append(records, models.AttendanceRecord{
			StudentID:  entry.StudentID,
			Status:     entry.Status,
			RecordedBy: actor.UserID,
		})
	}

	key := models.AttendanceSessionKey{
		ClassSubjectID: req.ClassSubjectID,
		Date:           date,
		LessonPeriod:   req.LessonPeriod,
	}
	if err := s.attendance.ReplaceSession(ctx, key, records); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
	}

	s.logger.Info("attendance session recorded",
		zap.String("class_subject_id", req.ClassSubjectID),
		zap.String("date", req.Date),
		zap.Int("lesson_period", req.LessonPeriod),
		zap.Int("persisted", len(records)),
	)
	return nil
}

// GetSession returns the stored rows of one session snapshot.
func (s *AttendanceService) GetSession(ctx context.Context, actor *models.JWTClaims, key models.AttendanceSessionKey) ([]models.AttendanceRecord, error) {
	if err := s.authorizeSession(ctx, actor, key.ClassSubjectID); err != nil {
		return nil, err
	}
	records, err := s.attendance.ListSession(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance session")
	}
	return records, nil
}

// List returns attendance rows visible to the actor. Parents are scoped to
// their own children by the caller-provided filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

// Justify records a guardian's justification for an absence, optionally
// attaching a medical note. The note upload and the row update run as a
// compensated pair so a storage failure leaves the row untouched.
func (s *AttendanceService) Justify(ctx context.Context, actor *models.JWTClaims, recordID string, req JustifyRequest, note io.Reader, noteFilename string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid justification payload")
	}

	record, err := s.attendance.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.Status != models.AttendanceStatusAbsent {
		return appErrors.Clone(appErrors.ErrValidation, "only absences can be justified")
	}

	if actor.Role == models.RoleParent {
		student, err := s.students.FindByID(ctx, record.StudentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if student.ParentID == nil || *student.ParentID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "record does not belong to your child")
		}
	} else if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only guardians or admins can justify absences")
	}

	var storedName string
	var noteURL *string
	steps := []saga.Step{}
	if note != nil && noteFilename != "" {
		steps = append(steps, saga.Step{
			Name: "medical note upload",
			Run: func(ctx context.Context) error {
				name, err := s.storage.SaveStream(safeNoteName(recordID, noteFilename), note)
				if err != nil {
					return err
				}
				storedName = name
				url := s.storage.PublicURL(name)
				noteURL = &url
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.storage.Delete(storedName)
			},
		})
	}
	steps = append(steps, saga.Step{
		Name: "justification update",
		Run: func(ctx context.Context) error {
			return s.attendance.UpdateJustification(ctx, recordID, req.Justification, noteURL, time.Now().UTC())
		},
	})

	result := saga.Execute(ctx, steps)
	if !result.Ok() {
		for _, cerr := range result.CompensationErrs {
			s.logger.Error("justification rollback failed", zap.String("record_id", recordID), zap.Error(cerr))
		}
		return appErrors.Wrap(result.Err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store justification")
	}
	return nil
}

// Summarize aggregates absence counts per student for a class over a range.
func (s *AttendanceService) Summarize(ctx context.Context, classID string, from, to time.Time) ([]repository.AbsenceSummary, error) {
	summaries, err := s.attendance.Summarize(ctx, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize attendance")
	}
	return summaries, nil
}

func (s *AttendanceService) authorizeSession(ctx context.Context, actor *models.JWTClaims, classSubjectID string) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrForbidden, "no teacher record for this account")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher record")
		}
		owns, err := s.assignments.TeacherOwns(ctx, classSubjectID, teacher.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
		}
		if !owns {
			return appErrors.Clone(appErrors.ErrForbidden, "you do not teach this class subject")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient role")
	}
}

func safeNoteName(recordID, filename string) string {
	ext := ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		ext = filename[idx:]
	}
	return fmt.Sprintf("note-%s%s", recordID, ext)
}
