package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type disciplineRepository interface {
	Create(ctx context.Context, record *models.DisciplineRecord) error
	FindByID(ctx context.Context, id string) (*models.DisciplineDetail, error)
	List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplineDetail, int, error)
	Update(ctx context.Context, record *models.DisciplineRecord) error
	Delete(ctx context.Context, id string) error
}

// CreateDisciplineRequest is the payload for recording an incident.
type CreateDisciplineRequest struct {
	StudentID   string                    `json:"student_id" validate:"required"`
	ClassID     string                    `json:"class_id" validate:"required"`
	Description string                    `json:"description" validate:"required,min=1,max=2000"`
	Severity    models.DisciplineSeverity `json:"severity" validate:"required,oneof=low medium high"`
}

// UpdateDisciplineRequest is the payload for editing an incident.
type UpdateDisciplineRequest struct {
	Description string                    `json:"description" validate:"required,min=1,max=2000"`
	Severity    models.DisciplineSeverity `json:"severity" validate:"required,oneof=low medium high"`
}

// DisciplineService manages behavioural incident records. Records are
// mutable only by whoever recorded them; admins may read everything.
type DisciplineService struct {
	records   disciplineRepository
	students  attendanceStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDisciplineService constructs a DisciplineService.
func NewDisciplineService(records disciplineRepository, students attendanceStudentRepository, validate *validator.Validate, log *zap.Logger) *DisciplineService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &DisciplineService{records: records, students: students, validator: validate, logger: log}
}

// Create records a new incident attributed to the actor.
func (s *DisciplineService) Create(ctx context.Context, actor *models.JWTClaims, req CreateDisciplineRequest) (*models.DisciplineRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discipline payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	record := &models.DisciplineRecord{
		StudentID:   req.StudentID,
		ClassID:     req.ClassID,
		Description: req.Description,
		Severity:    req.Severity,
		RecordedBy:  actor.UserID,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create discipline record")
	}

	s.logger.Info("discipline record created",
		zap.String("student_id", req.StudentID),
		zap.String("severity", string(req.Severity)),
	)
	return record, nil
}

// Get returns one record.
func (s *DisciplineService) Get(ctx context.Context, id string) (*models.DisciplineDetail, error) {
	detail, err := s.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "discipline record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load discipline record")
	}
	return detail, nil
}

// List returns records matching the filter.
func (s *DisciplineService) List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplineDetail, int, error) {
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list discipline records")
	}
	return records, total, nil
}

// Update edits an incident. Only the original recorder may do it.
func (s *DisciplineService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateDisciplineRequest) (*models.DisciplineRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discipline payload")
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.RecordedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the recorder can edit this record")
	}

	record := existing.DisciplineRecord
	record.Description = req.Description
	record.Severity = req.Severity
	if err := s.records.Update(ctx, &record); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "discipline record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update discipline record")
	}
	return &record, nil
}

// Delete removes an incident. Only the original recorder may do it.
func (s *DisciplineService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.RecordedBy != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the recorder can delete this record")
	}

	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "discipline record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete discipline record")
	}
	return nil
}
