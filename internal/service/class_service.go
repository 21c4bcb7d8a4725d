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

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	FindByID(ctx context.Context, id string) (*models.Class, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
	CountStudents(ctx context.Context, classID string) (int, error)
}

type classSubjectRepository interface {
	Create(ctx context.Context, assignment *models.ClassSubject) error
	FindByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectDetail, error)
	UpdateTeacher(ctx context.Context, id, teacherID string) error
	Delete(ctx context.Context, id string) error
}

// ClassRequest is the create/update payload for classes.
type ClassRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Grade string `json:"grade" validate:"required,min=1,max=20"`
}

// AssignSubjectRequest attaches a subject taught by a teacher to a class.
type AssignSubjectRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

// ClassService manages classes and their subject assignments.
type ClassService struct {
	classes   classRepository
	subjects  classSubjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(classes classRepository, subjects classSubjectRepository, validate *validator.Validate, log *zap.Logger) *ClassService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &ClassService{classes: classes, subjects: subjects, validator: validate, logger: log}
}

// Create adds a new class.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{Name: req.Name, Grade: req.Grade}
	if err := s.classes.Create(ctx, class); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "a class with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, total, nil
}

// Update edits a class.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{ID: id, Name: req.Name, Grade: req.Grade}
	if err := s.classes.Update(ctx, class); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		case errors.Is(err, repository.ErrUniqueViolation):
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "a class with this name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// Delete removes a class. Classes that still hold students are protected.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	count, err := s.classes.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "class still has students assigned")
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// AssignSubject attaches a subject taught by a teacher to the class.
func (s *ClassService) AssignSubject(ctx context.Context, classID string, req AssignSubjectRequest) (*models.ClassSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	assignment := &models.ClassSubject{ClassID: classID, SubjectID: req.SubjectID, TeacherID: req.TeacherID}
	if err := s.subjects.Create(ctx, assignment); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "this subject is already assigned to the class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign subject")
	}
	return assignment, nil
}

// Subjects returns the subject assignments of a class.
func (s *ClassService) Subjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	assignments, err := s.subjects.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class subjects")
	}
	return assignments, nil
}

// ReassignSubject moves an assignment to another teacher.
func (s *ClassService) ReassignSubject(ctx context.Context, assignmentID, teacherID string) error {
	if err := s.subjects.UpdateTeacher(ctx, assignmentID, teacherID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign subject")
	}
	return nil
}

// RemoveSubject drops a subject assignment from a class.
func (s *ClassService) RemoveSubject(ctx context.Context, assignmentID string) error {
	if err := s.subjects.Delete(ctx, assignmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove subject")
	}
	return nil
}
