package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/identity"
	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/internal/saga"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
	"github.com/dabestan-dev/dabestan-api/pkg/logger"
)

type provisioningUserRepository interface {
	CreateProfile(ctx context.Context, profile *models.Profile) error
	DeleteProfile(ctx context.Context, id string) error
	AssignRole(ctx context.Context, assignment models.RoleAssignment) error
	RemoveRole(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type provisioningTeacherRepository interface {
	Create(ctx context.Context, teacher *models.Teacher) error
	DeleteByUserID(ctx context.Context, userID string) error
}

type provisioningStudentRepository interface {
	FindByNameUnassigned(ctx context.Context, fullName string) (*models.Student, error)
	AssignParent(ctx context.Context, studentID, parentID string) error
	UnassignParent(ctx context.Context, studentID string) error
}

// ProvisioningConfig bounds bulk account creation.
type ProvisioningConfig struct {
	MaxBatchSize int
}

// ProvisioningService creates accounts as a sequence of compensated steps:
// identity, profile, role, then the role-specific record. A failed step
// rolls back everything the row already created; the batch itself keeps
// going row by row.
type ProvisioningService struct {
	identities identity.Admin
	users      provisioningUserRepository
	teachers   provisioningTeacherRepository
	students   provisioningStudentRepository
	limiter    *RateLimiter
	validator  *validator.Validate
	metrics    provisioningMetrics
	logger     *zap.Logger
	config     ProvisioningConfig
}

type provisioningMetrics interface {
	RecordProvisionedUser(role models.UserRole)
	RecordProvisioningRollback()
}

// SetMetrics attaches an optional metrics recorder.
func (s *ProvisioningService) SetMetrics(m provisioningMetrics) {
	s.metrics = m
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(
	identities identity.Admin,
	users provisioningUserRepository,
	teachers provisioningTeacherRepository,
	students provisioningStudentRepository,
	limiter *RateLimiter,
	validate *validator.Validate,
	log *zap.Logger,
	config ProvisioningConfig,
) *ProvisioningService {
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 50
	}
	return &ProvisioningService{
		identities: identities,
		users:      users,
		teachers:   teachers,
		students:   students,
		limiter:    limiter,
		validator:  validate,
		logger:     log,
		config:     config,
	}
}

// BulkProvision creates a batch of accounts of one role. Request-level
// problems (bad payload, rate limit) fail the whole call; per-row failures
// are rolled back and reported while the rest of the batch continues.
func (s *ProvisioningService) BulkProvision(ctx context.Context, actorID string, req models.BulkProvisionRequest) (*models.BulkProvisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid provisioning payload")
	}
	if len(req.Users) > s.config.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds the maximum of %d users", s.config.MaxBatchSize))
	}
	role, ok := models.ParseRole(req.UserType)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown user type")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, actorID)
		if err != nil {
			s.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		}
		if !allowed {
			return nil, appErrors.Clone(appErrors.ErrRateLimited, "too many provisioning requests, try again later")
		}
	}

	result := &models.BulkProvisionResult{
		Errors:  []string{},
		Results: []models.ProvisionedAccount{},
	}
	for _, descriptor := range req.Users {
		account, err := s.provisionOne(ctx, role, descriptor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", descriptor.Email, provisioningErrorMessage(err)))
			continue
		}
		result.Results = append(result.Results, *account)
		result.SuccessCount++
		if s.metrics != nil {
			s.metrics.RecordProvisionedUser(role)
		}
	}
	result.Success = len(result.Errors) == 0

	s.recordBatchAudit(ctx, actorID, req.UserType, result)
	return result, nil
}

// CreateTeacher provisions a single teacher account with its instructor
// record, using the same compensated sequence as the bulk path.
func (s *ProvisioningService) CreateTeacher(ctx context.Context, actorID string, req models.CreateTeacherRequest) (*models.ProvisionedAccount, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	var userID string
	steps := []saga.Step{
		s.identityStep(req.Email, req.Password, req.FullName, req.Username, &userID),
		s.profileStep(req.Email, req.FullName, req.Username, &userID),
		s.roleStep(models.RoleTeacher, &userID),
		{
			Name: "teacher record",
			Run: func(ctx context.Context) error {
				return s.teachers.Create(ctx, &models.Teacher{UserID: userID, Subject: req.Subject})
			},
		},
	}

	if err := s.runSaga(ctx, steps, req.Email); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordProvisionedUser(models.RoleTeacher)
	}

	s.recordBatchAudit(ctx, actorID, "teacher", &models.BulkProvisionResult{
		Success:      true,
		SuccessCount: 1,
		Results:      []models.ProvisionedAccount{{Email: req.Email, ID: userID}},
	})
	return &models.ProvisionedAccount{Email: req.Email, ID: userID}, nil
}

func (s *ProvisioningService) provisionOne(ctx context.Context, role models.UserRole, descriptor models.UserDescriptor) (*models.ProvisionedAccount, error) {
	var userID string
	steps := []saga.Step{
		s.identityStep(descriptor.Email, descriptor.Password, descriptor.FullName, descriptor.Username, &userID),
		s.profileStep(descriptor.Email, descriptor.FullName, descriptor.Username, &userID),
		s.roleStep(role, &userID),
	}

	switch role {
	case models.RoleTeacher:
		steps = append(steps, saga.Step{
			Name: "teacher record",
			Run: func(ctx context.Context) error {
				return s.teachers.Create(ctx, &models.Teacher{UserID: userID})
			},
		})
	case models.RoleParent:
		if descriptor.TempStudentName != nil && strings.TrimSpace(*descriptor.TempStudentName) != "" {
			steps = append(steps, s.guardianLinkStep(*descriptor.TempStudentName, &userID))
		}
	}

	if err := s.runSaga(ctx, steps, descriptor.Email); err != nil {
		return nil, err
	}
	return &models.ProvisionedAccount{
		Email:           descriptor.Email,
		ID:              userID,
		TempStudentName: descriptor.TempStudentName,
	}, nil
}

func (s *ProvisioningService) identityStep(email, password, fullName, username string, userID *string) saga.Step {
	return saga.Step{
		Name: "identity",
		Run: func(ctx context.Context) error {
			id, err := s.identities.CreateIdentity(ctx, identity.NewIdentity{
				Email:    email,
				Password: password,
				Metadata: map[string]string{"full_name": fullName, "username": username},
			})
			if err != nil {
				return err
			}
			*userID = id
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return s.identities.DeleteIdentity(ctx, *userID)
		},
	}
}

func (s *ProvisioningService) profileStep(email, fullName, username string, userID *string) saga.Step {
	return saga.Step{
		Name: "profile",
		Run: func(ctx context.Context) error {
			return s.users.CreateProfile(ctx, &models.Profile{
				ID:       *userID,
				FullName: fullName,
				Username: username,
				Email:    strings.ToLower(email),
			})
		},
		Compensate: func(ctx context.Context) error {
			return s.users.DeleteProfile(ctx, *userID)
		},
	}
}

func (s *ProvisioningService) roleStep(role models.UserRole, userID *string) saga.Step {
	return saga.Step{
		Name: "role",
		Run: func(ctx context.Context) error {
			return s.users.AssignRole(ctx, models.RoleAssignment{UserID: *userID, Role: role})
		},
		Compensate: func(ctx context.Context) error {
			return s.users.RemoveRole(ctx, *userID)
		},
	}
}

func (s *ProvisioningService) guardianLinkStep(studentName string, userID *string) saga.Step {
	var linkedStudentID string
	return saga.Step{
		Name: "guardian link",
		Run: func(ctx context.Context) error {
			student, err := s.students.FindByNameUnassigned(ctx, studentName)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					// No matching placeholder is not a failure; the link
					// can be made later from the student screen.
					return nil
				}
				return err
			}
			if err := s.students.AssignParent(ctx, student.ID, *userID); err != nil {
				return err
			}
			linkedStudentID = student.ID
			return nil
		},
		Compensate: func(ctx context.Context) error {
			if linkedStudentID == "" {
				return nil
			}
			return s.students.UnassignParent(ctx, linkedStudentID)
		},
	}
}

// runSaga executes the steps and surfaces rollback failures loudly: an
// identity that could not be deleted after a later step failed is an
// orphan an operator has to clean up by hand.
func (s *ProvisioningService) runSaga(ctx context.Context, steps []saga.Step, email string) error {
	result := saga.Execute(ctx, steps)
	if result.Ok() {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordProvisioningRollback()
	}

	for _, cerr := range result.CompensationErrs {
		s.logger.Error("provisioning rollback failed",
			logger.Critical(),
			zap.String("email", email),
			zap.String("failed_step", result.FailedStep),
			zap.Error(cerr),
		)
		payload, _ := json.Marshal(map[string]string{
			"email":       email,
			"failed_step": result.FailedStep,
			"error":       cerr.Error(),
		})
		if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
			Action:    models.AuditActionRollbackFailed,
			Resource:  "provisioning",
			NewValues: payload,
		}); err != nil {
			s.logger.Warn("failed to record rollback audit log", zap.Error(err))
		}
	}
	return result.Err
}

func (s *ProvisioningService) recordBatchAudit(ctx context.Context, actorID, userType string, result *models.BulkProvisionResult) {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_type":     userType,
		"success_count": result.SuccessCount,
		"error_count":   len(result.Errors),
	})
	entry := &models.AuditLog{
		Action:    models.AuditActionBulkProvision,
		Resource:  "provisioning",
		NewValues: payload,
		CreatedAt: time.Now().UTC(),
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record provisioning audit log", zap.Error(err))
	}
}

func provisioningErrorMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrDuplicateEmail):
		return "email already registered"
	case errors.Is(err, repository.ErrUniqueViolation):
		return "username or email already taken"
	default:
		return err.Error()
	}
}
