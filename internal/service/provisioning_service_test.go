package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabestan-dev/dabestan-api/internal/identity"
	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type fakeIdentityAdmin struct {
	nextID    int
	created   map[string]string
	deleted   []string
	failOn    map[string]error
	deleteErr error
}

func newFakeIdentityAdmin() *fakeIdentityAdmin {
	return &fakeIdentityAdmin{created: map[string]string{}, failOn: map[string]error{}}
}

func (f *fakeIdentityAdmin) CreateIdentity(_ context.Context, ident identity.NewIdentity) (string, error) {
	if err, ok := f.failOn[ident.Email]; ok {
		return "", err
	}
	if _, exists := f.created[ident.Email]; exists {
		return "", identity.ErrDuplicateEmail
	}
	f.nextID++
	id := ident.Email
	f.created[ident.Email] = id
	return id, nil
}

func (f *fakeIdentityAdmin) DeleteIdentity(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.created, id)
	return nil
}

type fakeProvisioningUsers struct {
	profiles       map[string]models.Profile
	roles          map[string]models.UserRole
	auditLogs      []models.AuditLog
	profileFailFor string
	roleFailFor    string
}

func newFakeProvisioningUsers() *fakeProvisioningUsers {
	return &fakeProvisioningUsers{profiles: map[string]models.Profile{}, roles: map[string]models.UserRole{}}
}

func (f *fakeProvisioningUsers) CreateProfile(_ context.Context, profile *models.Profile) error {
	if f.profileFailFor != "" && profile.Email == f.profileFailFor {
		return errors.New("profile insert failed")
	}
	f.profiles[profile.ID] = *profile
	return nil
}

func (f *fakeProvisioningUsers) DeleteProfile(_ context.Context, id string) error {
	delete(f.profiles, id)
	return nil
}

func (f *fakeProvisioningUsers) AssignRole(_ context.Context, assignment models.RoleAssignment) error {
	if f.roleFailFor != "" && assignment.UserID == f.roleFailFor {
		return errors.New("role insert failed")
	}
	f.roles[assignment.UserID] = assignment.Role
	return nil
}

func (f *fakeProvisioningUsers) RemoveRole(_ context.Context, userID string) error {
	delete(f.roles, userID)
	return nil
}

func (f *fakeProvisioningUsers) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, *log)
	return nil
}

type fakeProvisioningTeachers struct {
	byUser  map[string]models.Teacher
	failFor string
}

func newFakeProvisioningTeachers() *fakeProvisioningTeachers {
	return &fakeProvisioningTeachers{byUser: map[string]models.Teacher{}}
}

func (f *fakeProvisioningTeachers) Create(_ context.Context, teacher *models.Teacher) error {
	if f.failFor != "" && teacher.UserID == f.failFor {
		return errors.New("teacher insert failed")
	}
	f.byUser[teacher.UserID] = *teacher
	return nil
}

func (f *fakeProvisioningTeachers) DeleteByUserID(_ context.Context, userID string) error {
	delete(f.byUser, userID)
	return nil
}

type fakeProvisioningStudents struct {
	unassigned map[string]models.Student
	parents    map[string]string
}

func newFakeProvisioningStudents() *fakeProvisioningStudents {
	return &fakeProvisioningStudents{unassigned: map[string]models.Student{}, parents: map[string]string{}}
}

func (f *fakeProvisioningStudents) FindByNameUnassigned(_ context.Context, fullName string) (*models.Student, error) {
	student, ok := f.unassigned[fullName]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (f *fakeProvisioningStudents) AssignParent(_ context.Context, studentID, parentID string) error {
	f.parents[studentID] = parentID
	return nil
}

func (f *fakeProvisioningStudents) UnassignParent(_ context.Context, studentID string) error {
	delete(f.parents, studentID)
	return nil
}

func newProvisioningService(ident *fakeIdentityAdmin, users *fakeProvisioningUsers, teachers *fakeProvisioningTeachers, students *fakeProvisioningStudents) *ProvisioningService {
	return NewProvisioningService(ident, users, teachers, students, nil, NewValidator(), nil, ProvisioningConfig{MaxBatchSize: 50})
}

func descriptor(email string) models.UserDescriptor {
	username := strings.NewReplacer("@", "_", ".", "_", "-", "_").Replace(email)
	return models.UserDescriptor{
		Email:    email,
		Username: "u_" + username,
		FullName: "User " + email,
		Password: "password123",
	}
}

func TestBulkProvisionAllSucceed(t *testing.T) {
	ident := newFakeIdentityAdmin()
	users := newFakeProvisioningUsers()
	teachers := newFakeProvisioningTeachers()
	svc := newProvisioningService(ident, users, teachers, newFakeProvisioningStudents())

	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("a@school.io"), descriptor("b@school.io")},
		UserType: "teacher",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Empty(t, result.Errors)
	assert.Len(t, teachers.byUser, 2)
	assert.Len(t, users.profiles, 2)
}

func TestBulkProvisionContinuesPastRowFailure(t *testing.T) {
	ident := newFakeIdentityAdmin()
	ident.failOn["bad@school.io"] = identity.ErrDuplicateEmail
	users := newFakeProvisioningUsers()
	svc := newProvisioningService(ident, users, newFakeProvisioningTeachers(), newFakeProvisioningStudents())

	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("ok@school.io"), descriptor("bad@school.io"), descriptor("also@school.io")},
		UserType: "admin",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "bad@school.io")
	assert.Contains(t, result.Errors[0], "already registered")
}

func TestBulkProvisionRollsBackIdentityWhenProfileFails(t *testing.T) {
	ident := newFakeIdentityAdmin()
	users := newFakeProvisioningUsers()
	users.profileFailFor = "x@school.io"
	svc := newProvisioningService(ident, users, newFakeProvisioningTeachers(), newFakeProvisioningStudents())

	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("x@school.io")},
		UserType: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Empty(t, ident.created, "identity must be deleted when the profile write fails")
	assert.Len(t, ident.deleted, 1)
	assert.Empty(t, users.roles)
}

func TestBulkProvisionRollsBackProfileAndIdentityWhenRoleFails(t *testing.T) {
	ident := newFakeIdentityAdmin()
	users := newFakeProvisioningUsers()
	users.roleFailFor = "y@school.io"
	svc := newProvisioningService(ident, users, newFakeProvisioningTeachers(), newFakeProvisioningStudents())

	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("y@school.io")},
		UserType: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Empty(t, users.profiles)
	assert.Empty(t, ident.created)
}

func TestBulkProvisionTeacherRecordFailureRollsBackAll(t *testing.T) {
	ident := newFakeIdentityAdmin()
	users := newFakeProvisioningUsers()
	teachers := newFakeProvisioningTeachers()
	teachers.failFor = "t@school.io"
	svc := newProvisioningService(ident, users, teachers, newFakeProvisioningStudents())

	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("t@school.io")},
		UserType: "teacher",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Empty(t, users.profiles)
	assert.Empty(t, users.roles)
	assert.Empty(t, ident.created)
}

func TestBulkProvisionRollbackFailureIsAudited(t *testing.T) {
	ident := newFakeIdentityAdmin()
	ident.deleteErr = errors.New("identity API unreachable")
	users := newFakeProvisioningUsers()
	users.profileFailFor = "z@school.io"
	svc := newProvisioningService(ident, users, newFakeProvisioningTeachers(), newFakeProvisioningStudents())

	_, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("z@school.io")},
		UserType: "admin",
	})
	require.NoError(t, err)

	var found bool
	for _, log := range users.auditLogs {
		if log.Action == models.AuditActionRollbackFailed {
			found = true
		}
	}
	assert.True(t, found, "a failed compensation must leave an audit record")
}

func TestBulkProvisionParentLinksPlaceholderStudent(t *testing.T) {
	ident := newFakeIdentityAdmin()
	students := newFakeProvisioningStudents()
	students.unassigned["Sara Karimi"] = models.Student{ID: "s1", FullName: "Sara Karimi"}
	svc := newProvisioningService(ident, newFakeProvisioningUsers(), newFakeProvisioningTeachers(), students)

	name := "Sara Karimi"
	desc := descriptor("parent@school.io")
	desc.TempStudentName = &name
	result, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{desc},
		UserType: "parent",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, "parent@school.io", students.parents["s1"])
}

func TestBulkProvisionRejectsOversizedBatch(t *testing.T) {
	svc := NewProvisioningService(newFakeIdentityAdmin(), newFakeProvisioningUsers(), newFakeProvisioningTeachers(), newFakeProvisioningStudents(), nil, NewValidator(), nil, ProvisioningConfig{MaxBatchSize: 2})

	_, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{descriptor("a@x.io"), descriptor("b@x.io"), descriptor("c@x.io")},
		UserType: "admin",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBulkProvisionRejectsBadUsername(t *testing.T) {
	svc := newProvisioningService(newFakeIdentityAdmin(), newFakeProvisioningUsers(), newFakeProvisioningTeachers(), newFakeProvisioningStudents())

	desc := descriptor("a@x.io")
	desc.Username = "has space"
	_, err := svc.BulkProvision(context.Background(), "admin1", models.BulkProvisionRequest{
		Users:    []models.UserDescriptor{desc},
		UserType: "admin",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateTeacherSingle(t *testing.T) {
	ident := newFakeIdentityAdmin()
	teachers := newFakeProvisioningTeachers()
	svc := newProvisioningService(ident, newFakeProvisioningUsers(), teachers, newFakeProvisioningStudents())

	subject := "Mathematics"
	account, err := svc.CreateTeacher(context.Background(), "admin1", models.CreateTeacherRequest{
		Email:    "math@school.io",
		Password: "password123",
		FullName: "Math Teacher",
		Username: "math_teacher",
		Subject:  &subject,
	})
	require.NoError(t, err)
	assert.Equal(t, "math@school.io", account.Email)
	require.Len(t, teachers.byUser, 1)
	assert.Equal(t, &subject, teachers.byUser[account.ID].Subject)
}
