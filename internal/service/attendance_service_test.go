package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type fakeAttendanceRepo struct {
	sessions   map[models.AttendanceSessionKey][]models.AttendanceRecord
	records    map[string]models.AttendanceDetail
	justified  map[string]string
	updateErr  error
	replaceErr error
}

func newFakeAttendanceRepo() *fakeAttendanceRepo {
	return &fakeAttendanceRepo{
		sessions:  map[models.AttendanceSessionKey][]models.AttendanceRecord{},
		records:   map[string]models.AttendanceDetail{},
		justified: map[string]string{},
	}
}

func (f *fakeAttendanceRepo) ListSession(_ context.Context, key models.AttendanceSessionKey) ([]models.AttendanceRecord, error) {
	return f.sessions[key], nil
}

func (f *fakeAttendanceRepo) ReplaceSession(_ context.Context, key models.AttendanceSessionKey, records []models.AttendanceRecord) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.sessions[key] = records
	return nil
}

func (f *fakeAttendanceRepo) FindByID(_ context.Context, id string) (*models.AttendanceDetail, error) {
	detail, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

func (f *fakeAttendanceRepo) List(_ context.Context, _ models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeAttendanceRepo) UpdateJustification(_ context.Context, id string, justification string, _ *string, _ time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.justified[id] = justification
	return nil
}

func (f *fakeAttendanceRepo) ClearJustification(_ context.Context, id string) error {
	delete(f.justified, id)
	return nil
}

func (f *fakeAttendanceRepo) Summarize(_ context.Context, _ string, _, _ time.Time) ([]repository.AbsenceSummary, error) {
	return nil, nil
}

type fakeAssignmentRepo struct {
	assignments map[string]models.ClassSubjectDetail
	owners      map[string]string
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: map[string]models.ClassSubjectDetail{}, owners: map[string]string{}}
}

func (f *fakeAssignmentRepo) TeacherOwns(_ context.Context, classSubjectID, teacherID string) (bool, error) {
	return f.owners[classSubjectID] == teacherID, nil
}

func (f *fakeAssignmentRepo) FindByID(_ context.Context, id string) (*models.ClassSubjectDetail, error) {
	detail, ok := f.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

type fakeStudentRepo struct {
	byClass map[string][]models.Student
	byID    map[string]models.StudentDetail
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{byClass: map[string][]models.Student{}, byID: map[string]models.StudentDetail{}}
}

func (f *fakeStudentRepo) ListByClass(_ context.Context, classID string) ([]models.Student, error) {
	return f.byClass[classID], nil
}

func (f *fakeStudentRepo) FindByID(_ context.Context, id string) (*models.StudentDetail, error) {
	detail, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

type fakeTeacherRepo struct {
	byUser map[string]models.Teacher
}

func (f *fakeTeacherRepo) FindByUserID(_ context.Context, userID string) (*models.Teacher, error) {
	teacher, ok := f.byUser[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &teacher, nil
}

type fakeStorage struct {
	saved   map[string]string
	deleted []string
	saveErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: map[string]string{}}
}

func (f *fakeStorage) SaveStream(filename string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	data, _ := io.ReadAll(r)
	f.saved[filename] = string(data)
	return filename, nil
}

func (f *fakeStorage) Delete(filename string) error {
	f.deleted = append(f.deleted, filename)
	delete(f.saved, filename)
	return nil
}

func (f *fakeStorage) PublicURL(filename string) string {
	return "/files/" + filename
}

func attendanceFixture() (*AttendanceService, *fakeAttendanceRepo, *fakeAssignmentRepo, *fakeStudentRepo, *fakeStorage) {
	attendance := newFakeAttendanceRepo()
	assignments := newFakeAssignmentRepo()
	students := newFakeStudentRepo()
	teachers := &fakeTeacherRepo{byUser: map[string]models.Teacher{
		"teacher-user": {ID: "t1", UserID: "teacher-user"},
	}}
	storage := newFakeStorage()

	assignments.assignments["cs1"] = models.ClassSubjectDetail{
		ClassSubject: models.ClassSubject{ID: "cs1", ClassID: "c1", SubjectID: "sub1", TeacherID: "t1"},
	}
	assignments.owners["cs1"] = "t1"
	students.byClass["c1"] = []models.Student{
		{ID: "s1", FullName: "Student One"},
		{ID: "s2", FullName: "Student Two"},
		{ID: "s3", FullName: "Student Three"},
	}

	svc := NewAttendanceService(attendance, assignments, students, teachers, storage, NewValidator(), nil)
	return svc, attendance, assignments, students, storage
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-user", Role: models.RoleTeacher}
}

func TestRecordSessionPersistsOnlyAbsentAndLate(t *testing.T) {
	svc, attendance, _, _, _ := attendanceFixture()

	err := svc.RecordSession(context.Background(), teacherClaims(), RecordSessionRequest{
		ClassSubjectID: "cs1",
		Date:           "2026-03-10",
		LessonPeriod:   2,
		Entries: []AttendanceEntry{
			{StudentID: "s1", Status: models.AttendanceStatusPresent},
			{StudentID: "s2", Status: models.AttendanceStatusAbsent},
			{StudentID: "s3", Status: models.AttendanceStatusLate},
		},
	})
	require.NoError(t, err)

	key := models.AttendanceSessionKey{
		ClassSubjectID: "cs1",
		Date:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LessonPeriod:   2,
	}
	stored := attendance.sessions[key]
	require.Len(t, stored, 2)
	statuses := map[string]models.AttendanceStatus{}
	for _, rec := range stored {
		statuses[rec.StudentID] = rec.Status
	}
	assert.Equal(t, models.AttendanceStatusAbsent, statuses["s2"])
	assert.Equal(t, models.AttendanceStatusLate, statuses["s3"])
	assert.NotContains(t, statuses, "s1")
}

func TestRecordSessionIsIdempotent(t *testing.T) {
	svc, attendance, _, _, _ := attendanceFixture()

	req := RecordSessionRequest{
		ClassSubjectID: "cs1",
		Date:           "2026-03-10",
		LessonPeriod:   1,
		Entries: []AttendanceEntry{
			{StudentID: "s1", Status: models.AttendanceStatusAbsent},
			{StudentID: "s2", Status: models.AttendanceStatusPresent},
			{StudentID: "s3", Status: models.AttendanceStatusPresent},
		},
	}
	require.NoError(t, svc.RecordSession(context.Background(), teacherClaims(), req))
	require.NoError(t, svc.RecordSession(context.Background(), teacherClaims(), req))

	key := models.AttendanceSessionKey{
		ClassSubjectID: "cs1",
		Date:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LessonPeriod:   1,
	}
	assert.Len(t, attendance.sessions[key], 1)
}

func TestRecordSessionCorrectionRemovesStaleRows(t *testing.T) {
	svc, attendance, _, _, _ := attendanceFixture()

	first := RecordSessionRequest{
		ClassSubjectID: "cs1",
		Date:           "2026-03-10",
		LessonPeriod:   1,
		Entries: []AttendanceEntry{
			{StudentID: "s1", Status: models.AttendanceStatusAbsent},
			{StudentID: "s2", Status: models.AttendanceStatusPresent},
			{StudentID: "s3", Status: models.AttendanceStatusPresent},
		},
	}
	require.NoError(t, svc.RecordSession(context.Background(), teacherClaims(), first))

	// Teacher corrects the form: s1 was actually present, s2 was late.
	second := first
	second.Entries = []AttendanceEntry{
		{StudentID: "s1", Status: models.AttendanceStatusPresent},
		{StudentID: "s2", Status: models.AttendanceStatusLate},
		{StudentID: "s3", Status: models.AttendanceStatusPresent},
	}
	require.NoError(t, svc.RecordSession(context.Background(), teacherClaims(), second))

	key := models.AttendanceSessionKey{
		ClassSubjectID: "cs1",
		Date:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LessonPeriod:   1,
	}
	stored := attendance.sessions[key]
	require.Len(t, stored, 1)
	assert.Equal(t, "s2", stored[0].StudentID)
	assert.Equal(t, models.AttendanceStatusLate, stored[0].Status)
}

func TestRecordSessionRejectsForeignTeacher(t *testing.T) {
	svc, _, _, _, _ := attendanceFixture()

	other := &models.JWTClaims{UserID: "other-user", Role: models.RoleTeacher}
	err := svc.RecordSession(context.Background(), other, RecordSessionRequest{
		ClassSubjectID: "cs1",
		Date:           "2026-03-10",
		LessonPeriod:   1,
		Entries:        []AttendanceEntry{{StudentID: "s1", Status: models.AttendanceStatusAbsent}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRecordSessionRejectsStudentOutsideClass(t *testing.T) {
	svc, _, _, _, _ := attendanceFixture()

	err := svc.RecordSession(context.Background(), teacherClaims(), RecordSessionRequest{
		ClassSubjectID: "cs1",
		Date:           "2026-03-10",
		LessonPeriod:   1,
		Entries:        []AttendanceEntry{{StudentID: "stranger", Status: models.AttendanceStatusAbsent}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJustifyOwnChildAbsence(t *testing.T) {
	svc, attendance, _, students, storage := attendanceFixture()

	parentID := "parent-user"
	attendance.records["a1"] = models.AttendanceDetail{
		AttendanceRecord: models.AttendanceRecord{ID: "a1", StudentID: "s1", Status: models.AttendanceStatusAbsent},
	}
	students.byID["s1"] = models.StudentDetail{
		Student: models.Student{ID: "s1", FullName: "Student One", ParentID: &parentID},
	}

	actor := &models.JWTClaims{UserID: parentID, Role: models.RoleParent}
	err := svc.Justify(context.Background(), actor, "a1", JustifyRequest{Justification: "doctor visit"}, strings.NewReader("scan"), "note.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doctor visit", attendance.justified["a1"])
	assert.Len(t, storage.saved, 1)
}

func TestJustifyRejectsOtherParents(t *testing.T) {
	svc, attendance, _, students, _ := attendanceFixture()

	realParent := "parent-user"
	attendance.records["a1"] = models.AttendanceDetail{
		AttendanceRecord: models.AttendanceRecord{ID: "a1", StudentID: "s1", Status: models.AttendanceStatusAbsent},
	}
	students.byID["s1"] = models.StudentDetail{
		Student: models.Student{ID: "s1", ParentID: &realParent},
	}

	actor := &models.JWTClaims{UserID: "intruder", Role: models.RoleParent}
	err := svc.Justify(context.Background(), actor, "a1", JustifyRequest{Justification: "sick"}, nil, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestJustifyRejectsLateRecords(t *testing.T) {
	svc, attendance, _, students, _ := attendanceFixture()

	parentID := "parent-user"
	attendance.records["a1"] = models.AttendanceDetail{
		AttendanceRecord: models.AttendanceRecord{ID: "a1", StudentID: "s1", Status: models.AttendanceStatusLate},
	}
	students.byID["s1"] = models.StudentDetail{
		Student: models.Student{ID: "s1", ParentID: &parentID},
	}

	actor := &models.JWTClaims{UserID: parentID, Role: models.RoleParent}
	err := svc.Justify(context.Background(), actor, "a1", JustifyRequest{Justification: "traffic"}, nil, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJustifyDeletesNoteWhenUpdateFails(t *testing.T) {
	svc, attendance, _, students, storage := attendanceFixture()

	parentID := "parent-user"
	attendance.records["a1"] = models.AttendanceDetail{
		AttendanceRecord: models.AttendanceRecord{ID: "a1", StudentID: "s1", Status: models.AttendanceStatusAbsent},
	}
	attendance.updateErr = errors.New("db down")
	students.byID["s1"] = models.StudentDetail{
		Student: models.Student{ID: "s1", ParentID: &parentID},
	}

	actor := &models.JWTClaims{UserID: parentID, Role: models.RoleParent}
	err := svc.Justify(context.Background(), actor, "a1", JustifyRequest{Justification: "flu"}, strings.NewReader("scan"), "note.jpg")
	require.Error(t, err)
	assert.Empty(t, storage.saved, "uploaded note must be removed when the row update fails")
	assert.Len(t, storage.deleted, 1)
}
