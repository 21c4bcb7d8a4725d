package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type fakeDisciplineRepo struct {
	records map[string]models.DisciplineDetail
	nextID  int
}

func newFakeDisciplineRepo() *fakeDisciplineRepo {
	return &fakeDisciplineRepo{records: map[string]models.DisciplineDetail{}}
}

func (f *fakeDisciplineRepo) Create(_ context.Context, record *models.DisciplineRecord) error {
	f.nextID++
	if record.ID == "" {
		record.ID = "d" + string(rune('0'+f.nextID))
	}
	f.records[record.ID] = models.DisciplineDetail{DisciplineRecord: *record}
	return nil
}

func (f *fakeDisciplineRepo) FindByID(_ context.Context, id string) (*models.DisciplineDetail, error) {
	detail, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

func (f *fakeDisciplineRepo) List(_ context.Context, _ models.DisciplineFilter) ([]models.DisciplineDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeDisciplineRepo) Update(_ context.Context, record *models.DisciplineRecord) error {
	f.records[record.ID] = models.DisciplineDetail{DisciplineRecord: *record}
	return nil
}

func (f *fakeDisciplineRepo) Delete(_ context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func disciplineFixture() (*DisciplineService, *fakeDisciplineRepo) {
	records := newFakeDisciplineRepo()
	students := newFakeStudentRepo()
	students.byID["s1"] = models.StudentDetail{Student: models.Student{ID: "s1"}}
	return NewDisciplineService(records, students, NewValidator(), nil), records
}

func TestCreateDiscipline(t *testing.T) {
	svc, records := disciplineFixture()

	actor := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	record, err := svc.Create(context.Background(), actor, CreateDisciplineRequest{
		StudentID:   "s1",
		ClassID:     "c1",
		Description: "disrupted the lesson",
		Severity:    models.DisciplineSeverityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", record.RecordedBy)
	assert.Len(t, records.records, 1)
}

func TestCreateDisciplineUnknownStudent(t *testing.T) {
	svc, _ := disciplineFixture()

	actor := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	_, err := svc.Create(context.Background(), actor, CreateDisciplineRequest{
		StudentID:   "missing",
		ClassID:     "c1",
		Description: "x",
		Severity:    models.DisciplineSeverityLow,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateDisciplineOnlyRecorder(t *testing.T) {
	svc, _ := disciplineFixture()

	recorder := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	record, err := svc.Create(context.Background(), recorder, CreateDisciplineRequest{
		StudentID:   "s1",
		ClassID:     "c1",
		Description: "original",
		Severity:    models.DisciplineSeverityLow,
	})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher}
	_, err = svc.Update(context.Background(), other, record.ID, UpdateDisciplineRequest{
		Description: "changed",
		Severity:    models.DisciplineSeverityHigh,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), recorder, record.ID, UpdateDisciplineRequest{
		Description: "changed",
		Severity:    models.DisciplineSeverityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DisciplineSeverityHigh, updated.Severity)
}

func TestDeleteDisciplineOnlyRecorder(t *testing.T) {
	svc, records := disciplineFixture()

	recorder := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	record, err := svc.Create(context.Background(), recorder, CreateDisciplineRequest{
		StudentID:   "s1",
		ClassID:     "c1",
		Description: "x",
		Severity:    models.DisciplineSeverityLow,
	})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher}
	err = svc.Delete(context.Background(), other, record.ID)
	require.Error(t, err)
	assert.Len(t, records.records, 1)

	require.NoError(t, svc.Delete(context.Background(), recorder, record.ID))
	assert.Empty(t, records.records)
}
