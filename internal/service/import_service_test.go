package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type fakeBulkProvisioner struct {
	requests []models.BulkProvisionRequest
	result   *models.BulkProvisionResult
}

func (f *fakeBulkProvisioner) BulkProvision(_ context.Context, _ string, req models.BulkProvisionRequest) (*models.BulkProvisionResult, error) {
	f.requests = append(f.requests, req)
	if f.result != nil {
		return f.result, nil
	}
	return &models.BulkProvisionResult{Success: true, SuccessCount: len(req.Users)}, nil
}

type fakeStudentCreator struct {
	requests []StudentRequest
	failOn   map[string]error
}

func (f *fakeStudentCreator) Create(_ context.Context, req StudentRequest) (*models.Student, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.failOn[req.FullName]; ok {
		return nil, err
	}
	return &models.Student{ID: "st-" + req.FullName, FullName: req.FullName}, nil
}

func importWorkbook(t *testing.T, headers []string, rows [][]string) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue(sheet, cell, h))
	}
	for r, row := range rows {
		for col, value := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, value))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return bytes.NewReader(buf.Bytes())
}

func importFixture() (*ImportService, *fakeBulkProvisioner, *fakeStudentCreator) {
	provisioner := &fakeBulkProvisioner{}
	students := &fakeStudentCreator{}
	svc := NewImportService(provisioner, students, ImportConfig{SessionTTL: time.Minute, PreviewRows: 2}, nil)
	return svc, provisioner, students
}

func TestUploadAutoMapsKnownHeaders(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"EMAIL", "username", "Full Name", "Password", "Extra"},
		[][]string{{"a@x.io", "user_a", "User A", "password123", "ignored"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStepMap, session.Step)
	assert.Equal(t, "EMAIL", session.Mapping["email"])
	assert.Equal(t, "username", session.Mapping["username"])
	assert.Equal(t, "Full Name", session.Mapping["full_name"])
	assert.Equal(t, "Password", session.Mapping["password"])
	assert.NotContains(t, session.Mapping, "temp_student_name")
}

func TestUploadRejectsUnknownTarget(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t, []string{"A"}, [][]string{{"x"}})
	_, err := svc.Upload("grades", reader)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSetMappingRequiresAllRequiredFields(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"A", "B", "C", "D"},
		[][]string{{"a@x.io", "user_a", "User A", "password123"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)

	_, err = svc.SetMapping(session.ID, map[string]string{
		"email":    "A",
		"username": "B",
		// full_name and password left unmapped
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnprocessable.Code, appErrors.FromError(err).Code)
}

func TestSetMappingRejectsDuplicateColumnUse(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"A", "B", "C", "D"},
		[][]string{{"a@x.io", "user_a", "User A", "password123"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)

	_, err = svc.SetMapping(session.ID, map[string]string{
		"email":     "A",
		"username":  "A",
		"full_name": "C",
		"password":  "D",
	})
	require.Error(t, err)
}

func TestPreviewLimitsRows(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"Email", "Username", "Full Name", "Password"},
		[][]string{
			{"a@x.io", "user_a", "User A", "password123"},
			{"b@x.io", "user_b", "User B", "password123"},
			{"c@x.io", "user_c", "User C", "password123"},
		},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)
	_, err = svc.SetMapping(session.ID, session.Mapping)
	require.NoError(t, err)

	preview, total, err := svc.Preview(session.ID)
	require.NoError(t, err)
	assert.Len(t, preview, 2)
	assert.Equal(t, 3, total)
	assert.Equal(t, "a@x.io", preview[0]["email"])
}

func TestCommitBuildsProvisioningBatch(t *testing.T) {
	svc, provisioner, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"Email", "Username", "Full Name", "Password", "Student Name"},
		[][]string{
			{"p@x.io", "parent_p", "Parent P", "password123", "Sara Karimi"},
		},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)
	mapping := session.Mapping
	mapping["temp_student_name"] = "Student Name"
	_, err = svc.SetMapping(session.ID, mapping)
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), "admin1", session.ID, map[string]string{"userType": "parent"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, provisioner.requests, 1)
	batch := provisioner.requests[0]
	assert.Equal(t, "parent", batch.UserType)
	require.Len(t, batch.Users, 1)
	assert.Equal(t, "p@x.io", batch.Users[0].Email)
	require.NotNil(t, batch.Users[0].TempStudentName)
	assert.Equal(t, "Sara Karimi", *batch.Users[0].TempStudentName)
}

func TestCommitUsersRequiresUserTypeOption(t *testing.T) {
	svc, provisioner, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"Email", "Username", "Full Name", "Password"},
		[][]string{{"a@x.io", "user_a", "User A", "password123"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)
	_, err = svc.SetMapping(session.ID, session.Mapping)
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), "admin1", session.ID, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, provisioner.requests)
}

func TestCommitStudentsReportsPerRowFailures(t *testing.T) {
	svc, _, students := importFixture()
	students.failOn = map[string]error{
		"Broken Row": appErrors.Clone(appErrors.ErrValidation, "class does not exist"),
	}

	reader := importWorkbook(t,
		[]string{"Full Name", "Class ID"},
		[][]string{
			{"Sara Karimi", "class-1"},
			{"Broken Row", "missing"},
			{"Omid Nouri", ""},
		},
	)
	session, err := svc.Upload(ImportTargetStudents, reader)
	require.NoError(t, err)
	_, err = svc.SetMapping(session.ID, session.Mapping)
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), "admin1", session.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 2")

	require.Len(t, students.requests, 3)
	require.NotNil(t, students.requests[0].ClassID)
	assert.Equal(t, "class-1", *students.requests[0].ClassID)
	assert.Nil(t, students.requests[2].ClassID)
}

func TestCommitSkipsBlankMappedRows(t *testing.T) {
	svc, _, students := importFixture()

	// Only the unmapped Notes column carries data: the mapped set is empty
	// and the importer must not run.
	reader := importWorkbook(t,
		[]string{"Full Name", "Notes"},
		[][]string{{"", "internal remark"}},
	)
	session, err := svc.Upload(ImportTargetStudents, reader)
	require.NoError(t, err)
	_, err = svc.SetMapping(session.ID, map[string]string{"full_name": "Full Name"})
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), "admin1", session.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.SuccessCount)
	assert.Empty(t, students.requests)

	refreshed, err := svc.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStepResults, refreshed.Step)
}

func TestCommitRequiresPreviewStep(t *testing.T) {
	svc, _, _ := importFixture()

	reader := importWorkbook(t,
		[]string{"Email", "Username", "Full Name", "Password"},
		[][]string{{"a@x.io", "user_a", "User A", "password123"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), "admin1", session.ID, map[string]string{"userType": "admin"})
	require.Error(t, err)
}

func TestSessionExpires(t *testing.T) {
	svc := NewImportService(&fakeBulkProvisioner{}, &fakeStudentCreator{}, ImportConfig{SessionTTL: -time.Second, PreviewRows: 5}, nil)

	reader := importWorkbook(t,
		[]string{"Email", "Username", "Full Name", "Password"},
		[][]string{{"a@x.io", "user_a", "User A", "password123"}},
	)
	session, err := svc.Upload(ImportTargetUsers, reader)
	require.NoError(t, err)

	_, err = svc.Get(session.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
