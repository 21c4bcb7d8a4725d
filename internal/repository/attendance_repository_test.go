package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabestan-dev/dabestan-api/internal/models"
)

func TestReplaceSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	key := models.AttendanceSessionKey{
		ClassSubjectID: "cs1",
		Date:           time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		LessonPeriod:   2,
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance").
		WithArgs(key.ClassSubjectID, key.Date, key.LessonPeriod).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO attendance").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	records := []models.AttendanceRecord{
		{StudentID: "s1", Status: models.AttendanceStatusAbsent, RecordedBy: "t1"},
		{StudentID: "s2", Status: models.AttendanceStatusLate, RecordedBy: "t1"},
	}
	err := repo.ReplaceSession(context.Background(), key, records)
	require.NoError(t, err)
	assert.NotEmpty(t, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSessionEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	key := models.AttendanceSessionKey{ClassSubjectID: "cs1", Date: time.Now(), LessonPeriod: 1}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.ReplaceSession(context.Background(), key, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceSessionRollsBackOnInsertFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	key := models.AttendanceSessionKey{ClassSubjectID: "cs1", Date: time.Now(), LessonPeriod: 1}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM attendance").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO attendance").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.ReplaceSession(context.Background(), key, []models.AttendanceRecord{
		{StudentID: "s1", Status: models.AttendanceStatusAbsent, RecordedBy: "t1"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJustificationNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("UPDATE attendance SET is_justified").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateJustification(context.Background(), "missing", "sick", nil, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAttendanceFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "class_subject_id", "date", "lesson_period", "status",
		"is_justified", "justification", "medical_note_url", "recorded_by", "created_at", "updated_at",
		"student_name", "class_name", "subject_name",
	}).AddRow("a1", "s1", "cs1", now, 1, "absent", nil, nil, nil, "t1", now, now, "Student One", "10-A", "Math")

	mock.ExpectQuery("SELECT .+ FROM attendance a").WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.AttendanceStatusAbsent
	records, total, err := repo.List(context.Background(), models.AttendanceFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.AttendanceStatusAbsent, records[0].Status)
}
