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

func TestCreateDisciplineRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDisciplineRepository(db)

	mock.ExpectExec("INSERT INTO discipline_records").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.DisciplineRecord{
		StudentID:   "s1",
		ClassID:     "c1",
		Description: "disrupted the lesson",
		Severity:    models.DisciplineSeverityMedium,
		RecordedBy:  "t1",
	}
	err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDisciplineBySeverity(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDisciplineRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "description", "severity", "recorded_by", "created_at",
		"student_name", "class_name", "recorder_name",
	}).AddRow("d1", "s1", "c1", "late homework", "high", "t1", now, "Student One", "10-A", "Teacher One")

	mock.ExpectQuery("SELECT .+ FROM discipline_records d").WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	severity := models.DisciplineSeverityHigh
	records, total, err := repo.List(context.Background(), models.DisciplineFilter{Severity: &severity})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDisciplineNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDisciplineRepository(db)

	mock.ExpectExec("DELETE FROM discipline_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
