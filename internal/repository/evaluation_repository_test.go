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

func TestListByClassDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "date", "homework_done", "class_score", "notes", "recorded_by", "created_at", "updated_at"}).
		AddRow("e1", "s1", "c1", day, true, 8, nil, "t1", day, day).
		AddRow("e2", "s2", "c1", day, false, nil, "talked in class", "t1", day, day)
	mock.ExpectQuery("SELECT .+ FROM evaluations").
		WithArgs("c1", day).
		WillReturnRows(rows)

	existing, err := repo.ListByClassDate(context.Background(), "c1", day)
	require.NoError(t, err)
	require.Len(t, existing, 2)
	assert.Equal(t, "e1", existing["s1"].ID)
	require.NotNil(t, existing["s1"].ClassScore)
	assert.Equal(t, 8, *existing["s1"].ClassScore)
	assert.Nil(t, existing["s2"].ClassScore)
}

func TestUpsertBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evaluations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO evaluations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	score := 7
	evaluations := []models.Evaluation{
		{StudentID: "s1", ClassID: "c1", Date: time.Now(), HomeworkDone: true, ClassScore: &score, RecordedBy: "t1"},
		{ID: "e2", StudentID: "s2", ClassID: "c1", Date: time.Now(), RecordedBy: "t1"},
	}
	err := repo.UpsertBatch(context.Background(), evaluations)
	require.NoError(t, err)
	assert.NotEmpty(t, evaluations[0].ID)
	assert.Equal(t, "e2", evaluations[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	err := repo.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
