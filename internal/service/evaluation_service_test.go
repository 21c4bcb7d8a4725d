package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
)

type fakeEvaluationRepo struct {
	stored   map[string]models.Evaluation
	upserted [][]models.Evaluation
}

func newFakeEvaluationRepo() *fakeEvaluationRepo {
	return &fakeEvaluationRepo{stored: map[string]models.Evaluation{}}
}

func (f *fakeEvaluationRepo) ListByClassDate(_ context.Context, _ string, _ time.Time) (map[string]models.Evaluation, error) {
	out := make(map[string]models.Evaluation, len(f.stored))
	for k, v := range f.stored {
		out[k] = v
	}
	return out, nil
}

func (f *fakeEvaluationRepo) UpsertBatch(_ context.Context, evaluations []models.Evaluation) error {
	f.upserted = append(f.upserted, evaluations)
	for _, ev := range evaluations {
		f.stored[ev.StudentID] = ev
	}
	return nil
}

func (f *fakeEvaluationRepo) List(_ context.Context, _ models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	return nil, 0, nil
}

func evaluationFixture() (*EvaluationService, *fakeEvaluationRepo) {
	evaluations := newFakeEvaluationRepo()
	students := newFakeStudentRepo()
	students.byClass["c1"] = []models.Student{
		{ID: "s1"}, {ID: "s2"}, {ID: "s3"},
	}
	svc := NewEvaluationService(evaluations, students, NewValidator(), nil)
	return svc, evaluations
}

func evalTeacher() *models.JWTClaims {
	return &models.JWTClaims{UserID: "teacher-user", Role: models.RoleTeacher}
}

func TestSaveWritesOnlyChangedRows(t *testing.T) {
	svc, evaluations := evaluationFixture()

	score := 8
	evaluations.stored["s1"] = models.Evaluation{
		ID: "e1", StudentID: "s1", ClassID: "c1", HomeworkDone: true, ClassScore: &score,
	}

	sameScore := 8
	newScore := 5
	result, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{
			{StudentID: "s1", HomeworkDone: true, ClassScore: &sameScore},
			{StudentID: "s2", HomeworkDone: false, ClassScore: &newScore},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Unchanged)
	require.Len(t, evaluations.upserted, 1)
	require.Len(t, evaluations.upserted[0], 1)
	assert.Equal(t, "s2", evaluations.upserted[0][0].StudentID)
}

func TestSaveZeroScoreDiffersFromNoScore(t *testing.T) {
	svc, evaluations := evaluationFixture()

	evaluations.stored["s1"] = models.Evaluation{
		ID: "e1", StudentID: "s1", ClassID: "c1", HomeworkDone: true, ClassScore: nil,
	}

	zero := 0
	result, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{
			{StudentID: "s1", HomeworkDone: true, ClassScore: &zero},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written, "a zero score must not be treated as an absent score")
}

func TestSaveEmptyNotesEqualNilNotes(t *testing.T) {
	svc, evaluations := evaluationFixture()

	evaluations.stored["s1"] = models.Evaluation{
		ID: "e1", StudentID: "s1", ClassID: "c1", HomeworkDone: true, Notes: nil,
	}

	empty := ""
	result, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{
			{StudentID: "s1", HomeworkDone: true, Notes: &empty},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 1, result.Unchanged)
}

func TestSaveSkipsBlankNewRows(t *testing.T) {
	svc, evaluations := evaluationFixture()

	result, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{
			{StudentID: "s1"},
			{StudentID: "s2", HomeworkDone: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1, result.Unchanged)
	assert.NotContains(t, evaluations.stored, "s1")
}

func TestSaveRejectsStudentOutsideClass(t *testing.T) {
	svc, _ := evaluationFixture()

	_, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{{StudentID: "stranger", HomeworkDone: true}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSaveRejectsScoreOutOfRange(t *testing.T) {
	svc, _ := evaluationFixture()

	big := 42
	_, err := svc.Save(context.Background(), evalTeacher(), SaveEvaluationsRequest{
		ClassID: "c1",
		Date:    "2026-03-10",
		Entries: []EvaluationEntry{{StudentID: "s1", ClassScore: &big}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
