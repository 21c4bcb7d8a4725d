package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dabestan-dev/dabestan-api/internal/models"
)

// EvaluationRepository handles persistence for daily evaluations.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

const evaluationDetailColumns = `e.id, e.student_id, e.class_id, e.date, e.homework_done, e.class_score,
e.notes, e.recorded_by, e.created_at, e.updated_at,
s.full_name AS student_name, c.name AS class_name`

const evaluationDetailJoins = `FROM evaluations e
JOIN students s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id`

// ListByClassDate loads the existing evaluations of a class for one day,
// keyed by student. The service diffs incoming edits against this snapshot.
func (r *EvaluationRepository) ListByClassDate(ctx context.Context, classID string, date time.Time) (map[string]models.Evaluation, error) {
	const query = `SELECT id, student_id, class_id, date, homework_done, class_score, notes, recorded_by, created_at, updated_at
FROM evaluations WHERE class_id = $1 AND date = $2`
	var rows []models.Evaluation
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("list evaluations by class date: %w", err)
	}
	existing := make(map[string]models.Evaluation, len(rows))
	for _, row := range rows {
		existing[row.StudentID] = row
	}
	return existing, nil
}

// UpsertBatch writes the given evaluations, inserting new rows and
// overwriting the observable fields of existing ones. The unique key is
// (student_id, class_id, date).
func (r *EvaluationRepository) UpsertBatch(ctx context.Context, evaluations []models.Evaluation) error {
	if len(evaluations) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert evaluations: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO evaluations (id, student_id, class_id, date, homework_done, class_score, notes, recorded_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (student_id, class_id, date) DO UPDATE SET
homework_done = EXCLUDED.homework_done,
class_score = EXCLUDED.class_score,
notes = EXCLUDED.notes,
recorded_by = EXCLUDED.recorded_by,
updated_at = NOW()`
	for i := range evaluations {
		ev := &evaluations[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, query,
			ev.ID, ev.StudentID, ev.ClassID, ev.Date,
			ev.HomeworkDone, ev.ClassScore, ev.Notes, ev.RecordedBy); err != nil {
			return fmt.Errorf("upsert evaluation row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit evaluations: %w", err)
	}
	return nil
}

// List returns evaluations matching the filter alongside the total.
func (r *EvaluationRepository) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("e.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("e.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":         "e.date",
		"student_name": "s.full_name",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "e.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY %s %s, s.full_name ASC LIMIT %d OFFSET %d",
		evaluationDetailColumns, evaluationDetailJoins, whereClause, sortColumn, order, size, offset)
	var evaluations []models.EvaluationDetail
	if err := r.db.SelectContext(ctx, &evaluations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list evaluations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", evaluationDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count evaluations: %w", err)
	}
	return evaluations, total, nil
}
