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

// AttendanceRepository handles persistence for attendance rows. Present is
// the implicit default of a session; only absent and late rows exist.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceDetailColumns = `a.id, a.student_id, a.class_subject_id, a.date, a.lesson_period, a.status,
a.is_justified, a.justification, a.medical_note_url, a.recorded_by, a.created_at, a.updated_at,
s.full_name AS student_name, c.name AS class_name, sub.name AS subject_name`

const attendanceDetailJoins = `FROM attendance a
JOIN students s ON s.id = a.student_id
JOIN class_subjects cs ON cs.id = a.class_subject_id
LEFT JOIN classes c ON c.id = cs.class_id
LEFT JOIN subjects sub ON sub.id = cs.subject_id`

// ListSession returns the persisted rows of one session snapshot.
func (r *AttendanceRepository) ListSession(ctx context.Context, key models.AttendanceSessionKey) ([]models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, class_subject_id, date, lesson_period, status,
is_justified, justification, medical_note_url, recorded_by, created_at, updated_at
FROM attendance WHERE class_subject_id = $1 AND date = $2 AND lesson_period = $3`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, key.ClassSubjectID, key.Date, key.LessonPeriod); err != nil {
		return nil, fmt.Errorf("list attendance session: %w", err)
	}
	return records, nil
}

// ReplaceSession atomically swaps the session snapshot: every row keyed by
// (class_subject_id, date, lesson_period) is deleted, then the given rows
// are inserted. Submitting the same form twice converges on the same state.
func (r *AttendanceRepository) ReplaceSession(ctx context.Context, key models.AttendanceSessionKey, records []models.AttendanceRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace attendance session: %w", err)
	}
	defer tx.Rollback()

	const deleteQuery = `DELETE FROM attendance WHERE class_subject_id = $1 AND date = $2 AND lesson_period = $3`
	if _, err := tx.ExecContext(ctx, deleteQuery, key.ClassSubjectID, key.Date, key.LessonPeriod); err != nil {
		return fmt.Errorf("clear attendance session: %w", err)
	}

	const insertQuery = `INSERT INTO attendance (id, student_id, class_subject_id, date, lesson_period, status, is_justified, recorded_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, insertQuery,
			rec.ID, rec.StudentID, key.ClassSubjectID, key.Date, key.LessonPeriod,
			rec.Status, rec.IsJustified, rec.RecordedBy); err != nil {
			return fmt.Errorf("insert attendance row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance session: %w", err)
	}
	return nil
}

// FindByID returns one attendance row with joined names.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE a.id = $1 LIMIT 1", attendanceDetailColumns, attendanceDetailJoins)
	var detail models.AttendanceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns attendance rows matching the filter alongside the total.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceDetail, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassSubjectID != "" {
		where = append(where, fmt.Sprintf("a.class_subject_id = $%d", len(args)+1))
		args = append(args, filter.ClassSubjectID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("cs.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.LessonPeriod != nil {
		where = append(where, fmt.Sprintf("a.lesson_period = $%d", len(args)+1))
		args = append(args, *filter.LessonPeriod)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":         "a.date",
		"student_name": "s.full_name",
		"status":       "a.status",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "a.date"
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

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY %s %s, a.lesson_period ASC LIMIT %d OFFSET %d",
		attendanceDetailColumns, attendanceDetailJoins, whereClause, sortColumn, order, size, offset)
	var records []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", attendanceDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// UpdateJustification records a guardian's justification on an absence.
func (r *AttendanceRepository) UpdateJustification(ctx context.Context, id string, justification string, medicalNoteURL *string, updatedAt time.Time) error {
	const query = `UPDATE attendance SET is_justified = TRUE, justification = $1, medical_note_url = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, justification, medicalNoteURL, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update justification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update justification: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearJustification reverts a justification write. Used as rollback when
// storing the medical note fails after the row was updated.
func (r *AttendanceRepository) ClearJustification(ctx context.Context, id string) error {
	const query = `UPDATE attendance SET is_justified = NULL, justification = NULL, medical_note_url = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear justification: %w", err)
	}
	return nil
}

// AbsenceSummary aggregates per-student absence and late counts for a class
// over a date range.
type AbsenceSummary struct {
	StudentID     string `db:"student_id" json:"student_id"`
	StudentName   string `db:"student_name" json:"student_name"`
	AbsentCount   int    `db:"absent_count" json:"absent_count"`
	LateCount     int    `db:"late_count" json:"late_count"`
	UnjustedCount int    `db:"unjustified_count" json:"unjustified_count"`
}

// Summarize aggregates attendance per student for reporting.
func (r *AttendanceRepository) Summarize(ctx context.Context, classID string, from, to time.Time) ([]AbsenceSummary, error) {
	const query = `SELECT s.id AS student_id, s.full_name AS student_name,
COUNT(*) FILTER (WHERE a.status = 'absent') AS absent_count,
COUNT(*) FILTER (WHERE a.status = 'late') AS late_count,
COUNT(*) FILTER (WHERE a.status = 'absent' AND COALESCE(a.is_justified, FALSE) = FALSE) AS unjustified_count
FROM students s
LEFT JOIN attendance a ON a.student_id = s.id AND a.date BETWEEN $2 AND $3
WHERE s.class_id = $1
GROUP BY s.id, s.full_name
ORDER BY s.full_name ASC`
	var summaries []AbsenceSummary
	if err := r.db.SelectContext(ctx, &summaries, query, classID, from, to); err != nil {
		return nil, fmt.Errorf("summarize attendance: %w", err)
	}
	return summaries, nil
}
