package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dabestan-dev/dabestan-api/internal/models"
)

// ClassSubjectRepository handles the class/subject/teacher assignment table.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository constructs the repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

const classSubjectDetailColumns = `cs.id, cs.class_id, cs.subject_id, cs.teacher_id, cs.created_at,
c.name AS class_name, sub.name AS subject_name, p.full_name AS teacher_name`

const classSubjectDetailJoins = `FROM class_subjects cs
JOIN classes c ON c.id = cs.class_id
JOIN subjects sub ON sub.id = cs.subject_id
JOIN teachers t ON t.id = cs.teacher_id
LEFT JOIN profiles p ON p.id = t.user_id`

// Create inserts an assignment. The (class_id, subject_id) pair is unique so
// one class carries one teacher per subject.
func (r *ClassSubjectRepository) Create(ctx context.Context, assignment *models.ClassSubject) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	const query = `INSERT INTO class_subjects (id, class_id, subject_id, teacher_id, created_at)
VALUES ($1, $2, $3, $4, NOW())`
	if _, err := r.db.ExecContext(ctx, query, assignment.ID, assignment.ClassID, assignment.SubjectID, assignment.TeacherID); err != nil {
		return wrapUnique(err, "create class subject")
	}
	return nil
}

// FindByID returns one assignment with names resolved.
func (r *ClassSubjectRepository) FindByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE cs.id = $1 LIMIT 1", classSubjectDetailColumns, classSubjectDetailJoins)
	var detail models.ClassSubjectDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByClass returns every subject assignment of a class.
func (r *ClassSubjectRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE cs.class_id = $1 ORDER BY sub.name ASC", classSubjectDetailColumns, classSubjectDetailJoins)
	var assignments []models.ClassSubjectDetail
	if err := r.db.SelectContext(ctx, &assignments, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return assignments, nil
}

// ListByTeacher returns the assignments a teacher is responsible for. Feeds
// the teacher dashboard and the attendance authorization check.
func (r *ClassSubjectRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE cs.teacher_id = $1 ORDER BY c.name ASC, sub.name ASC", classSubjectDetailColumns, classSubjectDetailJoins)
	var assignments []models.ClassSubjectDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	return assignments, nil
}

// TeacherOwns reports whether the assignment belongs to the given teacher.
func (r *ClassSubjectRepository) TeacherOwns(ctx context.Context, classSubjectID, teacherID string) (bool, error) {
	var count int
	const query = `SELECT COUNT(*) FROM class_subjects WHERE id = $1 AND teacher_id = $2`
	if err := r.db.GetContext(ctx, &count, query, classSubjectID, teacherID); err != nil {
		return false, fmt.Errorf("check assignment ownership: %w", err)
	}
	return count > 0, nil
}

// TeachesClass reports whether the teacher holds any assignment in the class.
func (r *ClassSubjectRepository) TeachesClass(ctx context.Context, teacherID, classID string) (bool, error) {
	var count int
	const query = `SELECT COUNT(*) FROM class_subjects WHERE teacher_id = $1 AND class_id = $2`
	if err := r.db.GetContext(ctx, &count, query, teacherID, classID); err != nil {
		return false, fmt.Errorf("check class access: %w", err)
	}
	return count > 0, nil
}

// UpdateTeacher reassigns the subject to another teacher.
func (r *ClassSubjectRepository) UpdateTeacher(ctx context.Context, id, teacherID string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE class_subjects SET teacher_id = $1 WHERE id = $2", teacherID, id)
	if err != nil {
		return fmt.Errorf("update class subject teacher: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update class subject teacher: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an assignment.
func (r *ClassSubjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM class_subjects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete class subject: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete class subject: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
