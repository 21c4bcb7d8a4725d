package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dabestan-dev/dabestan-api/internal/models"
)

// StudentRepository handles persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailColumns = `s.id, s.full_name, s.class_id, s.parent_id, s.created_at, s.updated_at,
c.name AS class_name, gp.full_name AS parent_name`

const studentDetailJoins = `FROM students s
LEFT JOIN classes c ON c.id = s.class_id
LEFT JOIN profiles gp ON gp.id = s.parent_id`

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	const query = `INSERT INTO students (id, full_name, class_id, parent_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.FullName, student.ClassID, student.ParentID); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns one student with class and guardian names joined in.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE s.id = $1 LIMIT 1", studentDetailColumns, studentDetailJoins)
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns students matching the filter along with the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.ParentID != "" {
		where = append(where, fmt.Sprintf("s.parent_id = $%d", len(args)+1))
		args = append(args, filter.ParentID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("s.full_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"full_name":  "s.full_name",
		"class_name": "c.name",
		"created_at": "s.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "s.full_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		studentDetailColumns, studentDetailJoins, whereClause, sortColumn, order, size, offset)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", studentDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListByClass returns every student assigned to a class, ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT id, full_name, class_id, parent_id, created_at, updated_at
FROM students WHERE class_id = $1 ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list students by class: %w", err)
	}
	return students, nil
}

// ListByParent returns the children linked to a guardian account.
func (r *StudentRepository) ListByParent(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE s.parent_id = $1 ORDER BY s.full_name ASC", studentDetailColumns, studentDetailJoins)
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("list students by parent: %w", err)
	}
	return students, nil
}

// FindByNameUnassigned looks up a student by exact name that has no guardian
// linked yet. Used when provisioning parents against placeholder names.
func (r *StudentRepository) FindByNameUnassigned(ctx context.Context, fullName string) (*models.Student, error) {
	const query = `SELECT id, full_name, class_id, parent_id, created_at, updated_at
FROM students WHERE full_name = $1 AND parent_id IS NULL LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, fullName); err != nil {
		return nil, err
	}
	return &student, nil
}

// Update stores the mutable fields of a student record.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET full_name = $1, class_id = $2, parent_id = $3, updated_at = NOW() WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, student.FullName, student.ClassID, student.ParentID, student.ID)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignParent links a guardian to a student.
func (r *StudentRepository) AssignParent(ctx context.Context, studentID, parentID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE students SET parent_id = $1, updated_at = NOW() WHERE id = $2", parentID, studentID); err != nil {
		return fmt.Errorf("assign parent: %w", err)
	}
	return nil
}

// UnassignParent clears the guardian link. Used as rollback when guardian
// provisioning fails after the link was written.
func (r *StudentRepository) UnassignParent(ctx context.Context, studentID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE students SET parent_id = NULL, updated_at = NOW() WHERE id = $1", studentID); err != nil {
		return fmt.Errorf("unassign parent: %w", err)
	}
	return nil
}

// Delete removes a student record.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
