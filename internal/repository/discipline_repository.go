package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dabestan-dev/dabestan-api/internal/models"
)

// DisciplineRepository handles persistence for discipline records.
type DisciplineRepository struct {
	db *sqlx.DB
}

// NewDisciplineRepository constructs the repository.
func NewDisciplineRepository(db *sqlx.DB) *DisciplineRepository {
	return &DisciplineRepository{db: db}
}

const disciplineDetailColumns = `d.id, d.student_id, d.class_id, d.description, d.severity, d.recorded_by, d.created_at,
s.full_name AS student_name, c.name AS class_name, p.full_name AS recorder_name`

const disciplineDetailJoins = `FROM discipline_records d
JOIN students s ON s.id = d.student_id
LEFT JOIN classes c ON c.id = d.class_id
LEFT JOIN profiles p ON p.id = d.recorded_by`

// Create inserts a discipline record.
func (r *DisciplineRepository) Create(ctx context.Context, record *models.DisciplineRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	const query = `INSERT INTO discipline_records (id, student_id, class_id, description, severity, recorded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.StudentID, record.ClassID, record.Description, record.Severity, record.RecordedBy); err != nil {
		return fmt.Errorf("create discipline record: %w", err)
	}
	return nil
}

// FindByID returns one record with joined names.
func (r *DisciplineRepository) FindByID(ctx context.Context, id string) (*models.DisciplineDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE d.id = $1 LIMIT 1", disciplineDetailColumns, disciplineDetailJoins)
	var detail models.DisciplineDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns discipline records matching the filter alongside the total.
func (r *DisciplineRepository) List(ctx context.Context, filter models.DisciplineFilter) ([]models.DisciplineDetail, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("d.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("d.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Severity != nil {
		where = append(where, fmt.Sprintf("d.severity = $%d", len(args)+1))
		args = append(args, *filter.Severity)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("d.created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("d.created_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"created_at":   "d.created_at",
		"severity":     "d.severity",
		"student_name": "s.full_name",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "d.created_at"
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

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d",
		disciplineDetailColumns, disciplineDetailJoins, whereClause, sortColumn, order, size, offset)
	var records []models.DisciplineDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list discipline records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", disciplineDetailJoins, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count discipline records: %w", err)
	}
	return records, total, nil
}

// Update overwrites the description and severity of a record.
func (r *DisciplineRepository) Update(ctx context.Context, record *models.DisciplineRecord) error {
	const query = `UPDATE discipline_records SET description = $1, severity = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, record.Description, record.Severity, record.ID)
	if err != nil {
		return fmt.Errorf("update discipline record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update discipline record: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a discipline record.
func (r *DisciplineRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM discipline_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete discipline record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete discipline record: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
