package models

import "time"

// DisciplineSeverity grades the weight of a discipline record.
type DisciplineSeverity string

const (
	DisciplineSeverityLow    DisciplineSeverity = "low"
	DisciplineSeverityMedium DisciplineSeverity = "medium"
	DisciplineSeverityHigh   DisciplineSeverity = "high"
)

// Valid returns true when the severity is a supported value.
func (s DisciplineSeverity) Valid() bool {
	switch s {
	case DisciplineSeverityLow, DisciplineSeverityMedium, DisciplineSeverityHigh:
		return true
	default:
		return false
	}
}

// DisciplineRecord captures a behavioural incident. Only the recorder may
// modify or delete it.
type DisciplineRecord struct {
	ID          string             `db:"id" json:"id"`
	StudentID   string             `db:"student_id" json:"student_id"`
	ClassID     string             `db:"class_id" json:"class_id"`
	Description string             `db:"description" json:"description"`
	Severity    DisciplineSeverity `db:"severity" json:"severity"`
	RecordedBy  string             `db:"recorded_by" json:"recorded_by"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// DisciplineDetail carries joined names for admin listings.
type DisciplineDetail struct {
	DisciplineRecord
	StudentName  string  `db:"student_name" json:"student_name"`
	ClassName    *string `db:"class_name" json:"class_name,omitempty"`
	RecorderName *string `db:"recorder_name" json:"recorder_name,omitempty"`
}

// DisciplineFilter scopes listing queries.
type DisciplineFilter struct {
	StudentID string
	ClassID   string
	Severity  *DisciplineSeverity
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
