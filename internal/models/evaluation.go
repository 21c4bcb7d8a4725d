package models

import "time"

// Evaluation is a per-student daily evaluation row. At most one exists per
// (student, date, class).
type Evaluation struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	Date         time.Time `db:"date" json:"date"`
	HomeworkDone bool      `db:"homework_done" json:"homework_done"`
	ClassScore   *int      `db:"class_score" json:"class_score,omitempty"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// EvaluationDetail carries joined names for listings.
type EvaluationDetail struct {
	Evaluation
	StudentName string  `db:"student_name" json:"student_name"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
}

// EvaluationState holds the observable fields compared when deciding
// whether an edited record needs persisting.
type EvaluationState struct {
	HomeworkDone bool    `json:"homework_done"`
	ClassScore   *int    `json:"class_score"`
	Notes        *string `json:"notes"`
}

// Changed reports whether two evaluation states differ. A nil score is
// distinct from any number, zero included; nil and empty notes are equal.
func (a EvaluationState) Changed(b EvaluationState) bool {
	if a.HomeworkDone != b.HomeworkDone {
		return true
	}
	if (a.ClassScore == nil) != (b.ClassScore == nil) {
		return true
	}
	if a.ClassScore != nil && *a.ClassScore != *b.ClassScore {
		return true
	}
	return noteText(a.Notes) != noteText(b.Notes)
}

func noteText(n *string) string {
	if n == nil {
		return ""
	}
	return *n
}

// EvaluationFilter defines query filters for listings.
type EvaluationFilter struct {
	ClassID   string
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
