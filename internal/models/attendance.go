package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Persisted reports whether the status is stored as a row. Present is the
// implicit default of a session and never written.
func (s AttendanceStatus) Persisted() bool {
	return s == AttendanceStatusAbsent || s == AttendanceStatusLate
}

// AttendanceRecord is a single persisted attendance row. At most one row
// exists per (student, class subject, date, lesson period).
type AttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSubjectID string           `db:"class_subject_id" json:"class_subject_id"`
	Date           time.Time        `db:"date" json:"date"`
	LessonPeriod   int              `db:"lesson_period" json:"lesson_period"`
	Status         AttendanceStatus `db:"status" json:"status"`
	IsJustified    *bool            `db:"is_justified" json:"is_justified,omitempty"`
	Justification  *string          `db:"justification" json:"justification,omitempty"`
	MedicalNoteURL *string          `db:"medical_note_url" json:"medical_note_url,omitempty"`
	RecordedBy     string           `db:"recorded_by" json:"recorded_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceDetail extends the row with joined names for listings.
type AttendanceDetail struct {
	AttendanceRecord
	StudentName string  `db:"student_name" json:"student_name"`
	ClassName   *string `db:"class_name" json:"class_name,omitempty"`
	SubjectName *string `db:"subject_name" json:"subject_name,omitempty"`
}

// AttendanceSessionKey identifies the replaceable snapshot a reconciliation
// pass operates on.
type AttendanceSessionKey struct {
	ClassSubjectID string    `json:"class_subject_id"`
	Date           time.Time `json:"date"`
	LessonPeriod   int       `json:"lesson_period"`
}

// AttendanceFilter defines query filters for listings and reports.
type AttendanceFilter struct {
	ClassSubjectID string
	ClassID        string
	StudentID      string
	Status         *AttendanceStatus
	DateFrom       *time.Time
	DateTo         *time.Time
	LessonPeriod   *int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
