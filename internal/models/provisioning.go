package models

// UserDescriptor is one row of a bulk provisioning batch.
type UserDescriptor struct {
	Email           string  `json:"email" validate:"required,email,max=255"`
	Username        string  `json:"username" validate:"required,min=3,max=50,alphanumunderscore"`
	FullName        string  `json:"full_name" validate:"required,min=1,max=100"`
	Password        string  `json:"password" validate:"required,min=8,max=128"`
	TempStudentName *string `json:"temp_student_name,omitempty"`
}

// BulkProvisionRequest is the payload of the bulk provisioning endpoint.
type BulkProvisionRequest struct {
	Users    []UserDescriptor `json:"users" validate:"required,min=1,max=50,dive"`
	UserType string           `json:"userType" validate:"required,oneof=admin teacher parent"`
}

// ProvisionedAccount describes one successfully created account.
type ProvisionedAccount struct {
	Email           string  `json:"email"`
	ID              string  `json:"id"`
	TempStudentName *string `json:"temp_student_name,omitempty"`
}

// BulkProvisionResult aggregates per-row outcomes. Per-row failures never
// abort the batch; request-level failures never produce a result at all.
type BulkProvisionResult struct {
	Success      bool                 `json:"success"`
	SuccessCount int                  `json:"successCount"`
	Errors       []string             `json:"errors"`
	Results      []ProvisionedAccount `json:"results"`
}

// CreateTeacherRequest is the payload of the single-teacher endpoint.
type CreateTeacherRequest struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
	FullName string  `json:"full_name" validate:"required,min=1,max=100"`
	Username string  `json:"username" validate:"required,min=3,max=50,alphanumunderscore"`
	Subject  *string `json:"subject,omitempty"`
}
