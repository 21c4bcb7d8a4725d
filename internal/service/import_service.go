package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	appErrors "github.com/dabestan-dev/dabestan-api/pkg/errors"
	"github.com/dabestan-dev/dabestan-api/pkg/excel"
)

// Wizard targets. Each target declares the fields a spreadsheet column can
// map to and the importer that consumes the mapped rows on commit.
const (
	ImportTargetUsers    = "users"
	ImportTargetStudents = "students"
)

// userImportFields are the mappable columns of the user import.
var userImportFields = []models.ImportField{
	{Key: "email", Label: "Email", Required: true},
	{Key: "username", Label: "Username", Required: true},
	{Key: "full_name", Label: "Full name", Required: true},
	{Key: "password", Label: "Password", Required: true},
	{Key: "temp_student_name", Label: "Student name", Required: false},
}

// studentImportFields are the mappable columns of the student import.
var studentImportFields = []models.ImportField{
	{Key: "full_name", Label: "Full name", Required: true},
	{Key: "class_id", Label: "Class ID", Required: false},
}

// ImportRowFunc consumes the fully mapped row set of a committed session.
// Options carry target-specific commit parameters from the caller.
type ImportRowFunc func(ctx context.Context, actorID string, rows []map[string]string, options map[string]string) (*models.ImportResult, error)

type importTarget struct {
	fields   []models.ImportField
	importer ImportRowFunc
}

// ImportConfig bounds the wizard.
type ImportConfig struct {
	SessionTTL  time.Duration
	PreviewRows int
}

type bulkProvisioner interface {
	BulkProvision(ctx context.Context, actorID string, req models.BulkProvisionRequest) (*models.BulkProvisionResult, error)
}

type studentImporter interface {
	Create(ctx context.Context, req StudentRequest) (*models.Student, error)
}

// ImportService drives the upload/map/preview/commit spreadsheet wizard.
// Session state lives in memory; sessions expire after the configured TTL.
type ImportService struct {
	provisioner bulkProvisioner
	students    studentImporter
	targets     map[string]importTarget
	config      ImportConfig
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*models.ImportSession
}

// NewImportService constructs an ImportService with the users and students
// targets registered.
func NewImportService(provisioner bulkProvisioner, students studentImporter, config ImportConfig, log *zap.Logger) *ImportService {
	if log == nil {
		log = zap.NewNop()
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.PreviewRows <= 0 {
		config.PreviewRows = 5
	}
	s := &ImportService{
		provisioner: provisioner,
		students:    students,
		config:      config,
		logger:      log,
		sessions:    map[string]*models.ImportSession{},
	}
	s.targets = map[string]importTarget{
		ImportTargetUsers:    {fields: userImportFields, importer: s.importUsers},
		ImportTargetStudents: {fields: studentImportFields, importer: s.importStudents},
	}
	return s
}

// Fields returns the mappable target fields for a wizard target.
func (s *ImportService) Fields(target string) ([]models.ImportField, error) {
	t, ok := s.targets[target]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown import target")
	}
	return t.fields, nil
}

// Template renders an empty workbook with the target's column labels.
func (s *ImportService) Template(target string) ([]byte, error) {
	fields, err := s.Fields(target)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(fields))
	for i, field := range fields {
		labels[i] = field.Label
	}
	data, err := excel.Template(labels)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build template")
	}
	return data, nil
}

// Upload parses the workbook and opens a session in the Map step, with an
// automatic case-insensitive mapping of headers to field labels and keys.
func (s *ImportService) Upload(target string, r io.Reader) (*models.ImportSession, error) {
	fields, err := s.Fields(target)
	if err != nil {
		return nil, err
	}

	sheet, err := excel.Parse(r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "could not read the spreadsheet")
	}
	if len(sheet.Rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "the spreadsheet has no data rows")
	}

	now := time.Now().UTC()
	session := &models.ImportSession{
		ID:        uuid.NewString(),
		Target:    target,
		Step:      models.ImportStepMap,
		Headers:   sheet.Headers,
		Rows:      sheet.Rows,
		Mapping:   autoMap(sheet.Headers, fields),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get returns a live session.
func (s *ImportService) Get(id string) (*models.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || time.Now().UTC().After(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "import session not found or expired")
	}
	return session, nil
}

// SetMapping stores the header-to-field mapping and moves to Preview. All
// required fields must be mapped to distinct headers.
func (s *ImportService) SetMapping(id string, mapping map[string]string) (*models.ImportSession, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fields, err := s.Fields(session.Target)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]struct{}, len(session.Headers))
	for _, h := range session.Headers {
		headers[h] = struct{}{}
	}
	used := map[string]string{}
	for fieldKey, header := range mapping {
		if header == "" {
			continue
		}
		if _, ok := headers[header]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("column %q does not exist in the upload", header))
		}
		if prev, taken := used[header]; taken {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("column %q is mapped to both %s and %s", header, prev, fieldKey))
		}
		used[header] = fieldKey
	}
	for _, field := range fields {
		if field.Required && mapping[field.Key] == "" {
			return nil, appErrors.Clone(appErrors.ErrUnprocessable, fmt.Sprintf("required field %q is not mapped", field.Label))
		}
	}

	s.mu.Lock()
	session.Mapping = mapping
	session.Step = models.ImportStepPreview
	s.mu.Unlock()
	return session, nil
}

// Preview applies the mapping to the first rows of the upload.
func (s *ImportService) Preview(id string) ([]map[string]string, int, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, 0, err
	}
	if session.Step != models.ImportStepPreview && session.Step != models.ImportStepResults {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "mapping has not been confirmed yet")
	}

	limit := s.config.PreviewRows
	if limit > len(session.Rows) {
		limit = len(session.Rows)
	}
	preview := make([]map[string]string, 0, limit)
	for _, row := range session.Rows[:limit] {
		preview = append(preview, applyMapping(row, session.Mapping))
	}
	return preview, len(session.Rows), nil
}

// Commit applies the mapping to every row and hands the mapped set to the
// target's importer. Rows whose mapped values are all blank are dropped; an
// empty mapped set short-circuits without calling the importer.
func (s *ImportService) Commit(ctx context.Context, actorID, id string, options map[string]string) (*models.ImportResult, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if session.Step != models.ImportStepPreview {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session is not ready to commit")
	}
	target, ok := s.targets[session.Target]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown import target")
	}

	rows := make([]map[string]string, 0, len(session.Rows))
	for _, raw := range session.Rows {
		mapped := applyMapping(raw, session.Mapping)
		if blankRow(mapped) {
			continue
		}
		rows = append(rows, mapped)
	}

	var result *models.ImportResult
	if len(rows) == 0 {
		s.logger.Debug("import commit skipped, no mapped data", zap.String("session_id", session.ID))
		result = &models.ImportResult{Success: true}
	} else {
		result, err = target.importer(ctx, actorID, rows, options)
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	session.Result = result
	session.Step = models.ImportStepResults
	s.mu.Unlock()
	return result, nil
}

// Back steps the wizard back one step, from Preview to Map only.
func (s *ImportService) Back(id string) (*models.ImportSession, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Step != models.ImportStepPreview {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot step back from this point")
	}
	session.Step = models.ImportStepMap
	return session, nil
}

// Discard drops a session.
func (s *ImportService) Discard(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// importUsers turns the mapped rows into one provisioning batch. The batch
// is atomic: any row failure rolls the whole batch back.
func (s *ImportService) importUsers(ctx context.Context, actorID string, rows []map[string]string, options map[string]string) (*models.ImportResult, error) {
	userType := strings.TrimSpace(options["userType"])
	if userType == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "the users target requires a userType option")
	}

	descriptors := make([]models.UserDescriptor, 0, len(rows))
	for _, row := range rows {
		descriptor := models.UserDescriptor{
			Email:    row["email"],
			Username: row["username"],
			FullName: row["full_name"],
			Password: row["password"],
		}
		if name := row["temp_student_name"]; name != "" {
			descriptor.TempStudentName = &name
		}
		descriptors = append(descriptors, descriptor)
	}

	outcome, err := s.provisioner.BulkProvision(ctx, actorID, models.BulkProvisionRequest{
		Users:    descriptors,
		UserType: userType,
	})
	if err != nil {
		return nil, err
	}
	return &models.ImportResult{
		Success:      outcome.Success,
		SuccessCount: outcome.SuccessCount,
		Errors:       outcome.Errors,
	}, nil
}

// importStudents creates one student per mapped row. Rows fail independently
// and failures are reported per row.
func (s *ImportService) importStudents(ctx context.Context, _ string, rows []map[string]string, _ map[string]string) (*models.ImportResult, error) {
	result := &models.ImportResult{}
	for i, row := range rows {
		req := StudentRequest{FullName: row["full_name"]}
		if classID := row["class_id"]; classID != "" {
			req.ClassID = &classID
		}
		if _, err := s.students.Create(ctx, req); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, appErrors.FromError(err).Message))
			continue
		}
		result.SuccessCount++
	}
	result.Success = len(result.Errors) == 0
	return result, nil
}

func (s *ImportService) pruneLocked(now time.Time) {
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

// autoMap matches headers to fields by label or key, ignoring case.
func autoMap(headers []string, fields []models.ImportField) map[string]string {
	mapping := map[string]string{}
	for _, field := range fields {
		for _, header := range headers {
			normalized := strings.ToLower(strings.TrimSpace(header))
			if normalized == strings.ToLower(field.Label) || normalized == strings.ToLower(field.Key) {
				mapping[field.Key] = header
				break
			}
		}
	}
	return mapping
}

func applyMapping(row map[string]string, mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for fieldKey, header := range mapping {
		if header == "" {
			continue
		}
		out[fieldKey] = strings.TrimSpace(row[header])
	}
	return out
}

func blankRow(mapped map[string]string) bool {
	for _, value := range mapped {
		if value != "" {
			return false
		}
	}
	return true
}
