package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/attendance-api/internal/models"
	apperrors "github.com/campuskit/attendance-api/pkg/errors"
	"github.com/campuskit/attendance-api/pkg/export"
)

type studentRepository interface {
	FindByAdmissionNumber(ctx context.Context, admissionNumber string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Upsert(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, admissionNumber string) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	All(ctx context.Context) ([]models.Student, error)
}

type importLogRepository interface {
	CreateImportLog(ctx context.Context, log *models.StudentImportLog) error
	UpdateImportLog(ctx context.Context, log *models.StudentImportLog) error
}

var importHeaders = []string{"admission_number", "first_name", "last_name"}

// StudentService manages the student roster: CRUD, CSV import and export.
type StudentService struct {
	repo      studentRepository
	imports   importLogRepository
	validator *validator.Validate
	logger    *zap.Logger
	csv       *export.CSVExporter
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, imports importLogRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, imports: imports, validator: validate, logger: logger, csv: export.NewCSVExporter()}
}

// Create registers a student explicitly, names required.
func (s *StudentService) Create(ctx context.Context, req models.UpsertStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		AdmissionNumber: strings.TrimSpace(req.AdmissionNumber),
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConflict.Code, apperrors.ErrConflict.Status, "student already exists")
	}
	return student, nil
}

// Get returns a student by admission number.
func (s *StudentService) Get(ctx context.Context, admissionNumber string) (*models.Student, error) {
	student, err := s.repo.FindByAdmissionNumber(ctx, admissionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update renames a student.
func (s *StudentService) Update(ctx context.Context, admissionNumber string, req models.UpsertStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		AdmissionNumber: admissionNumber,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student and cascades their records.
func (s *StudentService) Delete(ctx context.Context, admissionNumber string) error {
	if err := s.repo.Delete(ctx, admissionNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.Clone(apperrors.ErrNotFound, "student not found")
		}
		return apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// ImportCSV processes an uploaded roster. Rows update-or-create by admission
// number; bad rows are collected, good rows still land. The outcome is
// written to the import log either way.
func (s *StudentService) ImportCSV(ctx context.Context, filename string, r io.Reader, actor *models.JWTClaims) (*models.ImportResult, error) {
	log := &models.StudentImportLog{
		Filename: filename,
		Status:   models.ImportStatusProcessing,
	}
	if actor != nil {
		log.AdminID = &actor.UserID
	}
	if err := s.imports.CreateImportLog(ctx, log); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to open import log")
	}

	result, err := s.runImport(ctx, r)
	if err != nil {
		log.Status = models.ImportStatusFailed
		log.ErrorLog = err.Error()
		if uerr := s.imports.UpdateImportLog(ctx, log); uerr != nil {
			s.logger.Warn("failed to finalise import log", zap.Error(uerr))
		}
		return nil, err
	}

	log.Status = models.ImportStatusCompleted
	log.RecordsTotal = result.Total
	log.RecordsImported = result.Imported
	log.RecordsFailed = result.Failed
	if len(result.Errors) > 0 {
		parts := make([]string, 0, len(result.Errors))
		for _, rowErr := range result.Errors {
			parts = append(parts, fmt.Sprintf("line %d: %s", rowErr.Line, rowErr.Reason))
		}
		log.ErrorLog = strings.Join(parts, "\n")
	}
	if err := s.imports.UpdateImportLog(ctx, log); err != nil {
		s.logger.Warn("failed to finalise import log", zap.Error(err))
	}

	result.ImportID = log.ID
	return result, nil
}

func (s *StudentService) runImport(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, "empty or unreadable csv file")
	}
	if err := checkImportHeader(header); err != nil {
		return nil, err
	}

	result := &models.ImportResult{}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Total++
			result.Failed++
			result.Errors = append(result.Errors, models.ImportRowError{Line: line, Reason: "malformed row"})
			continue
		}
		result.Total++

		admission := strings.TrimSpace(row[0])
		first := strings.TrimSpace(row[1])
		last := strings.TrimSpace(row[2])
		if admission == "" {
			result.Failed++
			result.Errors = append(result.Errors, models.ImportRowError{Line: line, Reason: "missing admission_number"})
			continue
		}
		if first == "" && last == "" {
			result.Failed++
			result.Errors = append(result.Errors, models.ImportRowError{Line: line, Reason: "missing name"})
			continue
		}

		student := &models.Student{AdmissionNumber: admission, FirstName: first, LastName: last, CreatedAt: time.Now().UTC()}
		if err := s.repo.Upsert(ctx, student); err != nil {
			s.logger.Warn("import row failed", zap.Int("line", line), zap.Error(err))
			result.Failed++
			result.Errors = append(result.Errors, models.ImportRowError{Line: line, Reason: "storage error"})
			continue
		}
		result.Imported++
	}
	return result, nil
}

// ExportCSV renders the full roster with the same columns imports accept.
func (s *StudentService) ExportCSV(ctx context.Context) ([]byte, error) {
	students, err := s.repo.All(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to load students")
	}
	data := export.Dataset{Headers: importHeaders}
	for _, student := range students {
		data.Rows = append(data.Rows, map[string]string{
			"admission_number": student.AdmissionNumber,
			"first_name":       student.FirstName,
			"last_name":        student.LastName,
		})
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, apperrors.ErrInternal.Status, "failed to render csv")
	}
	return out, nil
}

func checkImportHeader(header []string) error {
	if len(header) < len(importHeaders) {
		return apperrors.Clone(apperrors.ErrValidation, "csv header must be admission_number,first_name,last_name")
	}
	for i, want := range importHeaders {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return apperrors.Clone(apperrors.ErrValidation, "csv header must be admission_number,first_name,last_name")
		}
	}
	return nil
}
