package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
	"github.com/dualsign/attendance-api/pkg/export"
)

type exportRecordLister interface {
	ListRecords(ctx context.Context, sessionID string, caller *models.JWTClaims) ([]models.AttendanceRecordDetail, error)
}

type exportUserRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows  int
	PDFTitle string
}

// ExportService renders finalized attendance data for the report sink. It is
// read-only: exports never mutate core state.
type ExportService struct {
	records ExportRecordSource
	users   exportUserRepository
	csv     csvRenderer
	pdf     pdfRenderer
	cfg     ExportConfig
	logger  *zap.Logger
}

// ExportRecordSource is the record listing dependency, satisfied by the stats
// service so exports reuse its ownership checks.
type ExportRecordSource = exportRecordLister

// NewExportService constructs an ExportService.
func NewExportService(records ExportRecordSource, users exportUserRepository, csv csvRenderer, pdf pdfRenderer, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if cfg.PDFTitle == "" {
		cfg.PDFTitle = "Attendance Report"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{records: records, users: users, csv: csv, pdf: pdf, cfg: cfg, logger: logger}
}

// RecordsCSV renders a session's records as CSV.
func (s *ExportService) RecordsCSV(ctx context.Context, sessionID string, caller *models.JWTClaims) ([]byte, string, error) {
	data, err := s.recordsDataset(ctx, sessionID, caller)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, exportFilename("attendance_records", "csv"), nil
}

// RecordsPDF renders a session's records as a tabular PDF.
func (s *ExportService) RecordsPDF(ctx context.Context, sessionID string, caller *models.JWTClaims) ([]byte, string, error) {
	data, err := s.recordsDataset(ctx, sessionID, caller)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.pdf.Render(data, s.cfg.PDFTitle)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, exportFilename("attendance_records", "pdf"), nil
}

// UsersCSV renders the user directory as CSV. The directory is read in
// repository-sized pages up to the configured row cap.
func (s *ExportService) UsersCSV(ctx context.Context, role *models.UserRole) ([]byte, string, error) {
	const pageSize = 100
	var users []models.User
	for page := 1; len(users) < s.cfg.MaxRows; page++ {
		batch, _, err := s.users.List(ctx, models.UserFilter{Role: role, Page: page, PageSize: pageSize})
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		users = append(users, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	if len(users) > s.cfg.MaxRows {
		users = users[:s.cfg.MaxRows]
	}

	data := export.Dataset{
		Headers: []string{"ID", "Username", "Full Name", "Email", "Role", "Student Number", "Active", "Created At"},
	}
	for _, user := range users {
		active := "no"
		if user.Active {
			active = "yes"
		}
		data.Rows = append(data.Rows, map[string]string{
			"ID":             user.ID,
			"Username":       user.Username,
			"Full Name":      user.FullName,
			"Email":          user.Email,
			"Role":           string(user.Role),
			"Student Number": deref(user.StudentNumber),
			"Active":         active,
			"Created At":     user.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, exportFilename("users", "csv"), nil
}

func (s *ExportService) recordsDataset(ctx context.Context, sessionID string, caller *models.JWTClaims) (export.Dataset, error) {
	records, err := s.records.ListRecords(ctx, sessionID, caller)
	if err != nil {
		return export.Dataset{}, err
	}
	if len(records) > s.cfg.MaxRows {
		records = records[:s.cfg.MaxRows]
	}

	data := export.Dataset{
		Headers: []string{"Student", "Student Number", "Course", "Session", "Classroom", "Status", "Signed In At", "Notes"},
	}
	for _, record := range records {
		data.Rows = append(data.Rows, map[string]string{
			"Student":        record.StudentName,
			"Student Number": deref(record.StudentNumber),
			"Course":         record.CourseName,
			"Session":        record.SessionName,
			"Classroom":      record.ClassroomName,
			"Status":         string(record.Status),
			"Signed In At":   record.SignedInAt.UTC().Format(time.RFC3339),
			"Notes":          deref(record.Notes),
		})
	}
	return data, nil
}

func exportFilename(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().UTC().Format("20060102_150405"), ext)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
