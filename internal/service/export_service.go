package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"absence-api/internal/access"
	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

// ExportRenderer turns the export projection into bytes. The dean office
// sees the full sheet; everyone else gets the public columns only.
type ExportRenderer interface {
	ContentType() string
	FileName() string
	Render(w io.Writer, rows []model.AbsenceExportRow, deanColumns bool) error
}

// ExportService produces the absence report for reviewers. The scope comes
// from the access policy, the filters from the caller.
type ExportService struct {
	absences absenceStore
	renderer ExportRenderer
}

func NewExportService(absences absenceStore, renderer ExportRenderer) *ExportService {
	return &ExportService{absences: absences, renderer: renderer}
}

func (s *ExportService) ContentType() string { return s.renderer.ContentType() }
func (s *ExportService) FileName() string    { return s.renderer.FileName() }

func (s *ExportService) Export(ctx context.Context, actor model.Actor, q model.AbsenceQuery, w io.Writer) error {
	scope, ok := access.ExportScope(actor)
	if !ok {
		return apierror.Forbidden("you do not have access to absence exports")
	}
	q.Scope = scope

	rows, err := s.absences.Project(ctx, q)
	if err != nil {
		return fmt.Errorf("project absences: %w", err)
	}
	return s.renderer.Render(w, rows, actor.Is(model.RoleDeanOffice))
}

// CSVRenderer is the default report format. The renderer boundary exists
// so a spreadsheet writer can slot in without touching the service.
type CSVRenderer struct{}

func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }
func (CSVRenderer) FileName() string    { return "absences.csv" }

func (CSVRenderer) Render(w io.Writer, rows []model.AbsenceExportRow, deanColumns bool) error {
	writer := csv.NewWriter(w)

	header := []string{"Student", "Group", "Type", "Status", "Start date", "End date"}
	if deanColumns {
		header = append(header, "Declaration to dean", "Created", "Updated")
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.StudentName,
			row.Group,
			string(row.Type),
			string(row.Status),
			formatDate(row.StartDate),
			formatDate(row.EndDate),
		}
		if deanColumns {
			declared := "No"
			if row.DeclarationToDean {
				declared = "Yes"
			}
			record = append(record,
				declared,
				row.CreatedAt.Format(time.RFC3339),
				row.UpdatedAt.Format(time.RFC3339))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
