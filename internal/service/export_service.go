package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-approval-api/internal/dto"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
	"github.com/noah-isme/attendance-approval-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const exportTimeLayout = "2006-01-02 15:04"

type requestLister interface {
	List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) (*dto.RequestListResponse, bool, error)
}

type datasetRenderer interface {
	ContentType() string
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders the viewer's request list as a downloadable table.
type ExportService struct {
	requests  requestLister
	renderers map[string]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(requests requestLister, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		requests:  requests,
		renderers: map[string]datasetRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Export applies the same visibility, filter and search rules as listing.
func (s *ExportService) Export(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery, format string) (*dto.ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	list, _, err := s.requests.List(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	dataset := buildRequestDataset(list.Items, actor.Role.IsStaff())
	title := fmt.Sprintf("Attendance exception requests (%s)", list.Filter)
	payload, err := renderer.Render(dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("requests exported",
		zap.String("account_id", actor.AccountID),
		zap.String("format", format),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("requests_%s_%s.%s", list.Filter, s.now().Format("20060102_150405"), format),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func buildRequestDataset(items []models.Request, includeOwner bool) export.Dataset {
	headers := []string{"ID"}
	if includeOwner {
		headers = append(headers, "Student", "Department")
	}
	headers = append(headers, "Subject", "Start", "End", "Contact", "Status", "Submitted")
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := map[string]string{
			"ID":        strconv.FormatInt(item.ID, 10),
			"Subject":   item.Subject,
			"Start":     item.StartTime.Format(exportTimeLayout),
			"End":       item.EndTime.Format(exportTimeLayout),
			"Contact":   item.Contact,
			"Status":    string(item.Status),
			"Submitted": item.CreatedAt.Format(exportTimeLayout),
		}
		if includeOwner {
			row["Student"] = item.StudentName
			row["Department"] = item.StudentDepartment
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
