package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"subtrack/internal/engine"
)

// SheetsExporter mirrors the dashboard views into a Google Spreadsheet
// so the numbers can be shared outside the service.
type SheetsExporter struct {
	svc             *gsheet.Service
	spreadsheetID   string
	categoriesSheet string
	projectionSheet string
	trendsSheet     string
}

// NewSheetsExporterFromEnv builds an exporter from environment
// variables.
// Required: GOOGLE_SPREADSHEET_ID plus service-account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional sheet names: GOOGLE_CATEGORIES_SHEET_NAME (default
// "Categories"), GOOGLE_PROJECTION_SHEET_NAME (default "Projection"),
// GOOGLE_TRENDS_SHEET_NAME (default "Trends").
func NewSheetsExporterFromEnv(ctx context.Context) (*SheetsExporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	categories := strings.TrimSpace(os.Getenv("GOOGLE_CATEGORIES_SHEET_NAME"))
	if categories == "" {
		categories = "Categories"
	}
	projection := strings.TrimSpace(os.Getenv("GOOGLE_PROJECTION_SHEET_NAME"))
	if projection == "" {
		projection = "Projection"
	}
	trends := strings.TrimSpace(os.Getenv("GOOGLE_TRENDS_SHEET_NAME"))
	if trends == "" {
		trends = "Trends"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:             svc,
		spreadsheetID:   spreadsheetID,
		categoriesSheet: categories,
		projectionSheet: projection,
		trendsSheet:     trends,
	}, nil
}

// newSheetsService initializes a Sheets service from service-account
// credentials found in the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportDashboard replaces the contents of the configured sheets with
// the dashboard's current views.
func (e *SheetsExporter) ExportDashboard(ctx context.Context, dash *engine.Dashboard) error {
	if err := e.writeSheet(ctx, e.categoriesSheet, categoryRows(dash)); err != nil {
		return err
	}
	if err := e.writeSheet(ctx, e.projectionSheet, projectionRows(dash)); err != nil {
		return err
	}
	if err := e.writeSheet(ctx, e.trendsSheet, trendRows(dash)); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Exported dashboard to Google Sheets",
		"spreadsheet_id", e.spreadsheetID,
		"generated_at", dash.GeneratedAt.Format(time.RFC3339))
	return nil
}

func (e *SheetsExporter) writeSheet(ctx context.Context, sheet string, rows [][]any) error {
	clearRange := fmt.Sprintf("%s!A:Z", sheet)
	_, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	dataRange := fmt.Sprintf("%s!A1", sheet)
	vr := &gsheet.ValueRange{Values: rows}
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", sheet, err)
	}
	return nil
}

func categoryRows(dash *engine.Dashboard) [][]any {
	rows := [][]any{{"Category", "Monthly", "Yearly", "Percentage", "Subscriptions"}}
	for _, cat := range dash.Categories.Categories {
		rows = append(rows, []any{cat.Category, cat.TotalMonthlyCost, cat.TotalYearlyCost, cat.Percentage, cat.Count})
	}
	rows = append(rows, []any{"Total", dash.Categories.TotalMonthly, dash.Categories.TotalYearly, 100.0, ""})
	return rows
}

func projectionRows(dash *engine.Dashboard) [][]any {
	rows := [][]any{{"Month", "Total", "Occurrences", "Above average"}}
	for _, month := range dash.Projection.Months {
		rows = append(rows, []any{month.MonthLabel, month.TotalAmount, len(month.Occurrences), month.AboveAverage})
	}
	return rows
}

func trendRows(dash *engine.Dashboard) [][]any {
	rows := [][]any{{"Month", "Renewals", "Cancellations", "Amount paid"}}
	for _, point := range dash.Trends {
		rows = append(rows, []any{point.MonthLabel, point.Renewals, point.Cancellations, point.AmountPaid})
	}
	return rows
}
