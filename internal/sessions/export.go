package sessions

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sessions"

var exportColumns = []string{
	"Session ID", "Status", "Scheduled At", "Started At", "Completed At", "Cancelled At",
	"Duration (min)", "Therapy ID", "Client ID", "Therapist ID", "Clinic ID", "Notes",
}

// ExcelExporter renders sessions into an XLSX workbook
type ExcelExporter struct {
	timestampFormat string
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{timestampFormat: "2006-01-02 15:04"}
}

// Write builds the workbook and streams it to w.
func (e *ExcelExporter) Write(w io.Writer, sessions []Session) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col
	}
	if err := file.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportColumns))
	if err := file.SetCellStyle(exportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	for i, s := range sessions {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			s.ID.String(),
			string(s.Status),
			e.formatTime(s.ScheduledAt),
			e.formatTime(s.StartedAt),
			e.formatTime(s.CompletedAt),
			e.formatTime(s.CancelledAt),
			s.DurationMinutes,
			s.TherapyID.String(),
			s.ClientID.String(),
			s.TherapistID.String(),
			"",
			s.Notes,
		}
		if s.ClinicID != nil {
			row[10] = s.ClinicID.String()
		}
		if err := file.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := file.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if len(sessions) > 0 {
		if err := file.AutoFilter(exportSheet, "A1:"+lastCol+"1", nil); err != nil {
			return err
		}
	}
	if err := file.SetColWidth(exportSheet, "A", lastCol, 20); err != nil {
		return err
	}

	return file.Write(w)
}

func (e *ExcelExporter) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(e.timestampFormat)
}
