// Package report renders submission recaps as Excel workbooks.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

const sheetName = "Recap"

var headers = []string{
	"Class", "Student", "Phone", "Code", "Title", "Deadline",
	"Status", "Submitted At", "File URL", "Evaluation", "Grade", "Score",
}

// BuildRecapWorkbook renders the recap rows into an xlsx workbook and
// returns the serialized bytes.
func BuildRecapWorkbook(rows []models.RecapRow, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Report workbook close failed", "error", err)
		}
	}()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create recap sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header %s: %w", h, err)
		}
	}
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeaderCell, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header row: %w", err)
	}

	for i, row := range rows {
		values := recapRowValues(row, loc)
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header row: %w", err)
	}
	filterRange := fmt.Sprintf("A1:%s", lastHeaderCell)
	if err := f.AutoFilter(sheetName, filterRange, nil); err != nil {
		return nil, fmt.Errorf("failed to set autofilter: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "L", 18); err != nil {
		return nil, fmt.Errorf("failed to set column widths: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func recapRowValues(row models.RecapRow, loc *time.Location) []interface{} {
	status := "Pending"
	if row.Status == models.StatusDone {
		status = "Done"
	}

	submittedAt := ""
	if row.SubmittedAt != nil {
		submittedAt = row.SubmittedAt.In(loc).Format("2006-01-02 15:04")
	}

	var score interface{} = ""
	if row.Score != nil {
		score = *row.Score
	}

	return []interface{}{
		row.ClassName,
		row.StudentName,
		row.Phone,
		row.Code,
		row.Title,
		row.Deadline.In(loc).Format("2006-01-02 15:04"),
		status,
		submittedAt,
		row.FileURL,
		row.Evaluation,
		row.Grade,
		score,
	}
}

// Summarize counts done and pending rows for the recap caption.
func Summarize(rows []models.RecapRow) (done int, pending int) {
	for _, row := range rows {
		if row.Status == models.StatusDone {
			done++
		} else {
			pending++
		}
	}
	return done, pending
}

// RecapFilename builds the workbook filename for an assignment recap.
func RecapFilename(code string, now time.Time) string {
	return fmt.Sprintf("recap_%s_%s.xlsx", code, now.Format("20060102_150405"))
}

// MimeTypeXLSX is the content type for generated workbooks.
const MimeTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
