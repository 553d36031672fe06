package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

func sampleRows() []models.RecapRow {
	submitted := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	score := 85.0
	return []models.RecapRow{
		{
			ClassName:   "XIPA1",
			StudentName: "Budi",
			Phone:       "628111000111",
			Code:        "MTK7",
			Title:       "Trigonometry worksheet",
			Deadline:    time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC),
			Status:      models.StatusDone,
			SubmittedAt: &submitted,
			FileURL:     "https://files.example.test/MTK7_budi.pdf",
			Evaluation:  "Good work",
			Grade:       "B",
			Score:       &score,
		},
		{
			ClassName:   "XIPA1",
			StudentName: "Sari",
			Phone:       "628111222333",
			Code:        "MTK7",
			Title:       "Trigonometry worksheet",
			Deadline:    time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC),
			Status:      models.StatusPending,
		},
	}
}

func TestBuildRecapWorkbook(t *testing.T) {
	data, err := BuildRecapWorkbook(sampleRows(), time.UTC)
	if err != nil {
		t.Fatalf("BuildRecapWorkbook failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("workbook bytes are empty")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("generated workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("failed to read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 data rows, got %d rows", len(rows))
	}
	if rows[0][0] != "Class" || rows[0][11] != "Score" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	if rows[1][1] != "Budi" || rows[1][6] != "Done" {
		t.Errorf("unexpected first data row: %v", rows[1])
	}
	if rows[2][6] != "Pending" {
		t.Errorf("expected pending status in second data row: %v", rows[2])
	}
}

func TestBuildRecapWorkbookEmpty(t *testing.T) {
	data, err := BuildRecapWorkbook(nil, nil)
	if err != nil {
		t.Fatalf("BuildRecapWorkbook failed for empty rows: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("workbook bytes are empty")
	}
}

func TestSummarize(t *testing.T) {
	done, pending := Summarize(sampleRows())
	if done != 1 || pending != 1 {
		t.Errorf("Summarize = (%d, %d), want (1, 1)", done, pending)
	}
}

func TestRecapFilename(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	got := RecapFilename("MTK7", now)
	if got != "recap_MTK7_20250314_092653.xlsx" {
		t.Errorf("unexpected filename %q", got)
	}
}
