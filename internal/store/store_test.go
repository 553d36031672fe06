package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.AddUser(models.User{Phone: "100", Name: "Ms. Rahma", Role: models.RoleTeacher})
	s.AddUser(models.User{Phone: "201", Name: "Andi", Role: models.RoleStudent, ClassName: "XIITKJ2"})
	s.AddUser(models.User{Phone: "202", Name: "Budi", Role: models.RoleStudent, ClassName: "XIITKJ2"})
	return s
}

func TestCreateAssignmentDuplicateCode(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	a := &models.Assignment{Code: "MTK001", Title: "Algebra", Description: "Ch. 3", ClassName: "XIITKJ2",
		Deadline: time.Now().Add(72 * time.Hour), TeacherPhone: "100"}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("assignment ID not assigned")
	}

	dup := &models.Assignment{Code: "MTK001", Title: "Other", Description: "x", ClassName: "XIITKJ2",
		Deadline: time.Now(), TeacherPhone: "100"}
	err := s.CreateAssignment(ctx, dup)
	if !errors.Is(err, models.ErrDuplicateCode) {
		t.Fatalf("duplicate create error = %v, want ErrDuplicateCode", err)
	}
}

func TestOpenAndDonePartitionsDisjoint(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	a := &models.Assignment{Code: "FIS002", Title: "Optics", Description: "Lab", ClassName: "XIITKJ2",
		Deadline: time.Now().Add(48 * time.Hour), TeacherPhone: "100"}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateStatuses(ctx, a.ID, []string{"201", "202"}); err != nil {
		t.Fatal(err)
	}

	open, err := s.ListOpenAssignments(ctx, "201", "XIITKJ2")
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open = %d, want 1 before submission", len(open))
	}

	sub := &models.Submission{ID: "sub-1", AssignmentID: a.ID, StudentPhone: "201",
		FileURL: "https://files.example/f.pdf", SubmittedAt: time.Now()}
	if err := s.UpsertSubmission(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkStatusDone(ctx, a.ID, "201"); err != nil {
		t.Fatal(err)
	}

	open, _ = s.ListOpenAssignments(ctx, "201", "XIITKJ2")
	if len(open) != 0 {
		t.Errorf("open = %d after submission, want 0", len(open))
	}
	done, _ := s.ListSubmissionsByStudent(ctx, "201")
	if len(done) != 1 {
		t.Errorf("history = %d after submission, want 1", len(done))
	}

	// The classmate who did not submit stays in open and out of history.
	open, _ = s.ListOpenAssignments(ctx, "202", "XIITKJ2")
	if len(open) != 1 {
		t.Errorf("classmate open = %d, want 1", len(open))
	}
	done, _ = s.ListSubmissionsByStudent(ctx, "202")
	if len(done) != 0 {
		t.Errorf("classmate history = %d, want 0", len(done))
	}
}

func TestUpsertSubmissionKeepsIDAndResetsGrade(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	a := &models.Assignment{Code: "KIM003", Title: "Acids", Description: "HW", ClassName: "XIITKJ2",
		Deadline: time.Now(), TeacherPhone: "100"}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}

	first := &models.Submission{ID: "sub-1", AssignmentID: a.ID, StudentPhone: "201",
		FileURL: "https://files.example/v1.pdf", SubmittedAt: time.Now()}
	if err := s.UpsertSubmission(ctx, first); err != nil {
		t.Fatal(err)
	}
	s.SetGradingResult(a.ID, "201", "A", 95, "great")

	second := &models.Submission{ID: "sub-2", AssignmentID: a.ID, StudentPhone: "201",
		FileURL: "https://files.example/v2.pdf", SubmittedAt: time.Now()}
	if err := s.UpsertSubmission(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second.ID != "sub-1" {
		t.Errorf("resubmission ID = %q, want original sub-1", second.ID)
	}

	stored, _ := s.GetSubmission(ctx, a.ID, "201")
	if stored.FileURL != "https://files.example/v2.pdf" {
		t.Errorf("file URL = %q, want replaced", stored.FileURL)
	}
	if stored.Graded() {
		t.Error("resubmission must reset the grading result")
	}
}

func TestListRecapRows(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	a := &models.Assignment{Code: "BIO004", Title: "Cells", Description: "HW", ClassName: "XIITKJ2",
		Deadline: time.Now(), TeacherPhone: "100"}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateStatuses(ctx, a.ID, []string{"201", "202"}); err != nil {
		t.Fatal(err)
	}
	sub := &models.Submission{ID: "sub-1", AssignmentID: a.ID, StudentPhone: "201",
		FileURL: "https://files.example/f.pdf", SubmittedAt: time.Now()}
	if err := s.UpsertSubmission(ctx, sub); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkStatusDone(ctx, a.ID, "201"); err != nil {
		t.Fatal(err)
	}

	rows, err := s.ListRecapRows(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("recap rows = %d, want one per student", len(rows))
	}
	byPhone := map[string]models.RecapRow{}
	for _, r := range rows {
		byPhone[r.Phone] = r
	}
	if byPhone["201"].Status != models.StatusDone || byPhone["201"].SubmittedAt == nil {
		t.Errorf("submitter row = %+v, want done with timestamp", byPhone["201"])
	}
	if byPhone["202"].Status != models.StatusPending || byPhone["202"].SubmittedAt != nil {
		t.Errorf("non-submitter row = %+v, want pending without timestamp", byPhone["202"])
	}
}

func TestWithRetryGivesUpOnPersistentTransient(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "test op", func() error {
		calls++
		return models.ErrTransientStore
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 attempts", calls)
	}
	if !errors.Is(err, models.ErrTransientStore) {
		t.Errorf("err = %v, want wrapped ErrTransientStore", err)
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "test op", func() error {
		calls++
		return models.ErrDuplicateCode
	})
	if calls != 1 {
		t.Errorf("calls = %d, want no retry on permanent error", calls)
	}
	if !errors.Is(err, models.ErrDuplicateCode) {
		t.Errorf("err = %v, want ErrDuplicateCode", err)
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost/db", "postgres"},
		{"postgresql://u:p@localhost/db", "postgres"},
		{"host=localhost user=u dbname=db", "postgres"},
		{"/var/lib/classpipe/classpipe.db", "sqlite"},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
