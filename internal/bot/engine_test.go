package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/grading"
	"github.com/BTreeMap/ClassPipe/internal/messaging"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/state"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

const (
	teacherPhone = "628110000001"
	studentPhone = "628120000001"
	otherStudent = "628120000002"
	testClass    = "XIITKJ2"
)

// fixture wires the engine to in-memory collaborators so a test can drive a
// whole conversation through Handle.
type fixture struct {
	t      *testing.T
	msg    *messaging.MockService
	store  *store.MemoryStore
	states *state.MemoryManager
	files  *filestore.MemoryStorage
	eng    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	msg := messaging.NewMockService()
	st := store.NewMemoryStore()
	states := state.NewMemoryManager()
	files := filestore.NewMemoryStorage()
	bcast := messaging.NewBroadcaster(msg,
		messaging.WithBatchSize(100),
		messaging.WithDelayRange(0, 0),
		messaging.WithBatchPause(0),
	)
	eng := NewEngine(msg, bcast, st, states, files, grading.NewClient())
	return &fixture{t: t, msg: msg, store: st, states: states, files: files, eng: eng}
}

func (f *fixture) seedTeacher() {
	f.store.AddUser(models.User{Phone: teacherPhone, Name: "Bu Rina", Role: models.RoleTeacher})
}

func (f *fixture) seedStudent() {
	f.store.AddUser(models.User{Phone: studentPhone, Name: "Budi", Role: models.RoleStudent, ClassName: testClass})
}

func (f *fixture) seedAssignment(code string, deadline time.Time) *models.Assignment {
	f.t.Helper()
	a := models.Assignment{
		Code:         code,
		Title:        "Trigonometry worksheet",
		Description:  "Exercises 1-10 page 42",
		ClassName:    testClass,
		Deadline:     deadline,
		TeacherPhone: teacherPhone,
		CreatedAt:    time.Now(),
	}
	if err := f.store.CreateAssignment(context.Background(), &a); err != nil {
		f.t.Fatalf("seedAssignment: %v", err)
	}
	if err := f.store.CreateStatuses(context.Background(), a.ID, []string{studentPhone}); err != nil {
		f.t.Fatalf("seedAssignment statuses: %v", err)
	}
	return &a
}

func (f *fixture) say(from, body string) {
	f.t.Helper()
	f.eng.Handle(context.Background(), models.Response{From: from, Body: body, Time: time.Now().Unix()})
}

func (f *fixture) sayDoc(from string, doc models.Document) {
	f.t.Helper()
	f.eng.Handle(context.Background(), models.Response{From: from, Document: &doc, Time: time.Now().Unix()})
}

func (f *fixture) lastReply(to string) string {
	f.t.Helper()
	body := f.msg.LastMessageTo(to)
	if body == "" {
		f.t.Fatalf("no message sent to %s", to)
	}
	return body
}

func (f *fixture) wantReplyContains(to, substr string) {
	f.t.Helper()
	if body := f.lastReply(to); !strings.Contains(body, substr) {
		f.t.Errorf("reply to %s = %q, want it to contain %q", to, body, substr)
	}
}

func TestHandleUnregisteredSender(t *testing.T) {
	f := newFixture(t)
	f.say("628999999999", "halo")
	f.wantReplyContains("628999999999", "not registered")
}

func TestGreetingOpensRoleMenu(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()
	f.seedStudent()

	f.say(teacherPhone, "halo")
	f.wantReplyContains(teacherPhone, "Create a new assignment")
	f.wantReplyContains(teacherPhone, "0. Exit")

	f.say(studentPhone, "Selamat pagi")
	f.wantReplyContains(studentPhone, "Submit an assignment")
	if body := f.lastReply(studentPhone); strings.Contains(body, "Create a new assignment") {
		t.Errorf("student menu leaked a teacher entry: %q", body)
	}
}

func TestMenuInvalidChoiceThenExit(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "halo")
	f.say(teacherPhone, "9")
	f.wantReplyContains(teacherPhone, "between 0 and 7")

	// Invalid input must not drop menu mode.
	if st, ok := f.states.Get(teacherPhone); !ok || st.MenuMode != models.MenuModeTeacher {
		t.Fatalf("menu mode lost after invalid choice: %+v", st)
	}

	f.say(teacherPhone, "0")
	f.wantReplyContains(teacherPhone, "see you")
	if _, ok := f.states.Get(teacherPhone); ok {
		t.Error("state not cleared after menu exit")
	}
}

func TestMenuChoiceStartsCreateWizard(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "halo")
	f.say(teacherPhone, "1")
	f.wantReplyContains(teacherPhone, "Let's create a new assignment")

	st, _ := f.states.Get(teacherPhone)
	if !st.WizardActive() || st.Wizard.Kind != models.WizardCreate {
		t.Fatalf("expected create wizard to be active, got %+v", st.Wizard)
	}
}

func TestCreateWizardFieldBatch(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "create task")
	f.wantReplyContains(teacherPhone, "Let's create a new assignment")

	f.say(teacherPhone, "Kode: MTK001\nKelas: XIITKJ2")
	f.wantReplyContains(teacherPhone, "2 field(s) saved")

	st, _ := f.states.Get(teacherPhone)
	draft := st.Wizard.Create
	if draft.Code != "MTK001" || draft.ClassName != testClass {
		t.Errorf("draft = %+v, want code MTK001 class %s", draft, testClass)
	}
}

func TestCreateWizardFieldBatchOrderIndependent(t *testing.T) {
	batches := []string{
		"Code: MTK001\nTitle: Algebra\nDeadline: 5",
		"Deadline: 5\nTitle: Algebra\nCode: MTK001",
	}
	for _, batch := range batches {
		f := newFixture(t)
		f.seedTeacher()
		f.say(teacherPhone, "create task")
		f.say(teacherPhone, batch)

		st, _ := f.states.Get(teacherPhone)
		draft := st.Wizard.Create
		if draft.Code != "MTK001" || draft.Title != "Algebra" || draft.DeadlineDays != 5 {
			t.Errorf("batch %q produced draft %+v", batch, draft)
		}
	}
}

func TestCreateWizardDuplicateCodeReverted(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()
	f.seedStudent()
	f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Code: MTK001\nTitle: Algebra")

	// The duplicate code edit is reverted, the rest of the batch applies.
	f.wantReplyContains(teacherPhone, "1 field(s) saved")
	f.wantReplyContains(teacherPhone, "already used")

	st, _ := f.states.Get(teacherPhone)
	draft := st.Wizard.Create
	if draft.Code != "" {
		t.Errorf("duplicate code was kept: %q", draft.Code)
	}
	if draft.Title != "Algebra" {
		t.Errorf("title lost when sibling field was rejected: %q", draft.Title)
	}
}

func TestCreateWizardSaveAndStatusFanOut(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()
	f.seedStudent()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Code: MTK010\nTitle: Fractions\nDescription: Page 12\nClass: XIITKJ2\nDeadline: 3")
	f.say(teacherPhone, "1")
	f.wantReplyContains(teacherPhone, "Assignment MTK010 saved")

	ctx := context.Background()
	a, err := f.store.GetAssignmentByCode(ctx, "MTK010")
	if err != nil || a == nil {
		t.Fatalf("assignment not persisted: %v %v", a, err)
	}
	open, err := f.store.ListOpenAssignments(ctx, studentPhone, testClass)
	if err != nil {
		t.Fatalf("ListOpenAssignments: %v", err)
	}
	if len(open) != 1 || open[0].Code != "MTK010" {
		t.Fatalf("status fan-out missing, open = %+v", open)
	}

	// After-create choice: back to menu clears state.
	f.say(teacherPhone, "2")
	if _, ok := f.states.Get(teacherPhone); ok {
		t.Error("state not cleared after after-create choice")
	}
}

func TestCreateWizardSaveBlockedOnMissingFields(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Code: MTK011")
	f.say(teacherPhone, "1")
	f.wantReplyContains(teacherPhone, "Still missing")
	f.wantReplyContains(teacherPhone, "title")

	st, _ := f.states.Get(teacherPhone)
	if !st.WizardActive() || st.Wizard.Kind != models.WizardCreate {
		t.Fatalf("wizard should survive a failed save, got %+v", st.Wizard)
	}
}

func TestCreateWizardAwaitingAttachment(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Attach PDF: yes")
	f.wantReplyContains(teacherPhone, "Now send me the assignment PDF")

	st, _ := f.states.Get(teacherPhone)
	if !st.Wizard.Create.AwaitingPDF {
		t.Fatal("attach yes did not arm the PDF await state")
	}

	// Plain text and non-PDF files re-prompt without leaving the state.
	f.say(teacherPhone, "here you go")
	f.wantReplyContains(teacherPhone, "Please send the assignment PDF as a document")

	f.sayDoc(teacherPhone, models.Document{Filename: "photo.png", MimeType: "image/png", Data: []byte("png")})
	f.wantReplyContains(teacherPhone, "That file is not a PDF")

	st, _ = f.states.Get(teacherPhone)
	if !st.Wizard.Create.AwaitingPDF || len(st.Wizard.Create.PDFData) != 0 {
		t.Fatalf("rejected file mutated the draft: %+v", st.Wizard.Create)
	}

	f.sayDoc(teacherPhone, models.Document{Filename: "worksheet.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	f.wantReplyContains(teacherPhone, "Got the assignment PDF (worksheet.pdf)")

	st, _ = f.states.Get(teacherPhone)
	draft := st.Wizard.Create
	if draft.AwaitingPDF || draft.PDFName != "worksheet.pdf" || len(draft.PDFData) == 0 {
		t.Fatalf("accepted file not staged: %+v", draft)
	}
}

func TestCreateWizardAnswerKeyWaiver(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Auto grade: yes")
	f.wantReplyContains(teacherPhone, "Now send me the answer key PDF")

	f.say(teacherPhone, "0")
	f.wantReplyContains(teacherPhone, "skipping the answer key")

	st, _ := f.states.Get(teacherPhone)
	draft := st.Wizard.Create
	if draft.AwaitingKey || draft.AutoGrade != "no" {
		t.Fatalf("waiver did not downgrade auto grading: %+v", draft)
	}
	if st.Wizard.Kind != models.WizardCreate {
		t.Fatalf("waiver left the creation wizard: %+v", st.Wizard)
	}
}

func TestCreateWizardConfirmTimeDuplicate(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()
	f.seedStudent()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "Code: MTK009\nTitle: Geometry\nDescription: Page 9\nClass: XIITKJ2\nDeadline: 3")

	// Another creation wins the code between the edit-time check and the
	// save, so the insert constraint fires at confirm time.
	conflict := models.Assignment{
		Code:         "MTK009",
		Title:        "Taken",
		Description:  "Claimed first",
		ClassName:    testClass,
		Deadline:     time.Now().Add(48 * time.Hour),
		TeacherPhone: teacherPhone,
		CreatedAt:    time.Now(),
	}
	if err := f.store.CreateAssignment(context.Background(), &conflict); err != nil {
		t.Fatalf("seeding conflicting assignment: %v", err)
	}

	f.say(teacherPhone, "1")
	f.wantReplyContains(teacherPhone, `already used by "Taken"`)
	f.wantReplyContains(teacherPhone, "Please send a new code line")

	// Only the code is cleared; the rest of the draft survives the revert.
	st, _ := f.states.Get(teacherPhone)
	if st.Wizard == nil || st.Wizard.Kind != models.WizardCreate {
		t.Fatalf("wizard lost after duplicate save: %+v", st.Wizard)
	}
	draft := st.Wizard.Create
	if draft.Code != "" {
		t.Errorf("duplicate code kept: %q", draft.Code)
	}
	if draft.Title != "Geometry" || draft.Description != "Page 9" || draft.ClassName != testClass || draft.DeadlineDays != 3 {
		t.Errorf("draft fields lost in revert: %+v", draft)
	}

	// A fresh code completes the save.
	f.say(teacherPhone, "Code: MTK010")
	f.say(teacherPhone, "1")
	f.wantReplyContains(teacherPhone, "Assignment MTK010 saved")
}

func TestWizardCancelClearsState(t *testing.T) {
	f := newFixture(t)
	f.seedTeacher()

	f.say(teacherPhone, "create task")
	f.say(teacherPhone, "0")
	f.wantReplyContains(teacherPhone, "cancelled")
	if _, ok := f.states.Get(teacherPhone); ok {
		t.Error("state survived cancellation")
	}
}

func TestStudentBlockedFromTeacherIntent(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()

	f.say(studentPhone, "export recap")
	f.wantReplyContains(studentPhone, "only available to teachers")
}

func TestSubmitRejectsNonPDF(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()
	a := f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	f.say(studentPhone, "submit MTK001")
	f.wantReplyContains(studentPhone, "Send your work for MTK001")

	f.sayDoc(studentPhone, models.Document{Filename: "photo.png", MimeType: "image/png", Data: []byte("png")})
	f.wantReplyContains(studentPhone, "Only PDF files")

	// No store mutation and the wizard still owns the conversation.
	sub, err := f.store.GetSubmission(context.Background(), a.ID, studentPhone)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub != nil {
		t.Fatalf("rejected file still created submission %+v", sub)
	}
	st, _ := f.states.Get(studentPhone)
	if !st.WizardActive() || st.Wizard.Kind != models.WizardAwaitFile {
		t.Fatalf("await-file state lost after rejection: %+v", st.Wizard)
	}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()
	a := f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	f.say(studentPhone, "submit MTK001")
	f.sayDoc(studentPhone, models.Document{Filename: "work.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})
	f.wantReplyContains(studentPhone, "Got it!")

	ctx := context.Background()
	sub, err := f.store.GetSubmission(ctx, a.ID, studentPhone)
	if err != nil || sub == nil {
		t.Fatalf("submission not persisted: %v %v", sub, err)
	}
	if sub.FileURL == "" {
		t.Error("submission has no file URL")
	}
	open, err := f.store.ListOpenAssignments(ctx, studentPhone, testClass)
	if err != nil {
		t.Fatalf("ListOpenAssignments: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("assignment still open after submission: %+v", open)
	}
	if _, ok := f.states.Get(studentPhone); ok {
		t.Error("state not cleared after successful submission")
	}
}

func TestSubmitUnknownCode(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()

	f.say(studentPhone, "submit MTK404")
	f.wantReplyContains(studentPhone, "couldn't find an assignment with code MTK404")
}

func TestDeadlineQuestionThenBareCodeReply(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()
	f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	f.say(studentPhone, "when is it due")
	f.wantReplyContains(studentPhone, "Which assignment code")

	f.say(studentPhone, "MTK001")
	f.wantReplyContains(studentPhone, "MTK001 is due")
}

func TestMyAssignmentsListsOpenOnly(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()
	f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	f.say(studentPhone, "my assignments")
	f.wantReplyContains(studentPhone, "MTK001")

	f.say(studentPhone, "submit MTK001")
	f.sayDoc(studentPhone, models.Document{Filename: "work.pdf", MimeType: "application/pdf", Data: []byte("%PDF")})

	f.say(studentPhone, "my assignments")
	f.wantReplyContains(studentPhone, "no open assignments")
}

func TestBucketAssignments(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, loc)
	open := []models.Assignment{
		{Code: "OLD1", Deadline: now.Add(-2 * time.Hour)},
		{Code: "TODAY1", Deadline: now.Add(6 * time.Hour)},
		{Code: "TMRW1", Deadline: now.Add(26 * time.Hour)},
		{Code: "LATER1", Deadline: now.Add(96 * time.Hour)},
	}

	b := bucketAssignments(open, now, loc)
	if len(b.Overdue) != 1 || b.Overdue[0].Code != "OLD1" {
		t.Errorf("Overdue = %+v", b.Overdue)
	}
	if len(b.DueToday) != 1 || b.DueToday[0].Code != "TODAY1" {
		t.Errorf("DueToday = %+v", b.DueToday)
	}
	if len(b.DueTomorrow) != 1 || b.DueTomorrow[0].Code != "TMRW1" {
		t.Errorf("DueTomorrow = %+v", b.DueTomorrow)
	}
	if len(b.Later) != 1 || b.Later[0].Code != "LATER1" {
		t.Errorf("Later = %+v", b.Later)
	}
}

func TestSendDigestsSkipsStudentsWithNothingOpen(t *testing.T) {
	f := newFixture(t)
	f.seedStudent()
	f.store.AddUser(models.User{Phone: otherStudent, Name: "Sari", Role: models.RoleStudent, ClassName: "XIITKJ1"})
	f.seedAssignment("MTK001", time.Now().Add(72*time.Hour))

	result := f.eng.SendDigests(context.Background())
	if result.Sent != 1 || result.Total != 1 {
		t.Fatalf("SendDigests result = %+v, want exactly one recipient", result)
	}
	if body := f.msg.LastMessageTo(studentPhone); !strings.Contains(body, "MTK001") {
		t.Errorf("digest body = %q", body)
	}
	if body := f.msg.LastMessageTo(otherStudent); body != "" {
		t.Errorf("student with no open assignments got a digest: %q", body)
	}
}
