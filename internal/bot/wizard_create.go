package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

const defaultDeadlineDays = 7

const createIntroText = "Let's create a new assignment. Send me fields as \"label: value\" lines, for example:\n" +
	"Code: MTK001\n" +
	"Title: Trigonometry worksheet\n" +
	"Description: Exercises 1-10 page 42\n" +
	"Class: XIITKJ2\n" +
	"Deadline: 7\n" +
	"Attach PDF: yes\n" +
	"Auto grade: no\n" +
	"You can send several lines at once. Send 1 to save, 0 to cancel."

// startCreateWizard enters the assignment-creation FSM at field collection.
func (e *Engine) startCreateWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	st.Wizard = &models.WizardData{Kind: models.WizardCreate, Create: &models.CreateDraft{}}
	st.MenuMode = models.MenuModeNone
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, createIntroText)
}

// handleCreateWizard dispatches one turn of the creation FSM based on the
// armed attachment flags: an armed flag means the matching await state owns
// the turn; otherwise the message is field collection input.
func (e *Engine) handleCreateWizard(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response) {
	draft := st.Wizard.Create
	if draft == nil {
		draft = &models.CreateDraft{}
		st.Wizard.Create = draft
	}

	switch {
	case draft.AwaitingPDF:
		e.handleAwaitingAttachment(ctx, user, st, resp, false)
	case draft.AwaitingKey:
		e.handleAwaitingAttachment(ctx, user, st, resp, true)
	default:
		e.handleCollectingFields(ctx, user, st, resp.Body)
	}
}

// handleCollectingFields applies one batch of field lines, or acts on the
// save/cancel controls.
func (e *Engine) handleCollectingFields(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	draft := st.Wizard.Create
	trimmed := strings.TrimSpace(body)

	switch trimmed {
	case "0":
		e.cancelWizard(ctx, user)
		return
	case "1":
		e.tryConfirmSave(ctx, user, st)
		return
	}

	updates := parseFieldLines(body)
	if len(updates) == 0 {
		e.send(ctx, user.Phone, "I didn't recognize any field there.\n\n"+createIntroText)
		return
	}

	applied := 0
	var notes []string
	for _, upd := range updates {
		switch upd.Field {
		case fieldCode:
			newCode := canonicalizeCode(upd.Value)
			if newCode == draft.Code {
				applied++
				continue
			}
			if existing := e.peekAssignment(ctx, newCode); existing != nil {
				// Revert the edit, keep the previous value, apply the rest.
				notes = append(notes, fmt.Sprintf("Code %s is already used by %q (%s). Keeping the previous value.",
					existing.Code, existing.Title, existing.ClassName))
				continue
			}
			draft.Code = newCode
			applied++
		case fieldTitle:
			draft.Title = upd.Value
			applied++
		case fieldDescription:
			draft.Description = upd.Value
			applied++
		case fieldClass:
			class := canonicalizeClass(upd.Value)
			if !models.ClassNameRegex.MatchString(class) {
				notes = append(notes, fmt.Sprintf("Class %q doesn't look right. Use the full identifier, e.g. XIITKJ2.", upd.Value))
				continue
			}
			draft.ClassName = class
			applied++
		case fieldAttachPDF:
			yn := parseYesNo(upd.Value)
			if yn == "" {
				notes = append(notes, "Attach PDF expects yes or no.")
				continue
			}
			draft.AttachPDF = yn
			if yn == "yes" && len(draft.PDFData) == 0 {
				draft.AwaitingPDF = true
			} else if yn == "no" {
				draft.AwaitingPDF = false
			}
			applied++
		case fieldAutoGrade:
			yn := parseYesNo(upd.Value)
			if yn == "" {
				notes = append(notes, "Auto grade expects yes or no.")
				continue
			}
			draft.AutoGrade = yn
			if yn == "yes" && len(draft.KeyData) == 0 {
				draft.AwaitingKey = true
			} else if yn == "no" {
				draft.AwaitingKey = false
			}
			applied++
		case fieldDeadline:
			days, ok := parseDays(upd.Value)
			if !ok {
				notes = append(notes, "Deadline expects a number of days from now, e.g. 7.")
				continue
			}
			draft.DeadlineDays = days
			applied++
		}
	}

	e.states.Set(user.Phone, *st)

	var b strings.Builder
	fmt.Fprintf(&b, "%d field(s) saved.\n", applied)
	for _, n := range notes {
		b.WriteString(n + "\n")
	}
	switch {
	case draft.AwaitingPDF:
		b.WriteString("\nNow send me the assignment PDF, or 0 to skip the attachment.")
	case draft.AwaitingKey:
		b.WriteString("\nNow send me the answer key PDF, or 0 to switch to manual grading.")
	default:
		b.WriteString("\n" + draftSummary(draft) + "\nSend more fields, 1 to save, 0 to cancel.")
	}
	e.send(ctx, user.Phone, b.String())
}

// handleAwaitingAttachment handles both await states; forKey selects the
// answer-key variant.
func (e *Engine) handleAwaitingAttachment(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response, forKey bool) {
	draft := st.Wizard.Create
	what := "assignment PDF"
	if forKey {
		what = "answer key PDF"
	}

	if strings.TrimSpace(resp.Body) == "0" && resp.Document == nil {
		// Waive the requirement.
		if forKey {
			draft.AutoGrade = "no"
			draft.AwaitingKey = false
			draft.KeyName, draft.KeyMime, draft.KeyData = "", "", nil
		} else {
			draft.AttachPDF = "no"
			draft.AwaitingPDF = false
			draft.PDFName, draft.PDFMime, draft.PDFData = "", "", nil
		}
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, fmt.Sprintf("Okay, skipping the %s.\n%s\nSend more fields, 1 to save, 0 to cancel.", what, draftSummary(draft)))
		return
	}

	if resp.Document == nil {
		e.send(ctx, user.Phone, fmt.Sprintf("Please send the %s as a document, or 0 to skip.", what))
		return
	}
	if !isPDF(resp.Document.MimeType, resp.Document.Filename) {
		e.send(ctx, user.Phone, fmt.Sprintf("That file is not a PDF. Please send the %s as a PDF, or 0 to skip.", what))
		return
	}

	if forKey {
		draft.KeyName = resp.Document.Filename
		draft.KeyMime = resp.Document.MimeType
		draft.KeyData = resp.Document.Data
		draft.AwaitingKey = false
	} else {
		draft.PDFName = resp.Document.Filename
		draft.PDFMime = resp.Document.MimeType
		draft.PDFData = resp.Document.Data
		draft.AwaitingPDF = false
	}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, fmt.Sprintf("Got the %s (%s).\n%s\nSend more fields, 1 to save, 0 to cancel.", what, resp.Document.Filename, draftSummary(draft)))
}

// tryConfirmSave validates the draft and either enters an await state, or
// performs the save.
func (e *Engine) tryConfirmSave(ctx context.Context, user *models.User, st *models.ConversationState) {
	draft := st.Wizard.Create

	var missing []string
	if draft.Code == "" {
		missing = append(missing, "code")
	}
	if draft.Title == "" {
		missing = append(missing, "title")
	}
	if draft.Description == "" {
		missing = append(missing, "description")
	}
	if !models.ClassNameRegex.MatchString(draft.ClassName) {
		missing = append(missing, "class")
	}
	if len(missing) > 0 {
		e.send(ctx, user.Phone, "Not ready to save yet. Still missing: "+strings.Join(missing, ", ")+".")
		return
	}

	if draft.AttachPDF == "yes" && len(draft.PDFData) == 0 {
		draft.AwaitingPDF = true
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, "You chose to attach a PDF but I haven't received it. Send it now, or 0 to skip the attachment.")
		return
	}
	if draft.AutoGrade == "yes" && len(draft.KeyData) == 0 {
		draft.AwaitingKey = true
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, "Auto grading needs an answer key. Send it now, or 0 to switch to manual grading.")
		return
	}

	e.saveAssignment(ctx, user, st)
}

// saveAssignment uploads staged files, creates the record with the store's
// uniqueness constraint as the final duplicate authority, fans out status
// rows, and moves to the after-create choice.
func (e *Engine) saveAssignment(ctx context.Context, user *models.User, st *models.ConversationState) {
	draft := st.Wizard.Create
	now := e.now().In(e.loc)

	days := draft.DeadlineDays
	if days <= 0 {
		days = defaultDeadlineDays
	}
	deadline := now.Add(time.Duration(days) * 24 * time.Hour)

	var attachmentURL, answerKeyURL string
	if len(draft.PDFData) > 0 {
		url, err := e.files.Upload(ctx, filestore.ObjectKey(draft.Code, draft.PDFName, now), draft.PDFData, draft.PDFMime)
		if err != nil {
			slog.Error("Bot saveAssignment attachment upload failed", "code", draft.Code, "error", err)
			e.send(ctx, user.Phone, "I couldn't store the attachment right now. Your draft is kept; send 1 to try again.")
			return
		}
		attachmentURL = url
	}
	if len(draft.KeyData) > 0 {
		url, err := e.files.Upload(ctx, filestore.AnswerKeyObjectKey(draft.Code, draft.KeyName, now), draft.KeyData, draft.KeyMime)
		if err != nil {
			slog.Error("Bot saveAssignment answer key upload failed", "code", draft.Code, "error", err)
			e.send(ctx, user.Phone, "I couldn't store the answer key right now. Your draft is kept; send 1 to try again.")
			return
		}
		answerKeyURL = url
	}

	assignment := models.Assignment{
		Code:          draft.Code,
		Title:         draft.Title,
		Description:   draft.Description,
		ClassName:     draft.ClassName,
		Deadline:      deadline,
		AttachmentURL: attachmentURL,
		AnswerKeyURL:  answerKeyURL,
		AutoGrade:     draft.AutoGrade == "yes" && answerKeyURL != "",
		TeacherPhone:  user.Phone,
		CreatedAt:     now,
	}
	if err := assignment.Validate(); err != nil {
		e.send(ctx, user.Phone, "Something is off with the draft: "+err.Error())
		return
	}

	err := store.WithRetry(ctx, "CreateAssignment", func() error {
		return e.store.CreateAssignment(ctx, &assignment)
	})
	if err != nil {
		if isDuplicate(err) {
			// Race-lost to a concurrent creation; back to collecting with the
			// code cleared, everything else preserved.
			existing := e.peekAssignment(ctx, draft.Code)
			draft.Code = ""
			e.states.Set(user.Phone, *st)
			msg := "That code was just taken"
			if existing != nil {
				msg = fmt.Sprintf("Code %s is already used by %q (%s)", existing.Code, existing.Title, existing.ClassName)
			}
			e.send(ctx, user.Phone, msg+". Please send a new code line, e.g. \"Code: MTK002\".")
			return
		}
		slog.Error("Bot saveAssignment store create failed", "code", draft.Code, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}

	students, err := e.listClassStudents(ctx, assignment.ClassName)
	if err != nil {
		slog.Error("Bot saveAssignment roster lookup failed", "class", assignment.ClassName, "error", err)
	} else {
		phones := make([]string, 0, len(students))
		for _, s := range students {
			phones = append(phones, s.Phone)
		}
		if err := store.WithRetry(ctx, "CreateStatuses", func() error {
			return e.store.CreateStatuses(ctx, assignment.ID, phones)
		}); err != nil {
			slog.Error("Bot saveAssignment status fan-out failed", "assignmentID", assignment.ID, "error", err)
		}
	}

	st.Wizard = &models.WizardData{
		Kind:        models.WizardAfterCreate,
		AfterCreate: &models.AfterCreateData{Code: assignment.Code, ClassName: assignment.ClassName},
	}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, fmt.Sprintf(
		"Assignment %s saved for %s, due %s.\n1. Broadcast it to the class now\n2. Back to menu",
		assignment.Code, assignment.ClassName, deadline.Format("Mon, 02 Jan 2006 15:04")))
}

// handleAfterCreate handles the broadcast-or-menu choice after a save.
func (e *Engine) handleAfterCreate(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	data := st.Wizard.AfterCreate
	switch strings.TrimSpace(body) {
	case "1":
		e.states.Clear(user.Phone)
		assignment := e.peekAssignment(ctx, data.Code)
		if assignment == nil {
			e.send(ctx, user.Phone, msgApology)
			return
		}
		result := e.broadcastAssignment(ctx, assignment)
		e.send(ctx, user.Phone, broadcastSummary(assignment.Code, result))
	case "2", "0":
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "Done! Send \"halo\" anytime to open the menu.")
	default:
		e.send(ctx, user.Phone, "Please reply 1 to broadcast now or 2 to go back to the menu.")
	}
}

// peekAssignment is the non-authoritative duplicate fast path; store errors
// are logged and treated as "not found" because the insert constraint is the
// final guard.
func (e *Engine) peekAssignment(ctx context.Context, code string) *models.Assignment {
	if code == "" {
		return nil
	}
	a, err := e.store.GetAssignmentByCode(ctx, code)
	if err != nil {
		slog.Warn("Bot duplicate pre-check failed, deferring to store constraint", "code", code, "error", err)
		return nil
	}
	return a
}

func (e *Engine) listClassStudents(ctx context.Context, className string) ([]models.User, error) {
	var students []models.User
	err := store.WithRetry(ctx, "ListStudentsByClass", func() error {
		var listErr error
		students, listErr = e.store.ListStudentsByClass(ctx, className)
		return listErr
	})
	return students, err
}

func draftSummary(draft *models.CreateDraft) string {
	val := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	deadline := "-"
	if draft.DeadlineDays > 0 {
		deadline = fmt.Sprintf("%d day(s)", draft.DeadlineDays)
	}
	attach := val(draft.AttachPDF)
	if len(draft.PDFData) > 0 {
		attach = "yes (" + draft.PDFName + ")"
	}
	autoGrade := val(draft.AutoGrade)
	if len(draft.KeyData) > 0 {
		autoGrade = "yes (" + draft.KeyName + ")"
	}
	return fmt.Sprintf("Current draft:\nCode: %s\nTitle: %s\nDescription: %s\nClass: %s\nDeadline: %s\nAttach PDF: %s\nAuto grade: %s",
		val(draft.Code), val(draft.Title), val(draft.Description), val(draft.ClassName), deadline, attach, autoGrade)
}

func isDuplicate(err error) bool {
	return err != nil && (errors.Is(err, models.ErrDuplicateCode) || store.IsUniqueViolation(err))
}
