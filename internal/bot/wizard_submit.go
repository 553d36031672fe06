package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/BTreeMap/ClassPipe/internal/dialog"
	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/grading"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// startSubmitWizard enters submission collection. With a code slot already
// filled the flow goes straight to the file step; from the menu it lists the
// student's open assignments first.
func (e *Engine) startSubmitWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	if code := canonicalizeCode(st.Slot(dialog.SlotCode)); code != "" {
		assignment := e.peekAssignment(ctx, code)
		if assignment == nil {
			e.states.Clear(user.Phone)
			e.send(ctx, user.Phone, fmt.Sprintf("I couldn't find an assignment with code %s.", code))
			return
		}
		if assignment.ClassName != user.ClassName {
			e.states.Clear(user.Phone)
			e.send(ctx, user.Phone, fmt.Sprintf("%s is for class %s, not yours.", code, assignment.ClassName))
			return
		}
		e.enterAwaitFile(ctx, user, st, assignment)
		return
	}

	var open []models.Assignment
	err := store.WithRetry(ctx, "ListOpenAssignments", func() error {
		var listErr error
		open, listErr = e.store.ListOpenAssignments(ctx, user.Phone, user.ClassName)
		return listErr
	})
	if err != nil {
		slog.Error("Bot startSubmitWizard listing failed", "student", user.Phone, "error", err)
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(open) == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "You have no open assignments. Nice work!")
		return
	}
	if len(open) > listLimit {
		open = open[:listLimit]
	}

	labels := make([]string, 0, len(open))
	for _, a := range open {
		label := fmt.Sprintf("%s: %s (due %s)", a.Code, a.Title, a.Deadline.In(e.loc).Format("02 Jan 15:04"))
		if a.AutoGrade {
			label += " [auto-graded]"
		}
		labels = append(labels, label)
	}

	st.Wizard = &models.WizardData{Kind: models.WizardSubmitPick, Pick: assignmentsToPick(open)}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, numberedList("Which assignment are you submitting?", labels))
}

// handleSubmitPick moves the chosen assignment into the file-await step.
func (e *Engine) handleSubmitPick(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	pick := st.Wizard.Pick
	result, idx := parsePick(body, len(pick.AssignmentIDs))
	switch result {
	case pickCancel:
		e.cancelWizard(ctx, user)
		return
	case pickInvalid:
		e.send(ctx, user.Phone, rangePrompt(len(pick.AssignmentIDs)))
		return
	}

	assignment := e.getAssignment(ctx, pick.AssignmentIDs[idx])
	if assignment == nil {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	e.enterAwaitFile(ctx, user, st, assignment)
}

func (e *Engine) enterAwaitFile(ctx context.Context, user *models.User, st *models.ConversationState, a *models.Assignment) {
	st.Wizard = &models.WizardData{
		Kind: models.WizardAwaitFile,
		AwaitFile: &models.AwaitFileData{
			AssignmentID: a.ID,
			Code:         a.Code,
			HasAnswerKey: a.AutoGrade && a.AnswerKeyURL != "",
		},
	}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, fmt.Sprintf("Send your work for %s as a PDF document now, or 0 to cancel.", a.Code))
}

// handleAwaitFile accepts the submission PDF. A non-PDF attachment re-prompts
// without touching the store.
func (e *Engine) handleAwaitFile(ctx context.Context, user *models.User, st *models.ConversationState, resp models.Response) {
	data := st.Wizard.AwaitFile

	if resp.Document == nil {
		if strings.TrimSpace(resp.Body) == "0" {
			e.cancelWizard(ctx, user)
			return
		}
		e.send(ctx, user.Phone, fmt.Sprintf("I'm waiting for your %s PDF. Send it as a document, or 0 to cancel.", data.Code))
		return
	}
	if !isPDF(resp.Document.MimeType, resp.Document.Filename) {
		e.send(ctx, user.Phone, "Only PDF files are accepted. Please send your work as a PDF, or 0 to cancel.")
		return
	}

	now := e.now().In(e.loc)
	url, err := e.files.Upload(ctx, filestore.ObjectKey(data.Code, resp.Document.Filename, now), resp.Document.Data, resp.Document.MimeType)
	if err != nil {
		slog.Error("Bot handleAwaitFile upload failed", "code", data.Code, "student", user.Phone, "error", err)
		e.send(ctx, user.Phone, "I couldn't store your file just now. Please send it again in a moment.")
		return
	}

	sub := models.Submission{
		ID:           uuid.NewString(),
		AssignmentID: data.AssignmentID,
		StudentPhone: user.Phone,
		FileURL:      url,
		SubmittedAt:  now,
	}
	if err := store.WithRetry(ctx, "UpsertSubmission", func() error {
		return e.store.UpsertSubmission(ctx, &sub)
	}); err != nil {
		slog.Error("Bot handleAwaitFile submission upsert failed", "code", data.Code, "student", user.Phone, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if err := store.WithRetry(ctx, "MarkStatusDone", func() error {
		return e.store.MarkStatusDone(ctx, data.AssignmentID, user.Phone)
	}); err != nil {
		slog.Error("Bot handleAwaitFile status update failed", "code", data.Code, "student", user.Phone, "error", err)
	}

	e.states.Clear(user.Phone)
	e.send(ctx, user.Phone, fmt.Sprintf("Got it! Your submission for %s is in. ✅", data.Code))

	if data.HasAnswerKey && e.grader != nil && e.grader.Enabled() {
		e.startGrading(ctx, user, data, sub)
	}
}

// startGrading fires the grading webhook and watches the store for the
// result in the background, outside the per-identity lock.
func (e *Engine) startGrading(ctx context.Context, user *models.User, data *models.AwaitFileData, sub models.Submission) {
	assignment := e.getAssignment(ctx, data.AssignmentID)
	if assignment == nil || assignment.AnswerKeyURL == "" {
		slog.Warn("Bot startGrading assignment missing answer key, skipping", "assignmentID", data.AssignmentID)
		return
	}

	err := e.grader.Trigger(ctx, grading.TriggerRequest{
		SubmissionID:  sub.ID,
		StudentID:     user.Phone,
		AssignmentID:  data.AssignmentID,
		SubmissionURL: sub.FileURL,
		AnswerKeyURL:  assignment.AnswerKeyURL,
	})
	if err != nil {
		slog.Error("Bot startGrading trigger failed", "submissionID", sub.ID, "error", err)
		e.send(ctx, user.Phone, "Your work will be graded manually by your teacher.")
		return
	}
	e.send(ctx, user.Phone, "Your work is being auto-graded now. I'll message you with the result.")

	go func() {
		result, pollErr := e.grader.PollResult(ctx, e.store, data.AssignmentID, user.Phone)
		if pollErr != nil {
			if errors.Is(pollErr, grading.ErrPollBudgetExceeded) {
				e.send(ctx, user.Phone, fmt.Sprintf("Grading %s is taking a while. I'll let your teacher follow up with the result.", data.Code))
			} else {
				slog.Warn("Bot grading poll ended", "code", data.Code, "student", user.Phone, "error", pollErr)
			}
			return
		}
		e.send(ctx, user.Phone, gradeMessage(data.Code, result))
	}()
}

// gradeEmojis decorates the letter grades in the result message.
var gradeEmojis = map[string]string{"A": "🌟", "B": "⭐", "C": "✨", "D": "💫"}

func gradeMessage(code string, sub *models.Submission) string {
	emoji := gradeEmojis[strings.ToUpper(sub.Grade)]
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s submission has been graded! %s\n", code, emoji)
	fmt.Fprintf(&b, "Grade: %s", sub.Grade)
	if sub.Score != nil {
		fmt.Fprintf(&b, " (%.0f)", *sub.Score)
	}
	if sub.Evaluation != "" {
		fmt.Fprintf(&b, "\nFeedback: %s", sub.Evaluation)
	}
	return b.String()
}

func (e *Engine) getAssignment(ctx context.Context, id int64) *models.Assignment {
	a, err := e.store.GetAssignmentByID(ctx, id)
	if err != nil {
		slog.Error("Bot assignment lookup by id failed", "id", id, "error", err)
		return nil
	}
	return a
}
