package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// startHistoryWizard lists the student's past submissions for selection.
func (e *Engine) startHistoryWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	var subs []models.Submission
	err := store.WithRetry(ctx, "ListSubmissionsByStudent", func() error {
		var listErr error
		subs, listErr = e.store.ListSubmissionsByStudent(ctx, user.Phone)
		return listErr
	})
	if err != nil {
		slog.Error("Bot startHistoryWizard listing failed", "student", user.Phone, "error", err)
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(subs) == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "You haven't submitted anything yet.")
		return
	}
	if len(subs) > listLimit {
		subs = subs[:listLimit]
	}

	pick := &models.PickData{}
	var labels []string
	for _, sub := range subs {
		code := fmt.Sprintf("assignment #%d", sub.AssignmentID)
		if a := e.getAssignment(ctx, sub.AssignmentID); a != nil {
			code = a.Code
		}
		grade := "not graded yet"
		if sub.Graded() {
			grade = fmt.Sprintf("grade %s (%.0f)", sub.Grade, *sub.Score)
		}
		pick.AssignmentIDs = append(pick.AssignmentIDs, sub.AssignmentID)
		pick.Codes = append(pick.Codes, code)
		labels = append(labels, fmt.Sprintf("%s, submitted %s, %s",
			code, sub.SubmittedAt.In(e.loc).Format("02 Jan 15:04"), grade))
	}

	st.Wizard = &models.WizardData{Kind: models.WizardHistory, Pick: pick}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, numberedList("Your submission history:", labels))
}

// handleHistoryPick shows the detail of one past submission. The answer key
// is never part of this view.
func (e *Engine) handleHistoryPick(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
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

	e.states.Clear(user.Phone)
	assignmentID := pick.AssignmentIDs[idx]

	var sub *models.Submission
	err := store.WithRetry(ctx, "GetSubmission", func() error {
		var getErr error
		sub, getErr = e.store.GetSubmission(ctx, assignmentID, user.Phone)
		return getErr
	})
	if err != nil || sub == nil {
		slog.Error("Bot handleHistoryPick submission lookup failed", "assignmentID", assignmentID, "student", user.Phone, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Submission for %s\n", pick.Codes[idx])
	if a := e.getAssignment(ctx, assignmentID); a != nil {
		fmt.Fprintf(&b, "Title: %s\n", a.Title)
		fmt.Fprintf(&b, "Deadline was: %s\n", a.Deadline.In(e.loc).Format("Mon, 02 Jan 2006 15:04"))
	}
	fmt.Fprintf(&b, "Submitted: %s\n", sub.SubmittedAt.In(e.loc).Format("Mon, 02 Jan 2006 15:04"))
	fmt.Fprintf(&b, "File: %s\n", sub.FileURL)
	if sub.Graded() {
		fmt.Fprintf(&b, "Grade: %s (%.0f)\n", sub.Grade, *sub.Score)
		if sub.Evaluation != "" {
			fmt.Fprintf(&b, "Feedback: %s\n", sub.Evaluation)
		}
	} else {
		b.WriteString("Not graded yet.\n")
	}
	e.send(ctx, user.Phone, strings.TrimRight(b.String(), "\n"))
}
