package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/dialog"
	"github.com/BTreeMap/ClassPipe/internal/messaging"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// handleBroadcastIntent handles a routed broadcast request. With the code
// slot already filled (the dialog collects code and class) the send happens
// directly; entered from the menu with no slots, the pick wizard lists the
// teacher's assignments instead.
func (e *Engine) handleBroadcastIntent(ctx context.Context, user *models.User, st *models.ConversationState) {
	code := canonicalizeCode(st.Slot(dialog.SlotCode))
	if code == "" {
		e.startBroadcastPick(ctx, user, st)
		return
	}

	e.states.Clear(user.Phone)
	assignment := e.peekAssignment(ctx, code)
	if assignment == nil {
		e.send(ctx, user.Phone, fmt.Sprintf("I couldn't find an assignment with code %s.", code))
		return
	}
	result := e.broadcastAssignment(ctx, assignment)
	e.send(ctx, user.Phone, broadcastSummary(assignment.Code, result))
}

// startBroadcastPick lists the teacher's recent assignments for selection.
func (e *Engine) startBroadcastPick(ctx context.Context, user *models.User, st *models.ConversationState) {
	assignments, err := e.listTeacherAssignments(ctx, user.Phone)
	if err != nil {
		slog.Error("Bot startBroadcastPick listing failed", "teacher", user.Phone, "error", err)
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(assignments) == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "You haven't published any assignments yet. Create one first.")
		return
	}

	pick := assignmentsToPick(assignments)
	st.Wizard = &models.WizardData{Kind: models.WizardBroadcast, Pick: pick}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, numberedList("Which assignment should I broadcast?", assignmentLabels(assignments)))
}

// handleBroadcastPick handles the numbered selection of the broadcast wizard.
func (e *Engine) handleBroadcastPick(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	pick := st.Wizard.Pick
	result, idx := parsePick(body, len(pick.Codes))
	switch result {
	case pickCancel:
		e.cancelWizard(ctx, user)
	case pickInvalid:
		e.send(ctx, user.Phone, rangePrompt(len(pick.Codes)))
	case pickChoice:
		e.states.Clear(user.Phone)
		assignment := e.peekAssignment(ctx, pick.Codes[idx])
		if assignment == nil {
			e.send(ctx, user.Phone, msgApology)
			return
		}
		res := e.broadcastAssignment(ctx, assignment)
		e.send(ctx, user.Phone, broadcastSummary(assignment.Code, res))
	}
}

// broadcastAssignment fans the assignment announcement out to its class
// roster through the throttled broadcaster.
func (e *Engine) broadcastAssignment(ctx context.Context, a *models.Assignment) models.BroadcastResult {
	students, err := e.listClassStudents(ctx, a.ClassName)
	if err != nil {
		slog.Error("Bot broadcastAssignment roster lookup failed", "class", a.ClassName, "error", err)
		return models.BroadcastResult{}
	}

	body := assignmentAnnouncement(a, e.loc)
	msgs := make([]messaging.Outbound, 0, len(students))
	for _, s := range students {
		msgs = append(msgs, messaging.Outbound{To: s.Phone, Body: body})
	}
	slog.Info("Bot broadcastAssignment starting fan-out", "code", a.Code, "class", a.ClassName, "recipients", len(msgs))
	return e.bcast.Send(ctx, msgs)
}

// BroadcastToList sends the assignment announcement to an explicit recipient
// list (the admin endpoint path).
func (e *Engine) BroadcastToList(ctx context.Context, a *models.Assignment, recipients []string) models.BroadcastResult {
	body := assignmentAnnouncement(a, e.loc)
	msgs := make([]messaging.Outbound, 0, len(recipients))
	for _, r := range recipients {
		msgs = append(msgs, messaging.Outbound{To: r, Body: body})
	}
	return e.bcast.Send(ctx, msgs)
}

func assignmentAnnouncement(a *models.Assignment, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 New assignment for %s\n", a.ClassName)
	fmt.Fprintf(&b, "Code: %s\n", a.Code)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	if a.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", a.Description)
	}
	fmt.Fprintf(&b, "Deadline: %s\n", a.Deadline.In(loc).Format("Mon, 02 Jan 2006 15:04"))
	if a.AttachmentURL != "" {
		fmt.Fprintf(&b, "Worksheet: %s\n", a.AttachmentURL)
	}
	fmt.Fprintf(&b, "\nReply \"submit %s\" when you're ready to turn in your work.", a.Code)
	return b.String()
}

func broadcastSummary(code string, result models.BroadcastResult) string {
	return fmt.Sprintf("Broadcast of %s finished: %d sent, %d failed out of %d.",
		code, result.Sent, result.Failed, result.Total)
}

func (e *Engine) listTeacherAssignments(ctx context.Context, teacherPhone string) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := store.WithRetry(ctx, "ListAssignmentsByTeacher", func() error {
		var listErr error
		assignments, listErr = e.store.ListAssignmentsByTeacher(ctx, teacherPhone, listLimit)
		return listErr
	})
	return assignments, err
}

func assignmentsToPick(assignments []models.Assignment) *models.PickData {
	pick := &models.PickData{}
	for _, a := range assignments {
		pick.AssignmentIDs = append(pick.AssignmentIDs, a.ID)
		pick.Codes = append(pick.Codes, a.Code)
		pick.Classes = append(pick.Classes, a.ClassName)
	}
	return pick
}

func assignmentLabels(assignments []models.Assignment) []string {
	labels := make([]string, 0, len(assignments))
	for _, a := range assignments {
		labels = append(labels, fmt.Sprintf("%s: %s (%s)", a.Code, a.Title, a.ClassName))
	}
	return labels
}
