package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/dialog"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// sendMyAssignments lists open assignments for a student, or recently
// published ones for a teacher.
func (e *Engine) sendMyAssignments(ctx context.Context, user *models.User) {
	if user.Role == models.RoleTeacher {
		assignments, err := e.listTeacherAssignments(ctx, user.Phone)
		if err != nil {
			slog.Error("Bot sendMyAssignments teacher listing failed", "teacher", user.Phone, "error", err)
			e.send(ctx, user.Phone, msgApology)
			return
		}
		if len(assignments) == 0 {
			e.send(ctx, user.Phone, "You haven't published any assignments yet.")
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Your published assignments (%d):\n", len(assignments))
		for i, a := range assignments {
			fmt.Fprintf(&b, "%d. %s: %s (%s, due %s)\n", i+1, a.Code, a.Title, a.ClassName,
				a.Deadline.In(e.loc).Format("02 Jan 15:04"))
		}
		e.send(ctx, user.Phone, strings.TrimRight(b.String(), "\n"))
		return
	}

	var open []models.Assignment
	err := store.WithRetry(ctx, "ListOpenAssignments", func() error {
		var listErr error
		open, listErr = e.store.ListOpenAssignments(ctx, user.Phone, user.ClassName)
		return listErr
	})
	if err != nil {
		slog.Error("Bot sendMyAssignments student listing failed", "student", user.Phone, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(open) == 0 {
		e.send(ctx, user.Phone, "You have no open assignments. Nice work!")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your open assignments (%d):\n", len(open))
	for i, a := range open {
		fmt.Fprintf(&b, "%d. %s: %s (due %s)\n", i+1, a.Code, a.Title,
			a.Deadline.In(e.loc).Format("Mon, 02 Jan 15:04"))
	}
	b.WriteString("Reply \"submit <code>\" to turn one in.")
	e.send(ctx, user.Phone, b.String())
}

// handleAssignmentDetail shows one assignment by code. Without a code the
// turn becomes a slot question so a bare code reply can answer it.
func (e *Engine) handleAssignmentDetail(ctx context.Context, user *models.User, st *models.ConversationState) {
	code := canonicalizeCode(st.Slot(dialog.SlotCode))
	if code == "" {
		st.LastIntent = models.IntentAssignmentDetail
		e.states.Set(user.Phone, *st)
		e.send(ctx, user.Phone, "Which assignment code do you want details for? (e.g. MTK001)")
		return
	}

	e.states.Clear(user.Phone)
	assignment := e.peekAssignment(ctx, code)
	if assignment == nil {
		e.send(ctx, user.Phone, fmt.Sprintf("I couldn't find an assignment with code %s.", code))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Assignment %s\n", assignment.Code)
	fmt.Fprintf(&b, "Title: %s\n", assignment.Title)
	if assignment.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", assignment.Description)
	}
	fmt.Fprintf(&b, "Class: %s\n", assignment.ClassName)
	fmt.Fprintf(&b, "Deadline: %s\n", assignment.Deadline.In(e.loc).Format("Mon, 02 Jan 2006 15:04"))
	if assignment.AttachmentURL != "" {
		fmt.Fprintf(&b, "Worksheet: %s\n", assignment.AttachmentURL)
	}
	if assignment.AutoGrade {
		b.WriteString("This assignment is auto-graded.\n")
	}
	e.send(ctx, user.Phone, strings.TrimRight(b.String(), "\n"))
}

// sendDeadline answers a deadline question for one code, asking for the code
// first when it is missing.
func (e *Engine) sendDeadline(ctx context.Context, user *models.User, code string) {
	code = canonicalizeCode(code)
	if code == "" {
		e.states.Set(user.Phone, models.ConversationState{
			Identity:   user.Phone,
			LastIntent: models.IntentAskDeadline,
		})
		e.send(ctx, user.Phone, "Which assignment code? (e.g. MTK001)")
		return
	}

	e.states.Clear(user.Phone)
	assignment := e.peekAssignment(ctx, code)
	if assignment == nil {
		e.send(ctx, user.Phone, fmt.Sprintf("I couldn't find an assignment with code %s.", code))
		return
	}

	deadline := assignment.Deadline.In(e.loc)
	remaining := deadline.Sub(e.now())
	var note string
	switch {
	case remaining < 0:
		note = "That deadline has already passed."
	case remaining < 24*time.Hour:
		note = "Less than a day left!"
	default:
		note = fmt.Sprintf("%d day(s) left.", int(remaining.Hours())/24)
	}
	e.send(ctx, user.Phone, fmt.Sprintf("%s is due %s. %s", assignment.Code,
		deadline.Format("Mon, 02 Jan 2006 15:04"), note))
}
