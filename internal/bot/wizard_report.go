package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ClassPipe/internal/filestore"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/report"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// startRecapWizard lists the teacher's assignments for recap selection.
func (e *Engine) startRecapWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	assignments, err := e.listTeacherAssignments(ctx, user.Phone)
	if err != nil {
		slog.Error("Bot startRecapWizard listing failed", "teacher", user.Phone, "error", err)
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(assignments) == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "You haven't published any assignments yet, so there is nothing to recap.")
		return
	}

	st.Wizard = &models.WizardData{Kind: models.WizardRecap, Pick: assignmentsToPick(assignments)}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, numberedList("Which assignment do you want a recap for?", assignmentLabels(assignments)))
}

// handleRecapPick generates and delivers the recap workbook for the chosen
// assignment.
func (e *Engine) handleRecapPick(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
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
	code := pick.Codes[idx]

	var rows []models.RecapRow
	err := store.WithRetry(ctx, "ListRecapRows", func() error {
		var listErr error
		rows, listErr = e.store.ListRecapRows(ctx, assignmentID)
		return listErr
	})
	if err != nil {
		slog.Error("Bot handleRecapPick recap rows failed", "assignmentID", assignmentID, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(rows) == 0 {
		e.send(ctx, user.Phone, fmt.Sprintf("No students are registered for %s yet, so the recap would be empty.", code))
		return
	}

	workbook, err := report.BuildRecapWorkbook(rows, e.loc)
	if err != nil {
		slog.Error("Bot handleRecapPick workbook build failed", "code", code, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}

	now := e.now().In(e.loc)
	filename := report.RecapFilename(code, now)

	// Upload so URL-based transports can deliver the file too.
	url, err := e.files.Upload(ctx, filestore.ObjectKey(code, filename, now), workbook, report.MimeTypeXLSX)
	if err != nil {
		slog.Warn("Bot handleRecapPick workbook upload failed, sending inline only", "code", code, "error", err)
	}

	done, pending := report.Summarize(rows)
	e.sendDocument(ctx, user.Phone, models.Document{
		Filename: filename,
		MimeType: report.MimeTypeXLSX,
		Caption:  fmt.Sprintf("Recap for %s: %d done, %d pending of %d students.", code, done, pending, len(rows)),
		URL:      url,
		Data:     workbook,
	})
}
