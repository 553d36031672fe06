package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// startRosterWizard lists the distinct classes for selection.
func (e *Engine) startRosterWizard(ctx context.Context, user *models.User, st *models.ConversationState) {
	var classes []string
	err := store.WithRetry(ctx, "ListClasses", func() error {
		var listErr error
		classes, listErr = e.store.ListClasses(ctx)
		return listErr
	})
	if err != nil {
		slog.Error("Bot startRosterWizard class listing failed", "error", err)
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(classes) == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "No classes have registered students yet.")
		return
	}
	if len(classes) > listLimit {
		classes = classes[:listLimit]
	}

	st.Wizard = &models.WizardData{Kind: models.WizardRoster, Pick: &models.PickData{Classes: classes}}
	e.states.Set(user.Phone, *st)
	e.send(ctx, user.Phone, numberedList("Which class roster do you want to see?", classes))
}

// handleRosterPick displays the roster of the chosen class.
func (e *Engine) handleRosterPick(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	pick := st.Wizard.Pick
	result, idx := parsePick(body, len(pick.Classes))
	switch result {
	case pickCancel:
		e.cancelWizard(ctx, user)
		return
	case pickInvalid:
		e.send(ctx, user.Phone, rangePrompt(len(pick.Classes)))
		return
	}

	e.states.Clear(user.Phone)
	className := pick.Classes[idx]
	students, err := e.listClassStudents(ctx, className)
	if err != nil {
		slog.Error("Bot handleRosterPick roster lookup failed", "class", className, "error", err)
		e.send(ctx, user.Phone, msgApology)
		return
	}
	if len(students) == 0 {
		e.send(ctx, user.Phone, fmt.Sprintf("%s has no registered students.", className))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Roster of %s (%d students):\n", className, len(students))
	for i, s := range students {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, s.Name, s.Phone)
	}
	e.send(ctx, user.Phone, strings.TrimRight(b.String(), "\n"))
}
