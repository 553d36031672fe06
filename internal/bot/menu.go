package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// Fixed reply texts.
const (
	msgApology      = "Sorry, something went wrong on our side. Please try again in a moment."
	msgUnregistered = "Your number is not registered yet. Please ask your teacher or admin to register you first."
	msgForbidden    = "Sorry, that action is only available to teachers."
	msgCancelled    = "Okay, cancelled. Send \"halo\" anytime to open the menu."
)

const teacherHelpText = "What I can do for you:\n" +
	"- create assignment\n" +
	"- broadcast assignment <code> to <class>\n" +
	"- export recap\n" +
	"- view roster\n" +
	"Send \"halo\" to open the menu."

const studentHelpText = "What I can do for you:\n" +
	"- my assignments\n" +
	"- submit <code>\n" +
	"- status history\n" +
	"- detail <code>\n" +
	"- when is <code> due\n" +
	"Send \"halo\" to open the menu."

// greetingWords trigger menu mode when the message starts with one of them.
var greetingWords = map[string]bool{
	"halo": true, "hai": true, "hallo": true, "hello": true, "hi": true,
	"hey": true, "hei": true, "assalamualaikum": true, "selamat": true,
	"pagi": true, "siang": true, "sore": true, "malam": true,
}

func isGreeting(body string) bool {
	fields := strings.Fields(strings.ToLower(body))
	if len(fields) == 0 || len(fields) > 4 {
		return false
	}
	return greetingWords[fields[0]]
}

// Menu choice tables, numeric choice to intent. 0 is the reserved exit.
var teacherMenu = []struct {
	Label  string
	Intent models.Intent
}{
	{"Create a new assignment", models.IntentCreateAssignment},
	{"Broadcast an assignment", models.IntentBroadcastAssignment},
	{"Export a grade recap", models.IntentExportRecap},
	{"View a class roster", models.IntentListRoster},
	{"My published assignments", models.IntentMyAssignments},
	{"Convert images to PDF", models.IntentImageToPDF},
	{"Help", models.IntentTeacherHelp},
}

var studentMenu = []struct {
	Label  string
	Intent models.Intent
}{
	{"My open assignments", models.IntentMyAssignments},
	{"Submit an assignment", models.IntentSubmitAssignment},
	{"My submission history", models.IntentStatusHistory},
	{"Ask about a deadline", models.IntentAskDeadline},
	{"Convert images to PDF", models.IntentImageToPDF},
	{"Help", models.IntentStudentHelp},
}

func menuText(user *models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s! What would you like to do?\n", user.Name)
	if user.Role == models.RoleTeacher {
		for i, item := range teacherMenu {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Label)
		}
	} else {
		for i, item := range studentMenu {
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.Label)
		}
	}
	b.WriteString("0. Exit")
	return b.String()
}

// enterMenu puts the conversation into role-specific menu mode.
func (e *Engine) enterMenu(ctx context.Context, user *models.User) {
	mode := models.MenuModeStudent
	if user.Role == models.RoleTeacher {
		mode = models.MenuModeTeacher
	}
	e.states.Set(user.Phone, models.ConversationState{Identity: user.Phone, MenuMode: mode})
	e.send(ctx, user.Phone, menuText(user))
}

// handleMenuChoice interprets one numeric menu selection.
func (e *Engine) handleMenuChoice(ctx context.Context, user *models.User, st *models.ConversationState, body string) {
	menu := studentMenu
	if st.MenuMode == models.MenuModeTeacher {
		menu = teacherMenu
	}

	choice, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || choice < 0 || choice > len(menu) {
		e.send(ctx, user.Phone, fmt.Sprintf("Please reply with a number between 0 and %d.", len(menu)))
		return
	}
	if choice == 0 {
		e.states.Clear(user.Phone)
		e.send(ctx, user.Phone, "Alright, see you! Send \"halo\" anytime.")
		return
	}

	// Leaving menu mode; the chosen intent handler decides the next state.
	st.MenuMode = models.MenuModeNone
	e.states.Set(user.Phone, *st)
	e.route(ctx, user, st, menu[choice-1].Intent, models.Response{From: user.Phone})
}

func helpTextFor(role models.Role) string {
	if role == models.RoleTeacher {
		return teacherHelpText
	}
	return studentHelpText
}
