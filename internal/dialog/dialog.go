// Package dialog implements the generic slot-filling controller.
//
// Given a classification result, the extracted entities, and the caller's
// conversation state, Resolve decides one of two outcomes for the turn:
// route the intent with its collected slots, or ask for the first missing
// slot. Wizards are out of scope here; once a state-preserving intent is
// routed, the wizard layer owns subsequent turns.
package dialog

import (
	"regexp"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/nlp"
)

// Action is the dialog outcome for one turn.
type Action string

const (
	ActionRoute   Action = "route"
	ActionAskSlot Action = "ask_slot"
)

// Plan is the resolved outcome: either a routable intent with its slots, or
// a clarifying prompt for one missing slot.
type Plan struct {
	Action Action
	Intent models.Intent
	Slots  map[string]string
	AskFor string
	Prompt string
}

// Slot names. Order inside slotRules is significant: the first missing slot
// is the one asked for.
const (
	SlotCode  = "code"
	SlotClass = "class"
)

var slotRules = map[models.Intent][]string{
	models.IntentSubmitAssignment:    {SlotCode},
	models.IntentAskDeadline:         {SlotCode},
	models.IntentAssignmentDetail:    {SlotCode},
	models.IntentBroadcastAssignment: {SlotCode, SlotClass},
}

var slotPrompts = map[string]string{
	SlotCode:  "Which assignment code? (e.g. MTK001)",
	SlotClass: "Which class? (e.g. XIITKJ2)",
}

// statePreserving lists intents whose routing hands control to a wizard, so
// conversation state must survive the route.
var statePreserving = map[models.Intent]bool{
	models.IntentCreateAssignment:    true,
	models.IntentBroadcastAssignment: true,
	models.IntentExportRecap:         true,
	models.IntentListRoster:          true,
	models.IntentSubmitAssignment:    true,
	models.IntentStatusHistory:       true,
	models.IntentImageToPDF:          true,
}

// StatePreserving reports whether routing the intent keeps conversation
// state alive for a wizard handoff.
func StatePreserving(intent models.Intent) bool {
	return statePreserving[intent]
}

// actionVerbs marks text that looks like a fresh request rather than a bare
// code reply continuing the previous question.
var actionVerbs = regexp.MustCompile(`submit|detail|info|status|history|create|broadcast|recap|report|roster|my (assignments|tasks)`)

// Resolve runs the per-turn slot-filling state machine. It mutates st (slot
// merge, last intent) and returns the plan. rawText is the original message,
// used only by the short-reply continuation heuristic.
func Resolve(st *models.ConversationState, res nlp.Result, ents nlp.Entities, rawText string) Plan {
	intent := res.Intent

	// A fallback while mid-conversation continues the prior intent instead
	// of being treated as a topic change.
	if intent == models.IntentFallback && st.LastIntent != models.IntentNone {
		intent = st.LastIntent
	}

	// A bare short code-like reply continues a prior intent that was waiting
	// for the code slot, even if the classifier saw something else in it.
	if st.LastIntent != models.IntentNone && intent != st.LastIntent {
		if needsSlot(st.LastIntent, SlotCode) && ents.Code != "" &&
			len(rawText) < 20 && !actionVerbs.MatchString(nlp.Normalize(rawText)) {
			intent = st.LastIntent
		}
	}

	st.LastIntent = intent
	mergeEntities(st, ents)

	required := slotRules[intent]
	for _, name := range required {
		if st.Slot(name) == "" {
			return Plan{
				Action: ActionAskSlot,
				Intent: intent,
				Slots:  st.Slots,
				AskFor: name,
				Prompt: slotPrompts[name],
			}
		}
	}

	return Plan{Action: ActionRoute, Intent: intent, Slots: st.Slots}
}

// mergeEntities adds extracted entities as slots without overwriting values
// collected on earlier turns.
func mergeEntities(st *models.ConversationState, ents nlp.Entities) {
	if ents.Code != "" && st.Slot(SlotCode) == "" {
		st.SetSlot(SlotCode, ents.Code)
	}
	if ents.ClassName != "" && st.Slot(SlotClass) == "" {
		st.SetSlot(SlotClass, ents.ClassName)
	}
}

func needsSlot(intent models.Intent, name string) bool {
	for _, s := range slotRules[intent] {
		if s == name {
			return true
		}
	}
	return false
}
