package dialog

import (
	"testing"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/nlp"
)

func resolve(t *testing.T, st *models.ConversationState, raw string) Plan {
	t.Helper()
	text := nlp.Normalize(raw)
	ents := nlp.Extract(nlp.CollapseSpaces(raw), time.Now())
	return Resolve(st, nlp.Classify(text, ents), ents, raw)
}

func TestRouteWhenAllSlotsPresent(t *testing.T) {
	st := &models.ConversationState{}
	plan := resolve(t, st, "submit assignment MTK001")
	if plan.Action != ActionRoute {
		t.Fatalf("action = %s, want route", plan.Action)
	}
	if plan.Intent != models.IntentSubmitAssignment {
		t.Errorf("intent = %s, want submit", plan.Intent)
	}
	if plan.Slots[SlotCode] != "MTK001" {
		t.Errorf("code slot = %q, want MTK001", plan.Slots[SlotCode])
	}
}

func TestAskFirstMissingSlot(t *testing.T) {
	st := &models.ConversationState{}
	plan := resolve(t, st, "please broadcast the assignment")
	if plan.Action != ActionAskSlot {
		t.Fatalf("action = %s, want ask_slot", plan.Action)
	}
	if plan.AskFor != SlotCode {
		t.Errorf("askFor = %q, want code first", plan.AskFor)
	}
	if plan.Prompt == "" {
		t.Error("expected a clarifying prompt")
	}
	if st.LastIntent != models.IntentBroadcastAssignment {
		t.Errorf("lastIntent = %s, want broadcast persisted", st.LastIntent)
	}
}

func TestFallbackResumesPriorIntent(t *testing.T) {
	st := &models.ConversationState{LastIntent: models.IntentAskDeadline}
	plan := resolve(t, st, "uhm")
	if plan.Intent != models.IntentAskDeadline {
		t.Fatalf("intent = %s, want prior intent resumed", plan.Intent)
	}
	if plan.Action != ActionAskSlot || plan.AskFor != SlotCode {
		t.Errorf("plan = %+v, want ask for code", plan)
	}
}

func TestBareCodeContinuesPriorIntent(t *testing.T) {
	st := &models.ConversationState{LastIntent: models.IntentSubmitAssignment}
	plan := resolve(t, st, "MTK001")
	if plan.Intent != models.IntentSubmitAssignment {
		t.Fatalf("intent = %s, want prior submit continued", plan.Intent)
	}
	if plan.Action != ActionRoute {
		t.Errorf("action = %s, want route now that code arrived", plan.Action)
	}
	if plan.Slots[SlotCode] != "MTK001" {
		t.Errorf("code slot = %q, want MTK001", plan.Slots[SlotCode])
	}
}

func TestMergeDoesNotOverwrite(t *testing.T) {
	st := &models.ConversationState{LastIntent: models.IntentBroadcastAssignment}
	st.SetSlot(SlotCode, "FIS002")
	plan := resolve(t, st, "MTK001 for xii tkj 2")
	if plan.Slots[SlotCode] != "FIS002" {
		t.Errorf("code slot = %q, existing value must not be overwritten", plan.Slots[SlotCode])
	}
	if plan.Slots[SlotClass] != "XIITKJ2" {
		t.Errorf("class slot = %q, new keys must merge in", plan.Slots[SlotClass])
	}
}

func TestMultiTurnSlotFilling(t *testing.T) {
	st := &models.ConversationState{}

	plan := resolve(t, st, "broadcast the assignment please")
	if plan.Action != ActionAskSlot || plan.AskFor != SlotCode {
		t.Fatalf("turn 1 = %+v, want ask for code", plan)
	}

	plan = resolve(t, st, "MTK001")
	if plan.Action != ActionAskSlot || plan.AskFor != SlotClass {
		t.Fatalf("turn 2 = %+v, want ask for class", plan)
	}

	plan = resolve(t, st, "xii tkj 2")
	if plan.Action != ActionRoute {
		t.Fatalf("turn 3 = %+v, want route", plan)
	}
	if plan.Slots[SlotCode] != "MTK001" || plan.Slots[SlotClass] != "XIITKJ2" {
		t.Errorf("slots = %v, want both filled", plan.Slots)
	}
}

func TestStatePreservingSet(t *testing.T) {
	if !StatePreserving(models.IntentCreateAssignment) {
		t.Error("create must preserve state for its wizard")
	}
	if StatePreserving(models.IntentAskDeadline) {
		t.Error("deadline question has no wizard, state should clear")
	}
}
