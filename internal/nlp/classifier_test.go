package nlp

import (
	"testing"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

func classify(t *testing.T, raw string) Result {
	t.Helper()
	text := Normalize(raw)
	ents := Extract(CollapseSpaces(raw), time.Now())
	return Classify(text, ents)
}

func TestClassifyCreateAssignment(t *testing.T) {
	res := classify(t, "create task")
	if res.Intent != models.IntentCreateAssignment {
		t.Fatalf("intent = %s, want %s", res.Intent, models.IntentCreateAssignment)
	}
	if res.Score < 4 {
		t.Errorf("score = %v, want boosted score >= 4", res.Score)
	}
	if res.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", res.Confidence)
	}
}

func TestClassifyGreeting(t *testing.T) {
	for _, text := range []string{"hello", "hi", "menu please", "start"} {
		res := classify(t, text)
		if res.Intent != models.IntentGreeting {
			t.Errorf("classify(%q) = %s, want greeting", text, res.Intent)
		}
	}
}

func TestClassifySubmitWithCode(t *testing.T) {
	res := classify(t, "i want to submit assignment MTK001")
	if res.Intent != models.IntentSubmitAssignment {
		t.Fatalf("intent = %s, want %s", res.Intent, models.IntentSubmitAssignment)
	}
	// keyword + required entity + base boost + code boost
	if res.Score < 1+1.5+2+2 {
		t.Errorf("score = %v, want >= 6.5", res.Score)
	}
}

func TestClassifyBroadcast(t *testing.T) {
	res := classify(t, "broadcast assignment MTK001 to xii tkj 2")
	if res.Intent != models.IntentBroadcastAssignment {
		t.Fatalf("intent = %s, want %s", res.Intent, models.IntentBroadcastAssignment)
	}
}

func TestClassifyImageToPDF(t *testing.T) {
	for _, text := range []string{"convert images to pdf", "photo to pdf please", "img to pdf"} {
		res := classify(t, text)
		if res.Intent != models.IntentImageToPDF {
			t.Errorf("classify(%q) = %s, want %s", text, res.Intent, models.IntentImageToPDF)
		}
	}
}

func TestClassifyFallback(t *testing.T) {
	res := classify(t, "see you soon")
	if res.Intent != models.IntentFallback {
		t.Fatalf("intent = %s, want fallback", res.Intent)
	}
	if res.Score != 0 || res.Confidence != 0 {
		t.Errorf("score/confidence = %v/%v, want 0/0", res.Score, res.Confidence)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	const text = "export recap for MTK001"
	first := classify(t, text)
	for i := 0; i < 50; i++ {
		again := classify(t, text)
		if again.Intent != first.Intent || again.Score != first.Score {
			t.Fatalf("run %d: got %s/%v, first run %s/%v", i, again.Intent, again.Score, first.Intent, first.Score)
		}
	}
}

func TestConfidenceClamp(t *testing.T) {
	if got := clamp(5.0/3, 0, 1); got != 1 {
		t.Errorf("clamp high = %v, want 1", got)
	}
	if got := clamp(-1, 0, 1); got != 0 {
		t.Errorf("clamp low = %v, want 0", got)
	}
	if got := clamp(0.5, 0, 1); got != 0.5 {
		t.Errorf("clamp mid = %v, want 0.5", got)
	}
}
