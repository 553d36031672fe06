package state

import (
	"sync"
	"testing"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

func TestMemoryManagerGetSetClear(t *testing.T) {
	m := NewMemoryManager()

	if _, ok := m.Get("111"); ok {
		t.Fatal("expected no state for fresh identity")
	}

	m.Set("111", models.ConversationState{LastIntent: models.IntentAskDeadline})
	st, ok := m.Get("111")
	if !ok {
		t.Fatal("expected state after Set")
	}
	if st.LastIntent != models.IntentAskDeadline {
		t.Errorf("lastIntent = %s, want %s", st.LastIntent, models.IntentAskDeadline)
	}
	if st.Identity != "111" {
		t.Errorf("identity = %q, want 111", st.Identity)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	m.Clear("111")
	if _, ok := m.Get("111"); ok {
		t.Fatal("expected no state after Clear")
	}
}

func TestMemoryManagerIsolation(t *testing.T) {
	m := NewMemoryManager()
	m.Set("111", models.ConversationState{MenuMode: models.MenuModeTeacher})
	m.Set("222", models.ConversationState{MenuMode: models.MenuModeStudent})

	a, _ := m.Get("111")
	b, _ := m.Get("222")
	if a.MenuMode == b.MenuMode {
		t.Fatal("identities must not share state")
	}
	m.Clear("111")
	if _, ok := m.Get("222"); !ok {
		t.Fatal("clearing one identity must not touch another")
	}
}

func TestAcquireSerializesPerIdentity(t *testing.T) {
	m := NewMemoryManager()
	const turns = 100

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire("111")
			defer release()
			st, _ := m.Get("111")
			st.SetSlot("count", st.Slot("count")+"x")
			m.Set("111", st)
		}()
	}
	wg.Wait()

	st, _ := m.Get("111")
	if got := len(st.Slot("count")); got != turns {
		t.Fatalf("lost updates: %d turns recorded, want %d", got, turns)
	}
}
