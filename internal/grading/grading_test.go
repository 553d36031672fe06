package grading

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

func TestTriggerPostsPayload(t *testing.T) {
	var got TriggerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(WithWebhookURL(srv.URL))
	err := c.Trigger(context.Background(), TriggerRequest{
		SubmissionID:  "sub-1",
		StudentID:     "628111000111",
		AssignmentID:  7,
		SubmissionURL: "https://files.example.test/MTK7_budi.pdf",
		AnswerKeyURL:  "https://files.example.test/key_MTK7.pdf",
	})
	if err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if got.SubmissionID != "sub-1" || got.AssignmentID != 7 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.AnswerKeyURL == "" || got.SubmissionURL == "" {
		t.Errorf("payload missing URLs: %+v", got)
	}
}

func TestTriggerRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithWebhookURL(srv.URL))
	err := c.Trigger(context.Background(), TriggerRequest{
		SubmissionID:  "sub-1",
		SubmissionURL: "https://x/s.pdf",
		AnswerKeyURL:  "https://x/k.pdf",
	})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestTriggerDisabledWithoutWebhook(t *testing.T) {
	c := NewClient()
	if c.Enabled() {
		t.Error("client without webhook URL should be disabled")
	}
	err := c.Trigger(context.Background(), TriggerRequest{
		SubmissionURL: "https://x/s.pdf",
		AnswerKeyURL:  "https://x/k.pdf",
	})
	if err == nil {
		t.Fatal("expected error when webhook not configured")
	}
}

func TestTriggerRequiresURLs(t *testing.T) {
	c := NewClient(WithWebhookURL("http://localhost:1/hook"))
	if err := c.Trigger(context.Background(), TriggerRequest{SubmissionURL: "https://x/s.pdf"}); err == nil {
		t.Error("expected error without answer key URL")
	}
}

func TestPollResultFindsGrade(t *testing.T) {
	st := store.NewMemoryStore()
	sub := &models.Submission{
		ID:           "sub-1",
		AssignmentID: 7,
		StudentPhone: "628111000111",
		FileURL:      "https://x/s.pdf",
		SubmittedAt:  time.Now(),
	}
	if err := st.UpsertSubmission(context.Background(), sub); err != nil {
		t.Fatalf("seed submission: %v", err)
	}

	c := NewClient(WithPollInterval(10*time.Millisecond), WithPollBudget(2*time.Second))

	// Write the grade while the poll loop runs, as the external grader would.
	go func() {
		time.Sleep(50 * time.Millisecond)
		st.SetGradingResult(7, "628111000111", "B", 85, "Good work")
	}()

	got, err := c.PollResult(context.Background(), st, 7, "628111000111")
	if err != nil {
		t.Fatalf("PollResult failed: %v", err)
	}
	if got.Grade != "B" || got.Score == nil || *got.Score != 85 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestPollResultBudgetExceeded(t *testing.T) {
	st := store.NewMemoryStore()
	c := NewClient(WithPollInterval(10*time.Millisecond), WithPollBudget(50*time.Millisecond))

	_, err := c.PollResult(context.Background(), st, 7, "628111000111")
	if err != ErrPollBudgetExceeded {
		t.Fatalf("expected ErrPollBudgetExceeded, got %v", err)
	}
}
