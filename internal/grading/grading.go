// Package grading triggers the external auto-grading pipeline and polls the
// store for its write-back.
//
// The grader runs outside this process. It receives a webhook with the
// submission and answer key URLs, evaluates the PDF, and writes the grade
// columns directly into the submissions table. This package owns both halves
// of that contract: firing the webhook and waiting for the columns to appear.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollBudget   = 120 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second
)

// ErrPollBudgetExceeded is returned when the grader does not write back
// within the poll budget. The submission stays valid; the result just
// arrives later.
var ErrPollBudgetExceeded = fmt.Errorf("grading result not ready within poll budget")

// TriggerRequest is the webhook payload sent to the grader.
type TriggerRequest struct {
	SubmissionID  string `json:"submissionId"`
	StudentID     string `json:"studentId"`
	AssignmentID  int64  `json:"assignmentId"`
	SubmissionURL string `json:"submissionUrl"`
	AnswerKeyURL  string `json:"answerKeyUrl"`
}

// Opts holds configuration options for the grading client.
type Opts struct {
	WebhookURL   string
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollBudget   time.Duration
}

// Option defines a configuration option for the grading client.
type Option func(*Opts)

// WithWebhookURL sets the grader webhook endpoint.
func WithWebhookURL(url string) Option {
	return func(o *Opts) { o.WebhookURL = url }
}

// WithHTTPClient overrides the HTTP client used for the webhook.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithPollInterval sets the interval between store polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithPollBudget sets the total time to wait for a grading result.
func WithPollBudget(d time.Duration) Option {
	return func(o *Opts) { o.PollBudget = d }
}

// Client triggers grading runs and polls for their results.
type Client struct {
	webhookURL   string
	httpClient   *http.Client
	pollInterval time.Duration
	pollBudget   time.Duration
}

// NewClient creates a grading client. An empty webhook URL produces a
// disabled client whose Trigger is a no-op returning an error, so callers
// can treat auto-grading as unavailable.
func NewClient(opts ...Option) *Client {
	cfg := Opts{
		PollInterval: DefaultPollInterval,
		PollBudget:   DefaultPollBudget,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{
		webhookURL:   cfg.WebhookURL,
		httpClient:   cfg.HTTPClient,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
	}
}

// Enabled reports whether a webhook endpoint is configured.
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

// Trigger fires the grading webhook for a submission.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) error {
	if !c.Enabled() {
		return fmt.Errorf("grading webhook not configured")
	}
	if req.SubmissionURL == "" || req.AnswerKeyURL == "" {
		return fmt.Errorf("grading trigger requires submission and answer key URLs")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal grading request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build grading request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("Grading Trigger webhook call failed", "submission_id", req.SubmissionID, "error", err)
		return fmt.Errorf("grading webhook call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Grading Trigger webhook rejected", "submission_id", req.SubmissionID, "status", resp.StatusCode)
		return fmt.Errorf("grading webhook returned status %d", resp.StatusCode)
	}

	slog.Info("Grading Trigger webhook accepted", "submission_id", req.SubmissionID, "assignment_id", req.AssignmentID)
	return nil
}

// PollResult polls the store until the grader has written back a grade for
// the submission, the poll budget runs out, or the context is cancelled.
func (c *Client) PollResult(ctx context.Context, st store.Store, assignmentID int64, studentPhone string) (*models.Submission, error) {
	deadline := time.Now().Add(c.pollBudget)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		sub, err := st.GetSubmission(ctx, assignmentID, studentPhone)
		if err != nil {
			slog.Warn("Grading PollResult store read failed", "assignment_id", assignmentID, "student", studentPhone, "error", err)
		} else if sub != nil && sub.Graded() {
			slog.Info("Grading PollResult got result", "assignment_id", assignmentID, "student", studentPhone, "grade", sub.Grade)
			return sub, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrPollBudgetExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
