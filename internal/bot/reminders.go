package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/messaging"
	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/store"
)

// digestBuckets groups a student's open assignments by urgency.
type digestBuckets struct {
	Overdue     []models.Assignment
	DueToday    []models.Assignment
	DueTomorrow []models.Assignment
	Later       []models.Assignment
}

func (b digestBuckets) empty() bool {
	return len(b.Overdue) == 0 && len(b.DueToday) == 0 && len(b.DueTomorrow) == 0 && len(b.Later) == 0
}

// bucketAssignments sorts open assignments into urgency buckets relative to
// the local calendar day.
func bucketAssignments(open []models.Assignment, now time.Time, loc *time.Location) digestBuckets {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	var b digestBuckets
	for _, a := range open {
		deadline := a.Deadline.In(loc)
		switch {
		case deadline.Before(now.In(loc)):
			b.Overdue = append(b.Overdue, a)
		case deadline.Before(tomorrow):
			b.DueToday = append(b.DueToday, a)
		case !deadline.Before(tomorrow) && deadline.Before(dayAfter):
			b.DueTomorrow = append(b.DueTomorrow, a)
		default:
			b.Later = append(b.Later, a)
		}
	}
	return b
}

// digestText renders one student's digest message.
func digestText(name string, b digestBuckets, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s, here's your assignment digest:\n", name)
	section := func(header string, items []models.Assignment) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(header + "\n")
		for _, a := range items {
			fmt.Fprintf(&sb, "  %s: %s (due %s)\n", a.Code, a.Title, a.Deadline.In(loc).Format("Mon, 02 Jan 15:04"))
		}
	}
	section("⚠️ Overdue:", b.Overdue)
	section("🔥 Due today:", b.DueToday)
	section("⏰ Due tomorrow:", b.DueTomorrow)
	section("📋 Coming up:", b.Later)
	sb.WriteString("\nReply \"submit <code>\" to turn one in.")
	return sb.String()
}

// SendDigests builds the per-student assignment digest and fans it out via
// the throttled broadcaster. Students with no open assignments get nothing.
// Scheduled twice daily.
func (e *Engine) SendDigests(ctx context.Context) models.BroadcastResult {
	students, err := e.listAllStudents(ctx)
	if err != nil {
		slog.Error("Bot SendDigests student listing failed", "error", err)
		return models.BroadcastResult{}
	}

	now := e.now()
	var msgs []messaging.Outbound
	for _, s := range students {
		open, err := e.store.ListOpenAssignments(ctx, s.Phone, s.ClassName)
		if err != nil {
			slog.Warn("Bot SendDigests open listing failed, skipping student", "student", s.Phone, "error", err)
			continue
		}
		buckets := bucketAssignments(open, now, e.loc)
		if buckets.empty() {
			continue
		}
		msgs = append(msgs, messaging.Outbound{To: s.Phone, Body: digestText(s.Name, buckets, e.loc)})
	}
	if len(msgs) == 0 {
		slog.Info("Bot SendDigests nothing to send")
		return models.BroadcastResult{}
	}

	slog.Info("Bot SendDigests starting fan-out", "recipients", len(msgs))
	return e.bcast.Send(ctx, msgs)
}

// SendDueTomorrowReminders nudges only the students with an assignment due
// tomorrow. Scheduled in the afternoon.
func (e *Engine) SendDueTomorrowReminders(ctx context.Context) models.BroadcastResult {
	students, err := e.listAllStudents(ctx)
	if err != nil {
		slog.Error("Bot SendDueTomorrowReminders student listing failed", "error", err)
		return models.BroadcastResult{}
	}

	now := e.now()
	var msgs []messaging.Outbound
	for _, s := range students {
		open, err := e.store.ListOpenAssignments(ctx, s.Phone, s.ClassName)
		if err != nil {
			slog.Warn("Bot SendDueTomorrowReminders open listing failed, skipping student", "student", s.Phone, "error", err)
			continue
		}
		buckets := bucketAssignments(open, now, e.loc)
		if len(buckets.DueTomorrow) == 0 {
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Hi %s, don't forget: due tomorrow!\n", s.Name)
		for _, a := range buckets.DueTomorrow {
			fmt.Fprintf(&sb, "  %s: %s (due %s)\n", a.Code, a.Title, a.Deadline.In(e.loc).Format("Mon, 02 Jan 15:04"))
		}
		sb.WriteString("\nReply \"submit <code>\" to turn it in early.")
		msgs = append(msgs, messaging.Outbound{To: s.Phone, Body: sb.String()})
	}
	if len(msgs) == 0 {
		return models.BroadcastResult{}
	}

	slog.Info("Bot SendDueTomorrowReminders starting fan-out", "recipients", len(msgs))
	return e.bcast.Send(ctx, msgs)
}

func (e *Engine) listAllStudents(ctx context.Context) ([]models.User, error) {
	var students []models.User
	err := store.WithRetry(ctx, "ListAllStudents", func() error {
		var listErr error
		students, listErr = e.store.ListAllStudents(ctx)
		return listErr
	})
	return students, err
}
