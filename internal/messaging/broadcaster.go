package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/util"
)

// Throttle defaults. WhatsApp flags accounts that blast large recipient
// lists at full speed, so fan-out goes in small batches with randomized
// per-message delays and a long pause between batches.
const (
	DefaultBatchSize  = 20
	DefaultMinDelay   = 3 * time.Second
	DefaultMaxDelay   = 7 * time.Second
	DefaultBatchPause = 60 * time.Second
)

// Outbound is one message in a broadcast fan-out. Document is optional; when
// set, the message goes out as a document with Body as the caption.
type Outbound struct {
	To       string
	Body     string
	Document *models.Document
}

// BroadcasterOpts holds throttle configuration for a Broadcaster.
type BroadcasterOpts struct {
	BatchSize  int
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BatchPause time.Duration
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*BroadcasterOpts)

// WithBatchSize sets how many messages go out before the long pause.
func WithBatchSize(n int) BroadcasterOption {
	return func(o *BroadcasterOpts) { o.BatchSize = n }
}

// WithDelayRange sets the randomized per-message delay bounds.
func WithDelayRange(min, max time.Duration) BroadcasterOption {
	return func(o *BroadcasterOpts) {
		o.MinDelay = min
		o.MaxDelay = max
	}
}

// WithBatchPause sets the pause between batches.
func WithBatchPause(d time.Duration) BroadcasterOption {
	return func(o *BroadcasterOpts) { o.BatchPause = d }
}

// Broadcaster sends a list of outbound messages through a Service with
// anti-spam throttling. Per-recipient failures are recorded, not fatal.
type Broadcaster struct {
	svc  Service
	opts BroadcasterOpts
}

// NewBroadcaster creates a Broadcaster over the given messaging service.
func NewBroadcaster(svc Service, opts ...BroadcasterOption) *Broadcaster {
	cfg := BroadcasterOpts{
		BatchSize:  DefaultBatchSize,
		MinDelay:   DefaultMinDelay,
		MaxDelay:   DefaultMaxDelay,
		BatchPause: DefaultBatchPause,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Broadcaster{svc: svc, opts: cfg}
}

// Send delivers the messages sequentially under the throttle policy and
// returns per-recipient counts. Benign transport quirks count as sent.
// Cancelling the context stops the fan-out; messages not yet attempted are
// counted as failed.
func (b *Broadcaster) Send(ctx context.Context, msgs []Outbound) models.BroadcastResult {
	result := models.BroadcastResult{Total: len(msgs)}

	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			slog.Warn("Broadcaster Send cancelled", "sent", result.Sent, "remaining", len(msgs)-i)
			result.Failed += len(msgs) - i
			return result
		}

		if err := b.sendOne(ctx, msg); err != nil {
			if IsBenignSendError(err) {
				slog.Debug("Broadcaster treating benign send error as success", "to", msg.To, "error", err)
				result.Sent++
			} else {
				slog.Error("Broadcaster send failed", "to", msg.To, "error", err)
				result.Failed++
			}
		} else {
			result.Sent++
		}

		if i == len(msgs)-1 {
			break
		}
		if (i+1)%b.opts.BatchSize == 0 {
			slog.Info("Broadcaster pausing between batches", "sent_so_far", result.Sent, "pause", b.opts.BatchPause)
			if !sleepCtx(ctx, b.opts.BatchPause) {
				result.Failed += len(msgs) - i - 1
				return result
			}
		} else {
			if !sleepCtx(ctx, util.JitterDuration(b.opts.MinDelay, b.opts.MaxDelay)) {
				result.Failed += len(msgs) - i - 1
				return result
			}
		}
	}

	slog.Info("Broadcaster fan-out complete", "sent", result.Sent, "failed", result.Failed, "total", result.Total)
	return result
}

func (b *Broadcaster) sendOne(ctx context.Context, msg Outbound) error {
	if msg.Document != nil {
		doc := *msg.Document
		return b.svc.SendDocument(ctx, msg.To, doc)
	}
	return b.svc.SendMessage(ctx, msg.To, msg.Body)
}

// sleepCtx waits for d or until the context is cancelled. It reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
