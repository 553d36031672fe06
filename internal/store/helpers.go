package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Retry policy for transient store failures: a small fixed attempt count
// with linearly increasing backoff.
const (
	retryAttempts  = 3
	retryBaseDelay = 1 * time.Second
)

// WithRetry runs fn, retrying transient failures up to retryAttempts times
// with linear backoff. Non-transient errors surface immediately.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		slog.Warn("Store operation failed, retrying", "op", op, "attempt", attempt, "error", err)
		if attempt == retryAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * retryBaseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", models.ErrTransientStore, op, retryAttempts, err)
}

// IsTransient reports whether the error looks like a connection-class
// failure worth retrying rather than a data error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrTransientStore) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exceptions.
		return strings.HasPrefix(string(pqErr.Code), "08")
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

// IsUniqueViolation reports whether the error is a unique-constraint
// violation from either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nilIfEmpty returns nil if s is empty, otherwise s. Used for nullable
// columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
