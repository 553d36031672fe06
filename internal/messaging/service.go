// Package messaging provides the transport abstraction for ClassPipe.
//
// A Service delivers outbound messages and surfaces inbound responses and
// delivery receipts on buffered channels. The native whatsmeow backend and
// the Twilio backend both implement it; the bot engine and the broadcaster
// consume it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// Constants for service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt
	// and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking
	// channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by send methods after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service is the transport interface.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	SendMessage(ctx context.Context, to string, body string) error
	SendDocument(ctx context.Context, to string, doc models.Document) error
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	Receipts() <-chan models.Receipt
	Responses() <-chan models.Response
}

// CanonicalizeRecipient validates and canonicalizes a phone-like identity:
// all non-digits removed, at least 6 digits remaining.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("Messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// IsBenignSendError reports whether a send failure belongs to the known
// benign class where the message almost certainly went out (the server
// rejects a post-send chat-state update, not the message itself). Callers
// treat these as success.
func IsBenignSendError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrTransportQuirk) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "marked unread") || strings.Contains(msg, "markchatunread")
}
