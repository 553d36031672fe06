package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ClassPipe/internal/models"
	"github.com/BTreeMap/ClassPipe/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio WhatsApp API. Inbound
// messages arrive through the webhook handler rather than a socket.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService around the given sender.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

// Start is a no-op for Twilio (no live socket to run).
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.responses)
	}()
	return nil
}

// SendMessage sends a text message via Twilio and emits a receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonical, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// SendDocument sends the document as a media URL message. Twilio cannot
// take inline bytes, so the document must already have a public URL.
func (s *TwilioService) SendDocument(ctx context.Context, to string, doc models.Document) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if doc.URL == "" {
		return fmt.Errorf("twilio transport requires a document URL, got inline bytes only")
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	body := doc.Caption
	if body == "" {
		body = doc.Filename
	}
	if err := s.client.SendMediaMessage(ctx, canonical, body, doc.URL); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonical, Status: models.StatusTypeSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts.
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel for incoming messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// WebhookHandler handles inbound Twilio webhook requests, parsing incoming
// messages into models.Response events.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")

	// Inbound media arrives as Twilio-hosted URLs; only the first item is
	// used, matching the one-file-per-turn wizard contract.
	var doc *models.Document
	if n, _ := strconv.Atoi(r.FormValue("NumMedia")); n > 0 {
		mediaURL := r.FormValue("MediaUrl0")
		contentType := r.FormValue("MediaContentType0")
		if mediaURL != "" {
			data, err := fetchTwilioMedia(r.Context(), mediaURL)
			if err != nil {
				slog.Error("Twilio webhook media fetch failed", "from", from, "error", err)
			} else {
				doc = &models.Document{
					Filename: mediaFilename(contentType),
					MimeType: contentType,
					Data:     data,
				}
			}
		}
	}

	if from == "" || (body == "" && doc == nil) {
		slog.Warn("Twilio webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	canonical, err := CanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("Twilio webhook unparseable sender", "from", from, "error", err)
		http.Error(w, "Bad sender", http.StatusBadRequest)
		return
	}

	s.safeEmitResponse(models.Response{From: canonical, Body: body, Document: doc, Time: time.Now().Unix()})
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// fetchTwilioMedia downloads one Twilio-hosted media item.
func fetchTwilioMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// mediaFilename synthesizes a filename from the reported content type;
// Twilio media URLs carry none.
func mediaFilename(contentType string) string {
	switch strings.ToLower(contentType) {
	case "application/pdf":
		return "media.pdf"
	case "image/png":
		return "media.png"
	case "image/jpeg", "image/jpg":
		return "media.jpg"
	default:
		return "media.bin"
	}
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	if s.isStopped() {
		return
	}
	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
	}
}

func (s *TwilioService) safeEmitResponse(response models.Response) {
	if s.isStopped() {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", response.From)
		return
	}
	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From)
	}
}
