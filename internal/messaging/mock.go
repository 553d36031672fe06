package messaging

import (
	"context"
	"sync"

	"github.com/BTreeMap/ClassPipe/internal/models"
)

// MockService is an in-memory Service for tests. It records sends and lets
// tests inject inbound responses and per-recipient send errors.
type MockService struct {
	mu            sync.Mutex
	SentMessages  []MockSentMessage
	SentDocuments []MockSentDocument
	SendErrors    map[string]error // keyed by canonical recipient
	receipts      chan models.Receipt
	responses     chan models.Response
}

type MockSentMessage struct {
	To   string
	Body string
}

type MockSentDocument struct {
	To  string
	Doc models.Document
}

func NewMockService() *MockService {
	return &MockService{
		SendErrors: make(map[string]error),
		receipts:   make(chan models.Receipt, DefaultChannelBufferSize),
		responses:  make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	close(m.receipts)
	close(m.responses)
	return nil
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := m.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SendErrors[canonical]; err != nil {
		return err
	}
	m.SentMessages = append(m.SentMessages, MockSentMessage{To: canonical, Body: body})
	return nil
}

func (m *MockService) SendDocument(ctx context.Context, to string, doc models.Document) error {
	canonical, err := m.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.SendErrors[canonical]; err != nil {
		return err
	}
	m.SentDocuments = append(m.SentDocuments, MockSentDocument{To: canonical, Doc: doc})
	return nil
}

func (m *MockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *MockService) Responses() <-chan models.Response { return m.responses }

// InjectResponse feeds an inbound message into the responses channel.
func (m *MockService) InjectResponse(resp models.Response) {
	m.responses <- resp
}

// LastMessageTo returns the body of the most recent text message sent to the
// given recipient, or empty string.
func (m *MockService) LastMessageTo(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.SentMessages) - 1; i >= 0; i-- {
		if m.SentMessages[i].To == to {
			return m.SentMessages[i].Body
		}
	}
	return ""
}
