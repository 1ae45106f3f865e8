package mail

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
)

// Message is one fully rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a single message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFactory builds a transport for one dispatch run from the mail
// settings current at the start of that run.
type TransportFactory func(settings models.MailSettings) (Transport, error)

// LogTransport writes messages to the log instead of delivering them.
type LogTransport struct {
	logger *logging.ContextLogger
}

func NewLogTransport(logger *logging.ContextLogger) *LogTransport {
	return &LogTransport{logger: logger}
}

func LogTransportFactory(logger *logging.ContextLogger) TransportFactory {
	return func(models.MailSettings) (Transport, error) {
		return NewLogTransport(logger), nil
	}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.InfoWithTracing(ctx, "Email not delivered, log transport in use", logrus.Fields{
		"from":    msg.From,
		"to":      msg.To,
		"subject": msg.Subject,
		"bytes":   len(msg.HTML),
	})
	return nil
}

// MemoryTransport records messages in memory. Recipients listed in
// FailFor are rejected with the mapped error.
type MemoryTransport struct {
	mu       sync.Mutex
	messages []Message
	FailFor  map[string]error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{FailFor: make(map[string]error)}
}

func (m *MemoryTransport) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[msg.To]; ok {
		return err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the delivered messages.
func (m *MemoryTransport) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessagesTo returns the messages delivered to one recipient.
func (m *MemoryTransport) MessagesTo(to string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if msg.To == to {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MemoryTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Factory returns a TransportFactory that always yields m.
func (m *MemoryTransport) Factory() TransportFactory {
	return func(models.MailSettings) (Transport, error) {
		return m, nil
	}
}
