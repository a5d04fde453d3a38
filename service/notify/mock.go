package notify

import (
	"context"
	"sync"
)

// MockNotifier is a mock implementation of Notifier for testing.
type MockNotifier struct {
	mu       sync.RWMutex
	messages []*Message
	sendErr  error
	closed   bool
}

// NewMockNotifier creates a new mock notifier for testing.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		messages: make([]*Message, 0),
	}
}

// Send records the message and returns any configured error.
func (m *MockNotifier) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}

	m.messages = append(m.messages, msg)
	return nil
}

// Close marks the notifier as closed.
func (m *MockNotifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns all sent messages (for testing).
func (m *MockNotifier) Messages() []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	out := make([]*Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessagesForTemplate returns messages sent with a specific template.
func (m *MockNotifier) MessagesForTemplate(template TemplateType) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Message, 0)
	for _, msg := range m.messages {
		if msg.Template == template {
			out = append(out, msg)
		}
	}
	return out
}

// SetSendError configures the mock to return an error on Send.
func (m *MockNotifier) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Reset clears all messages and errors.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = make([]*Message, 0)
	m.sendErr = nil
	m.closed = false
}

// IsClosed returns whether the notifier has been closed.
func (m *MockNotifier) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
