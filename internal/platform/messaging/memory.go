package messaging

import (
	"context"
	"errors"
	"sync"
)

// Message is one payload captured by MemoryPublisher.
type Message struct {
	Queue   string
	Payload []byte
}

// MemoryPublisher records published payloads in memory. It backs the memory
// driver and doubles as a test fake.
type MemoryPublisher struct {
	mu           sync.Mutex
	messages     []Message
	disconnected bool
	ShouldFail   bool
	FailError    string
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) Publish(_ context.Context, queue string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		msg := m.FailError
		if msg == "" {
			msg = "publish failed"
		}
		return errors.New(msg)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.messages = append(m.messages, Message{Queue: queue, Payload: cp})
	return nil
}

func (m *MemoryPublisher) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *MemoryPublisher) SetConnected(connected bool) {
	m.mu.Lock()
	m.disconnected = !connected
	m.mu.Unlock()
}

// Messages returns a copy of everything published so far.
func (m *MemoryPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *MemoryPublisher) Close() error {
	m.SetConnected(false)
	return nil
}
