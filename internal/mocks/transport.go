package mocks

import (
	"sync"
)

// MockSender is a mock implementation of transport.Sender. Sent frames
// are recorded for assertions.
type MockSender struct {
	mu       sync.Mutex
	sent     [][]byte
	SendFunc func(chargePointID string, data []byte) error
}

func (m *MockSender) Send(chargePointID string, data []byte) error {
	if m.SendFunc != nil {
		return m.SendFunc(chargePointID, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, append([]byte(nil), data...))
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockSender) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastSent returns the most recent frame, or nil.
func (m *MockSender) LastSent() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}
