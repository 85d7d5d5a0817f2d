package services

import (
	"context"
	"sync"
)

// RecordedEvent is one event captured by the mock publisher
type RecordedEvent struct {
	Pattern string
	Data    map[string]interface{}
}

// MockEventPublisher records published events for test assertions
type MockEventPublisher struct {
	mu     sync.RWMutex
	events []RecordedEvent
}

// NewMockEventPublisher creates a new mock event publisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// SetAsMockForTesting sets this mock as the global publisher instance
func (m *MockEventPublisher) SetAsMockForTesting() {
	SetEventPublisher(m)
}

// Publish records the event
func (m *MockEventPublisher) Publish(ctx context.Context, pattern string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, RecordedEvent{Pattern: pattern, Data: data})
	return nil
}

// Close is a no-op
func (m *MockEventPublisher) Close() {}

// Events returns the recorded events
func (m *MockEventPublisher) Events() []RecordedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]RecordedEvent, len(m.events))
	copy(events, m.events)
	return events
}

// EventsWithPattern returns the recorded events matching the pattern
func (m *MockEventPublisher) EventsWithPattern(pattern string) []RecordedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []RecordedEvent
	for _, e := range m.events {
		if e.Pattern == pattern {
			matched = append(matched, e)
		}
	}
	return matched
}
