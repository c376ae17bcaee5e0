package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu                sync.RWMutex
	transferredEvents []*TransferredEvent
	reclaimedEvents   []*ReclaimedEvent
	publishError      error
	closed            bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishTransferred records the event and returns any configured error.
func (m *MockPublisher) PublishTransferred(ctx context.Context, event *TransferredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.transferredEvents = append(m.transferredEvents, event)
	return nil
}

// PublishReclaimed records the event and returns any configured error.
func (m *MockPublisher) PublishReclaimed(ctx context.Context, event *ReclaimedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.reclaimedEvents = append(m.reclaimedEvents, event)
	return nil
}

// PublishReclaimedBatch records the events and returns any configured error.
func (m *MockPublisher) PublishReclaimedBatch(ctx context.Context, events []*ReclaimedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.reclaimedEvents = append(m.reclaimedEvents, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetTransferredEvents returns all published transfer events (for testing).
func (m *MockPublisher) GetTransferredEvents() []*TransferredEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*TransferredEvent, len(m.transferredEvents))
	copy(events, m.transferredEvents)
	return events
}

// GetReclaimedEvents returns all published reclamation events (for testing).
func (m *MockPublisher) GetReclaimedEvents() []*ReclaimedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ReclaimedEvent, len(m.reclaimedEvents))
	copy(events, m.reclaimedEvents)
	return events
}

// GetReclaimedEventsForOwner returns reclamation events published for a specific wallet.
func (m *MockPublisher) GetReclaimedEventsForOwner(owner string) []*ReclaimedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ReclaimedEvent, 0)
	for _, event := range m.reclaimedEvents {
		if event.Owner == owner {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferredEvents = nil
	m.reclaimedEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
