// Package audit emits one event per completed harvest request so operators
// can trace which tenants a harvester touched and what it got back.
package audit

import (
	"context"
	"sync"
	"time"
)

// Event describes one completed external harvest request.
type Event struct {
	RequestID string    `json:"requestId"`
	Verb      string    `json:"verb"`
	Tenant    string    `json:"tenant"`
	Hops      int       `json:"hops"`
	Records   int       `json:"records"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits audit events. Emission is best effort; a failing publisher
// must never fail the harvest it describes.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Memory keeps events in process memory. Used by tests and as the fallback
// when no broker is configured.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
