package events

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventStatusChanged   EventType = "ticket_status_changed"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventGuidanceFailed  EventType = "guidance_failed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketEscalatedPayload carries everything the manager notification
// needs: the ticket, current per-engineer loads and the assign window.
type TicketEscalatedPayload struct {
	Ticket        *domain.Ticket `json:"ticket"`
	Loads         map[string]int `json:"loads,omitempty"`
	WindowMinutes int            `json:"window_minutes"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Ticket           *domain.Ticket  `json:"ticket"`
	Engineer         domain.Engineer `json:"engineer"`
	PreviousEngineer string          `json:"previous_engineer,omitempty"`
	Auto             bool            `json:"auto"`
	CurrentLoad      int             `json:"current_load"`
}

// GuidanceFailedPayload carries the raw upstream error for diagnostics.
type GuidanceFailedPayload struct {
	Ticket *domain.Ticket `json:"ticket"`
	Reason string         `json:"reason"`
}

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
	}
}

// Publish synchronously invokes handlers for the given event. Handler
// errors do not stop delivery to the remaining handlers.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		_ = handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
