package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/chat"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/scheduler"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

// fakeSender records every outbound message for assertions.
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string, _ *chat.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

var testRoster = domain.Roster{
	{Name: "Bold", ChatID: 201},
	{Name: "Saruul", ChatID: 202},
	{Name: "Tulga", ChatID: 203},
}

type escalationFixture struct {
	store      *store.SqliteStore
	escalation *EscalationService
	dispatcher events.Dispatcher
	sched      *scheduler.Scheduler
	sender     *fakeSender

	mu       sync.Mutex
	assigned []events.TicketAssignedPayload
}

func newEscalationFixture(t *testing.T, window time.Duration) *escalationFixture {
	t.Helper()

	st, err := store.NewSqliteStore(":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &escalationFixture{
		store:      st,
		dispatcher: events.NewInMemoryDispatcher(),
		sched:      scheduler.New(nil, zap.NewNop()),
		sender:     &fakeSender{},
	}
	f.dispatcher.Subscribe(events.EventTicketAssigned, func(_ context.Context, e events.Event) error {
		if payload, ok := e.Payload.(events.TicketAssignedPayload); ok {
			f.mu.Lock()
			f.assigned = append(f.assigned, payload)
			f.mu.Unlock()
		}
		return nil
	})

	notifier := NewNotificationService(f.sender, 900, testRoster, zap.NewNop(), observability.NewMetrics())
	notifier.RegisterHandlers(f.dispatcher)

	f.escalation = NewEscalationService(EscalationDependencies{
		Store:      st,
		Roster:     testRoster,
		Scheduler:  f.sched,
		Dispatcher: f.dispatcher,
		Window:     window,
		Logger:     zap.NewNop(),
		Metrics:    observability.NewMetrics(),
	})
	return f
}

func (f *escalationFixture) assignedEvents() []events.TicketAssignedPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.TicketAssignedPayload(nil), f.assigned...)
}

func (f *escalationFixture) newTicket(t *testing.T) int64 {
	t.Helper()
	category, ok := domain.FindIssueCategory("Network")
	require.True(t, ok)
	id, err := f.store.CreateTicket(context.Background(), store.NewTicket{
		ChatID:     100,
		FullName:   "A. Bat",
		Department: "IT",
		Category:   category,
	})
	require.NoError(t, err)
	return id
}

// seedLoad creates count assigned tickets for the engineer today.
func (f *escalationFixture) seedLoad(t *testing.T, engineer string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		id := f.newTicket(t)
		require.NoError(t, f.store.Assign(context.Background(), id, engineer))
	}
}

func TestEscalateArmsTimerAndNotifiesManager(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	ctx := context.Background()
	id := f.newTicket(t)

	require.NoError(t, f.escalation.Escalate(ctx, id))

	ticket, err := f.store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingManager, ticket.Status)
	assert.True(t, f.sched.Pending(id))

	messages := f.sender.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, int64(900), messages[0].ChatID, "manager receives the escalation")
	assert.Contains(t, messages[0].Text, "/assign")
	assert.Contains(t, messages[0].Text, "Bold")
}

func TestAutoAssignPicksLeastLoaded(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	ctx := context.Background()

	f.seedLoad(t, "Bold", 2)
	f.seedLoad(t, "Tulga", 1)

	id := f.newTicket(t)
	require.NoError(t, f.escalation.Escalate(ctx, id))
	f.escalation.AutoAssign(ctx, id)

	ticket, err := f.store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Saruul", ticket.AssignedEngineer)
	assert.Equal(t, domain.StatusEscalatedToEngineer, ticket.Status)

	assigned := f.assignedEvents()
	require.Len(t, assigned, 1)
	assert.True(t, assigned[0].Auto)
	assert.Equal(t, 1, assigned[0].CurrentLoad)
}

func TestAutoAssignTieBreaksByRosterOrder(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	ctx := context.Background()

	f.seedLoad(t, "Bold", 1)
	f.seedLoad(t, "Saruul", 1)
	f.seedLoad(t, "Tulga", 1)

	id := f.newTicket(t)
	require.NoError(t, f.escalation.Escalate(ctx, id))
	f.escalation.AutoAssign(ctx, id)

	ticket, err := f.store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bold", ticket.AssignedEngineer)
}

func TestManualAssign(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	ctx := context.Background()
	id := f.newTicket(t)
	require.NoError(t, f.escalation.Escalate(ctx, id))

	ticket, previous, load, err := f.escalation.ManualAssign(ctx, id, "tulga")
	require.NoError(t, err)
	assert.Equal(t, "Tulga", ticket.AssignedEngineer, "roster casing wins over input casing")
	assert.Empty(t, previous)
	assert.Equal(t, 1, load)
	assert.False(t, f.sched.Pending(id), "manual assign cancels the timer")

	// Re-assignment overwrites and reports the previous engineer.
	ticket, previous, _, err = f.escalation.ManualAssign(ctx, id, "Bold")
	require.NoError(t, err)
	assert.Equal(t, "Bold", ticket.AssignedEngineer)
	assert.Equal(t, "Tulga", previous)
}

func TestManualAssignUnknownEngineer(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	id := f.newTicket(t)

	_, _, _, err := f.escalation.ManualAssign(context.Background(), id, "Ghost")
	assert.Error(t, err)
}

func TestManualAssignUnknownTicket(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)

	_, _, _, err := f.escalation.ManualAssign(context.Background(), 424242, "Bold")
	assert.Error(t, err)
}

func TestTimerAfterManualAssignIsNoop(t *testing.T) {
	f := newEscalationFixture(t, 40*time.Millisecond)
	ctx := context.Background()
	id := f.newTicket(t)

	require.NoError(t, f.escalation.Escalate(ctx, id))
	_, _, _, err := f.escalation.ManualAssign(ctx, id, "Saruul")
	require.NoError(t, err)

	// Give a stray timer plenty of time to fire if cancellation failed.
	time.Sleep(150 * time.Millisecond)

	ticket, err := f.store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Saruul", ticket.AssignedEngineer)

	assigned := f.assignedEvents()
	require.Len(t, assigned, 1, "no duplicate assignment event")
	assert.False(t, assigned[0].Auto)
}

func TestAutoAssignLosesRaceGracefully(t *testing.T) {
	f := newEscalationFixture(t, time.Hour)
	ctx := context.Background()
	id := f.newTicket(t)

	require.NoError(t, f.escalation.Escalate(ctx, id))
	_, _, _, err := f.escalation.ManualAssign(ctx, id, "Bold")
	require.NoError(t, err)

	// A late fire against an already assigned ticket changes nothing.
	f.escalation.AutoAssign(ctx, id)

	ticket, err := f.store.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bold", ticket.AssignedEngineer)
	assert.Len(t, f.assignedEvents(), 1)
}
