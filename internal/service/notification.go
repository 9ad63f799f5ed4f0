package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/chat"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
)

// NotificationService turns domain events into chat messages for the
// manager, the assigned engineer and the original reporter. Delivery
// failures are logged and swallowed, independently per recipient; they
// never roll back the store.
type NotificationService struct {
	sender        chat.Sender
	managerChatID int64
	roster        domain.Roster
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(sender chat.Sender, managerChatID int64, roster domain.Roster, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	return &NotificationService{
		sender:        sender,
		managerChatID: managerChatID,
		roster:        roster,
		logger:        logger,
		metrics:       metrics,
	}
}

// RegisterHandlers subscribes to the events this service reacts to.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	dispatcher.Subscribe(events.EventGuidanceFailed, n.handleGuidanceFailed)
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		return nil
	}
	ticket := payload.Ticket

	var b strings.Builder
	b.WriteString("New escalated ticket:\n")
	writeTicketContext(&b, ticket)

	if len(n.roster) == 0 {
		b.WriteString("\nNo engineer roster is configured. Assignment must be handled manually.")
	} else {
		b.WriteString("\nCurrent load today:\n")
		for _, eng := range n.roster {
			fmt.Fprintf(&b, "- %s: %d tickets\n", eng.Name, payload.Loads[eng.Name])
		}
		fmt.Fprintf(&b,
			"\nAssign an engineer with:\n/assign %d <engineer name>\nAvailable engineers: %s\n",
			ticket.ID, strings.Join(n.roster.Names(), ", "))
		fmt.Fprintf(&b,
			"If nobody is assigned within %d minutes the least loaded engineer is assigned automatically.",
			payload.WindowMinutes)
	}

	n.send(ctx, n.managerChatID, b.String(), "manager")
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	ticket := payload.Ticket
	engineer := payload.Engineer

	if payload.Auto {
		n.send(ctx, n.managerChatID,
			fmt.Sprintf("Ticket #%d was auto-assigned to %s after the escalation window expired (load today: %d).",
				ticket.ID, engineer.Name, payload.CurrentLoad),
			"manager")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A new ticket was assigned to you.\n")
	writeTicketContext(&b, ticket)
	n.send(ctx, engineer.ChatID, b.String(), "engineer")

	n.send(ctx, ticket.ChatID,
		fmt.Sprintf("Engineer %s is now working on your ticket.", engineer.Name),
		"reporter")
	return nil
}

func (n *NotificationService) handleGuidanceFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.GuidanceFailedPayload)
	if !ok {
		return nil
	}
	ticket := payload.Ticket

	var b strings.Builder
	fmt.Fprintf(&b, "AI guidance failed for ticket #%d.\nError: %s\n\n", ticket.ID, payload.Reason)
	writeTicketContext(&b, ticket)
	n.send(ctx, n.managerChatID, b.String(), "manager")
	return nil
}

// send delivers one message; failure is logged, counted and dropped.
func (n *NotificationService) send(ctx context.Context, chatID int64, text, recipient string) {
	if err := n.sender.Send(ctx, chatID, text, nil); err != nil {
		n.metrics.RecordBotEvent("notification_failures")
		n.logger.Warn("notification delivery failed",
			zap.String("recipient", recipient),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func writeTicketContext(b *strings.Builder, ticket *domain.Ticket) {
	fmt.Fprintf(b, "- Ticket ID: %d\n", ticket.ID)
	fmt.Fprintf(b, "- Reporter: %s\n", ticket.FullName)
	if ticket.StaffCode != "" {
		fmt.Fprintf(b, "- Staff code: %s\n", ticket.StaffCode)
	}
	fmt.Fprintf(b, "- Department: %s\n", ticket.Department)
	fmt.Fprintf(b, "- Issue type: %s\n", ticket.IssueType)
	description := ticket.IssueDescription
	if description == "" {
		description = "not recorded"
	}
	fmt.Fprintf(b, "- Description: %s\n", description)
	if ticket.AIGuidance != "" {
		fmt.Fprintf(b, "\n- AI guidance:\n%s\n", ticket.AIGuidance)
	}
}
