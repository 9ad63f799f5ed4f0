package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/scheduler"
	"github.com/spec-kit/helpdesk-bot/internal/store"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util"
)

// EscalationService decides who handles an unresolved ticket, notifies
// the right parties and guarantees assignment happens exactly once even
// when a manual command races the auto-assign timer.
type EscalationService struct {
	store      store.TicketStore
	roster     domain.Roster
	sched      *scheduler.Scheduler
	dispatcher events.Dispatcher
	window     time.Duration
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	Store      store.TicketStore
	Roster     domain.Roster
	Scheduler  *scheduler.Scheduler
	Dispatcher events.Dispatcher
	Window     time.Duration
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	window := deps.Window
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &EscalationService{
		store:      deps.Store,
		roster:     deps.Roster,
		sched:      deps.Scheduler,
		dispatcher: deps.Dispatcher,
		window:     window,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Window returns the auto-assign deadline window.
func (s *EscalationService) Window() time.Duration {
	return s.window
}

// Escalate moves the ticket to awaiting_manager, notifies the manager
// with current per-engineer loads and arms the auto-assign timer. With
// no roster configured the manager is notified and nothing is armed.
func (s *EscalationService) Escalate(ctx context.Context, ticketID int64) error {
	if err := s.store.SetStatus(ctx, ticketID, domain.StatusAwaitingManager); err != nil {
		return apperrors.MapError(err)
	}
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}

	s.metrics.RecordBotEvent("escalations")

	payload := events.TicketEscalatedPayload{
		Ticket:        ticket,
		WindowMinutes: int(s.window / time.Minute),
	}

	if len(s.roster) == 0 {
		s.logger.Info("ticket escalated without roster", zap.Int64("ticket_id", ticketID))
		s.publish(ctx, events.EventTicketEscalated, ticketID, payload)
		return nil
	}

	loads, err := s.store.LoadsToday(ctx, s.roster.Names())
	if err != nil {
		return apperrors.MapError(err)
	}
	payload.Loads = loads
	s.publish(ctx, events.EventTicketEscalated, ticketID, payload)

	s.sched.Schedule(ticketID, s.window, func(id int64) {
		s.AutoAssign(context.Background(), id)
	})
	s.logger.Info("auto-assign timer armed",
		zap.Int64("ticket_id", ticketID),
		zap.Duration("window", s.window))
	return nil
}

// ManualAssign assigns the named engineer on a manager's command. It
// cancels any pending timer first and always overwrites a previous
// assignment. Returns the updated ticket, the previous engineer name
// (empty when none) and the engineer's load for today.
func (s *EscalationService) ManualAssign(ctx context.Context, ticketID int64, engineerName string) (*domain.Ticket, string, int, error) {
	engineer, ok := s.roster.Find(engineerName)
	if !ok {
		if len(s.roster) == 0 {
			return nil, "", 0, apperrors.NewConflict(
				"no engineer roster is configured; check the ENGINEERS setting", nil)
		}
		return nil, "", 0, apperrors.NewNotFound("engineer", map[string]any{
			"available": strings.Join(s.roster.Names(), ", "),
		})
	}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", 0, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, "", 0, apperrors.MapError(err)
	}
	previous := ticket.AssignedEngineer

	// Manual action always wins: remove the timer before touching the
	// ticket so a late fire can only observe an assigned ticket.
	s.sched.Cancel(ticketID)

	if err := s.store.Assign(ctx, ticketID, engineer.Name); err != nil {
		return nil, "", 0, apperrors.MapError(err)
	}
	ticket.AssignedEngineer = engineer.Name
	ticket.Status = domain.StatusEscalatedToEngineer

	loads, err := s.store.LoadsToday(ctx, []string{engineer.Name})
	if err != nil {
		return nil, "", 0, apperrors.MapError(err)
	}

	s.metrics.RecordBotEvent("manual_assignments")
	s.publish(ctx, events.EventTicketAssigned, ticketID, events.TicketAssignedPayload{
		Ticket:           ticket,
		Engineer:         engineer,
		PreviousEngineer: previous,
		Auto:             false,
		CurrentLoad:      loads[engineer.Name],
	})
	return ticket, previous, loads[engineer.Name], nil
}

// AutoAssign is the timer fire handler. If the ticket was assigned
// manually in the meantime it is a no-op; otherwise the engineer with
// the minimum load today wins, ties broken by roster order.
func (s *EscalationService) AutoAssign(ctx context.Context, ticketID int64) {
	assigned, err := s.store.IsAssigned(ctx, ticketID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("auto-assign pre-check failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		}
		return
	}
	if assigned {
		s.logger.Debug("auto-assign skipped, ticket already assigned", zap.Int64("ticket_id", ticketID))
		return
	}
	if len(s.roster) == 0 {
		return
	}

	loads, err := s.store.LoadsToday(ctx, s.roster.Names())
	if err != nil {
		s.logger.Error("auto-assign load query failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		return
	}
	engineer := s.selectEngineer(loads)

	won, err := s.store.AssignIfUnassigned(ctx, ticketID, engineer.Name)
	if err != nil {
		s.logger.Error("auto-assign failed", zap.Int64("ticket_id", ticketID), zap.Error(err))
		return
	}
	if !won {
		// A manual assignment slipped in between the check and the CAS.
		s.logger.Debug("auto-assign lost the race", zap.Int64("ticket_id", ticketID))
		return
	}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		s.logger.Error("auto-assigned ticket vanished", zap.Int64("ticket_id", ticketID), zap.Error(err))
		return
	}

	s.metrics.RecordBotEvent("auto_assignments")
	s.logger.Info("ticket auto-assigned after timeout",
		zap.Int64("ticket_id", ticketID),
		zap.String("engineer", engineer.Name))
	s.publish(ctx, events.EventTicketAssigned, ticketID, events.TicketAssignedPayload{
		Ticket:      ticket,
		Engineer:    engineer,
		Auto:        true,
		CurrentLoad: loads[engineer.Name] + 1,
	})
}

// selectEngineer picks the minimum-load engineer; equal loads resolve
// by roster order, first encountered wins.
func (s *EscalationService) selectEngineer(loads map[string]int) domain.Engineer {
	best := s.roster[0]
	bestLoad := loads[best.Name]
	for _, eng := range s.roster[1:] {
		if loads[eng.Name] < bestLoad {
			best = eng
			bestLoad = loads[eng.Name]
		}
	}
	return best
}

// ReportGuidanceFailure forwards the raw generator error to the
// manager channel for diagnostics.
func (s *EscalationService) ReportGuidanceFailure(ctx context.Context, ticket *domain.Ticket, cause error) {
	s.metrics.RecordBotEvent("guidance_failures")
	s.publish(ctx, events.EventGuidanceFailed, ticket.ID, events.GuidanceFailedPayload{
		Ticket: ticket,
		Reason: cause.Error(),
	})
}

func (s *EscalationService) publish(ctx context.Context, eventType events.EventType, ticketID int64, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
