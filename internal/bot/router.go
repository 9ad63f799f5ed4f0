package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/chat"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	"github.com/spec-kit/helpdesk-bot/internal/store"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util"
)

const managerOnlyMessage = "This command is only available to the IT support manager."

// reportStage tracks a manager's progress through the /report dialog.
type reportStage int

const (
	reportChooseRange reportStage = iota + 1
	reportCustomRange
)

// Router consumes chat updates and dispatches them to commands, the
// manager's report dialog or the reporter intake flow. Each update is
// handled on its own goroutine; per-conversation ordering is enforced
// further down by the intake session mutex.
type Router struct {
	client        chat.Client
	intake        *service.IntakeService
	escalation    *service.EscalationService
	reports       *service.ReportService
	store         store.TicketStore
	managerChatID int64
	logger        *zap.Logger
	metrics       *observability.Metrics

	mu      sync.Mutex
	pending map[int64]reportStage
}

// Dependencies bundles collaborators for the router.
type Dependencies struct {
	Client        chat.Client
	Intake        *service.IntakeService
	Escalation    *service.EscalationService
	Reports       *service.ReportService
	Store         store.TicketStore
	ManagerChatID int64
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewRouter creates the router.
func NewRouter(deps Dependencies) *Router {
	return &Router{
		client:        deps.Client,
		intake:        deps.Intake,
		escalation:    deps.Escalation,
		reports:       deps.Reports,
		store:         deps.Store,
		managerChatID: deps.ManagerChatID,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		pending:       make(map[int64]reportStage),
	}
}

// Run blocks consuming updates until the context is cancelled or the
// update channel closes.
func (r *Router) Run(ctx context.Context) {
	updates := r.client.Updates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go r.handle(ctx, update)
		}
	}
}

func (r *Router) handle(ctx context.Context, update chat.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while handling update",
				zap.Int64("chat_id", update.ChatID), zap.Any("panic", rec))
		}
	}()

	text := strings.TrimSpace(update.Text)
	if text == "" {
		return
	}
	r.metrics.RecordBotEvent("updates_received")

	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, update.ChatID, text)
		return
	}

	if stage, ok := r.pendingStage(update.ChatID); ok {
		r.handleReportDialog(ctx, update.ChatID, stage, text)
		return
	}

	if r.intake.HandleMessage(ctx, update.ChatID, text) {
		return
	}
	r.reply(ctx, update.ChatID, "Use /start to open a new support ticket.", nil)
}

func (r *Router) handleCommand(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	// Commands interrupt whatever dialog was in flight for this chat.
	r.clearStage(chatID)

	switch command {
	case "/start":
		r.intake.Start(ctx, chatID)
	case "/cancel":
		r.intake.Cancel(ctx, chatID)
	case "/report":
		if !r.requireManager(ctx, chatID) {
			return
		}
		r.setStage(chatID, reportChooseRange)
		r.reply(ctx, chatID, "Choose the reporting period.", &chat.SendOptions{
			Keyboard: reportKeyboard(),
			OneTime:  true,
		})
	case "/assign":
		if !r.requireManager(ctx, chatID) {
			return
		}
		r.handleAssign(ctx, chatID, fields[1:])
	case "/addstaff":
		if !r.requireManager(ctx, chatID) {
			return
		}
		r.handleAddStaff(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, fields[0])))
	default:
		r.reply(ctx, chatID, "Unknown command. Use /start to open a new support ticket.", nil)
	}
}

// handleAssign implements "/assign <ticket id> <engineer name>". The
// engineer name may contain spaces.
func (r *Router) handleAssign(ctx context.Context, chatID int64, args []string) {
	if len(args) < 2 {
		r.reply(ctx, chatID, "Usage: /assign <ticket id> <engineer name>", nil)
		return
	}
	ticketID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		r.reply(ctx, chatID, "The ticket id must be a number. Usage: /assign <ticket id> <engineer name>", nil)
		return
	}
	engineerName := strings.Join(args[1:], " ")

	ticket, previous, load, err := r.escalation.ManualAssign(ctx, ticketID, engineerName)
	if err != nil {
		r.replyError(ctx, chatID, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%d was assigned to %s (load today: %d).",
		ticket.ID, ticket.AssignedEngineer, load)
	if previous != "" && previous != ticket.AssignedEngineer {
		fmt.Fprintf(&b, "\nPreviously assigned engineer: %s.", previous)
	}
	r.reply(ctx, chatID, b.String(), nil)
}

// handleAddStaff implements "/addstaff <code> <full name>[;<department>]".
func (r *Router) handleAddStaff(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		r.reply(ctx, chatID, "Usage: /addstaff <code> <full name>[;<department>]", nil)
		return
	}
	code := strings.ToUpper(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))

	fullName := rest
	department := ""
	if idx := strings.Index(rest, ";"); idx >= 0 {
		fullName = strings.TrimSpace(rest[:idx])
		department = strings.TrimSpace(rest[idx+1:])
	}
	if fullName == "" {
		r.reply(ctx, chatID, "Usage: /addstaff <code> <full name>[;<department>]", nil)
		return
	}

	err := r.store.UpsertStaff(ctx, domain.Staff{
		Code:       code,
		FullName:   fullName,
		Department: department,
	})
	if err != nil {
		r.replyError(ctx, chatID, err)
		return
	}
	r.reply(ctx, chatID, fmt.Sprintf("Staff member %s (%s) was saved.", fullName, code), nil)
}

func (r *Router) handleReportDialog(ctx context.Context, chatID int64, stage reportStage, text string) {
	switch stage {
	case reportChooseRange:
		if text == service.RangeCustom {
			r.setStage(chatID, reportCustomRange)
			r.reply(ctx, chatID, "Enter the range as YYYY-MM-DD - YYYY-MM-DD.", &chat.SendOptions{RemoveKeyboard: true})
			return
		}
		dateRange, err := r.reports.ResolveOption(text)
		if err != nil {
			r.reply(ctx, chatID, "Please pick a period from the list.", &chat.SendOptions{
				Keyboard: reportKeyboard(),
				OneTime:  true,
			})
			return
		}
		r.clearStage(chatID)
		r.sendReport(ctx, chatID, text, dateRange)
	case reportCustomRange:
		dateRange, err := r.reports.ParseCustomRange(text)
		if err != nil {
			r.replyError(ctx, chatID, err)
			return
		}
		r.clearStage(chatID)
		r.sendReport(ctx, chatID, text, dateRange)
	}
}

func (r *Router) sendReport(ctx context.Context, chatID int64, title string, dateRange store.DateRange) {
	report, err := r.reports.BuildReport(ctx, title, dateRange)
	if err != nil {
		r.replyError(ctx, chatID, err)
		return
	}
	r.metrics.RecordBotEvent("reports_generated")
	r.reply(ctx, chatID, report, &chat.SendOptions{RemoveKeyboard: true})
}

func (r *Router) requireManager(ctx context.Context, chatID int64) bool {
	if chatID == r.managerChatID {
		return true
	}
	r.reply(ctx, chatID, managerOnlyMessage, nil)
	return false
}

func (r *Router) pendingStage(chatID int64) (reportStage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stage, ok := r.pending[chatID]
	return stage, ok
}

func (r *Router) setStage(chatID int64, stage reportStage) {
	r.mu.Lock()
	r.pending[chatID] = stage
	r.mu.Unlock()
}

func (r *Router) clearStage(chatID int64) {
	r.mu.Lock()
	delete(r.pending, chatID)
	r.mu.Unlock()
}

// replyError surfaces domain error messages verbatim to the manager;
// everything else collapses to a generic failure line.
func (r *Router) replyError(ctx context.Context, chatID int64, err error) {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		message := domainErr.Message
		if available, ok := domainErr.Details["available"].(string); ok {
			message += "\nAvailable engineers: " + available
		}
		r.reply(ctx, chatID, message, nil)
		return
	}
	r.logger.Error("command failed", zap.Int64("chat_id", chatID), zap.Error(err))
	r.reply(ctx, chatID, "Something went wrong, please try again.", nil)
}

func (r *Router) reply(ctx context.Context, chatID int64, text string, opts *chat.SendOptions) {
	if err := r.client.Send(ctx, chatID, text, opts); err != nil {
		r.metrics.RecordBotEvent("notification_failures")
		r.logger.Warn("reply delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func reportKeyboard() chat.Keyboard {
	var rows chat.Keyboard
	for _, option := range service.ReportRangeOptions {
		rows = append(rows, []string{option})
	}
	return rows
}
