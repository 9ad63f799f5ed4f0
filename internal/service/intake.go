package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/chat"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/guidance"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

type intakeState int

const (
	stateAskStaffCode intakeState = iota
	stateAskName
	stateAskDepartment
	stateChooseIssue
	stateBasicFollowup
	stateRequestDetails
	stateAIFollowup
)

// staffCodeAttemptCap terminates the session after this many invalid
// staff codes in a row.
const staffCodeAttemptCap = 3

var yesResponses = map[string]bool{"yes": true, "y": true, "тийм": true, "tiim": true}
var noResponses = map[string]bool{"no": true, "n": true, "үгүй": true, "ugui": true}

// session is the bag of fields accumulated across one reporter's
// conversation. Constructed at /start, torn down at session end or
// /cancel. The mutex serializes messages from the same reporter; a
// blocking guidance call therefore never freezes other reporters.
type session struct {
	mu        sync.Mutex
	chatID    int64
	state     intakeState
	attempts  int
	fullName  string
	dept      string
	staffCode string
	category  domain.IssueCategory
	ticketID  int64
}

// IntakeService walks one reporter through identity capture, issue
// classification and the two guidance tiers, producing and updating
// exactly one ticket per conversation.
type IntakeService struct {
	store      store.TicketStore
	generator  guidance.Generator
	sender     chat.Sender
	escalation *EscalationService
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	sessions map[int64]*session
}

// IntakeDependencies bundles collaborators.
type IntakeDependencies struct {
	Store      store.TicketStore
	Generator  guidance.Generator
	Sender     chat.Sender
	Escalation *EscalationService
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewIntakeService creates the service.
func NewIntakeService(deps IntakeDependencies) *IntakeService {
	return &IntakeService{
		store:      deps.Store,
		generator:  deps.Generator,
		sender:     deps.Sender,
		escalation: deps.Escalation,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		sessions:   make(map[int64]*session),
	}
}

// Start begins (or restarts) a conversation for the chat. One active
// ticket flow per reporting user at a time: any previous session for
// the same chat is discarded.
func (s *IntakeService) Start(ctx context.Context, chatID int64) {
	sess := &session{chatID: chatID}

	gated, err := s.store.HasAnyStaff(ctx)
	if err != nil {
		s.logger.Error("staff directory check failed", zap.Error(err))
		s.reply(ctx, chatID, "Something went wrong, please try again with /start.", removeKeyboard())
		return
	}

	if gated {
		sess.state = stateAskStaffCode
		s.put(sess)
		s.reply(ctx, chatID, "Hello. Please enter your staff code.", removeKeyboard())
		return
	}
	sess.state = stateAskName
	s.put(sess)
	s.reply(ctx, chatID, "Hello. Please enter your full name.", removeKeyboard())
}

// Cancel unconditionally ends the session without mutating the ticket
// further. Safe when no session exists.
func (s *IntakeService) Cancel(ctx context.Context, chatID int64) {
	s.drop(chatID)
	s.reply(ctx, chatID, "The conversation was cancelled. Use /start to begin again.", removeKeyboard())
}

// HandleMessage feeds one reporter message into the conversation.
// Returns false when no session is active for the chat.
func (s *IntakeService) HandleMessage(ctx context.Context, chatID int64, text string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	text = strings.TrimSpace(text)
	switch sess.state {
	case stateAskStaffCode:
		s.handleStaffCode(ctx, sess, text)
	case stateAskName:
		s.handleName(ctx, sess, text)
	case stateAskDepartment:
		s.handleDepartment(ctx, sess, text)
	case stateChooseIssue:
		s.handleIssueChoice(ctx, sess, text)
	case stateBasicFollowup:
		s.handleBasicFollowup(ctx, sess, text)
	case stateRequestDetails:
		s.handleDetails(ctx, sess, text)
	case stateAIFollowup:
		s.handleAIFollowup(ctx, sess, text)
	}
	return true
}

func (s *IntakeService) handleStaffCode(ctx context.Context, sess *session, text string) {
	code := strings.ToUpper(text)

	allowed, err := s.store.IsCodeAllowed(ctx, code)
	if err != nil {
		s.logger.Error("staff code lookup failed", zap.Error(err))
		s.reply(ctx, sess.chatID, "Something went wrong, please enter your staff code again.", nil)
		return
	}
	if !allowed {
		sess.attempts++
		if sess.attempts >= staffCodeAttemptCap {
			s.drop(sess.chatID)
			s.reply(ctx, sess.chatID,
				"Too many unrecognized staff codes. The session has ended; use /start to try again.",
				removeKeyboard())
			return
		}
		s.reply(ctx, sess.chatID,
			"That staff code is not registered. Check the code and enter it again.", nil)
		return
	}

	sess.staffCode = code

	// Directory enrichment is best-effort: a known code with a partial
	// directory row falls back to asking for the missing fields.
	staff, err := s.store.GetStaff(ctx, code)
	if err == nil && staff.FullName != "" && staff.Department != "" {
		sess.fullName = staff.FullName
		sess.dept = staff.Department
		sess.state = stateChooseIssue
		greeting := fmt.Sprintf("Hello, %s!\nYour details: %s", staff.FullName, staff.Department)
		if staff.Position != "" {
			greeting += " - " + staff.Position
		}
		s.reply(ctx, sess.chatID, greeting+"\nChoose the type of issue you are facing.", issueKeyboard())
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("staff directory lookup failed", zap.Error(err))
	}

	sess.state = stateAskName
	s.reply(ctx, sess.chatID, "Please enter your full name.", nil)
}

func (s *IntakeService) handleName(ctx context.Context, sess *session, text string) {
	if text == "" {
		s.reply(ctx, sess.chatID, "Please enter your full name.", nil)
		return
	}
	sess.fullName = text
	sess.state = stateAskDepartment
	s.reply(ctx, sess.chatID, "Which department do you work in?", nil)
}

func (s *IntakeService) handleDepartment(ctx context.Context, sess *session, text string) {
	if text == "" {
		s.reply(ctx, sess.chatID, "Please enter your department.", nil)
		return
	}
	sess.dept = text
	sess.state = stateChooseIssue
	s.reply(ctx, sess.chatID, "Choose the type of issue you are facing.", issueKeyboard())
}

func (s *IntakeService) handleIssueChoice(ctx context.Context, sess *session, text string) {
	category, ok := domain.FindIssueCategory(text)
	if !ok {
		s.reply(ctx, sess.chatID, "Please pick an option from the list.", issueKeyboard())
		return
	}

	sess.category = category
	ticketID, err := s.store.CreateTicket(ctx, store.NewTicket{
		ChatID:     sess.chatID,
		FullName:   sess.fullName,
		Department: sess.dept,
		StaffCode:  sess.staffCode,
		Category:   category,
	})
	if err != nil {
		s.logger.Error("ticket creation failed", zap.Error(err))
		s.reply(ctx, sess.chatID, "Something went wrong, please pick the issue type again.", issueKeyboard())
		return
	}
	sess.ticketID = ticketID
	sess.state = stateBasicFollowup
	s.metrics.RecordBotEvent("tickets_created")

	s.reply(ctx, sess.chatID, category.BasicGuidance, nil)
	s.reply(ctx, sess.chatID, "Did the steps above resolve your issue?", yesNoKeyboard())
}

func (s *IntakeService) handleBasicFollowup(ctx context.Context, sess *session, text string) {
	switch {
	case isYes(text):
		if err := s.store.SetStatus(ctx, sess.ticketID, domain.StatusResolvedWithBasic); err != nil {
			s.logger.Error("status update failed", zap.Error(err))
		}
		s.drop(sess.chatID)
		s.reply(ctx, sess.chatID, "Thank you. The ticket was closed successfully.", removeKeyboard())
	case isNo(text):
		sess.state = stateRequestDetails
		s.reply(ctx, sess.chatID, "Please describe your issue in detail.", removeKeyboard())
	default:
		s.reply(ctx, sess.chatID, "Please answer 'Yes' or 'No'.", yesNoKeyboard())
	}
}

func (s *IntakeService) handleDetails(ctx context.Context, sess *session, text string) {
	if text == "" {
		s.reply(ctx, sess.chatID, "Please describe your issue in detail.", nil)
		return
	}

	if err := s.store.SetDescription(ctx, sess.ticketID, text); err != nil {
		s.logger.Error("description update failed", zap.Error(err))
	}
	if err := s.store.SetStatus(ctx, sess.ticketID, domain.StatusAwaitingAIGuidance); err != nil {
		s.logger.Error("status update failed", zap.Error(err))
	}
	s.reply(ctx, sess.chatID, "Requesting guidance from the AI assistant...", removeKeyboard())

	advice, err := s.generator.GenerateGuidance(ctx, sess.category.Title, text)
	if err != nil {
		s.failGuidance(ctx, sess, err)
		return
	}

	if err := s.store.SetAIGuidance(ctx, sess.ticketID, advice); err != nil {
		s.logger.Error("guidance update failed", zap.Error(err))
	}
	sess.state = stateAIFollowup
	s.reply(ctx, sess.chatID, advice, nil)
	s.reply(ctx, sess.chatID, "Did these steps help?", yesNoKeyboard())
}

// failGuidance converts any generator failure into the
// ai_guidance_failed branch: the manager gets the raw error, the
// reporter a generic notice, and the flow continues into escalation.
func (s *IntakeService) failGuidance(ctx context.Context, sess *session, cause error) {
	s.logger.Warn("guidance generation failed",
		zap.Int64("ticket_id", sess.ticketID), zap.Error(cause))

	if err := s.store.SetStatus(ctx, sess.ticketID, domain.StatusAIGuidanceFailed); err != nil {
		s.logger.Error("status update failed", zap.Error(err))
	}
	if ticket, err := s.store.GetTicket(ctx, sess.ticketID); err == nil {
		s.escalation.ReportGuidanceFailure(ctx, ticket, cause)
	}

	s.reply(ctx, sess.chatID,
		"AI guidance is not available right now. Your ticket is being forwarded to our engineers.",
		removeKeyboard())
	s.escalate(ctx, sess)
}

func (s *IntakeService) handleAIFollowup(ctx context.Context, sess *session, text string) {
	switch {
	case isYes(text):
		if err := s.store.SetStatus(ctx, sess.ticketID, domain.StatusResolvedWithAI); err != nil {
			s.logger.Error("status update failed", zap.Error(err))
		}
		s.drop(sess.chatID)
		s.reply(ctx, sess.chatID, "Great. The ticket was closed with the AI guidance.", removeKeyboard())
	case isNo(text):
		s.escalate(ctx, sess)
	default:
		s.reply(ctx, sess.chatID, "Please answer 'Yes' or 'No'.", yesNoKeyboard())
	}
}

func (s *IntakeService) escalate(ctx context.Context, sess *session) {
	s.drop(sess.chatID)
	if err := s.escalation.Escalate(ctx, sess.ticketID); err != nil {
		s.logger.Error("escalation failed", zap.Int64("ticket_id", sess.ticketID), zap.Error(err))
	}
	s.reply(ctx, sess.chatID,
		"Your ticket was forwarded to the IT support manager. They will be in touch shortly.",
		removeKeyboard())
}

// ActiveSessions reports the number of conversations in flight.
func (s *IntakeService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *IntakeService) put(sess *session) {
	s.mu.Lock()
	s.sessions[sess.chatID] = sess
	s.mu.Unlock()
}

func (s *IntakeService) drop(chatID int64) {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
}

// reply sends a conversational message; reporters never see raw error
// details, so delivery failures are only logged.
func (s *IntakeService) reply(ctx context.Context, chatID int64, text string, opts *chat.SendOptions) {
	if err := s.sender.Send(ctx, chatID, text, opts); err != nil {
		s.metrics.RecordBotEvent("notification_failures")
		s.logger.Warn("reply delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func isYes(text string) bool {
	return yesResponses[strings.ToLower(strings.TrimSpace(text))]
}

func isNo(text string) bool {
	return noResponses[strings.ToLower(strings.TrimSpace(text))]
}

func yesNoKeyboard() *chat.SendOptions {
	return &chat.SendOptions{
		Keyboard: chat.Keyboard{{"Yes", "No"}},
		OneTime:  true,
	}
}

func issueKeyboard() *chat.SendOptions {
	titles := domain.IssueTitles()
	var rows chat.Keyboard
	for i := 0; i < len(titles); i += 2 {
		end := i + 2
		if end > len(titles) {
			end = len(titles)
		}
		rows = append(rows, titles[i:end])
	}
	return &chat.SendOptions{Keyboard: rows}
}

func removeKeyboard() *chat.SendOptions {
	return &chat.SendOptions{RemoveKeyboard: true}
}
