package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	StatusBasicGuidanceProvided TicketStatus = "basic_guidance_provided"
	StatusAwaitingAIGuidance    TicketStatus = "awaiting_ai_guidance"
	StatusAIGuidanceProvided    TicketStatus = "ai_guidance_provided"
	StatusAIGuidanceFailed      TicketStatus = "ai_guidance_failed"
	StatusAwaitingManager       TicketStatus = "awaiting_manager"
	StatusEscalatedToEngineer   TicketStatus = "escalated_to_engineer"
	StatusResolvedWithBasic     TicketStatus = "resolved_with_basic"
	StatusResolvedWithAI        TicketStatus = "resolved_with_ai"
)

// Ticket is the aggregate for one reported issue.
type Ticket struct {
	ID               int64
	ChatID           int64
	FullName         string
	Department       string
	StaffCode        string
	IssueType        string
	BasicGuidance    string
	IssueDescription string
	AIGuidance       string
	Status           TicketStatus
	AssignedEngineer string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Resolved reports whether the ticket reached a terminal resolution.
func (s TicketStatus) Resolved() bool {
	return s == StatusResolvedWithBasic || s == StatusResolvedWithAI
}

// successors maps each status to the set of statuses reachable in one
// transition. Status is monotonic along the flow; nothing moves backward.
var successors = map[TicketStatus][]TicketStatus{
	StatusBasicGuidanceProvided: {StatusResolvedWithBasic, StatusAwaitingAIGuidance},
	StatusAwaitingAIGuidance:    {StatusAIGuidanceProvided, StatusAIGuidanceFailed},
	StatusAIGuidanceProvided:    {StatusResolvedWithAI, StatusAwaitingManager},
	StatusAIGuidanceFailed:      {StatusAwaitingManager},
	StatusAwaitingManager:       {StatusEscalatedToEngineer},
	StatusEscalatedToEngineer:   {StatusEscalatedToEngineer},
}

// CanTransition reports whether moving from one status to the next
// follows the documented partial order. escalated_to_engineer permits a
// self-transition so manager re-assignment stays legal.
func CanTransition(from, to TicketStatus) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}
