package store

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// ErrNotFound signals that a requested ticket or staff row is absent.
var ErrNotFound = errors.New("not found")

// NewTicket carries the fields captured by intake at creation time.
type NewTicket struct {
	ChatID     int64
	FullName   string
	Department string
	StaffCode  string
	Category   domain.IssueCategory
}

// DateRange restricts aggregates to tickets created within
// [From, To). A nil bound is unbounded on that side.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// EngineerStats aggregates per-engineer ticket counts.
type EngineerStats struct {
	Total    int
	Resolved int
}

// Summary is the reporting aggregate over a date range.
type Summary struct {
	Total        int
	ByDepartment map[string]int
	ByIssueType  map[string]int
	ByStatus     map[domain.TicketStatus]int
	ByEngineer   map[string]EngineerStats
}

// TicketStore is the durable record of tickets and the staff
// directory. Implementations serialize every operation internally;
// each method is its own atomic unit and no transaction spans two of
// them. Blind mutations against an absent id are silent no-ops.
type TicketStore interface {
	CreateTicket(ctx context.Context, t NewTicket) (int64, error)
	SetDescription(ctx context.Context, id int64, text string) error
	SetAIGuidance(ctx context.Context, id int64, text string) error
	SetStatus(ctx context.Context, id int64, status domain.TicketStatus) error

	// Assign unconditionally assigns the engineer and moves the ticket
	// to escalated_to_engineer. Manual action always wins.
	Assign(ctx context.Context, id int64, engineerName string) error
	// AssignIfUnassigned performs Assign only when no engineer is set
	// yet; returns whether the assignment happened. This is the
	// linchpin of race safety between manual and timer-driven paths.
	AssignIfUnassigned(ctx context.Context, id int64, engineerName string) (bool, error)
	IsAssigned(ctx context.Context, id int64) (bool, error)
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)

	// LoadsToday counts tickets per engineer assigned to them with a
	// creation date equal to the current date in the reference timezone.
	LoadsToday(ctx context.Context, engineerNames []string) (map[string]int, error)
	Summary(ctx context.Context, r DateRange) (*Summary, error)

	UpsertStaff(ctx context.Context, s domain.Staff) error
	GetStaff(ctx context.Context, code string) (*domain.Staff, error)
	IsCodeAllowed(ctx context.Context, code string) (bool, error)
	HasAnyStaff(ctx context.Context) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// dayBounds returns the [start, next-day-start) instants of the
// calendar day containing now in the given location.
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

var resolvedStatuses = []domain.TicketStatus{
	domain.StatusResolvedWithBasic,
	domain.StatusResolvedWithAI,
}
