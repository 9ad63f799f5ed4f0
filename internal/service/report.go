package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/store"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util"
)

// Report range options as presented on the manager's keyboard.
const (
	RangeToday         = "Today"
	RangeLastWeek      = "Last 7 days"
	RangeThisMonth     = "This month"
	RangePreviousMonth = "Previous month"
	RangeCustom        = "Custom range"
)

// ReportRangeOptions lists the selectable range labels in display order.
var ReportRangeOptions = []string{
	RangeToday, RangeLastWeek, RangeThisMonth, RangePreviousMonth, RangeCustom,
}

// ReportService resolves range selections into date windows and renders
// ticket summaries for the manager.
type ReportService struct {
	store  store.TicketStore
	roster domain.Roster
	loc    *time.Location
	now    func() time.Time
}

// NewReportService creates the service. All day arithmetic happens in
// loc, the reference timezone.
func NewReportService(st store.TicketStore, roster domain.Roster, loc *time.Location) *ReportService {
	return &ReportService{store: st, roster: roster, loc: loc, now: time.Now}
}

// ResolveOption maps a keyboard label to a date range. RangeCustom does
// not resolve here; the caller must collect the explicit range first.
func (s *ReportService) ResolveOption(option string) (store.DateRange, error) {
	now := s.now().In(s.loc)
	switch option {
	case RangeToday:
		start := s.startOfDay(now)
		return rangeBetween(start, start.AddDate(0, 0, 1)), nil
	case RangeLastWeek:
		end := s.startOfDay(now).AddDate(0, 0, 1)
		return rangeBetween(end.AddDate(0, 0, -7), end), nil
	case RangeThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
		return rangeBetween(start, start.AddDate(0, 1, 0)), nil
	case RangePreviousMonth:
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
		return rangeBetween(thisMonth.AddDate(0, -1, 0), thisMonth), nil
	default:
		return store.DateRange{}, apperrors.NewValidationError(
			"unknown report range option", map[string]any{"option": option})
	}
}

// ParseCustomRange parses an explicit "YYYY-MM-DD - YYYY-MM-DD" range.
// Both days are inclusive; the interpretation happens in the reference
// timezone. Inverted or malformed input is rejected.
func (s *ReportService) ParseCustomRange(text string) (store.DateRange, error) {
	parts := strings.Split(text, " - ")
	if len(parts) != 2 {
		return store.DateRange{}, invalidRange(text)
	}

	from, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(parts[0]), s.loc)
	if err != nil {
		return store.DateRange{}, invalidRange(text)
	}
	to, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(parts[1]), s.loc)
	if err != nil {
		return store.DateRange{}, invalidRange(text)
	}
	if to.Before(from) {
		return store.DateRange{}, apperrors.NewValidationError(
			"the end date is before the start date", map[string]any{"input": text})
	}
	return rangeBetween(from, to.AddDate(0, 0, 1)), nil
}

// BuildReport fetches the summary for the range and renders it as a
// chat message.
func (s *ReportService) BuildReport(ctx context.Context, title string, r store.DateRange) (string, error) {
	summary, err := s.store.Summary(ctx, r)
	if err != nil {
		return "", apperrors.MapError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket report — %s\n", title)
	fmt.Fprintf(&b, "Total tickets: %d\n", summary.Total)
	if summary.Total == 0 {
		b.WriteString("\nNo tickets were created in this period.")
		return b.String(), nil
	}

	b.WriteString("\nBy department:\n")
	writeCounts(&b, summary.ByDepartment)

	b.WriteString("\nBy issue type:\n")
	writeCounts(&b, summary.ByIssueType)

	b.WriteString("\nBy status:\n")
	statuses := make(map[string]int, len(summary.ByStatus))
	for status, count := range summary.ByStatus {
		statuses[string(status)] = count
	}
	writeCounts(&b, statuses)

	if len(summary.ByEngineer) > 0 {
		b.WriteString("\nBy engineer:\n")
		for _, name := range s.engineerOrder(summary.ByEngineer) {
			stats := summary.ByEngineer[name]
			fmt.Fprintf(&b, "- %s: %d assigned, %d resolved\n", name, stats.Total, stats.Resolved)
		}
	}
	return b.String(), nil
}

// engineerOrder yields roster engineers first, in roster order, then
// any remaining names (historic assignees) alphabetically.
func (s *ReportService) engineerOrder(stats map[string]store.EngineerStats) []string {
	seen := make(map[string]bool, len(stats))
	order := make([]string, 0, len(stats))
	for _, eng := range s.roster {
		if _, ok := stats[eng.Name]; ok {
			order = append(order, eng.Name)
			seen[eng.Name] = true
		}
	}
	var rest []string
	for name := range stats {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func (s *ReportService) startOfDay(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func writeCounts(b *strings.Builder, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		fmt.Fprintf(b, "- %s: %d\n", key, counts[key])
	}
}

func rangeBetween(from, to time.Time) store.DateRange {
	return store.DateRange{From: &from, To: &to}
}

func invalidRange(input string) error {
	return apperrors.NewValidationError(
		"the range must look like YYYY-MM-DD - YYYY-MM-DD", map[string]any{"input": input})
}
