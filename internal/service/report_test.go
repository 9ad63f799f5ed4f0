package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/store"
)

func newReportService(t *testing.T, st store.TicketStore) *ReportService {
	t.Helper()
	s := NewReportService(st, testRoster, time.UTC)
	s.now = func() time.Time {
		return time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestResolveOption(t *testing.T) {
	s := newReportService(t, nil)

	tests := []struct {
		option string
		from   string
		to     string
	}{
		{RangeToday, "2024-05-15", "2024-05-16"},
		{RangeLastWeek, "2024-05-09", "2024-05-16"},
		{RangeThisMonth, "2024-05-01", "2024-06-01"},
		{RangePreviousMonth, "2024-04-01", "2024-05-01"},
	}

	for _, tt := range tests {
		t.Run(tt.option, func(t *testing.T) {
			r, err := s.ResolveOption(tt.option)
			require.NoError(t, err)
			require.NotNil(t, r.From)
			require.NotNil(t, r.To)
			assert.Equal(t, tt.from, r.From.Format("2006-01-02"))
			assert.Equal(t, tt.to, r.To.Format("2006-01-02"))
		})
	}
}

func TestResolveOptionRejectsUnknown(t *testing.T) {
	s := newReportService(t, nil)

	_, err := s.ResolveOption("Next year")
	assert.Error(t, err)

	// Custom range never resolves directly; it needs explicit dates.
	_, err = s.ResolveOption(RangeCustom)
	assert.Error(t, err)
}

func TestParseCustomRange(t *testing.T) {
	s := newReportService(t, nil)

	r, err := s.ParseCustomRange("2024-05-01 - 2024-05-31")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", r.From.Format("2006-01-02"))
	// The end day is inclusive, so the exclusive bound is the next day.
	assert.Equal(t, "2024-06-01", r.To.Format("2006-01-02"))
}

func TestParseCustomRangeSingleDay(t *testing.T) {
	s := newReportService(t, nil)

	r, err := s.ParseCustomRange("2024-05-01 - 2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", r.From.Format("2006-01-02"))
	assert.Equal(t, "2024-05-02", r.To.Format("2006-01-02"))
}

func TestParseCustomRangeRejectsInvalid(t *testing.T) {
	s := newReportService(t, nil)

	invalid := []string{
		"not a date",
		"2024-05-31 - 2024-05-01",
		"2024-05-01",
		"2024-13-01 - 2024-13-31",
		"2024-05-01 to 2024-05-31",
	}
	for _, input := range invalid {
		_, err := s.ParseCustomRange(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestBuildReport(t *testing.T) {
	st, err := store.NewSqliteStore(":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	category, ok := domain.FindIssueCategory("Network")
	require.True(t, ok)

	for i, dept := range []string{"IT", "IT", "HR"} {
		id, err := st.CreateTicket(ctx, store.NewTicket{
			ChatID:     int64(100 + i),
			FullName:   "A. Bat",
			Department: dept,
			Category:   category,
		})
		require.NoError(t, err)
		if i == 0 {
			require.NoError(t, st.Assign(ctx, id, "Bold"))
		}
	}

	s := NewReportService(st, testRoster, time.UTC)
	report, err := s.BuildReport(ctx, "Today", store.DateRange{})
	require.NoError(t, err)

	assert.Contains(t, report, "Total tickets: 3")
	assert.Contains(t, report, "IT: 2")
	assert.Contains(t, report, "HR: 1")
	assert.Contains(t, report, "Network: 3")
	assert.Contains(t, report, "Bold: 1 assigned, 0 resolved")
}

func TestBuildReportEmptyRange(t *testing.T) {
	st, err := store.NewSqliteStore(":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewReportService(st, testRoster, time.UTC)
	report, err := s.BuildReport(context.Background(), "Today", store.DateRange{})
	require.NoError(t, err)
	assert.Contains(t, report, "No tickets were created in this period.")
}
