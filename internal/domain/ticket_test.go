package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    TicketStatus
		to      TicketStatus
		allowed bool
	}{
		{"basic resolved", StatusBasicGuidanceProvided, StatusResolvedWithBasic, true},
		{"basic to ai request", StatusBasicGuidanceProvided, StatusAwaitingAIGuidance, true},
		{"ai request succeeds", StatusAwaitingAIGuidance, StatusAIGuidanceProvided, true},
		{"ai request fails", StatusAwaitingAIGuidance, StatusAIGuidanceFailed, true},
		{"ai resolved", StatusAIGuidanceProvided, StatusResolvedWithAI, true},
		{"ai declined", StatusAIGuidanceProvided, StatusAwaitingManager, true},
		{"failure escalates", StatusAIGuidanceFailed, StatusAwaitingManager, true},
		{"manager assigns", StatusAwaitingManager, StatusEscalatedToEngineer, true},
		{"re-assignment", StatusEscalatedToEngineer, StatusEscalatedToEngineer, true},

		{"no backward move", StatusAwaitingManager, StatusBasicGuidanceProvided, false},
		{"no skip to engineer", StatusBasicGuidanceProvided, StatusEscalatedToEngineer, false},
		{"terminal stays terminal", StatusResolvedWithBasic, StatusAwaitingManager, false},
		{"assigned never resolves backward", StatusEscalatedToEngineer, StatusAwaitingManager, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestResolved(t *testing.T) {
	assert.True(t, StatusResolvedWithBasic.Resolved())
	assert.True(t, StatusResolvedWithAI.Resolved())
	assert.False(t, StatusAwaitingManager.Resolved())
	assert.False(t, StatusEscalatedToEngineer.Resolved())
}

func TestRosterFind(t *testing.T) {
	roster := Roster{
		{Name: "Bold", ChatID: 1},
		{Name: "Saruul", ChatID: 2},
	}

	eng, ok := roster.Find("saruul")
	assert.True(t, ok)
	assert.Equal(t, int64(2), eng.ChatID)

	_, ok = roster.Find("nobody")
	assert.False(t, ok)

	assert.Equal(t, []string{"Bold", "Saruul"}, roster.Names())
}

func TestFindIssueCategory(t *testing.T) {
	category, ok := FindIssueCategory("Network")
	assert.True(t, ok)
	assert.NotEmpty(t, category.BasicGuidance)

	_, ok = FindIssueCategory("Quantum issues")
	assert.False(t, ok)
}
