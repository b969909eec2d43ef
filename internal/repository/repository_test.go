package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

func strPtr(s string) *string { return &s }

func TestFilterMatches(t *testing.T) {
	ticket := &domain.Ticket{
		Title:       "VPN down",
		Description: "Cannot connect from home",
		Category:    domain.CategoryNetwork,
		Priority:    domain.TicketPriorityHigh,
		Status:      domain.TicketStatusOpen,
		CreatedBy:   "alice",
		AssignedTo:  strPtr("tech-1"),
	}

	tests := []struct {
		name   string
		filter TicketFilter
		want   bool
	}{
		{"empty", TicketFilter{}, true},
		{"creator match", TicketFilter{CreatedBy: strPtr("alice")}, true},
		{"creator mismatch", TicketFilter{CreatedBy: strPtr("carol")}, false},
		{"assignee match", TicketFilter{AssignedTo: strPtr("tech-1")}, true},
		{"assignee mismatch", TicketFilter{AssignedTo: strPtr("tech-2")}, false},
		{"status in set", TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusOpen}}, true},
		{"status not in set", TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusResolved}}, false},
		{"priority", TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityLow}}, false},
		{"category", TicketFilter{Categories: []domain.TicketCategory{domain.CategoryNetwork}}, true},
		{"search title", TicketFilter{SearchTerm: strPtr("vpn")}, true},
		{"search description", TicketFilter{SearchTerm: strPtr(" HOME ")}, true},
		{"search creator", TicketFilter{SearchTerm: strPtr("ALI")}, true},
		{"search miss", TicketFilter{SearchTerm: strPtr("printer")}, false},
		{"blank search", TicketFilter{SearchTerm: strPtr("  ")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ticket))
		})
	}
}

func TestFilterPage(t *testing.T) {
	tickets := make([]domain.Ticket, 5)
	for i := range tickets {
		tickets[i].ID = fmt.Sprintf("t-%d", i)
	}

	assert.Len(t, TicketFilter{}.Page(tickets), 5)
	assert.Len(t, TicketFilter{Limit: 2}.Page(tickets), 2)
	assert.Equal(t, "t-3", TicketFilter{Offset: 3, Limit: 1}.Page(tickets)[0].ID)
	assert.Empty(t, TicketFilter{Offset: 9}.Page(tickets))
}

func TestCheckAppendOnly(t *testing.T) {
	a := domain.Comment{ID: "a", Text: "Ticket created"}
	b := domain.Comment{ID: "b", Text: "hi"}

	assert.True(t, CheckAppendOnly([]domain.Comment{a}, []domain.Comment{a, b}))
	assert.True(t, CheckAppendOnly(nil, []domain.Comment{a}))
	assert.False(t, CheckAppendOnly([]domain.Comment{a, b}, []domain.Comment{a}))
	assert.False(t, CheckAppendOnly([]domain.Comment{a}, []domain.Comment{b, a}))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestCheckMutation(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	before := &domain.Ticket{
		ID:        "t-1",
		CreatedBy: "alice",
		CreatedAt: at,
		UpdatedAt: at,
		Comments:  []domain.Comment{{ID: "c-1", Text: "Ticket created", Author: "alice", Timestamp: at}},
	}

	ok := before.Clone()
	ok.Status = domain.TicketStatusResolved
	ok.UpdatedAt = at.Add(time.Minute)
	assert.NoError(t, CheckMutation(before, ok))

	for name, mutate := range map[string]func(*domain.Ticket){
		"id":         func(tk *domain.Ticket) { tk.ID = "t-2" },
		"creator":    func(tk *domain.Ticket) { tk.CreatedBy = "carol" },
		"created at": func(tk *domain.Ticket) { tk.CreatedAt = at.Add(time.Second) },
		"updated at": func(tk *domain.Ticket) { tk.UpdatedAt = at.Add(-time.Second) },
		"drop":       func(tk *domain.Ticket) { tk.Comments = nil },
		"rewrite":    func(tk *domain.Ticket) { tk.Comments[0].Text = "edited" },
	} {
		t.Run(name, func(t *testing.T) {
			next := before.Clone()
			mutate(next)
			assert.ErrorIs(t, CheckMutation(before, next), apperrors.ErrValidation)
		})
	}
}
