package lifecycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLifecycle(t *testing.T) (*Lifecycle, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	n := 0
	return New(clk, WithIDs(
		func() string { n++; return fmt.Sprintf("ticket-%d", n) },
		func() string { n++; return fmt.Sprintf("comment-%d", n) },
	)), clk
}

func vpnDown() domain.NewTicket {
	return domain.NewTicket{Title: "VPN down", Description: "Cannot connect", Category: domain.CategoryNetwork, Priority: domain.TicketPriorityHigh}
}

func TestOpen(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "ticket-1", ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, "alice", ticket.CreatedBy)
	assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)
	assert.Nil(t, ticket.AssignedTo)
	require.Len(t, ticket.Comments, 1)
	assert.Equal(t, domain.SystemCommentCreated, ticket.Comments[0].Text)
	assert.Equal(t, "alice", ticket.Comments[0].Author)
	assert.Equal(t, epoch, ticket.Comments[0].Timestamp)
}

func TestOpenValidInputsAlwaysSatisfyInvariants(t *testing.T) {
	lc, clk := newTestLifecycle(t)

	for _, category := range domain.TicketCategories {
		for _, priority := range append(domain.TicketPriorities, "") {
			clk.Advance(time.Second)
			ticket, err := lc.Open(domain.NewTicket{Title: "t", Description: "d", Category: category, Priority: priority}, "u1")
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
			assert.Len(t, ticket.Comments, 1)
			assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)
		}
	}
}

func TestOpenRejectsInvalidInput(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	tests := []struct {
		name    string
		input   domain.NewTicket
		creator string
	}{
		{"empty title", domain.NewTicket{Description: "d", Category: domain.CategorySoftware}, "alice"},
		{"empty description", domain.NewTicket{Title: "t", Category: domain.CategorySoftware}, "alice"},
		{"empty category", domain.NewTicket{Title: "t", Description: "d"}, "alice"},
		{"no creator", vpnDown(), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lc.Open(tt.input, tt.creator)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
}

func TestApplyStampsAndKeepsIdentity(t *testing.T) {
	lc, clk := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)
	created := ticket.CreatedAt

	clk.Advance(time.Hour)
	changes, err := lc.Apply(ticket, domain.SetStatus{Status: domain.TicketStatusResolved})
	require.NoError(t, err)

	assert.Equal(t, []domain.Change{{Field: domain.FieldStatus, Old: "Open", New: "Resolved"}}, changes)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Equal(t, epoch.Add(time.Hour), ticket.UpdatedAt)
	assert.Equal(t, created, ticket.CreatedAt)
	assert.Equal(t, "ticket-1", ticket.ID)
	assert.Equal(t, "alice", ticket.CreatedBy)
}

func TestApplyAllowsReopen(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusInProgress} {
		_, err := lc.Apply(ticket, domain.SetStatus{Status: status})
		require.NoError(t, err)
		assert.Equal(t, status, ticket.Status)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	lc, clk := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)
	before := ticket.Clone()

	clk.Advance(time.Minute)
	_, err = lc.Apply(ticket,
		domain.SetPriority{Priority: domain.TicketPriorityLow},
		domain.SetStatus{Status: "Closed"},
	)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, before, ticket)
}

func TestApplyRejectsEmptyCommandList(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)

	_, err = lc.Apply(ticket)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUpdatedAtNeverMovesBackwards(t *testing.T) {
	lc, clk := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = lc.Apply(ticket, domain.SetPriority{Priority: domain.TicketPriorityLow})
	require.NoError(t, err)
	high := ticket.UpdatedAt

	clk.Set(epoch.Add(-time.Hour))
	_, err = lc.Apply(ticket, domain.SetPriority{Priority: domain.TicketPriorityCritical})
	require.NoError(t, err)
	assert.Equal(t, high.Add(time.Millisecond), ticket.UpdatedAt)

	_, err = lc.Comment(ticket, "late clock", "bob")
	require.NoError(t, err)
	assert.Equal(t, high.Add(2*time.Millisecond), ticket.UpdatedAt)
	last := ticket.Comments[len(ticket.Comments)-1]
	assert.False(t, last.Timestamp.Before(ticket.Comments[0].Timestamp))
	assert.False(t, last.Timestamp.After(ticket.UpdatedAt))
}

func TestEditsInSameMillisecondAdvanceUpdatedAt(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)
	created := ticket.UpdatedAt

	_, err = lc.Apply(ticket, domain.SetStatus{Status: domain.TicketStatusResolved})
	require.NoError(t, err)
	assert.True(t, ticket.UpdatedAt.After(created))
	assert.Equal(t, created.Add(time.Millisecond), ticket.UpdatedAt)
	assert.Equal(t, epoch, ticket.CreatedAt)

	resolved := ticket.UpdatedAt
	_, err = lc.Comment(ticket, "thanks", "alice")
	require.NoError(t, err)
	assert.True(t, ticket.UpdatedAt.After(resolved))
}

func TestCommentAppends(t *testing.T) {
	lc, clk := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)
	prior := append([]domain.Comment(nil), ticket.Comments...)

	clk.Advance(5 * time.Minute)
	comment, err := lc.Comment(ticket, "  rebooted the router  ", "alice")
	require.NoError(t, err)

	assert.Equal(t, "rebooted the router", comment.Text)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, epoch.Add(5*time.Minute), ticket.UpdatedAt)
	require.Len(t, ticket.Comments, 2)
	assert.Equal(t, prior, ticket.Comments[:1])
	assert.Equal(t, comment, ticket.Comments[1])
}

func TestCommentRejectsBlankText(t *testing.T) {
	lc, _ := newTestLifecycle(t)
	ticket, err := lc.Open(vpnDown(), "alice")
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := lc.Comment(ticket, text, "dave")
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}
	assert.Len(t, ticket.Comments, 1)
}
