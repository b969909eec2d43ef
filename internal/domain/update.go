package domain

import (
	"strings"

	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// Field names a mutable ticket field.
type Field string

const (
	FieldStatus     Field = "status"
	FieldPriority   Field = "priority"
	FieldAssignedTo Field = "assigned_to"
)

// Change records one field edit.
type Change struct {
	Field Field  `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// TicketUpdate is one admin edit. The set of implementations is closed:
// SetStatus, SetPriority and SetAssignee are the only ways to change a
// ticket after creation besides appending comments.
type TicketUpdate interface {
	Validate() error
	Apply(t *Ticket) Change
	ticketUpdate()
}

// SetStatus moves a ticket to another lifecycle state.
type SetStatus struct {
	Status TicketStatus
}

func (u SetStatus) Validate() error {
	if !u.Status.Valid() {
		return apperrors.NewFieldError(string(FieldStatus), "unknown status")
	}
	return nil
}

func (u SetStatus) Apply(t *Ticket) Change {
	change := Change{Field: FieldStatus, Old: string(t.Status), New: string(u.Status)}
	t.Status = u.Status
	return change
}

func (SetStatus) ticketUpdate() {}

// SetPriority changes the urgency of a ticket.
type SetPriority struct {
	Priority TicketPriority
}

func (u SetPriority) Validate() error {
	if !u.Priority.Valid() {
		return apperrors.NewFieldError(string(FieldPriority), "unknown priority")
	}
	return nil
}

func (u SetPriority) Apply(t *Ticket) Change {
	change := Change{Field: FieldPriority, Old: string(t.Priority), New: string(u.Priority)}
	t.Priority = u.Priority
	return change
}

func (SetPriority) ticketUpdate() {}

// SetAssignee assigns a ticket. A nil or blank AssigneeID clears the assignment.
type SetAssignee struct {
	AssigneeID *string
}

func (u SetAssignee) Validate() error {
	return nil
}

func (u SetAssignee) Apply(t *Ticket) Change {
	change := Change{Field: FieldAssignedTo, Old: derefString(t.AssignedTo)}
	if u.AssigneeID == nil || strings.TrimSpace(*u.AssigneeID) == "" {
		t.AssignedTo = nil
		return change
	}
	assignee := strings.TrimSpace(*u.AssigneeID)
	t.AssignedTo = &assignee
	change.New = assignee
	return change
}

func (SetAssignee) ticketUpdate() {}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
