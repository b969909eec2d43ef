package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// MaxTitleLength bounds ticket titles, counted in characters.
const MaxTitleLength = 100

// SystemCommentCreated is the text of the comment seeded on every new ticket.
const SystemCommentCreated = "Ticket created"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
)

// TicketStatuses lists every status in display order.
var TicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// TicketPriorities lists every priority from lowest to highest.
var TicketPriorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// TicketCategory is the fixed set of request categories.
type TicketCategory string

const (
	CategoryITSupport      TicketCategory = "IT Support"
	CategorySoftware       TicketCategory = "Software"
	CategoryHardware       TicketCategory = "Hardware"
	CategoryNetwork        TicketCategory = "Network"
	CategoryAccessRequest  TicketCategory = "Access Request"
	CategoryGeneralInquiry TicketCategory = "General Inquiry"
	CategoryBugReport      TicketCategory = "Bug Report"
	CategoryFeatureRequest TicketCategory = "Feature Request"
)

// TicketCategories lists every category in display order.
var TicketCategories = []TicketCategory{
	CategoryITSupport,
	CategorySoftware,
	CategoryHardware,
	CategoryNetwork,
	CategoryAccessRequest,
	CategoryGeneralInquiry,
	CategoryBugReport,
	CategoryFeatureRequest,
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, known := range TicketCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for support requests. It owns its comments.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus
	CreatedBy   string
	AssignedTo  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Comments    []Comment
}

// Comment is an immutable entry in a ticket's thread.
type Comment struct {
	ID        string
	Text      string
	Author    string
	Timestamp time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.AssignedTo != nil {
		assignee := *t.AssignedTo
		out.AssignedTo = &assignee
	}
	out.Comments = append([]Comment(nil), t.Comments...)
	return &out
}

// NewTicket is the input for opening a ticket.
type NewTicket struct {
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
}

// Normalize trims free text and applies the default priority.
func (n NewTicket) Normalize() NewTicket {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	n.Category = TicketCategory(strings.TrimSpace(string(n.Category)))
	if n.Priority == "" {
		n.Priority = TicketPriorityMedium
	}
	return n
}

// Validate checks a normalized NewTicket and returns the first problem.
func (n NewTicket) Validate() error {
	if n.Title == "" {
		return apperrors.NewFieldError("title", "title is required")
	}
	if utf8.RuneCountInString(n.Title) > MaxTitleLength {
		return apperrors.NewFieldError("title", "title must be at most 100 characters")
	}
	if n.Description == "" {
		return apperrors.NewFieldError("description", "description is required")
	}
	if n.Category == "" {
		return apperrors.NewFieldError("category", "category is required")
	}
	if !n.Category.Valid() {
		return apperrors.NewFieldError("category", "unknown category")
	}
	if !n.Priority.Valid() {
		return apperrors.NewFieldError("priority", "unknown priority")
	}
	return nil
}

// TicketStats summarizes a ticket collection by status.
type TicketStats struct {
	Total      int
	Open       int
	InProgress int
	Resolved   int
}

// CountTickets tallies tickets by status.
func CountTickets(tickets []Ticket) TicketStats {
	stats := TicketStats{Total: len(tickets)}
	for i := range tickets {
		switch tickets[i].Status {
		case TicketStatusOpen:
			stats.Open++
		case TicketStatusInProgress:
			stats.InProgress++
		case TicketStatusResolved:
			stats.Resolved++
		}
	}
	return stats
}
