package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxPage keeps the row offset within an int.
	maxPage = math.MaxInt / maxPageSize
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Create(c.UserContext(), auth.CurrentUser(c), domain.NewTicket{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets. Admins see every ticket, members their own.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListVisible(c.UserContext(), auth.CurrentUser(c), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketList(tickets)})
}

// ListUserTickets GET /users/:id/tickets.
func (h *TicketsHandler) ListUserTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.ListByCreator(c.UserContext(), auth.CurrentUser(c), c.Params("id"), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketList(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), auth.CurrentUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /tickets/:id. Only status, priority and assigned_to
// may be sent.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	updates, err := parseTicketPatch(c.Body())
	if err != nil {
		return err
	}
	ticket, err := h.service.Update(c.UserContext(), auth.CurrentUser(c), c.Params("id"), updates...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), auth.CurrentUser(c), c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(*comment)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), auth.CurrentUser(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), auth.CurrentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketStatsResponse(stats)})
}

func parseTicketPatch(body []byte) ([]domain.TicketUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", nil)
	}
	for key := range fields {
		switch domain.Field(key) {
		case domain.FieldStatus, domain.FieldPriority, domain.FieldAssignedTo:
		default:
			return nil, apperrors.NewFieldError(key, "field cannot be changed")
		}
	}

	var updates []domain.TicketUpdate
	if raw, ok := fields[string(domain.FieldStatus)]; ok {
		var status domain.TicketStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, apperrors.NewFieldError(string(domain.FieldStatus), "status must be a string")
		}
		updates = append(updates, domain.SetStatus{Status: status})
	}
	if raw, ok := fields[string(domain.FieldPriority)]; ok {
		var priority domain.TicketPriority
		if err := json.Unmarshal(raw, &priority); err != nil {
			return nil, apperrors.NewFieldError(string(domain.FieldPriority), "priority must be a string")
		}
		updates = append(updates, domain.SetPriority{Priority: priority})
	}
	if raw, ok := fields[string(domain.FieldAssignedTo)]; ok {
		var assignee *string
		if err := json.Unmarshal(raw, &assignee); err != nil {
			return nil, apperrors.NewFieldError(string(domain.FieldAssignedTo), "assigned_to must be a string or null")
		}
		updates = append(updates, domain.SetAssignee{AssigneeID: assignee})
	}
	return updates, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	for _, part := range splitList(c.Query("status")) {
		status := domain.TicketStatus(part)
		if !status.Valid() {
			return filter, apperrors.NewFieldError("status", "unknown status")
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitList(c.Query("priority")) {
		priority := domain.TicketPriority(part)
		if !priority.Valid() {
			return filter, apperrors.NewFieldError("priority", "unknown priority")
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	for _, part := range splitList(c.Query("category")) {
		category := domain.TicketCategory(part)
		if !category.Valid() {
			return filter, apperrors.NewFieldError("category", "unknown category")
		}
		filter.Categories = append(filter.Categories, category)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}

	page := parseInt(c.Query("page"), 1)
	if page > maxPage {
		return filter, apperrors.NewFieldError("page", "page is out of range")
	}
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
