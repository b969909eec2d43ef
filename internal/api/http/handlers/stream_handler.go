package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/subscription"
)

// StreamHandler serves live ticket collections as server-sent events.
type StreamHandler struct {
	hub       *subscription.Hub
	keepAlive time.Duration
}

// NewStreamHandler constructs handler.
func NewStreamHandler(hub *subscription.Hub, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &StreamHandler{hub: hub, keepAlive: keepAlive}
}

// Stream handles GET /tickets/stream. Every event carries the caller's full
// visible collection, newest first.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	sub, err := h.hub.Subscribe(c.UserContext(), auth.CurrentUser(c))
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAlive := h.keepAlive
	// The writer outlives the handler, so it must not use the request
	// context. It stops when the hub closes the subscription or a write
	// to the client fails.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Cancel()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		var seq int
		for {
			select {
			case tickets, ok := <-sub.Updates():
				if !ok {
					return
				}
				seq++
				if err := writeSnapshot(w, seq, tickets); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeSnapshot(w *bufio.Writer, seq int, tickets []domain.Ticket) error {
	payload, err := json.Marshal(dto.NewTicketList(tickets))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: tickets\ndata: %s\n\n", seq, payload); err != nil {
		return err
	}
	return w.Flush()
}
